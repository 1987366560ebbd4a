package gdservice

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/guardduty/types"
)

// Severity filter values accepted by list_findings
const (
	SeverityAll      = "ALL"
	SeverityLow      = "LOW"
	SeverityMedium   = "MEDIUM"
	SeverityHigh     = "HIGH"
	SeverityCritical = "CRITICAL"
)

// InvalidSeverityError reports a severity filter outside the supported set
type InvalidSeverityError struct {
	Value string
}

func (e *InvalidSeverityError) Error() string {
	return fmt.Sprintf("unsupported severity %q: expected LOW, MEDIUM, HIGH, CRITICAL or ALL", e.Value)
}

// CriteriaError reports a finding_criteria document that cannot be converted
type CriteriaError struct {
	Field   string
	Message string
}

func (e *CriteriaError) Error() string {
	if e.Field == "" {
		return "invalid finding criteria: " + e.Message
	}
	return fmt.Sprintf("invalid finding criteria for %s: %s", e.Field, e.Message)
}

// severityCondition returns the criterion for a severity filter, or nil for no filter.
// Bands match severityLabel: LOW [1,4), MEDIUM [4,7), HIGH [7,9) and CRITICAL [9,∞).
func severityCondition(severity string) (*types.Condition, error) {
	switch strings.ToUpper(strings.TrimSpace(severity)) {
	case "", SeverityAll:
		return nil, nil
	case SeverityLow:
		return &types.Condition{GreaterThanOrEqual: aws.Int64(1), LessThan: aws.Int64(4)}, nil
	case SeverityMedium:
		return &types.Condition{GreaterThanOrEqual: aws.Int64(4), LessThan: aws.Int64(7)}, nil
	case SeverityHigh:
		return &types.Condition{GreaterThanOrEqual: aws.Int64(7), LessThan: aws.Int64(9)}, nil
	case SeverityCritical:
		return &types.Condition{GreaterThanOrEqual: aws.Int64(9)}, nil
	}
	return nil, &InvalidSeverityError{Value: severity}
}

// inSeverityBand reports whether severity satisfies a condition from severityCondition
func inSeverityBand(cond *types.Condition, severity float64) bool {
	if cond == nil {
		return true
	}
	if cond.GreaterThanOrEqual != nil && severity < float64(*cond.GreaterThanOrEqual) {
		return false
	}
	if cond.LessThan != nil && severity >= float64(*cond.LessThan) {
		return false
	}
	return true
}

// severityLabel maps a numeric severity to its GuardDuty label
func severityLabel(severity float64) string {
	switch {
	case severity >= 9:
		return SeverityCritical
	case severity >= 7:
		return SeverityHigh
	case severity >= 4:
		return SeverityMedium
	}
	return SeverityLow
}

// findingCriteria converts a criteria document into the GuardDuty shape.
// The document is either {"Criterion": {field: condition}} or the field map itself.
// Conditions use Eq/Neq/Equals/NotEquals with string lists and
// Gt/Gte/Lt/Lte/GreaterThan/GreaterThanOrEqual/LessThan/LessThanOrEqual with integers.
func findingCriteria(doc map[string]any) (*types.FindingCriteria, error) {
	if len(doc) == 0 {
		return nil, nil
	}

	fields := doc
	if nested, ok := doc["Criterion"]; ok {
		m, ok := nested.(map[string]any)
		if !ok {
			return nil, &CriteriaError{Message: "Criterion must be an object"}
		}
		fields = m
	}

	criterion := make(map[string]types.Condition, len(fields))
	for _, field := range sortedKeys(fields) {
		raw, ok := fields[field].(map[string]any)
		if !ok {
			return nil, &CriteriaError{Field: field, Message: "condition must be an object"}
		}
		cond, err := condition(field, raw)
		if err != nil {
			return nil, err
		}
		criterion[field] = cond
	}

	return &types.FindingCriteria{Criterion: criterion}, nil
}

func condition(field string, raw map[string]any) (types.Condition, error) {
	var cond types.Condition
	for _, op := range sortedKeys(raw) {
		value := raw[op]

		var err error
		switch op {
		case "Eq", "Equals":
			cond.Equals, err = stringValues(value)
		case "Neq", "NotEquals":
			cond.NotEquals, err = stringValues(value)
		case "Gt", "GreaterThan":
			cond.GreaterThan, err = int64Value(value)
		case "Gte", "GreaterThanOrEqual":
			cond.GreaterThanOrEqual, err = int64Value(value)
		case "Lt", "LessThan":
			cond.LessThan, err = int64Value(value)
		case "Lte", "LessThanOrEqual":
			cond.LessThanOrEqual, err = int64Value(value)
		default:
			return cond, &CriteriaError{Field: field, Message: fmt.Sprintf("unsupported operator %q", op)}
		}
		if err != nil {
			return cond, &CriteriaError{Field: field, Message: fmt.Sprintf("%s %v", op, err)}
		}
	}
	return cond, nil
}

func stringValues(value any) ([]string, error) {
	switch v := value.(type) {
	case string:
		return []string{v}, nil
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, err := scalarString(item)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	}
	s, err := scalarString(value)
	if err != nil {
		return nil, err
	}
	return []string{s}, nil
}

func scalarString(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case json.Number:
		return v.String(), nil
	}
	return "", fmt.Errorf("expects strings, got %T", value)
}

func int64Value(value any) (*int64, error) {
	switch v := value.(type) {
	case int:
		return aws.Int64(int64(v)), nil
	case int64:
		return aws.Int64(v), nil
	case float64:
		if v == math.Trunc(v) && !math.IsInf(v, 0) {
			return aws.Int64(int64(v)), nil
		}
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return aws.Int64(n), nil
		}
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return aws.Int64(n), nil
		}
	}
	return nil, fmt.Errorf("expects an integer, got %v", value)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
