package dispatcher

import (
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"strconv"
	"strings"

	contract "github.com/danntking/aws-sec-mcp/pkg/guarddutycontract"
)

// EnvelopeKey is the parameter some clients wrap the real arguments in
const EnvelopeKey = "params"

// Parameter names accepted by the operations
const (
	ParamDetectorID            = "detector_id"
	ParamMaxResults            = "max_results"
	ParamFindingIDs            = "finding_ids"
	ParamSeverity              = "severity"
	ParamSearchTerm            = "search_term"
	ParamFindingID             = "finding_id"
	ParamFindingStatisticTypes = "finding_statistic_types"
	ParamGroupBy               = "group_by"
	ParamFindingCriteria       = "finding_criteria"
	ParamOrderBy               = "order_by"
)

// NormalizeParams flattens the params envelope into the top-level parameter set.
// A mapping envelope is merged directly; a text envelope is parsed as a JSON object
// first. Nested entries override top-level ones. The input map is not modified.
func NormalizeParams(params map[string]any) (map[string]any, error) {
	normalized := make(map[string]any, len(params))
	maps.Copy(normalized, params)

	switch envelope := params[EnvelopeKey].(type) {
	case map[string]any:
		delete(normalized, EnvelopeKey)
		maps.Copy(normalized, envelope)
	case string:
		var parsed map[string]any
		if err := json.Unmarshal([]byte(envelope), &parsed); err != nil {
			return nil, &DecodeError{Err: err}
		}
		delete(normalized, EnvelopeKey)
		maps.Copy(normalized, parsed)
	}

	return normalized, nil
}

// BuildRequest validates params for op and returns the typed request
func BuildRequest(op contract.Operation, params map[string]any) (contract.Request, *ValidationError) {
	b := builder{op: op, params: params}

	switch op {
	case contract.ListDetectors:
		req := contract.ListDetectorsRequest{
			MaxResults: b.intOr(ParamMaxResults, contract.DefaultDetectorMaxResults),
		}
		return b.result(req)

	case contract.ListFindings:
		b.require(ParamDetectorID)
		if b.err != nil {
			return nil, b.err
		}
		req := contract.ListFindingsRequest{
			DetectorID: b.stringParam(ParamDetectorID),
			MaxResults: b.intOr(ParamMaxResults, contract.DefaultMaxResults),
			FindingIDs: b.stringList(ParamFindingIDs),
			Severity:   b.stringParam(ParamSeverity),
			SearchTerm: b.stringParam(ParamSearchTerm),
		}
		return b.result(req)

	case contract.GetFindingDetails:
		b.require(ParamDetectorID, ParamFindingID)
		if b.err != nil {
			return nil, b.err
		}
		req := contract.GetFindingDetailsRequest{
			DetectorID: b.stringParam(ParamDetectorID),
			FindingID:  b.stringParam(ParamFindingID),
		}
		return b.result(req)

	case contract.ListIPSets:
		b.require(ParamDetectorID)
		if b.err != nil {
			return nil, b.err
		}
		req := contract.ListIPSetsRequest{
			DetectorID: b.stringParam(ParamDetectorID),
			MaxResults: b.intOr(ParamMaxResults, contract.DefaultMaxResults),
		}
		return b.result(req)

	case contract.ListThreatIntelSets:
		b.require(ParamDetectorID)
		if b.err != nil {
			return nil, b.err
		}
		req := contract.ListThreatIntelSetsRequest{
			DetectorID: b.stringParam(ParamDetectorID),
			MaxResults: b.intOr(ParamMaxResults, contract.DefaultMaxResults),
		}
		return b.result(req)

	case contract.GetFindingsStatistics:
		b.require(ParamDetectorID)
		if b.err != nil {
			return nil, b.err
		}
		b.exactlyOne(ParamFindingStatisticTypes, ParamGroupBy)
		if b.err != nil {
			return nil, b.err
		}
		req := contract.GetFindingsStatisticsRequest{
			DetectorID:            b.stringParam(ParamDetectorID),
			FindingStatisticTypes: b.stringList(ParamFindingStatisticTypes),
			GroupBy:               b.stringParam(ParamGroupBy),
			FindingCriteria:       b.objectParam(ParamFindingCriteria),
			OrderBy:               b.stringParam(ParamOrderBy),
			MaxResults:            b.optionalInt(ParamMaxResults),
		}
		return b.result(req)
	}

	return nil, &ValidationError{
		Kind:    InvalidParameter,
		Message: fmt.Sprintf("Unknown operation: %s", op),
	}
}

// builder extracts typed values from a parameter bag, keeping the first failure
type builder struct {
	op     contract.Operation
	params map[string]any
	err    *ValidationError
}

// present reports whether name carries a non-empty value
func (b *builder) present(name string) bool {
	v, ok := b.params[name]
	if !ok || v == nil {
		return false
	}
	switch v := v.(type) {
	case string:
		return v != ""
	case []any:
		return len(v) > 0
	case []string:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	}
	return true
}

func (b *builder) result(req contract.Request) (contract.Request, *ValidationError) {
	if b.err != nil {
		return nil, b.err
	}
	return req, nil
}

func (b *builder) require(names ...string) {
	if b.err != nil {
		return
	}
	var missing []string
	for _, name := range names {
		if !b.present(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return
	}

	message := fmt.Sprintf("Missing required parameters: %s", strings.Join(missing, ", "))
	if len(missing) == 1 {
		message = fmt.Sprintf("%s is required for %s operation", missing[0], b.op)
	}
	b.err = &ValidationError{
		Kind:       MissingParameters,
		Operation:  b.op,
		Parameters: missing,
		Message:    message,
	}
}

func (b *builder) exactlyOne(first, second string) {
	if b.err != nil {
		return
	}
	hasFirst, hasSecond := b.present(first), b.present(second)
	switch {
	case !hasFirst && !hasSecond:
		b.err = &ValidationError{
			Kind:       MissingParameters,
			Operation:  b.op,
			Parameters: []string{first, second},
			Message:    fmt.Sprintf("Either %s or %s parameter is required", first, second),
		}
	case hasFirst && hasSecond:
		b.err = &ValidationError{
			Kind:       ConflictingParameters,
			Operation:  b.op,
			Parameters: []string{first, second},
			Message:    fmt.Sprintf("Cannot provide both %s and %s parameters", first, second),
		}
	}
}

func (b *builder) invalid(name, expected string) {
	if b.err != nil {
		return
	}
	b.err = &ValidationError{
		Kind:       InvalidParameter,
		Operation:  b.op,
		Parameters: []string{name},
		Message:    fmt.Sprintf("%s must be %s", name, expected),
	}
}

func (b *builder) stringParam(name string) string {
	if !b.present(name) {
		return ""
	}
	s, ok := b.params[name].(string)
	if !ok {
		b.invalid(name, "a string")
		return ""
	}
	return s
}

func (b *builder) stringList(name string) []string {
	if !b.present(name) {
		return nil
	}
	switch v := b.params[name].(type) {
	case string:
		return []string{v}
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				b.invalid(name, "a list of strings")
				return nil
			}
			out = append(out, s)
		}
		return out
	}
	b.invalid(name, "a list of strings")
	return nil
}

func (b *builder) objectParam(name string) map[string]any {
	if !b.present(name) {
		return nil
	}
	switch v := b.params[name].(type) {
	case map[string]any:
		return v
	case string:
		var parsed map[string]any
		if err := json.Unmarshal([]byte(v), &parsed); err == nil {
			return parsed
		}
	}
	b.invalid(name, "an object")
	return nil
}

func (b *builder) intOr(name string, def int) int {
	if n := b.optionalInt(name); n != nil {
		return *n
	}
	return def
}

func (b *builder) optionalInt(name string) *int {
	if !b.present(name) {
		return nil
	}
	n, ok := toInt(b.params[name])
	if !ok || n < 1 {
		b.invalid(name, "a positive integer")
		return nil
	}
	return &n
}

func toInt(v any) (int, bool) {
	switch v := v.(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		return n, err == nil
	}
	return 0, false
}
