package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"go/token"
	"reflect"
	"strings"

	"github.com/aws/smithy-go"
	contract "github.com/danntking/aws-sec-mcp/pkg/guarddutycontract"
)

// ValidationKind classifies a rejected parameter set
type ValidationKind int

const (
	MissingParameters ValidationKind = iota + 1
	ConflictingParameters
	InvalidParameter
)

func (k ValidationKind) String() string {
	switch k {
	case MissingParameters:
		return "MissingParameters"
	case ConflictingParameters:
		return "ConflictingParameters"
	case InvalidParameter:
		return "InvalidParameter"
	}
	return fmt.Sprintf("ValidationKind(%d)", int(k))
}

// ValidationError reports parameters that do not satisfy an operation's requirements
type ValidationError struct {
	Kind       ValidationKind
	Operation  contract.Operation
	Parameters []string // Names of the offending parameters
	Message    string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// DecodeError reports a text params envelope that is not a JSON object
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("Invalid JSON in params: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// PanicError carries a panic recovered from a service call
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// FailureKind returns a coarse label for a service failure.
// API errors report their error code and recovered panics report "Panic".
// Other errors report the type name of the innermost wrapped error.
func FailureKind(err error) string {
	var panicErr *PanicError
	if errors.As(err, &panicErr) {
		return "Panic"
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() != "" {
		return apiErr.ErrorCode()
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "DeadlineExceeded"
	case errors.Is(err, context.Canceled):
		return "Canceled"
	}

	root := err
	for {
		next := errors.Unwrap(root)
		if next == nil {
			break
		}
		root = next
	}

	t := reflect.TypeOf(root)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || !token.IsExported(t.Name()) {
		return "Error"
	}
	return t.Name()
}

const statisticsUsage = "operation='get_findings_statistics', detector_id='detector-id', " +
	"finding_statistic_types=['COUNT_BY_SEVERITY'] OR group_by='FINDING_TYPE'"

// usageFor returns the invocation hint attached to validation errors
func usageFor(op contract.Operation) string {
	switch op {
	case contract.ListDetectors:
		return "operation='list_detectors', max_results=100"
	case contract.ListFindings:
		return "operation='list_findings', detector_id='your-detector-id'"
	case contract.GetFindingDetails:
		return "operation='get_finding_details', detector_id='detector-id', finding_id='finding-id'"
	case contract.ListIPSets:
		return "operation='list_ip_sets', detector_id='your-detector-id'"
	case contract.ListThreatIntelSets:
		return "operation='list_threat_intel_sets', detector_id='your-detector-id'"
	case contract.GetFindingsStatistics:
		return statisticsUsage
	}
	return ""
}

// usageExamples lists one invocation per operation for unknown-operation errors
func usageExamples() map[string]string {
	return map[string]string{
		contract.ListDetectors.String():         "operation='list_detectors'",
		contract.ListFindings.String():          "operation='list_findings', detector_id='detector-id', severity='HIGH'",
		contract.GetFindingDetails.String():     "operation='get_finding_details', detector_id='detector-id', finding_id='finding-id'",
		contract.ListIPSets.String():            "operation='list_ip_sets', detector_id='detector-id'",
		contract.ListThreatIntelSets.String():   "operation='list_threat_intel_sets', detector_id='detector-id'",
		contract.GetFindingsStatistics.String(): "operation='get_findings_statistics', detector_id='detector-id', finding_statistic_types=['COUNT_BY_SEVERITY']",
	}
}

func validationResponse(err *ValidationError) map[string]any {
	resp := map[string]any{
		"error": err.Message,
		"usage": usageFor(err.Operation),
	}
	if err.Kind == MissingParameters {
		resp["missing_parameters"] = err.Parameters
	}
	return resp
}

func decodeResponse(err *DecodeError) map[string]any {
	return map[string]any{
		"error": map[string]any{
			"message": err.Error(),
			"type":    "JSONDecodeError",
		},
	}
}

func unknownOperationResponse(operation string) map[string]any {
	return map[string]any{
		"error":                fmt.Sprintf("Unknown operation: %s", operation),
		"available_operations": contract.OperationNames(),
		"usage_examples":       usageExamples(),
	}
}

func faultResponse(op contract.Operation, params map[string]any, err error) map[string]any {
	if params == nil {
		params = map[string]any{}
	}
	return map[string]any{
		"error": map[string]any{
			"message":    fmt.Sprintf("Error executing GuardDuty operation '%s': %v", op, err),
			"type":       FailureKind(err),
			"operation":  op.String(),
			"parameters": params,
		},
	}
}

// render serializes a response without HTML escaping.
// Values that cannot be encoded fall back to a plain error object.
func render(resp map[string]any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(resp); err != nil {
		fallback, _ := json.Marshal(map[string]any{
			"error": map[string]any{
				"message": fmt.Sprintf("failed to encode response: %v", err),
				"type":    "EncodeError",
			},
		})
		return string(fallback)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
