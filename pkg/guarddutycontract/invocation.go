package guarddutycontract

import (
	"encoding/json"
	"fmt"
)

// InvocationRequest is the payload sent from a dispatcher to the service Lambda
type InvocationRequest struct {
	RequestID      string          `json:"requestId"`
	Operation      Operation       `json:"operation"`
	SessionContext string          `json:"sessionContext,omitempty"`
	Arguments      json.RawMessage `json:"arguments"`
}

// InvocationResponse is the response from the service Lambda.
// Exactly one of Body and Error is set.
type InvocationResponse struct {
	Body  string           `json:"body,omitempty"`
	Error *InvocationError `json:"error,omitempty"`
}

// InvocationError describes a service call failure on the remote side
type InvocationError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewInvocationRequest wraps a typed request for transport
func NewInvocationRequest(requestID string, req Request, sessionContext string) (InvocationRequest, error) {
	args, err := json.Marshal(req)
	if err != nil {
		return InvocationRequest{}, fmt.Errorf("failed to marshal arguments: %w", err)
	}

	return InvocationRequest{
		RequestID:      requestID,
		Operation:      req.Operation(),
		SessionContext: sessionContext,
		Arguments:      args,
	}, nil
}

// DecodeRequest reconstructs the typed request carried by the invocation
func (r InvocationRequest) DecodeRequest() (Request, error) {
	var (
		req Request
		err error
	)

	switch r.Operation {
	case ListDetectors:
		req, err = decodeArguments[ListDetectorsRequest](r.Arguments)
	case ListFindings:
		req, err = decodeArguments[ListFindingsRequest](r.Arguments)
	case GetFindingDetails:
		req, err = decodeArguments[GetFindingDetailsRequest](r.Arguments)
	case ListIPSets:
		req, err = decodeArguments[ListIPSetsRequest](r.Arguments)
	case ListThreatIntelSets:
		req, err = decodeArguments[ListThreatIntelSetsRequest](r.Arguments)
	case GetFindingsStatistics:
		req, err = decodeArguments[GetFindingsStatisticsRequest](r.Arguments)
	default:
		return nil, fmt.Errorf("unknown operation: %s", r.Operation)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to decode %s arguments: %w", r.Operation, err)
	}
	return req, nil
}

func decodeArguments[T Request](data json.RawMessage) (T, error) {
	var req T
	if len(data) == 0 {
		return req, nil
	}
	err := json.Unmarshal(data, &req)
	return req, err
}
