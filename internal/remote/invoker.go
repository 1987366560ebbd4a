// Package remote runs GuardDuty operations in a separate service Lambda.
package remote

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	contract "github.com/danntking/aws-sec-mcp/pkg/guarddutycontract"
)

// LambdaClient defines the interface for Lambda operations
type LambdaClient interface {
	Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

// InvocationError is a failure reported by the service Lambda.
// ErrorCode returns the remote error type so failures keep their classification.
type InvocationError struct {
	Type    string
	Message string
}

func (e *InvocationError) Error() string {
	return e.Message
}

func (e *InvocationError) ErrorCode() string             { return e.Type }
func (e *InvocationError) ErrorMessage() string          { return e.Message }
func (e *InvocationError) ErrorFault() smithy.ErrorFault { return smithy.FaultServer }

// LambdaService executes operations by invoking a service Lambda
type LambdaService struct {
	client       LambdaClient
	functionName string
	newID        func() string
}

// NewLambdaService creates a service that invokes functionName
func NewLambdaService(client LambdaClient, functionName string) *LambdaService {
	return &LambdaService{
		client:       client,
		functionName: functionName,
		newID:        uuid.NewString,
	}
}

func (s *LambdaService) ListDetectors(ctx context.Context, req contract.ListDetectorsRequest, sessionContext string) (string, error) {
	return s.invoke(ctx, req, sessionContext)
}

func (s *LambdaService) ListFindings(ctx context.Context, req contract.ListFindingsRequest, sessionContext string) (string, error) {
	return s.invoke(ctx, req, sessionContext)
}

func (s *LambdaService) GetFindingDetails(ctx context.Context, req contract.GetFindingDetailsRequest, sessionContext string) (string, error) {
	return s.invoke(ctx, req, sessionContext)
}

func (s *LambdaService) ListIPSets(ctx context.Context, req contract.ListIPSetsRequest, sessionContext string) (string, error) {
	return s.invoke(ctx, req, sessionContext)
}

func (s *LambdaService) ListThreatIntelSets(ctx context.Context, req contract.ListThreatIntelSetsRequest, sessionContext string) (string, error) {
	return s.invoke(ctx, req, sessionContext)
}

func (s *LambdaService) GetFindingsStatistics(ctx context.Context, req contract.GetFindingsStatisticsRequest, sessionContext string) (string, error) {
	return s.invoke(ctx, req, sessionContext)
}

func (s *LambdaService) invoke(ctx context.Context, req contract.Request, sessionContext string) (string, error) {
	request, err := contract.NewInvocationRequest(s.newID(), req, sessionContext)
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	output, err := s.client.Invoke(ctx, &lambda.InvokeInput{
		FunctionName: aws.String(s.functionName),
		Payload:      payload,
	})
	if err != nil {
		return "", fmt.Errorf("lambda invocation failed: %w", err)
	}

	// Unhandled errors in the function come back as a 200 with FunctionError set
	if output.FunctionError != nil {
		return "", &InvocationError{
			Type:    aws.ToString(output.FunctionError),
			Message: fmt.Sprintf("service function error: %s", string(output.Payload)),
		}
	}

	var response contract.InvocationResponse
	if err := json.Unmarshal(output.Payload, &response); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if response.Error != nil {
		return "", &InvocationError{Type: response.Error.Type, Message: response.Error.Message}
	}
	return response.Body, nil
}
