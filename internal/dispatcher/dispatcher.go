// Package dispatcher routes GuardDuty security operations to their service calls.
//
// A dispatch parses the operation name, flattens the params envelope, validates the
// parameter set into a typed request and calls the matching Service method. Every
// outcome, including service failures and panics, is returned as JSON text.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/danntking/aws-sec-mcp/internal/tracing"
	contract "github.com/danntking/aws-sec-mcp/pkg/guarddutycontract"
	libtracing "github.com/jarrod-lowe/jmap-service-libs/tracing"
)

// Outcome labels reported to the metrics recorder and on spans
const (
	OutcomeSuccess          = "success"
	OutcomeValidationError  = "validation_error"
	OutcomeDecodeError      = "decode_error"
	OutcomeUnknownOperation = "unknown_operation"
	OutcomeFault            = "fault"
)

// Service executes GuardDuty operations.
// sessionContext is passed through unchanged and selects the account scope.
type Service interface {
	ListDetectors(ctx context.Context, req contract.ListDetectorsRequest, sessionContext string) (string, error)
	ListFindings(ctx context.Context, req contract.ListFindingsRequest, sessionContext string) (string, error)
	GetFindingDetails(ctx context.Context, req contract.GetFindingDetailsRequest, sessionContext string) (string, error)
	ListIPSets(ctx context.Context, req contract.ListIPSetsRequest, sessionContext string) (string, error)
	ListThreatIntelSets(ctx context.Context, req contract.ListThreatIntelSetsRequest, sessionContext string) (string, error)
	GetFindingsStatistics(ctx context.Context, req contract.GetFindingsStatisticsRequest, sessionContext string) (string, error)
}

// MetricsRecorder receives one outcome per dispatch
type MetricsRecorder interface {
	RecordOperation(ctx context.Context, operation, outcome string)
}

// Call runs req against the matching Service method
func Call(ctx context.Context, service Service, req contract.Request, sessionContext string) (string, error) {
	switch r := req.(type) {
	case contract.ListDetectorsRequest:
		return service.ListDetectors(ctx, r, sessionContext)
	case contract.ListFindingsRequest:
		return service.ListFindings(ctx, r, sessionContext)
	case contract.GetFindingDetailsRequest:
		return service.GetFindingDetails(ctx, r, sessionContext)
	case contract.ListIPSetsRequest:
		return service.ListIPSets(ctx, r, sessionContext)
	case contract.ListThreatIntelSetsRequest:
		return service.ListThreatIntelSets(ctx, r, sessionContext)
	case contract.GetFindingsStatisticsRequest:
		return service.GetFindingsStatistics(ctx, r, sessionContext)
	}
	return "", fmt.Errorf("unsupported request type %T", req)
}

// Dispatcher validates and routes operations to a Service
type Dispatcher struct {
	service Service
	logger  *slog.Logger
	metrics MetricsRecorder
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithLogger sets the logger used for request and failure logging
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithMetrics sets the recorder that receives dispatch outcomes
func WithMetrics(metrics MetricsRecorder) Option {
	return func(d *Dispatcher) {
		d.metrics = metrics
	}
}

// New creates a Dispatcher for service
func New(service Service, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		service: service,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch executes operation with params and returns the response text.
// A successful service result is returned unmodified; every failure is rendered
// as a JSON error object. Dispatch never panics.
func (d *Dispatcher) Dispatch(ctx context.Context, operation, sessionContext string, params map[string]any) string {
	ctx, span := tracing.StartOperationSpan(ctx, operation, sessionContext)
	defer span.End()

	d.logger.InfoContext(ctx, "GuardDuty operation requested",
		slog.String("operation", operation),
		slog.String("session_context", sessionContext),
	)

	op, ok := contract.ParseOperation(operation)
	if !ok {
		d.logger.WarnContext(ctx, "Unknown GuardDuty operation",
			slog.String("operation", operation),
		)
		d.finish(ctx, "unknown", OutcomeUnknownOperation)
		span.SetAttributes(tracing.Outcome(OutcomeUnknownOperation))
		return render(unknownOperationResponse(operation))
	}

	normalized, err := NormalizeParams(params)
	if err != nil {
		var decodeErr *DecodeError
		if !errors.As(err, &decodeErr) {
			decodeErr = &DecodeError{Err: err}
		}
		d.logger.ErrorContext(ctx, "Error parsing JSON params",
			slog.String("operation", operation),
			slog.String("error", err.Error()),
		)
		libtracing.RecordError(span, err)
		span.SetAttributes(tracing.Outcome(OutcomeDecodeError))
		d.finish(ctx, operation, OutcomeDecodeError)
		return render(decodeResponse(decodeErr))
	}

	req, verr := BuildRequest(op, normalized)
	if verr != nil {
		d.logger.WarnContext(ctx, "Invalid GuardDuty operation parameters",
			slog.String("operation", operation),
			slog.String("kind", verr.Kind.String()),
			slog.Any("parameters", verr.Parameters),
			slog.String("error", verr.Message),
		)
		span.SetAttributes(tracing.Outcome(OutcomeValidationError))
		d.finish(ctx, operation, OutcomeValidationError)
		return render(validationResponse(verr))
	}

	if id, ok := normalized[ParamDetectorID].(string); ok {
		span.SetAttributes(tracing.DetectorID(id))
	}

	body, err := d.invoke(ctx, req, sessionContext)
	if err != nil {
		attrs := []any{
			slog.String("operation", operation),
			slog.String("session_context", sessionContext),
			slog.String("type", FailureKind(err)),
			slog.String("error", err.Error()),
		}
		var panicErr *PanicError
		if errors.As(err, &panicErr) {
			attrs = append(attrs, slog.String("stack", string(panicErr.Stack)))
		}
		d.logger.ErrorContext(ctx, "Error in GuardDuty operation", attrs...)
		libtracing.RecordError(span, err)
		span.SetAttributes(tracing.Outcome(OutcomeFault))
		d.finish(ctx, operation, OutcomeFault)
		return render(faultResponse(op, normalized, err))
	}

	span.SetAttributes(tracing.Outcome(OutcomeSuccess))
	d.finish(ctx, operation, OutcomeSuccess)
	return body
}

// invoke calls the service, converting a panic into a PanicError
func (d *Dispatcher) invoke(ctx context.Context, req contract.Request, sessionContext string) (body string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return Call(ctx, d.service, req, sessionContext)
}

func (d *Dispatcher) finish(ctx context.Context, operation, outcome string) {
	if d.metrics != nil {
		d.metrics.RecordOperation(ctx, operation, outcome)
	}
}
