package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/jarrod-lowe/jmap-service-libs/awsinit"
	"github.com/jarrod-lowe/jmap-service-libs/logging"
	"github.com/jarrod-lowe/jmap-service-libs/tracing"
	"go.opentelemetry.io/otel/attribute"

	"github.com/danntking/aws-sec-mcp/internal/dispatcher"
	"github.com/danntking/aws-sec-mcp/internal/metrics"
	"github.com/danntking/aws-sec-mcp/internal/remote"
)

var logger = logging.New()

// DispatchEvent is the invocation payload of the dispatch Lambda
type DispatchEvent struct {
	Operation      string         `json:"operation"`
	SessionContext string         `json:"session_context,omitempty"`
	Params         map[string]any `json:"params,omitempty"`
}

// DispatchResponse carries the dispatcher's JSON text
type DispatchResponse struct {
	Body string `json:"body"`
}

// Dispatcher runs a named operation
type Dispatcher interface {
	Dispatch(ctx context.Context, operation, sessionContext string, params map[string]any) string
}

// Dependencies for handler (injectable for testing)
type Dependencies struct {
	Dispatcher Dispatcher
}

var deps *Dependencies

// handler dispatches one operation. Every outcome is in the body, so the error is always nil.
func handler(ctx context.Context, event DispatchEvent) (DispatchResponse, error) {
	attrs := []attribute.KeyValue{tracing.Function("guardduty-dispatch")}
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		attrs = append(attrs, tracing.RequestID(lc.AwsRequestID))
	}
	ctx, span := tracing.StartHandlerSpan(ctx, "GuardDutyDispatchHandler", attrs...)
	defer span.End()

	return DispatchResponse{
		Body: deps.Dispatcher.Dispatch(ctx, event.Operation, event.SessionContext, event.Params),
	}, nil
}

func main() {
	ctx := context.Background()

	result, err := awsinit.Init(ctx)
	if err != nil {
		logger.Error("FATAL: Failed to initialize AWS",
			slog.String("error", err.Error()),
		)
		panic(err)
	}
	defer result.Cleanup()

	functionName := os.Getenv("GUARDDUTY_SERVICE_FUNCTION")
	if functionName == "" {
		logger.Error("FATAL: GUARDDUTY_SERVICE_FUNCTION environment variable is required")
		panic("GUARDDUTY_SERVICE_FUNCTION environment variable is required")
	}

	opts := []dispatcher.Option{dispatcher.WithLogger(logger)}
	if namespace := os.Getenv("METRIC_NAMESPACE"); namespace != "" {
		publisher := metrics.NewCloudWatchPublisher(cloudwatch.NewFromConfig(result.Config), namespace, logger)
		opts = append(opts, dispatcher.WithMetrics(publisher))
	}

	service := remote.NewLambdaService(lambda.NewFromConfig(result.Config), functionName)

	deps = &Dependencies{
		Dispatcher: dispatcher.New(service, opts...),
	}

	result.Start(handler)
}
