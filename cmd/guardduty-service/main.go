package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/jarrod-lowe/jmap-service-libs/awsinit"
	"github.com/jarrod-lowe/jmap-service-libs/logging"
	"github.com/jarrod-lowe/jmap-service-libs/tracing"

	"github.com/danntking/aws-sec-mcp/internal/db"
	"github.com/danntking/aws-sec-mcp/internal/dispatcher"
	"github.com/danntking/aws-sec-mcp/internal/gdservice"
	"github.com/danntking/aws-sec-mcp/internal/session"
	gdtracing "github.com/danntking/aws-sec-mcp/internal/tracing"
	contract "github.com/danntking/aws-sec-mcp/pkg/guarddutycontract"
)

var logger = logging.New()

// Dependencies for handler (injectable for testing)
type Dependencies struct {
	Service dispatcher.Service
}

var deps *Dependencies

// handler executes one GuardDuty operation for a remote dispatcher.
// Failures are reported in the response; the Lambda invocation itself succeeds.
func handler(ctx context.Context, request contract.InvocationRequest) (contract.InvocationResponse, error) {
	ctx, span := tracing.StartHandlerSpan(ctx, "GuardDutyServiceHandler",
		tracing.Function("guardduty-service"),
		tracing.RequestID(request.RequestID),
		gdtracing.Operation(request.Operation.String()),
		gdtracing.SessionContext(request.SessionContext),
	)
	defer span.End()

	req, err := request.DecodeRequest()
	if err != nil {
		logger.WarnContext(ctx, "Invalid invocation request",
			slog.String("request_id", request.RequestID),
			slog.String("error", err.Error()),
		)
		tracing.RecordError(span, err)
		return contract.InvocationResponse{
			Error: &contract.InvocationError{Type: "InvalidRequest", Message: err.Error()},
		}, nil
	}

	body, err := dispatcher.Call(ctx, deps.Service, req, request.SessionContext)
	if err != nil {
		kind := dispatcher.FailureKind(err)
		logger.ErrorContext(ctx, "GuardDuty operation failed",
			slog.String("request_id", request.RequestID),
			slog.String("operation", request.Operation.String()),
			slog.String("error_type", kind),
			slog.String("error", err.Error()),
		)
		tracing.RecordError(span, err)
		return contract.InvocationResponse{
			Error: &contract.InvocationError{Type: kind, Message: err.Error()},
		}, nil
	}

	logger.InfoContext(ctx, "GuardDuty operation completed",
		slog.String("request_id", request.RequestID),
		slog.String("operation", request.Operation.String()),
	)
	return contract.InvocationResponse{Body: body}, nil
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

	sources := session.Sources{
		Parameter:   os.Getenv("SESSIONS_PARAMETER"),
		RoleName:    os.Getenv("CROSS_ACCOUNT_ROLE_NAME"),
		SessionName: os.Getenv("ROLE_SESSION_NAME"),
	}
	if sources.Parameter != "" {
		sources.Parameters = ssm.NewFromConfig(result.Config)
	}

	var resolverOpts []session.ResolverOption
	if tableName := os.Getenv("SESSIONS_TABLE"); tableName != "" {
		dbClient := db.NewClient(result.Config, tableName)
		if sources.Parameter == "" {
			sources.Table = dbClient
		}
		resolverOpts = append(resolverOpts, session.WithUsageRecorder(usageRecorder(dbClient)))
	}

	registry, err := session.Load(ctx, sources)
	if err != nil {
		logger.Error("FATAL: Failed to load session registry",
			slog.String("error", err.Error()),
		)
		panic(err)
	}

	resolverOpts = append(resolverOpts, session.WithResolverLogger(logger))
	resolver := session.NewResolver(result.Config, registry, resolverOpts...)

	deps = &Dependencies{
		Service: gdservice.New(gdservice.NewSessionClients(resolver), logger),
	}

	result.Start(handler)
}

func usageRecorder(client *db.Client) session.UsageRecorder {
	return session.UsageRecorderFunc(func(ctx context.Context, sessionKey string) error {
		_, err := client.RecordSessionUse(ctx, sessionKey)
		return err
	})
}
