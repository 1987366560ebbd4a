package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/jarrod-lowe/jmap-service-libs/tracing"
	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/urfave/cli/v3"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"

	"github.com/danntking/aws-sec-mcp/internal/db"
	"github.com/danntking/aws-sec-mcp/internal/dispatcher"
	"github.com/danntking/aws-sec-mcp/internal/gdservice"
	"github.com/danntking/aws-sec-mcp/internal/mcpserver"
	"github.com/danntking/aws-sec-mcp/internal/metrics"
	"github.com/danntking/aws-sec-mcp/internal/remote"
	"github.com/danntking/aws-sec-mcp/internal/session"
)

const (
	serverName    = "AWS GuardDuty Security MCP Server"
	serverVersion = "1.0.0"
)

// Transports
const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
)

// Settings is the resolved command line and environment configuration
type Settings struct {
	Transport         string
	Addr              string
	Region            string
	SessionsFile      string
	SessionsParameter string
	SessionsTable     string
	RoleName          string
	SessionName       string
	ServiceFunction   string
	MetricNamespace   string
	LogLevel          slog.Level
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
		os.Exit(1)
	}

	if err := newCommand(run).Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func newCommand(action cli.ActionFunc) *cli.Command {
	return &cli.Command{
		Name:  "guardduty-mcp",
		Usage: "Serve AWS GuardDuty security operations over the Model Context Protocol",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "transport", Value: TransportStdio, Usage: "stdio or sse", Sources: cli.EnvVars("MCP_TRANSPORT")},
			&cli.StringFlag{Name: "addr", Value: "localhost:4200", Usage: "listen address of the SSE transport", Sources: cli.EnvVars("MCP_ADDR")},
			&cli.StringFlag{Name: "region", Usage: "AWS region of the base credentials", Sources: cli.EnvVars("AWS_REGION")},
			&cli.StringFlag{Name: "sessions-file", Usage: "YAML or JSON session registry", Sources: cli.EnvVars("SESSIONS_FILE")},
			&cli.StringFlag{Name: "sessions-parameter", Usage: "SSM parameter holding the session registry", Sources: cli.EnvVars("SESSIONS_PARAMETER")},
			&cli.StringFlag{Name: "sessions-table", Usage: "DynamoDB table holding session records and usage", Sources: cli.EnvVars("SESSIONS_TABLE")},
			&cli.StringFlag{Name: "role-name", Usage: "role assumed in accounts without a registered role", Sources: cli.EnvVars("CROSS_ACCOUNT_ROLE_NAME")},
			&cli.StringFlag{Name: "session-name", Usage: "STS role session name", Sources: cli.EnvVars("ROLE_SESSION_NAME")},
			&cli.StringFlag{Name: "service-function", Usage: "Lambda function executing GuardDuty calls", Sources: cli.EnvVars("GUARDDUTY_SERVICE_FUNCTION")},
			&cli.StringFlag{Name: "metric-namespace", Usage: "CloudWatch namespace for operation metrics", Sources: cli.EnvVars("METRIC_NAMESPACE")},
			&cli.StringFlag{Name: "log-level", Value: "info", Usage: "debug, info, warn or error", Sources: cli.EnvVars("LOG_LEVEL")},
		},
		Action: action,
	}
}

func loadSettings(cmd *cli.Command) (Settings, error) {
	s := Settings{
		Transport:         cmd.String("transport"),
		Addr:              cmd.String("addr"),
		Region:            cmd.String("region"),
		SessionsFile:      cmd.String("sessions-file"),
		SessionsParameter: cmd.String("sessions-parameter"),
		SessionsTable:     cmd.String("sessions-table"),
		RoleName:          cmd.String("role-name"),
		SessionName:       cmd.String("session-name"),
		ServiceFunction:   cmd.String("service-function"),
		MetricNamespace:   cmd.String("metric-namespace"),
	}

	if s.Transport != TransportStdio && s.Transport != TransportSSE {
		return Settings{}, fmt.Errorf("unsupported transport %q", s.Transport)
	}
	if s.SessionsFile != "" && s.SessionsParameter != "" {
		return Settings{}, errors.New("--sessions-file and --sessions-parameter are mutually exclusive")
	}
	if err := s.LogLevel.UnmarshalText([]byte(cmd.String("log-level"))); err != nil {
		return Settings{}, fmt.Errorf("invalid log level: %w", err)
	}
	return s, nil
}

// newLogger logs JSON to w; stdout stays reserved for the stdio transport
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

func run(ctx context.Context, cmd *cli.Command) error {
	settings, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(os.Stderr, settings.LogLevel)
	slog.SetDefault(logger)

	tracing.InitPropagator()

	var optFns []func(*awsconfig.LoadOptions) error
	if settings.Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(settings.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		logger.Error("FATAL: Failed to load AWS config",
			slog.String("error", err.Error()),
		)
		return err
	}
	otelaws.AppendMiddlewares(&cfg.APIOptions)

	if identity, err := session.CallerIdentity(ctx, sts.NewFromConfig(cfg)); err != nil {
		logger.WarnContext(ctx, "Failed to determine caller identity",
			slog.String("error", err.Error()),
		)
	} else {
		logger.InfoContext(ctx, "Using base credentials",
			slog.String("identity", identity),
			slog.String("region", cfg.Region),
		)
	}

	service, err := newService(ctx, cfg, settings, logger)
	if err != nil {
		logger.Error("FATAL: Failed to configure GuardDuty service",
			slog.String("error", err.Error()),
		)
		return err
	}

	opts := []dispatcher.Option{dispatcher.WithLogger(logger)}
	if settings.MetricNamespace != "" {
		publisher := metrics.NewCloudWatchPublisher(cloudwatch.NewFromConfig(cfg), settings.MetricNamespace, logger)
		opts = append(opts, dispatcher.WithMetrics(publisher))
	}

	s := mcpserver.New(serverName, serverVersion, dispatcher.New(service, opts...))

	switch settings.Transport {
	case TransportSSE:
		sse := server.NewSSEServer(s,
			server.WithBaseURL(fmt.Sprintf("http://%s", settings.Addr)),
		)
		logger.InfoContext(ctx, "Serving MCP over SSE",
			slog.String("addr", settings.Addr),
		)
		return sse.Start(settings.Addr)
	default:
		logger.InfoContext(ctx, "Serving MCP over stdio")
		return server.ServeStdio(s)
	}
}

// newService returns the collaborator: a remote Lambda when a service function
// is configured, otherwise in-process GuardDuty clients per session
func newService(ctx context.Context, cfg aws.Config, settings Settings, logger *slog.Logger) (dispatcher.Service, error) {
	if settings.ServiceFunction != "" {
		logger.InfoContext(ctx, "Forwarding operations to service function",
			slog.String("function", settings.ServiceFunction),
		)
		return remote.NewLambdaService(lambda.NewFromConfig(cfg), settings.ServiceFunction), nil
	}

	sources := sessionSources(settings)
	if settings.SessionsParameter != "" {
		sources.Parameters = ssm.NewFromConfig(cfg)
	}

	resolverOpts := []session.ResolverOption{session.WithResolverLogger(logger)}
	if settings.SessionsTable != "" {
		dbClient := db.NewClient(cfg, settings.SessionsTable)
		if sources.File == "" && sources.Parameter == "" {
			sources.Table = dbClient
		}
		resolverOpts = append(resolverOpts, session.WithUsageRecorder(session.UsageRecorderFunc(
			func(ctx context.Context, sessionKey string) error {
				_, err := dbClient.RecordSessionUse(ctx, sessionKey)
				return err
			},
		)))
	}

	registry, err := session.Load(ctx, sources)
	if err != nil {
		return nil, err
	}
	logger.InfoContext(ctx, "Loaded session registry",
		slog.Int("sessions", len(registry.Keys())),
	)

	resolver := session.NewResolver(cfg, registry, resolverOpts...)
	return gdservice.New(gdservice.NewSessionClients(resolver), logger), nil
}

func sessionSources(settings Settings) session.Sources {
	return session.Sources{
		File:        settings.SessionsFile,
		Parameter:   settings.SessionsParameter,
		RoleName:    settings.RoleName,
		SessionName: settings.SessionName,
	}
}
