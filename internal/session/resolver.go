package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// UsageRecorder is notified the first time a session is resolved by a process
type UsageRecorder interface {
	RecordSessionUse(ctx context.Context, sessionKey string) error
}

// UsageRecorderFunc adapts a function to UsageRecorder
type UsageRecorderFunc func(ctx context.Context, sessionKey string) error

func (f UsageRecorderFunc) RecordSessionUse(ctx context.Context, sessionKey string) error {
	return f(ctx, sessionKey)
}

// Resolver maps session contexts to AWS configuration.
// Configurations are cached per session; their credentials refresh through
// aws.CredentialsCache, so a role is assumed at most once per expiry window.
type Resolver struct {
	base     aws.Config
	registry *Registry
	sts      stscreds.AssumeRoleAPIClient
	usage    UsageRecorder
	logger   *slog.Logger

	mu      sync.Mutex
	configs map[string]aws.Config
}

// ResolverOption configures a Resolver
type ResolverOption func(*Resolver)

// WithSTSClient sets the client used to assume session roles
func WithSTSClient(client stscreds.AssumeRoleAPIClient) ResolverOption {
	return func(r *Resolver) {
		r.sts = client
	}
}

// WithUsageRecorder sets the recorder notified of newly resolved sessions
func WithUsageRecorder(usage UsageRecorder) ResolverOption {
	return func(r *Resolver) {
		r.usage = usage
	}
}

// WithResolverLogger sets the logger
func WithResolverLogger(logger *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// NewResolver creates a Resolver over base credentials and registry.
// A nil registry resolves only the default session.
func NewResolver(base aws.Config, registry *Registry, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		base:     base,
		registry: registry,
		logger:   slog.Default(),
		configs:  make(map[string]aws.Config),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.sts == nil {
		r.sts = sts.NewFromConfig(base)
	}
	return r
}

// Config returns the AWS configuration for sessionContext
func (r *Resolver) Config(ctx context.Context, sessionContext string) (aws.Config, error) {
	if IsDefault(sessionContext) {
		return r.base, nil
	}

	r.mu.Lock()
	if cfg, ok := r.configs[sessionContext]; ok {
		r.mu.Unlock()
		return cfg, nil
	}

	target, err := r.registry.Lookup(sessionContext)
	if err != nil {
		r.mu.Unlock()
		return aws.Config{}, err
	}

	cfg := r.base.Copy()
	provider := stscreds.NewAssumeRoleProvider(r.sts, target.RoleARN, func(o *stscreds.AssumeRoleOptions) {
		o.RoleSessionName = r.registry.SessionName()
		if target.ExternalID != "" {
			o.ExternalID = aws.String(target.ExternalID)
		}
	})
	cfg.Credentials = aws.NewCredentialsCache(provider)
	if target.Region != "" {
		cfg.Region = target.Region
	}
	r.configs[sessionContext] = cfg
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "Resolved session context",
		slog.String("session_context", sessionContext),
		slog.String("role_arn", target.RoleARN),
		slog.String("region", cfg.Region),
	)

	if r.usage != nil {
		if err := r.usage.RecordSessionUse(ctx, sessionContext); err != nil {
			r.logger.WarnContext(ctx, "Failed to record session use",
				slog.String("session_context", sessionContext),
				slog.String("error", err.Error()),
			)
		}
	}

	return cfg, nil
}
