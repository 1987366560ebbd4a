package gdservice

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/guardduty"
)

// GuardDutyClient defines the GuardDuty API calls used by the service
type GuardDutyClient interface {
	ListDetectors(ctx context.Context, params *guardduty.ListDetectorsInput, optFns ...func(*guardduty.Options)) (*guardduty.ListDetectorsOutput, error)
	GetDetector(ctx context.Context, params *guardduty.GetDetectorInput, optFns ...func(*guardduty.Options)) (*guardduty.GetDetectorOutput, error)
	ListFindings(ctx context.Context, params *guardduty.ListFindingsInput, optFns ...func(*guardduty.Options)) (*guardduty.ListFindingsOutput, error)
	GetFindings(ctx context.Context, params *guardduty.GetFindingsInput, optFns ...func(*guardduty.Options)) (*guardduty.GetFindingsOutput, error)
	GetFindingsStatistics(ctx context.Context, params *guardduty.GetFindingsStatisticsInput, optFns ...func(*guardduty.Options)) (*guardduty.GetFindingsStatisticsOutput, error)
	ListIPSets(ctx context.Context, params *guardduty.ListIPSetsInput, optFns ...func(*guardduty.Options)) (*guardduty.ListIPSetsOutput, error)
	GetIPSet(ctx context.Context, params *guardduty.GetIPSetInput, optFns ...func(*guardduty.Options)) (*guardduty.GetIPSetOutput, error)
	ListThreatIntelSets(ctx context.Context, params *guardduty.ListThreatIntelSetsInput, optFns ...func(*guardduty.Options)) (*guardduty.ListThreatIntelSetsOutput, error)
	GetThreatIntelSet(ctx context.Context, params *guardduty.GetThreatIntelSetInput, optFns ...func(*guardduty.Options)) (*guardduty.GetThreatIntelSetOutput, error)
}

// ClientProvider returns the GuardDuty client for a session context
type ClientProvider interface {
	Client(ctx context.Context, sessionContext string) (GuardDutyClient, error)
}

// ClientProviderFunc adapts a function to ClientProvider
type ClientProviderFunc func(ctx context.Context, sessionContext string) (GuardDutyClient, error)

func (f ClientProviderFunc) Client(ctx context.Context, sessionContext string) (GuardDutyClient, error) {
	return f(ctx, sessionContext)
}

// ConfigResolver resolves the AWS configuration for a session context
type ConfigResolver interface {
	Config(ctx context.Context, sessionContext string) (aws.Config, error)
}

// SessionClients creates GuardDuty clients from per-session AWS configuration
type SessionClients struct {
	resolver ConfigResolver
	optFns   []func(*guardduty.Options)
}

// NewSessionClients creates a ClientProvider backed by resolver
func NewSessionClients(resolver ConfigResolver, optFns ...func(*guardduty.Options)) *SessionClients {
	return &SessionClients{resolver: resolver, optFns: optFns}
}

// Client returns a GuardDuty client using the session's credentials and region
func (s *SessionClients) Client(ctx context.Context, sessionContext string) (GuardDutyClient, error) {
	cfg, err := s.resolver.Config(ctx, sessionContext)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve session %q: %w", sessionContext, err)
	}
	return guardduty.NewFromConfig(cfg, s.optFns...), nil
}
