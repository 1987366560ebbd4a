// Package gdservice implements the GuardDuty security operations on the AWS SDK.
//
// Each operation resolves a client for the session context, performs the GuardDuty
// calls and returns the result as JSON text.
package gdservice

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/guardduty"
	"github.com/aws/aws-sdk-go-v2/service/guardduty/types"
	contract "github.com/danntking/aws-sec-mcp/pkg/guarddutycontract"
)

// API page size limits
const (
	maxListPageSize   = 50
	getFindingsBatch  = 50
	maxStatisticsSize = 100
)

// Service executes GuardDuty operations for a session context
type Service struct {
	clients ClientProvider
	logger  *slog.Logger
}

// New creates a Service
func New(clients ClientProvider, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{clients: clients, logger: logger}
}

// DetectorSummary describes a detector in list_detectors output
type DetectorSummary struct {
	DetectorID                 string `json:"detector_id"`
	Status                     string `json:"status,omitempty"`
	CreatedAt                  string `json:"created_at,omitempty"`
	UpdatedAt                  string `json:"updated_at,omitempty"`
	FindingPublishingFrequency string `json:"finding_publishing_frequency,omitempty"`
	ServiceRole                string `json:"service_role,omitempty"`
	Error                      string `json:"error,omitempty"`
}

// FindingSummary describes a finding in list_findings output
type FindingSummary struct {
	ID            string  `json:"id"`
	Type          string  `json:"type"`
	Title         string  `json:"title"`
	Description   string  `json:"description"`
	Severity      float64 `json:"severity"`
	SeverityLabel string  `json:"severity_label"`
	AccountID     string  `json:"account_id,omitempty"`
	Region        string  `json:"region,omitempty"`
	ResourceType  string  `json:"resource_type,omitempty"`
	Count         int32   `json:"count,omitempty"`
	Archived      bool    `json:"archived"`
	CreatedAt     string  `json:"created_at,omitempty"`
	UpdatedAt     string  `json:"updated_at,omitempty"`
}

// SetSummary describes an IP set or threat intelligence set
type SetSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Format   string `json:"format,omitempty"`
	Location string `json:"location,omitempty"`
	Status   string `json:"status,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ListDetectors lists the detectors of the account with their configuration
func (s *Service) ListDetectors(ctx context.Context, req contract.ListDetectorsRequest, sessionContext string) (string, error) {
	client, err := s.clients.Client(ctx, sessionContext)
	if err != nil {
		return "", err
	}

	ids, err := collectIDs(ctx, req.MaxResults, func(ctx context.Context, token *string, size int32) ([]string, *string, error) {
		out, err := client.ListDetectors(ctx, &guardduty.ListDetectorsInput{MaxResults: aws.Int32(size), NextToken: token})
		if err != nil {
			return nil, nil, err
		}
		return out.DetectorIds, out.NextToken, nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to list detectors: %w", err)
	}

	detectors := make([]DetectorSummary, 0, len(ids))
	for _, id := range ids {
		out, err := client.GetDetector(ctx, &guardduty.GetDetectorInput{DetectorId: aws.String(id)})
		if err != nil {
			s.logger.WarnContext(ctx, "Failed to get detector",
				slog.String("detector_id", id),
				slog.String("error", err.Error()),
			)
			detectors = append(detectors, DetectorSummary{DetectorID: id, Error: err.Error()})
			continue
		}
		detectors = append(detectors, DetectorSummary{
			DetectorID:                 id,
			Status:                     string(out.Status),
			CreatedAt:                  aws.ToString(out.CreatedAt),
			UpdatedAt:                  aws.ToString(out.UpdatedAt),
			FindingPublishingFrequency: string(out.FindingPublishingFrequency),
			ServiceRole:                aws.ToString(out.ServiceRole),
		})
	}

	return marshalResult(map[string]any{
		"count":     len(detectors),
		"detectors": detectors,
	})
}

// ListFindings lists findings of a detector, filtered by severity and search term.
// Explicit finding IDs bypass listing and are fetched directly, up to MaxResults,
// with severity and search term applied to the fetched findings.
func (s *Service) ListFindings(ctx context.Context, req contract.ListFindingsRequest, sessionContext string) (string, error) {
	cond, err := severityCondition(req.Severity)
	if err != nil {
		return "", err
	}

	client, err := s.clients.Client(ctx, sessionContext)
	if err != nil {
		return "", err
	}

	ids := req.FindingIDs
	if len(ids) > 0 {
		if req.MaxResults > 0 && len(ids) > req.MaxResults {
			ids = ids[:req.MaxResults]
		}
	} else {
		var criteria *types.FindingCriteria
		if cond != nil {
			criteria = &types.FindingCriteria{Criterion: map[string]types.Condition{"severity": *cond}}
		}
		ids, err = collectIDs(ctx, req.MaxResults, func(ctx context.Context, token *string, size int32) ([]string, *string, error) {
			out, err := client.ListFindings(ctx, &guardduty.ListFindingsInput{
				DetectorId:      aws.String(req.DetectorID),
				FindingCriteria: criteria,
				MaxResults:      aws.Int32(size),
				NextToken:       token,
			})
			if err != nil {
				return nil, nil, err
			}
			return out.FindingIds, out.NextToken, nil
		})
		if err != nil {
			return "", fmt.Errorf("failed to list findings: %w", err)
		}
	}

	findings, err := getFindings(ctx, client, req.DetectorID, ids)
	if err != nil {
		return "", err
	}

	term := strings.ToLower(req.SearchTerm)
	summaries := make([]FindingSummary, 0, len(findings))
	for _, f := range findings {
		summary := summarizeFinding(f)
		if !inSeverityBand(cond, summary.Severity) {
			continue
		}
		if term != "" && !matchesTerm(summary, term) {
			continue
		}
		summaries = append(summaries, summary)
	}

	s.logger.InfoContext(ctx, "Listed findings",
		slog.String("detector_id", req.DetectorID),
		slog.Int("count", len(summaries)),
	)

	severity := strings.ToUpper(req.Severity)
	if severity == "" {
		severity = SeverityAll
	}
	return marshalResult(map[string]any{
		"count":       len(summaries),
		"findings":    summaries,
		"detector_id": req.DetectorID,
		"severity":    severity,
		"search_term": req.SearchTerm,
	})
}

// GetFindingDetails returns the full record of a single finding
func (s *Service) GetFindingDetails(ctx context.Context, req contract.GetFindingDetailsRequest, sessionContext string) (string, error) {
	client, err := s.clients.Client(ctx, sessionContext)
	if err != nil {
		return "", err
	}

	findings, err := getFindings(ctx, client, req.DetectorID, []string{req.FindingID})
	if err != nil {
		return "", err
	}
	if len(findings) == 0 {
		return marshalResult(map[string]any{
			"error": fmt.Sprintf("Finding %s not found in detector %s", req.FindingID, req.DetectorID),
		})
	}

	return marshalResult(map[string]any{
		"finding": findings[0],
	})
}

// ListIPSets lists the IP sets of a detector
func (s *Service) ListIPSets(ctx context.Context, req contract.ListIPSetsRequest, sessionContext string) (string, error) {
	client, err := s.clients.Client(ctx, sessionContext)
	if err != nil {
		return "", err
	}

	ids, err := collectIDs(ctx, req.MaxResults, func(ctx context.Context, token *string, size int32) ([]string, *string, error) {
		out, err := client.ListIPSets(ctx, &guardduty.ListIPSetsInput{
			DetectorId: aws.String(req.DetectorID),
			MaxResults: aws.Int32(size),
			NextToken:  token,
		})
		if err != nil {
			return nil, nil, err
		}
		return out.IpSetIds, out.NextToken, nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to list IP sets: %w", err)
	}

	sets := make([]SetSummary, 0, len(ids))
	for _, id := range ids {
		out, err := client.GetIPSet(ctx, &guardduty.GetIPSetInput{
			DetectorId: aws.String(req.DetectorID),
			IpSetId:    aws.String(id),
		})
		if err != nil {
			s.logger.WarnContext(ctx, "Failed to get IP set",
				slog.String("ip_set_id", id),
				slog.String("error", err.Error()),
			)
			sets = append(sets, SetSummary{ID: id, Error: err.Error()})
			continue
		}
		sets = append(sets, SetSummary{
			ID:       id,
			Name:     aws.ToString(out.Name),
			Format:   string(out.Format),
			Location: aws.ToString(out.Location),
			Status:   string(out.Status),
		})
	}

	return marshalResult(map[string]any{
		"count":   len(sets),
		"ip_sets": sets,
	})
}

// ListThreatIntelSets lists the threat intelligence sets of a detector
func (s *Service) ListThreatIntelSets(ctx context.Context, req contract.ListThreatIntelSetsRequest, sessionContext string) (string, error) {
	client, err := s.clients.Client(ctx, sessionContext)
	if err != nil {
		return "", err
	}

	ids, err := collectIDs(ctx, req.MaxResults, func(ctx context.Context, token *string, size int32) ([]string, *string, error) {
		out, err := client.ListThreatIntelSets(ctx, &guardduty.ListThreatIntelSetsInput{
			DetectorId: aws.String(req.DetectorID),
			MaxResults: aws.Int32(size),
			NextToken:  token,
		})
		if err != nil {
			return nil, nil, err
		}
		return out.ThreatIntelSetIds, out.NextToken, nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to list threat intel sets: %w", err)
	}

	sets := make([]SetSummary, 0, len(ids))
	for _, id := range ids {
		out, err := client.GetThreatIntelSet(ctx, &guardduty.GetThreatIntelSetInput{
			DetectorId:       aws.String(req.DetectorID),
			ThreatIntelSetId: aws.String(id),
		})
		if err != nil {
			s.logger.WarnContext(ctx, "Failed to get threat intel set",
				slog.String("threat_intel_set_id", id),
				slog.String("error", err.Error()),
			)
			sets = append(sets, SetSummary{ID: id, Error: err.Error()})
			continue
		}
		sets = append(sets, SetSummary{
			ID:       id,
			Name:     aws.ToString(out.Name),
			Format:   string(out.Format),
			Location: aws.ToString(out.Location),
			Status:   string(out.Status),
		})
	}

	return marshalResult(map[string]any{
		"count":             len(sets),
		"threat_intel_sets": sets,
	})
}

// GetFindingsStatistics returns GuardDuty-calculated statistics for a detector
func (s *Service) GetFindingsStatistics(ctx context.Context, req contract.GetFindingsStatisticsRequest, sessionContext string) (string, error) {
	criteria, err := findingCriteria(req.FindingCriteria)
	if err != nil {
		return "", err
	}

	input := &guardduty.GetFindingsStatisticsInput{
		DetectorId:      aws.String(req.DetectorID),
		FindingCriteria: criteria,
	}
	for _, t := range req.FindingStatisticTypes {
		input.FindingStatisticTypes = append(input.FindingStatisticTypes, types.FindingStatisticType(t))
	}
	if req.GroupBy != "" {
		input.GroupBy = types.GroupByType(req.GroupBy)
	}
	if req.OrderBy != "" {
		input.OrderBy = types.OrderBy(req.OrderBy)
	}
	if req.MaxResults != nil {
		input.MaxResults = aws.Int32(int32(min(*req.MaxResults, maxStatisticsSize)))
	}

	client, err := s.clients.Client(ctx, sessionContext)
	if err != nil {
		return "", err
	}

	out, err := client.GetFindingsStatistics(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to get findings statistics: %w", err)
	}

	return marshalResult(map[string]any{
		"detector_id": req.DetectorID,
		"statistics":  out.FindingStatistics,
		"next_token":  aws.ToString(out.NextToken),
	})
}

// pageFunc fetches one page of identifiers
type pageFunc func(ctx context.Context, token *string, size int32) ([]string, *string, error)

// collectIDs pages through a list call until limit identifiers are gathered
func collectIDs(ctx context.Context, limit int, page pageFunc) ([]string, error) {
	var ids []string
	var token *string
	for len(ids) < limit {
		size := int32(min(limit-len(ids), maxListPageSize))
		batch, next, err := page(ctx, token, size)
		if err != nil {
			return nil, err
		}
		ids = append(ids, batch...)
		if aws.ToString(next) == "" || len(batch) == 0 {
			break
		}
		token = next
	}
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// getFindings fetches findings in batches accepted by GetFindings
func getFindings(ctx context.Context, client GuardDutyClient, detectorID string, ids []string) ([]types.Finding, error) {
	var findings []types.Finding
	for start := 0; start < len(ids); start += getFindingsBatch {
		end := min(start+getFindingsBatch, len(ids))
		out, err := client.GetFindings(ctx, &guardduty.GetFindingsInput{
			DetectorId: aws.String(detectorID),
			FindingIds: ids[start:end],
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get findings: %w", err)
		}
		findings = append(findings, out.Findings...)
	}
	return findings, nil
}

func summarizeFinding(f types.Finding) FindingSummary {
	severity := aws.ToFloat64(f.Severity)
	summary := FindingSummary{
		ID:            aws.ToString(f.Id),
		Type:          aws.ToString(f.Type),
		Title:         aws.ToString(f.Title),
		Description:   aws.ToString(f.Description),
		Severity:      severity,
		SeverityLabel: severityLabel(severity),
		AccountID:     aws.ToString(f.AccountId),
		Region:        aws.ToString(f.Region),
		CreatedAt:     aws.ToString(f.CreatedAt),
		UpdatedAt:     aws.ToString(f.UpdatedAt),
	}
	if f.Resource != nil {
		summary.ResourceType = aws.ToString(f.Resource.ResourceType)
	}
	if f.Service != nil {
		summary.Count = aws.ToInt32(f.Service.Count)
		summary.Archived = aws.ToBool(f.Service.Archived)
	}
	return summary
}

func matchesTerm(f FindingSummary, term string) bool {
	for _, field := range []string{f.Type, f.Title, f.Description} {
		if strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}

func marshalResult(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal result: %w", err)
	}
	return string(data), nil
}
