package guarddutycontract

// Default page sizes applied when max_results is not supplied
const (
	DefaultDetectorMaxResults = 100
	DefaultMaxResults         = 50
)

// Request is a validated, typed operation request.
// The set of implementations is closed to this package.
type Request interface {
	Operation() Operation
	isRequest()
}

// ListDetectorsRequest lists the GuardDuty detectors of an account
type ListDetectorsRequest struct {
	MaxResults int `json:"max_results"`
}

// ListFindingsRequest lists findings of a detector with optional filtering
type ListFindingsRequest struct {
	DetectorID string   `json:"detector_id"`
	MaxResults int      `json:"max_results"`
	FindingIDs []string `json:"finding_ids,omitempty"`
	Severity   string   `json:"severity,omitempty"`    // LOW, MEDIUM, HIGH, CRITICAL or ALL
	SearchTerm string   `json:"search_term,omitempty"` // Case-insensitive text match
}

// GetFindingDetailsRequest retrieves a single finding
type GetFindingDetailsRequest struct {
	DetectorID string `json:"detector_id"`
	FindingID  string `json:"finding_id"`
}

// ListIPSetsRequest lists the trusted and threat IP sets of a detector
type ListIPSetsRequest struct {
	DetectorID string `json:"detector_id"`
	MaxResults int    `json:"max_results"`
}

// ListThreatIntelSetsRequest lists the threat intelligence sets of a detector
type ListThreatIntelSetsRequest struct {
	DetectorID string `json:"detector_id"`
	MaxResults int    `json:"max_results"`
}

// GetFindingsStatisticsRequest retrieves finding statistics of a detector.
// Exactly one of FindingStatisticTypes and GroupBy is set.
type GetFindingsStatisticsRequest struct {
	DetectorID            string         `json:"detector_id"`
	FindingStatisticTypes []string       `json:"finding_statistic_types,omitempty"`
	GroupBy               string         `json:"group_by,omitempty"`
	FindingCriteria       map[string]any `json:"finding_criteria,omitempty"`
	OrderBy               string         `json:"order_by,omitempty"`
	MaxResults            *int           `json:"max_results,omitempty"`
}

func (ListDetectorsRequest) Operation() Operation         { return ListDetectors }
func (ListFindingsRequest) Operation() Operation          { return ListFindings }
func (GetFindingDetailsRequest) Operation() Operation     { return GetFindingDetails }
func (ListIPSetsRequest) Operation() Operation            { return ListIPSets }
func (ListThreatIntelSetsRequest) Operation() Operation   { return ListThreatIntelSets }
func (GetFindingsStatisticsRequest) Operation() Operation { return GetFindingsStatistics }

func (ListDetectorsRequest) isRequest()         {}
func (ListFindingsRequest) isRequest()          {}
func (GetFindingDetailsRequest) isRequest()     {}
func (ListIPSetsRequest) isRequest()            {}
func (ListThreatIntelSetsRequest) isRequest()   {}
func (GetFindingsStatisticsRequest) isRequest() {}
