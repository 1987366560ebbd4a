// Package catalog describes the GuardDuty security operations for discovery.
package catalog

import (
	"bytes"
	"encoding/json"
	"sync"

	contract "github.com/danntking/aws-sec-mcp/pkg/guarddutycontract"
)

// WrapperTool is the tool that executes the catalogued operations
const WrapperTool = "guardduty_security_operations"

// Catalog is the discovery document for all operations
type Catalog struct {
	Service             string              `json:"service"`
	Description         string              `json:"description"`
	WrapperTool         string              `json:"wrapper_tool"`
	CrossAccountSupport CrossAccountSupport `json:"cross_account_support"`
	Operations          Operations          `json:"operations"`
	SecurityInsights    SecurityInsights    `json:"security_insights"`
}

// CrossAccountSupport describes the session_context parameter
type CrossAccountSupport struct {
	Enabled     bool   `json:"enabled"`
	Parameter   string `json:"parameter"`
	Format      string `json:"format"`
	Description string `json:"description"`
}

// Operation documents a single operation
type Operation struct {
	Operation   contract.Operation `json:"-"`
	Description string             `json:"description"`
	Parameters  Parameters         `json:"parameters"`
	Examples    []string           `json:"examples"`
	UsageNotes  []string           `json:"usage_notes,omitempty"`
	UseCases    []string           `json:"use_cases"`
}

// Parameter documents a single operation parameter
type Parameter struct {
	Name        string   `json:"-"`
	Type        string   `json:"type"` // int, str, list or dict
	Required    bool     `json:"required,omitempty"`
	Default     *int     `json:"default,omitempty"`
	Options     []string `json:"options,omitempty"`
	Description string   `json:"description"`
}

// SecurityInsights holds guidance that applies across operations
type SecurityInsights struct {
	BestPractices   []string `json:"best_practices"`
	CommonWorkflows []string `json:"common_workflows"`
}

// Operations encodes as a JSON object keyed by operation name, in canonical order
type Operations []Operation

// Parameters encodes as a JSON object keyed by parameter name, in declaration order
type Parameters []Parameter

func (o Operations) MarshalJSON() ([]byte, error) {
	return marshalOrdered(len(o), func(i int) (string, any) {
		return o[i].Operation.String(), o[i]
	})
}

func (p Parameters) MarshalJSON() ([]byte, error) {
	return marshalOrdered(len(p), func(i int) (string, any) {
		return p[i].Name, p[i]
	})
}

func marshalOrdered(n int, entry func(i int) (string, any)) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i := 0; i < n; i++ {
		key, value := entry(i)
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Find returns the entry for op
func (o Operations) Find(op contract.Operation) (Operation, bool) {
	for _, entry := range o {
		if entry.Operation == op {
			return entry, true
		}
	}
	return Operation{}, false
}

// Find returns the parameter with the given name
func (p Parameters) Find(name string) (Parameter, bool) {
	for _, param := range p {
		if param.Name == name {
			return param, true
		}
	}
	return Parameter{}, false
}

// Get returns the operations catalog
func Get() Catalog {
	return build()
}

// Describe returns the catalog as indented JSON
func Describe() string {
	return describe()
}

var describe = sync.OnceValue(func() string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(build()); err != nil {
		// The catalog is static data of encodable types
		panic(err)
	}
	return string(bytes.TrimSuffix(buf.Bytes(), []byte("\n")))
})

func intPtr(v int) *int {
	return &v
}

func sessionContextParam() Parameter {
	return Parameter{
		Name:        "session_context",
		Type:        "str",
		Description: "Optional session key for cross-account access",
	}
}

func detectorIDParam() Parameter {
	return Parameter{
		Name:        "detector_id",
		Type:        "str",
		Required:    true,
		Description: "GuardDuty detector ID",
	}
}

func example(args string) string {
	return WrapperTool + "(" + args + ")"
}

func build() Catalog {
	return Catalog{
		Service:     "AWS GuardDuty",
		Description: "Threat detection and continuous security monitoring service",
		WrapperTool: WrapperTool,
		CrossAccountSupport: CrossAccountSupport{
			Enabled:     true,
			Parameter:   "session_context",
			Format:      "123456789012_aws_dev",
			Description: "Access GuardDuty resources across different AWS accounts",
		},
		Operations: Operations{
			{
				Operation:   contract.ListDetectors,
				Description: "List all GuardDuty detectors in the AWS account",
				Parameters: Parameters{
					{Name: "max_results", Type: "int", Default: intPtr(contract.DefaultDetectorMaxResults), Description: "Maximum detectors to return"},
					sessionContextParam(),
				},
				Examples: []string{
					example("operation='list_detectors'"),
					example("operation='list_detectors', session_context='123456789012_aws_dev'"),
				},
				UseCases: []string{
					"Check if GuardDuty is enabled",
					"Audit detector configurations",
					"Get detector IDs for other operations",
					"Cross-account detector discovery",
				},
			},
			{
				Operation:   contract.ListFindings,
				Description: "Retrieve security findings with advanced filtering capabilities",
				Parameters: Parameters{
					detectorIDParam(),
					{Name: "max_results", Type: "int", Default: intPtr(contract.DefaultMaxResults), Description: "Maximum findings to return"},
					{Name: "severity", Type: "str", Options: []string{"LOW", "MEDIUM", "HIGH", "ALL"}, Description: "Filter by severity"},
					{Name: "search_term", Type: "str", Description: "Text search across finding details"},
					{Name: "finding_ids", Type: "list", Description: "Specific finding IDs to retrieve instead of listing; max_results and severity still apply"},
					sessionContextParam(),
				},
				Examples: []string{
					example("operation='list_findings', detector_id='abc123'"),
					example("operation='list_findings', detector_id='abc123', severity='HIGH'"),
					example("operation='list_findings', detector_id='abc123', search_term='cryptocurrency'"),
					example("operation='list_findings', detector_id='abc123', session_context='123456789012_aws_dev'"),
				},
				UseCases: []string{
					"Monitor active security threats",
					"Filter findings by severity level",
					"Search for specific threat patterns",
					"Export findings for reporting",
					"Cross-account threat monitoring",
				},
			},
			{
				Operation:   contract.GetFindingDetails,
				Description: "Get comprehensive details about a specific security finding",
				Parameters: Parameters{
					detectorIDParam(),
					{Name: "finding_id", Type: "str", Required: true, Description: "Specific finding ID to analyze"},
					sessionContextParam(),
				},
				Examples: []string{
					example("operation='get_finding_details', detector_id='abc123', finding_id='def456'"),
					example("operation='get_finding_details', detector_id='abc123', finding_id='def456', session_context='123456789012_aws_dev'"),
				},
				UseCases: []string{
					"Investigate specific security incidents",
					"Get remediation recommendations",
					"Analyze attack patterns and IOCs",
					"Cross-account incident investigation",
				},
			},
			{
				Operation:   contract.ListIPSets,
				Description: "List trusted and threat IP sets configured in GuardDuty",
				Parameters: Parameters{
					detectorIDParam(),
					{Name: "max_results", Type: "int", Default: intPtr(contract.DefaultMaxResults), Description: "Maximum IP sets to return"},
					sessionContextParam(),
				},
				Examples: []string{
					example("operation='list_ip_sets', detector_id='abc123'"),
					example("operation='list_ip_sets', detector_id='abc123', session_context='123456789012_aws_dev'"),
				},
				UseCases: []string{
					"Review custom threat intelligence",
					"Audit trusted IP configurations",
					"Manage IP-based detection rules",
					"Cross-account IP set management",
				},
			},
			{
				Operation:   contract.ListThreatIntelSets,
				Description: "List threat intelligence feeds and indicators",
				Parameters: Parameters{
					detectorIDParam(),
					{Name: "max_results", Type: "int", Default: intPtr(contract.DefaultMaxResults), Description: "Maximum threat intel sets to return"},
					sessionContextParam(),
				},
				Examples: []string{
					example("operation='list_threat_intel_sets', detector_id='abc123'"),
					example("operation='list_threat_intel_sets', detector_id='abc123', session_context='123456789012_aws_dev'"),
				},
				UseCases: []string{
					"Review threat intelligence sources",
					"Validate threat feed configurations",
					"Audit custom threat indicators",
					"Cross-account threat intelligence management",
				},
			},
			{
				Operation:   contract.GetFindingsStatistics,
				Description: "Get official AWS-calculated statistics (severity counts, grouping)",
				Parameters: Parameters{
					detectorIDParam(),
					{Name: "finding_statistic_types", Type: "list", Description: "Types of statistics to get (e.g., ['COUNT_BY_SEVERITY'])"},
					{Name: "group_by", Type: "str", Options: []string{"ACCOUNT", "DATE", "FINDING_TYPE", "RESOURCE", "SEVERITY"}, Description: "Group statistics by category"},
					{Name: "finding_criteria", Type: "dict", Description: "Criteria to filter findings for statistics"},
					{Name: "order_by", Type: "str", Options: []string{"ASC", "DESC"}, Description: "Sort order (only with group_by)"},
					{Name: "max_results", Type: "int", Description: "Maximum results (only with group_by, max 100)"},
					sessionContextParam(),
				},
				Examples: []string{
					example("operation='get_findings_statistics', detector_id='abc123', finding_statistic_types=['COUNT_BY_SEVERITY']"),
					example("operation='get_findings_statistics', detector_id='abc123', group_by='FINDING_TYPE', order_by='DESC', max_results=10"),
					example("operation='get_findings_statistics', detector_id='abc123', finding_statistic_types=['COUNT_BY_SEVERITY'], session_context='123456789012_aws_dev'"),
				},
				UsageNotes: []string{
					"Must provide either finding_statistic_types OR group_by, but not both",
					"order_by and max_results can only be used with group_by",
					"Use finding_statistic_types=['COUNT_BY_SEVERITY'] for basic severity counts",
					"Use group_by for advanced grouping and sorting capabilities",
				},
				UseCases: []string{
					"Get official AWS-calculated severity statistics",
					"Analyze findings grouped by type, account, or resource",
					"Generate statistics reports with filtering",
					"Cross-account statistics monitoring",
				},
			},
		},
		SecurityInsights: SecurityInsights{
			BestPractices: []string{
				"Always start with list_detectors to get detector IDs",
				"Use severity filtering for high-priority threat triage",
				"Regular monitoring of HIGH severity findings",
				"Review threat intelligence configurations periodically",
				"Implement cross-account monitoring for centralized security",
			},
			CommonWorkflows: []string{
				"1. List detectors → 2. List high-severity findings → 3. Analyze specific findings",
				"1. List detectors → 2. Review IP sets → 3. Validate threat intelligence",
				"Cross-account: 1. List detectors with session_context → 2. Monitor findings across accounts",
			},
		},
	}
}
