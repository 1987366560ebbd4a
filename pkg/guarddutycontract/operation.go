// Package guarddutycontract defines the contract types for GuardDuty security operations.
// These types are shared by the dispatcher, the service implementations and the
// Lambda that executes service calls on behalf of a remote dispatcher.
package guarddutycontract

import "fmt"

// Operation identifies one of the GuardDuty security operations
type Operation int

const (
	ListDetectors Operation = iota + 1
	ListFindings
	GetFindingDetails
	ListIPSets
	ListThreatIntelSets
	GetFindingsStatistics
)

var operationNames = map[Operation]string{
	ListDetectors:         "list_detectors",
	ListFindings:          "list_findings",
	GetFindingDetails:     "get_finding_details",
	ListIPSets:            "list_ip_sets",
	ListThreatIntelSets:   "list_threat_intel_sets",
	GetFindingsStatistics: "get_findings_statistics",
}

// AllOperations returns every operation in its canonical order
func AllOperations() []Operation {
	return []Operation{
		ListDetectors,
		ListFindings,
		GetFindingDetails,
		ListIPSets,
		ListThreatIntelSets,
		GetFindingsStatistics,
	}
}

// OperationNames returns the wire names of every operation in canonical order
func OperationNames() []string {
	ops := AllOperations()
	names := make([]string, 0, len(ops))
	for _, op := range ops {
		names = append(names, op.String())
	}
	return names
}

// ParseOperation returns the operation with the exact wire name, or false
func ParseOperation(name string) (Operation, bool) {
	for op, opName := range operationNames {
		if opName == name {
			return op, true
		}
	}
	return 0, false
}

// String returns the wire name of the operation
func (o Operation) String() string {
	if name, ok := operationNames[o]; ok {
		return name
	}
	return fmt.Sprintf("Operation(%d)", int(o))
}

// Valid reports whether o is one of the known operations
func (o Operation) Valid() bool {
	_, ok := operationNames[o]
	return ok
}

// MarshalText encodes the operation as its wire name
func (o Operation) MarshalText() ([]byte, error) {
	if !o.Valid() {
		return nil, fmt.Errorf("unknown operation: %d", int(o))
	}
	return []byte(o.String()), nil
}

// UnmarshalText decodes an operation from its wire name
func (o *Operation) UnmarshalText(text []byte) error {
	op, ok := ParseOperation(string(text))
	if !ok {
		return fmt.Errorf("unknown operation: %s", string(text))
	}
	*o = op
	return nil
}
