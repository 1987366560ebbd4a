package mcpserver

import (
	"encoding/json"
	"strings"

	"github.com/danntking/aws-sec-mcp/internal/catalog"
	contract "github.com/danntking/aws-sec-mcp/pkg/guarddutycontract"
)

// operationsSchema builds the input schema of the security operations tool
// from the parameters documented in the catalog
func operationsSchema() json.RawMessage {
	properties := map[string]any{
		ArgOperation: map[string]any{
			"type":        "string",
			"enum":        contract.OperationNames(),
			"description": "The GuardDuty operation to execute",
		},
		ArgSessionContext: map[string]any{
			"type":        "string",
			"description": "Optional session key for cross-account access, e.g. 123456789012_aws_dev",
		},
	}

	for _, op := range catalog.Get().Operations {
		for _, p := range op.Parameters {
			if _, ok := properties[p.Name]; ok {
				continue
			}
			properties[p.Name] = propertySchema(p)
		}
	}

	schema, _ := json.Marshal(map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   []string{ArgOperation},
	})
	return schema
}

// propertySchema maps catalog parameter types to JSON Schema types.
// Options are advisory and only listed in the description.
func propertySchema(p catalog.Parameter) map[string]any {
	description := p.Description
	if len(p.Options) > 0 {
		description += " (options: " + strings.Join(p.Options, ", ") + ")"
	}
	prop := map[string]any{"description": description}

	switch p.Type {
	case "int":
		prop["type"] = "integer"
	case "list":
		prop["type"] = "array"
		prop["items"] = map[string]any{"type": "string"}
	case "dict":
		prop["type"] = "object"
	default:
		prop["type"] = "string"
	}
	return prop
}

func operationsDescription() string {
	var b strings.Builder
	b.WriteString("Execute AWS GuardDuty security operations. Use ")
	b.WriteString(DiscoverTool)
	b.WriteString(" to see parameters and examples.\n\nOperations:")
	for _, op := range catalog.Get().Operations {
		b.WriteString("\n- ")
		b.WriteString(op.Operation.String())
		b.WriteString(": ")
		b.WriteString(op.Description)
	}
	return b.String()
}
