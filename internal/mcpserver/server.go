// Package mcpserver exposes the GuardDuty security operations as MCP tools and resources.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/danntking/aws-sec-mcp/internal/catalog"
	contract "github.com/danntking/aws-sec-mcp/pkg/guarddutycontract"
)

// Tool and argument names
const (
	DiscoverTool      = "discover_guardduty_operations"
	ArgOperation      = "operation"
	ArgSessionContext = "session_context"
)

// Resource URIs
const (
	CatalogURI         = "guardduty://catalog"
	OperationURIPrefix = "guardduty://operations/"
)

const jsonMIMEType = "application/json"

// Dispatcher executes a named operation and returns its JSON text
type Dispatcher interface {
	Dispatch(ctx context.Context, operation, sessionContext string, params map[string]any) string
}

// New creates an MCP server with the GuardDuty tools and resources registered
func New(name, version string, d Dispatcher) *server.MCPServer {
	s := server.NewMCPServer(
		name,
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)
	Register(s, d)
	return s
}

// Register adds the GuardDuty tools and resources to s
func Register(s *server.MCPServer, d Dispatcher) {
	s.AddTool(mcp.Tool{
		Name:           catalog.WrapperTool,
		Description:    operationsDescription(),
		RawInputSchema: operationsSchema(),
	}, OperationsHandler(d))

	s.AddTool(mcp.Tool{
		Name:           DiscoverTool,
		Description:    "Discover the available GuardDuty security operations with their parameters, examples and use cases.",
		RawInputSchema: json.RawMessage(`{"type":"object","properties":{}}`),
	}, DiscoverHandler)

	s.AddResource(mcp.NewResource(CatalogURI, "GuardDuty operations catalog",
		mcp.WithResourceDescription("Every GuardDuty security operation with parameters, examples and use cases"),
		mcp.WithMIMEType(jsonMIMEType),
	), resourceHandler(""))

	for _, op := range contract.AllOperations() {
		s.AddResource(mcp.NewResource(OperationURIPrefix+op.String(), op.String(),
			mcp.WithResourceDescription("Catalog entry of the "+op.String()+" operation"),
			mcp.WithMIMEType(jsonMIMEType),
		), resourceHandler(catalog.OperationPointer(op.String())))
	}
}

// OperationsHandler runs the security operations tool.
// operation and session_context are taken from the arguments; the rest form the parameter bag.
func OperationsHandler(d Dispatcher) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := convertArgs(request.Params.Arguments)
		if err != nil {
			return nil, err
		}

		operation, _ := args[ArgOperation].(string)
		sessionContext, _ := args[ArgSessionContext].(string)
		delete(args, ArgOperation)
		delete(args, ArgSessionContext)

		return textResult(d.Dispatch(ctx, operation, sessionContext, args)), nil
	}
}

// DiscoverHandler returns the operations catalog
func DiscoverHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return textResult(catalog.Describe()), nil
}

func resourceHandler(pointer string) server.ResourceHandlerFunc {
	return func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		text := catalog.Describe()
		if pointer != "" {
			value, err := catalog.Lookup(pointer)
			if err != nil {
				return nil, err
			}
			data, err := json.MarshalIndent(value, "", "  ")
			if err != nil {
				return nil, fmt.Errorf("failed to marshal catalog entry: %w", err)
			}
			text = string(data)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      request.Params.URI,
				MIMEType: jsonMIMEType,
				Text:     text,
			},
		}, nil
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

func convertArgs(val any) (map[string]any, error) {
	if val == nil {
		return map[string]any{}, nil
	}

	data, err := json.Marshal(val)
	if err != nil {
		return nil, err
	}

	var args map[string]any
	if err := json.Unmarshal(data, &args); err != nil {
		return nil, fmt.Errorf("tool arguments must be an object: %w", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}
