package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/platinummonkey/nexus-mcp/pkg/apierr"
	"github.com/platinummonkey/nexus-mcp/pkg/authz"
	"github.com/platinummonkey/nexus-mcp/pkg/catalog"
	"github.com/platinummonkey/nexus-mcp/pkg/dispatch"
	"github.com/platinummonkey/nexus-mcp/pkg/grouping"
	"github.com/platinummonkey/nexus-mcp/pkg/observability"
)

// ToolMode selects how operations are advertised
type ToolMode string

const (
	// ToolModeGrouped advertises one consolidated tool per resource group
	ToolModeGrouped ToolMode = "grouped"
	// ToolModeRaw advertises one tool per operation
	ToolModeRaw ToolMode = "raw"
)

// Operations is the catalog view the server needs
type Operations interface {
	Operations() []catalog.Operation
	LookupTool(tool string) (catalog.Operation, bool)
	Count() int
	LoadedNamespaces() []string
}

// Groups is the resource group view the server needs
type Groups interface {
	Tools(filter grouping.Filter) []catalog.Tool
	IsGroupTool(name string) bool
	Resolve(toolName, operationID string) (catalog.Operation, *grouping.Group, error)
}

// Dispatcher executes a resolved call
type Dispatcher interface {
	Dispatch(ctx context.Context, call dispatch.Call) *dispatch.Result
}

// ServerConfig configures a Server
type ServerConfig struct {
	Mode    ToolMode
	Version string
}

// Server answers MCP JSON-RPC requests
type Server struct {
	ops        Operations
	groups     Groups
	dispatcher Dispatcher
	mode       ToolMode
	version    string
	logger     *observability.Logger
}

// NewServer creates a server. groups may be nil in raw mode.
func NewServer(ops Operations, groups Groups, dispatcher Dispatcher, cfg ServerConfig, logger *observability.Logger) *Server {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if cfg.Mode == "" {
		cfg.Mode = ToolModeGrouped
	}
	if groups == nil {
		cfg.Mode = ToolModeRaw
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	return &Server{
		ops:        ops,
		groups:     groups,
		dispatcher: dispatcher,
		mode:       cfg.Mode,
		version:    cfg.Version,
		logger:     logger.WithField("component", "mcp"),
	}
}

// Mode returns the active tool mode
func (s *Server) Mode() ToolMode {
	return s.mode
}

// Caller is the identity a request runs as
type Caller struct {
	Principal authz.Principal
	ClientIP  string
}

// Handle processes one request. Notifications return nil.
func (s *Server) Handle(ctx context.Context, caller Caller, req Request) (resp *Response) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithFields(map[string]interface{}{
				"method": req.Method,
				"panic":  fmt.Sprint(r),
			}).Error("panic while handling request")
			resp = errorResponse(req.ID, CodeInternalError, "Internal error")
		}
	}()

	if req.IsNotification() {
		s.logger.WithField("method", req.Method).Debug("notification received")
		return nil
	}
	if req.JSONRPC != "2.0" {
		return errorResponse(req.ID, CodeInvalidRequest, `Invalid Request: jsonrpc must be "2.0"`)
	}

	switch req.Method {
	case "initialize":
		return resultResponse(req.ID, s.initialize())
	case "tools/list":
		return resultResponse(req.ID, ListToolsResult{Tools: s.Tools(caller.Principal)})
	case "tools/call":
		return s.callTool(ctx, caller, req)
	case "ping":
		return resultResponse(req.ID, struct{}{})
	default:
		return errorResponse(req.ID, CodeMethodNotFound, "Method not found: "+req.Method)
	}
}

func (s *Server) initialize() InitializeResult {
	return InitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    Capabilities{Tools: ToolsCapability{ListChanged: true}},
		ServerInfo:      ServerInfo{Name: ServerName, Version: s.version},
	}
}

// Tools returns the tools visible to p
func (s *Server) Tools(p authz.Principal) []catalog.Tool {
	if p == nil {
		return []catalog.Tool{}
	}
	filter := toolFilter(p)

	if s.mode == ToolModeGrouped {
		return s.groups.Tools(filter)
	}

	ops := s.ops.Operations()
	tools := make([]catalog.Tool, 0, len(ops))
	for _, op := range ops {
		if filter == nil || filter(op) {
			tools = append(tools, catalog.RawTool(op))
		}
	}
	return tools
}

func toolFilter(p authz.Principal) grouping.Filter {
	if p.FullAccess() {
		return nil
	}
	return func(op catalog.Operation) bool {
		return p.AllowsOperation(op.Name())
	}
}

func (s *Server) callTool(ctx context.Context, caller Caller, req Request) *Response {
	var params CallToolParams
	if len(req.Params) == 0 {
		return errorResponse(req.ID, CodeInvalidParams, "Invalid params: name is required")
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, CodeInvalidParams, "Invalid params: "+err.Error())
	}
	if params.Name == "" {
		return errorResponse(req.ID, CodeInvalidParams, "Invalid params: name is required")
	}

	op, args, err := s.resolve(params.Name, params.Arguments)
	if err != nil {
		e, ok := apierr.As(err)
		if !ok {
			e = apierr.Dispatch(apierr.CodeInvalidArguments, err.Error())
		}
		s.logger.WithFields(map[string]interface{}{
			"tool": params.Name,
			"code": e.Code,
		}).Warn("tool call rejected")
		return resultResponse(req.ID, textResult((&dispatch.Result{Err: e}).Text(), true))
	}

	result := s.dispatcher.Dispatch(ctx, dispatch.Call{
		Principal: caller.Principal,
		Operation: op,
		Args:      args,
		ClientIP:  caller.ClientIP,
	})
	return resultResponse(req.ID, textResult(result.Text(), result.IsError()))
}

// resolve maps a tool name and its arguments to an operation and the
// operation's own arguments
func (s *Server) resolve(name string, arguments map[string]interface{}) (catalog.Operation, map[string]interface{}, error) {
	if arguments == nil {
		arguments = map[string]interface{}{}
	}

	if s.groups != nil && s.groups.IsGroupTool(name) {
		operationID, _ := arguments["operation"].(string)
		op, _, err := s.groups.Resolve(name, operationID)
		if err != nil {
			return catalog.Operation{}, nil, err
		}
		return op, groupArguments(arguments), nil
	}

	op, ok := s.ops.LookupTool(name)
	if !ok {
		return catalog.Operation{}, nil, apierr.Dispatch(apierr.CodeUnknownTool, fmt.Sprintf("Unknown tool: %s", name))
	}
	return op, arguments, nil
}

// groupArguments returns arguments.params when it is an object, otherwise
// every argument except operation
func groupArguments(arguments map[string]interface{}) map[string]interface{} {
	if params, ok := arguments["params"].(map[string]interface{}); ok {
		return params
	}
	args := make(map[string]interface{}, len(arguments))
	for k, v := range arguments {
		if k == "operation" || k == "params" {
			continue
		}
		args[k] = v
	}
	return args
}
