package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/dmehra/cairn/internal/api"
	"github.com/dmehra/cairn/pkg/types"
)

// protocolVersion is the MCP protocol revision this server speaks.
const protocolVersion = "2024-11-05"

// serverInfo identifies the implementation in the initialize handshake.
var serverInfo = map[string]string{
	"name":    "cairn",
	"version": "1.0.0",
}

// Server dispatches JSON-RPC methods. Tool calls resolve through the
// command registry; everything else is protocol plumbing.
type Server struct {
	registry *api.Registry
	logger   *log.Logger
}

// NewServer builds a server over the registry. logger defaults to stderr.
func NewServer(registry *api.Registry, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(os.Stderr, "cairn-mcp: ", log.LstdFlags)
	}
	return &Server{registry: registry, logger: logger}
}

// HandleRequest processes one raw JSON-RPC frame and returns the response
// frame. Notifications (no id) yield a nil response.
func (s *Server) HandleRequest(ctx context.Context, raw []byte) ([]byte, error) {
	var req JSONRPCRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return marshalResponse(errorResponse(nil, ErrCodeParseError, "parse error: "+err.Error(), nil))
	}
	if req.JSONRPC != "2.0" {
		return marshalResponse(errorResponse(req.ID, ErrCodeInvalidRequest, "jsonrpc must be \"2.0\"", nil))
	}

	resp := s.dispatch(ctx, &req)
	if resp == nil {
		return nil, nil
	}
	return marshalResponse(*resp)
}

func (s *Server) dispatch(ctx context.Context, req *JSONRPCRequest) *JSONRPCResponse {
	switch req.Method {
	case "initialize":
		return resultResponse(req.ID, map[string]interface{}{
			"protocolVersion": protocolVersion,
			"serverInfo":      serverInfo,
			"capabilities": map[string]interface{}{
				"tools": map[string]interface{}{},
			},
		})
	case "notifications/initialized":
		// Notification; no response frame.
		return nil
	case "ping":
		return resultResponse(req.ID, map[string]interface{}{})
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	default:
		return respPtr(errorResponse(req.ID, ErrCodeMethodNotFound,
			fmt.Sprintf("method %q not found", req.Method), nil))
	}
}

func (s *Server) handleToolsList(req *JSONRPCRequest) *JSONRPCResponse {
	commands := s.registry.All()
	tools := make([]toolDescriptor, 0, len(commands))
	for _, c := range commands {
		tools = append(tools, toolDescriptor{
			Name:        c.Name(),
			Description: c.Description(),
			InputSchema: c.InputSchema(),
		})
	}
	return resultResponse(req.ID, map[string]interface{}{"tools": tools})
}

func (s *Server) handleToolsCall(ctx context.Context, req *JSONRPCRequest) *JSONRPCResponse {
	var params toolsCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return respPtr(errorResponse(req.ID, ErrCodeInvalidParams, "invalid tools/call params: "+err.Error(), nil))
	}

	cmd, ok := s.registry.Lookup(params.Name)
	if !ok {
		return respPtr(errorResponse(req.ID, ErrCodeMethodNotFound,
			fmt.Sprintf("unknown tool %q", params.Name), nil))
	}

	result, err := cmd.Execute(ctx, params.Arguments)
	if err != nil {
		s.logger.Printf("tool %s failed: %v", params.Name, err)
		code, data := classifyError(err)
		return respPtr(errorResponse(req.ID, code, err.Error(), data))
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return respPtr(errorResponse(req.ID, ErrCodeInternalError, "encode result: "+err.Error(), nil))
	}
	return resultResponse(req.ID, toolsCallResult{
		Content: []textContent{{Type: "text", Text: string(payload)}},
	})
}

// classifyError maps the domain error taxonomy onto JSON-RPC codes. The
// data member carries structured detail where the error type provides it.
func classifyError(err error) (code int, data interface{}) {
	var ve *types.ValidationError
	if errors.As(err, &ve) {
		return ErrCodeInvalidParams, map[string]string{
			"field":      ve.Field,
			"suggestion": ve.Suggestion,
		}
	}
	var nfe *types.NotFoundError
	if errors.As(err, &nfe) {
		return ErrCodeNotFound, map[string]string{"kind": nfe.Kind, "id": nfe.ID}
	}
	var ce *types.ConflictError
	if errors.As(err, &ce) {
		return ErrCodeConflict, map[string]string{"kind": ce.Kind, "id": ce.ID}
	}
	var ioe *types.IOError
	if errors.As(err, &ioe) {
		return ErrCodeIO, map[string]string{"op": ioe.Op, "path": ioe.Path}
	}
	return ErrCodeInternalError, nil
}

func resultResponse(id interface{}, result interface{}) *JSONRPCResponse {
	return &JSONRPCResponse{JSONRPC: "2.0", ID: id, Result: result}
}

func errorResponse(id interface{}, code int, message string, data interface{}) JSONRPCResponse {
	return JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &JSONRPCError{Code: code, Message: message, Data: data},
	}
}

func respPtr(r JSONRPCResponse) *JSONRPCResponse { return &r }

func marshalResponse(resp JSONRPCResponse) ([]byte, error) {
	data, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("marshal response: %w", err)
	}
	return data, nil
}
