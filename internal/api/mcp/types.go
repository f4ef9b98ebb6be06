// Package mcp implements the Model Context Protocol server for cairn: a
// line-delimited JSON-RPC 2.0 tool surface over stdio. The server owns no
// domain logic; every tool call resolves through the api.Registry.
package mcp

import "encoding/json"

// JSONRPCRequest is one incoming frame.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// JSONRPCResponse is one outgoing frame.
type JSONRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      interface{}   `json:"id,omitempty"`
	Result  interface{}   `json:"result,omitempty"`
	Error   *JSONRPCError `json:"error,omitempty"`
}

// JSONRPCError is the error member of a response frame.
type JSONRPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// JSON-RPC 2.0 error codes, plus the implementation-defined range used for
// the domain error taxonomy.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603

	// Implementation-defined codes (server range -32000..-32099).
	ErrCodeNotFound = -32001
	ErrCodeConflict = -32002
	ErrCodeIO       = -32003
)

// toolsCallParams is the params object of a tools/call request.
type toolsCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// toolDescriptor is one entry of a tools/list result.
type toolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// textContent is the MCP content wrapper for tool results.
type textContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// toolsCallResult is the result object of a tools/call response.
type toolsCallResult struct {
	Content []textContent `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}
