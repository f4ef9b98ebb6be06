package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/dmehra/cairn/internal/api"
	"github.com/dmehra/cairn/internal/config"
	"github.com/dmehra/cairn/internal/engine"
	"github.com/dmehra/cairn/internal/storage/filestore"
)

func newServer(t *testing.T) *Server {
	t.Helper()
	store, err := filestore.New(t.TempDir())
	if err != nil {
		t.Fatalf("filestore.New: %v", err)
	}
	e := engine.New(&config.Config{}, store.Memories(), store.Tasks(), nil, nil)
	return NewServer(api.NewRegistry(api.Commands(e)...), nil)
}

func handle(t *testing.T, s *Server, frame string) *JSONRPCResponse {
	t.Helper()
	raw, err := s.HandleRequest(context.Background(), []byte(frame))
	if err != nil {
		t.Fatalf("HandleRequest: %v", err)
	}
	if raw == nil {
		return nil
	}
	var resp JSONRPCResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("response is not valid JSON: %v\n%s", err, raw)
	}
	return &resp
}

// toolText extracts the embedded JSON payload of a successful tools/call.
func toolText(t *testing.T, resp *JSONRPCResponse) string {
	t.Helper()
	data, err := json.Marshal(resp.Result)
	if err != nil {
		t.Fatalf("re-marshal result: %v", err)
	}
	var result toolsCallResult
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("decode tools/call result: %v", err)
	}
	if len(result.Content) != 1 || result.Content[0].Type != "text" {
		t.Fatalf("unexpected content shape: %+v", result)
	}
	return result.Content[0].Text
}

func TestInitializeHandshake(t *testing.T) {
	s := newServer(t)
	resp := handle(t, s, `{"jsonrpc":"2.0","id":1,"method":"initialize"}`)
	if resp.Error != nil {
		t.Fatalf("initialize error: %+v", resp.Error)
	}
	data, _ := json.Marshal(resp.Result)
	if !strings.Contains(string(data), protocolVersion) {
		t.Errorf("initialize result missing protocol version: %s", data)
	}
	if !strings.Contains(string(data), `"cairn"`) {
		t.Errorf("initialize result missing server name: %s", data)
	}
}

func TestNotificationProducesNoFrame(t *testing.T) {
	s := newServer(t)
	raw, err := s.HandleRequest(context.Background(), []byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	if err != nil {
		t.Fatalf("HandleRequest: %v", err)
	}
	if raw != nil {
		t.Errorf("notification should not produce a response, got %s", raw)
	}
}

func TestToolsListContainsEveryCommand(t *testing.T) {
	s := newServer(t)
	resp := handle(t, s, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
	if resp.Error != nil {
		t.Fatalf("tools/list error: %+v", resp.Error)
	}
	data, _ := json.Marshal(resp.Result)
	for _, name := range []string{"store_memory", "search_memories", "update_task_status", "suggest_automation", "compact_task_links"} {
		if !strings.Contains(string(data), `"`+name+`"`) {
			t.Errorf("tools/list missing %s", name)
		}
	}
}

func TestToolsCallRoundTrip(t *testing.T) {
	s := newServer(t)

	resp := handle(t, s, `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"store_memory","arguments":{"content":"redis cache keys use the tenant prefix"}}}`)
	if resp.Error != nil {
		t.Fatalf("store_memory error: %+v", resp.Error)
	}
	var mem struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal([]byte(toolText(t, resp)), &mem); err != nil {
		t.Fatalf("decode memory payload: %v", err)
	}
	if mem.ID == "" {
		t.Fatal("memory id missing from payload")
	}

	resp = handle(t, s, `{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"search_memories","arguments":{"query":"redis"}}}`)
	if resp.Error != nil {
		t.Fatalf("search error: %+v", resp.Error)
	}
	if !strings.Contains(toolText(t, resp), mem.ID) {
		t.Error("search did not return the stored memory")
	}
}

func TestErrorTaxonomyMapping(t *testing.T) {
	s := newServer(t)

	// Validation: empty query.
	resp := handle(t, s, `{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"search_memories","arguments":{"query":"  "}}}`)
	if resp.Error == nil || resp.Error.Code != ErrCodeInvalidParams {
		t.Errorf("empty query error = %+v, want code %d", resp.Error, ErrCodeInvalidParams)
	}

	// Not found.
	resp = handle(t, s, `{"jsonrpc":"2.0","id":6,"method":"tools/call","params":{"name":"get_memory","arguments":{"id":"mem-20200101T000000-gone"}}}`)
	if resp.Error == nil || resp.Error.Code != ErrCodeNotFound {
		t.Errorf("missing record error = %+v, want code %d", resp.Error, ErrCodeNotFound)
	}

	// Unknown tool.
	resp = handle(t, s, `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"no_such_tool"}}`)
	if resp.Error == nil || resp.Error.Code != ErrCodeMethodNotFound {
		t.Errorf("unknown tool error = %+v, want code %d", resp.Error, ErrCodeMethodNotFound)
	}

	// Unknown method.
	resp = handle(t, s, `{"jsonrpc":"2.0","id":8,"method":"bogus/method"}`)
	if resp.Error == nil || resp.Error.Code != ErrCodeMethodNotFound {
		t.Errorf("unknown method error = %+v, want code %d", resp.Error, ErrCodeMethodNotFound)
	}

	// Malformed frame.
	resp = handle(t, s, `{not json`)
	if resp.Error == nil || resp.Error.Code != ErrCodeParseError {
		t.Errorf("parse error = %+v, want code %d", resp.Error, ErrCodeParseError)
	}
}

func TestConflictMapsToConflictCode(t *testing.T) {
	s := newServer(t)

	resp := handle(t, s, `{"jsonrpc":"2.0","id":9,"method":"tools/call","params":{"name":"store_memory","arguments":{"id":"mem-20260101T000000-dup","content":"original"}}}`)
	if resp.Error != nil {
		t.Fatalf("first store error: %+v", resp.Error)
	}
	resp = handle(t, s, `{"jsonrpc":"2.0","id":10,"method":"tools/call","params":{"name":"store_memory","arguments":{"id":"mem-20260101T000000-dup","content":"duplicate"}}}`)
	if resp.Error == nil || resp.Error.Code != ErrCodeConflict {
		t.Errorf("duplicate id error = %+v, want code %d", resp.Error, ErrCodeConflict)
	}
}

func TestStdioTransportFraming(t *testing.T) {
	s := newServer(t)

	in := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize"}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
	}, "\n") + "\n"

	var out bytes.Buffer
	tr := NewStdioTransport(s, strings.NewReader(in), &out)
	if err := tr.Serve(context.Background()); err != nil {
		t.Fatalf("Serve: %v", err)
	}

	// Two requests, one notification: exactly two response lines on stdout.
	scanner := bufio.NewScanner(&out)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 response lines, got %d:\n%s", len(lines), strings.Join(lines, "\n"))
	}
	for _, line := range lines {
		var resp JSONRPCResponse
		if err := json.Unmarshal([]byte(line), &resp); err != nil {
			t.Errorf("line is not a valid frame: %v\n%s", err, line)
		}
	}
}
