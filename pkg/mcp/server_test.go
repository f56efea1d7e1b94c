package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/froth-ops/froth/pkg/models"
)

// fakePipeline implements Pipeline for testing.
type fakePipeline struct {
	result  models.Result
	handErr error
	snap    models.QuotaSnapshot
	entries []models.AuditEntry

	lastUser string
	lastReq  string
}

func (f *fakePipeline) Handle(_ context.Context, userID, requirement string) (models.Result, error) {
	f.lastUser = userID
	f.lastReq = requirement
	if f.handErr != nil {
		return models.Result{Source: models.SourceError}, f.handErr
	}
	return f.result, nil
}

func (f *fakePipeline) Stats(_ context.Context, userID string) (models.QuotaSnapshot, error) {
	snap := f.snap
	snap.UserID = userID
	return snap, nil
}

func (f *fakePipeline) RecentAudit(_ context.Context, n int) ([]models.AuditEntry, error) {
	if n < len(f.entries) {
		return f.entries[len(f.entries)-n:], nil
	}
	return f.entries, nil
}

// fakeCache implements CacheStatter for testing.
type fakeCache struct {
	stats models.CacheStats
}

func (f *fakeCache) Stats() (models.CacheStats, error) { return f.stats, nil }

func sendAndReceive(t *testing.T, srv *Server, req Request) Response {
	t.Helper()
	line, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	line = append(line, '\n')

	var out bytes.Buffer
	if err := srv.Run(context.Background(), bytes.NewReader(line), &out); err != nil {
		t.Fatal(err)
	}

	var resp Response
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v\nraw: %s", err, out.String())
	}
	return resp
}

func callTool(t *testing.T, srv *Server, name string, args string) ToolCallResult {
	t.Helper()
	params, _ := json.Marshal(ToolCallParams{Name: name, Arguments: json.RawMessage(args)})
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`1`),
		Method:  "tools/call",
		Params:  params,
	})
	if resp.Error != nil {
		t.Fatalf("unexpected rpc error: %v", resp.Error)
	}
	data, _ := json.Marshal(resp.Result)
	var result ToolCallResult
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("unmarshal tool result: %v", err)
	}
	return result
}

func TestInitialize(t *testing.T) {
	srv := New(&fakePipeline{}, nil, nil, "test")
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`1`),
		Method:  "initialize",
	})

	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}

	data, _ := json.Marshal(resp.Result)
	var result InitializeResult
	json.Unmarshal(data, &result)

	if result.ProtocolVersion != "2024-11-05" {
		t.Errorf("protocol version = %s, want 2024-11-05", result.ProtocolVersion)
	}
	if result.ServerInfo.Name != "froth" {
		t.Errorf("server name = %s, want froth", result.ServerInfo.Name)
	}
}

func TestToolsList(t *testing.T) {
	srv := New(&fakePipeline{}, nil, nil, "test")
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`2`),
		Method:  "tools/list",
	})

	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}

	data, _ := json.Marshal(resp.Result)
	var result ToolsListResult
	json.Unmarshal(data, &result)

	if len(result.Tools) != 5 {
		t.Errorf("got %d tools, want 5", len(result.Tools))
	}

	names := make(map[string]bool)
	for _, tool := range result.Tools {
		names[tool.Name] = true
	}
	for _, want := range []string{"froth_generate", "froth_quota", "froth_cache_stats", "froth_recent_audit", "froth_audit_search"} {
		if !names[want] {
			t.Errorf("missing tool %s", want)
		}
	}
}

func TestUnknownMethod(t *testing.T) {
	srv := New(&fakePipeline{}, nil, nil, "test")
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`3`),
		Method:  "bogus/method",
	})
	if resp.Error == nil || resp.Error.Code != CodeMethodNotFound {
		t.Fatalf("expected method not found, got %+v", resp.Error)
	}
}

func TestGenerateTool(t *testing.T) {
	pipe := &fakePipeline{
		result: models.Result{
			RequestID:     "req-1",
			Source:        models.SourceGeneration,
			Artifact:      []byte(`{"test_cases":[]}`),
			TokensIn:      400,
			TokensOut:     310,
			TokensCharged: 710,
			CostUSD:       0.00102,
		},
	}
	srv := New(pipe, nil, nil, "test")

	result := callTool(t, srv, "froth_generate", `{"user_id":"maya","requirement":"Reject expired tokens"}`)
	if result.IsError {
		t.Fatalf("tool error: %s", result.Content[0].Text)
	}
	text := result.Content[0].Text
	if !strings.Contains(text, "generation") {
		t.Errorf("output missing source: %s", text)
	}
	if !strings.Contains(text, "710") {
		t.Errorf("output missing charged tokens: %s", text)
	}
	if pipe.lastUser != "maya" {
		t.Errorf("pipeline user = %s, want maya", pipe.lastUser)
	}

	result = callTool(t, srv, "froth_generate", `{"requirement":"no user"}`)
	if !result.IsError {
		t.Error("expected error for missing user_id")
	}
}

func TestGenerateToolPipelineError(t *testing.T) {
	pipe := &fakePipeline{handErr: errors.New("daily token limit exceeded")}
	srv := New(pipe, nil, nil, "test")

	result := callTool(t, srv, "froth_generate", `{"user_id":"maya","requirement":"anything"}`)
	if !result.IsError {
		t.Fatal("expected tool error")
	}
	if !strings.Contains(result.Content[0].Text, "daily token limit") {
		t.Errorf("error text = %s", result.Content[0].Text)
	}
}

func TestQuotaTool(t *testing.T) {
	pipe := &fakePipeline{snap: models.QuotaSnapshot{
		Day:            "2026-08-30",
		DailyUsed:      710,
		DailyLimit:     10000,
		DailyRemaining: 9290,
		Month:          "2026-08",
		MonthlyLimit:   300000,
	}}
	srv := New(pipe, nil, nil, "test")

	result := callTool(t, srv, "froth_quota", `{"user_id":"maya"}`)
	if result.IsError {
		t.Fatalf("tool error: %s", result.Content[0].Text)
	}
	text := result.Content[0].Text
	if !strings.Contains(text, "maya") || !strings.Contains(text, "710 / 10000") {
		t.Errorf("unexpected quota output: %s", text)
	}
}

func TestCacheStatsTool(t *testing.T) {
	srv := New(&fakePipeline{}, &fakeCache{stats: models.CacheStats{Entries: 3, Hits: 7, Misses: 3}}, nil, "test")

	result := callTool(t, srv, "froth_cache_stats", `{}`)
	if result.IsError {
		t.Fatalf("tool error: %s", result.Content[0].Text)
	}
	if !strings.Contains(result.Content[0].Text, "70.0%") {
		t.Errorf("expected 70%% hit rate, got: %s", result.Content[0].Text)
	}

	// Without a cache the tool degrades to a notice.
	srv = New(&fakePipeline{}, nil, nil, "test")
	result = callTool(t, srv, "froth_cache_stats", `{}`)
	if result.IsError {
		t.Fatal("nil cache should not be a tool error")
	}
}

func TestRecentAuditTool(t *testing.T) {
	pipe := &fakePipeline{entries: []models.AuditEntry{
		{UserID: "maya", Source: models.SourceGeneration, TokensCharged: 710, CreatedAt: time.Now()},
		{UserID: "maya", Source: models.SourceCache, CreatedAt: time.Now()},
	}}
	srv := New(pipe, nil, nil, "test")

	result := callTool(t, srv, "froth_recent_audit", `{}`)
	if result.IsError {
		t.Fatalf("tool error: %s", result.Content[0].Text)
	}
	text := result.Content[0].Text
	if !strings.Contains(text, "generation") || !strings.Contains(text, "cache") {
		t.Errorf("unexpected audit output: %s", text)
	}
}

func TestParseError(t *testing.T) {
	srv := New(&fakePipeline{}, nil, nil, "test")
	var out bytes.Buffer
	if err := srv.Run(context.Background(), strings.NewReader("{not json}\n"), &out); err != nil {
		t.Fatal(err)
	}
	var resp Response
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != CodeParseError {
		t.Fatalf("expected parse error, got %+v", resp.Error)
	}
}
