package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/froth-ops/froth/pkg/models"
)

// Tool argument structs.

type generateArgs struct {
	UserID      string `json:"user_id"`
	Requirement string `json:"requirement"`
}

type userArgs struct {
	UserID string `json:"user_id"`
}

type recentAuditArgs struct {
	N int `json:"n"`
}

type auditSearchArgs struct {
	UserID    string `json:"user_id"`
	Source    string `json:"source"`
	RequestID string `json:"request_id"`
	Since     string `json:"since"`
}

// toolHandler is a function that handles a tool call.
type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

// toolHandlers maps tool names to their handlers.
var toolHandlers = map[string]toolHandler{
	"froth_generate":     handleGenerate,
	"froth_quota":        handleQuota,
	"froth_cache_stats":  handleCacheStats,
	"froth_recent_audit": handleRecentAudit,
	"froth_audit_search": handleAuditSearch,
}

// allTools is the list of tool definitions exposed via tools/list.
var allTools = []ToolDefinition{
	{
		Name:        "froth_generate",
		Description: "Generate a structured test-case artifact for a requirement. Served from cache or the similarity index when possible; only novel requirements spend quota tokens.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"user_id", "requirement"},
			"properties": map[string]any{
				"user_id": map[string]any{
					"type":        "string",
					"description": "User whose quota the request charges against",
				},
				"requirement": map[string]any{
					"type":        "string",
					"description": "Natural-language test requirement",
				},
			},
		},
	},
	{
		Name:        "froth_quota",
		Description: "Show a user's daily and monthly token consumption against their limits.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"user_id"},
			"properties": map[string]any{
				"user_id": map[string]any{
					"type":        "string",
					"description": "The user to inspect",
				},
			},
		},
	},
	{
		Name:        "froth_cache_stats",
		Description: "Show artifact cache statistics (entries, hits, misses, hit rate).",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
	{
		Name:        "froth_recent_audit",
		Description: "Show the most recent audit entries, oldest first.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"n": map[string]any{
					"type":        "integer",
					"description": "Number of entries to show (optional, default 20)",
				},
			},
		},
	},
	{
		Name:        "froth_audit_search",
		Description: "Search the audit trail with optional filters.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"user_id": map[string]any{
					"type":        "string",
					"description": "Filter by user (optional)",
				},
				"source": map[string]any{
					"type":        "string",
					"description": "Filter by resolution source: cache, vector_similarity, generation, quota_rejected, error (optional)",
				},
				"request_id": map[string]any{
					"type":        "string",
					"description": "Filter by request ID (optional)",
				},
				"since": map[string]any{
					"type":        "string",
					"description": "Start date in YYYY-MM-DD format (optional)",
				},
			},
		},
	},
}

func textResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
	}
}

func errorResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
		IsError: true,
	}
}

func handleGenerate(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args generateArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	if args.UserID == "" {
		return errorResult("user_id is required")
	}
	if args.Requirement == "" {
		return errorResult("requirement is required")
	}

	result, err := s.pipeline.Handle(ctx, args.UserID, args.Requirement)
	if err != nil {
		return errorResult("Generation failed: " + err.Error())
	}
	return textResult(formatResult(result))
}

func handleQuota(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args userArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	if args.UserID == "" {
		return errorResult("user_id is required")
	}
	snap, err := s.pipeline.Stats(ctx, args.UserID)
	if err != nil {
		return errorResult("Error fetching quota: " + err.Error())
	}
	return textResult(formatQuota(snap))
}

func handleCacheStats(_ context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.cache == nil {
		return textResult("Cache is not configured.")
	}
	stats, err := s.cache.Stats()
	if err != nil {
		return errorResult("Error fetching cache stats: " + err.Error())
	}
	return textResult(formatCacheStats(stats))
}

func handleRecentAudit(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args recentAuditArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	n := args.N
	if n <= 0 {
		n = 20
	}
	entries, err := s.pipeline.RecentAudit(ctx, n)
	if err != nil {
		return errorResult("Error fetching audit entries: " + err.Error())
	}
	return textResult(formatAuditEntries(entries))
}

func handleAuditSearch(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.auditor == nil {
		return textResult("Audit logging is not configured.")
	}
	var args auditSearchArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}

	opts := models.AuditQueryOpts{
		UserID:    args.UserID,
		Source:    models.Source(args.Source),
		RequestID: args.RequestID,
		Limit:     50,
	}
	if args.Since != "" {
		t, err := time.Parse("2006-01-02", args.Since)
		if err != nil {
			return errorResult("Invalid since date (use YYYY-MM-DD): " + err.Error())
		}
		opts.Since = t
	}

	entries, err := s.auditor.Query(ctx, opts)
	if err != nil {
		return errorResult("Error searching audit trail: " + err.Error())
	}
	return textResult(formatAuditEntries(entries))
}
