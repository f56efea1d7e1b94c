package mcp

import (
	"fmt"
	"strings"

	"github.com/froth-ops/froth/pkg/models"
)

// formatResult formats a routed request outcome, artifact last.
func formatResult(r models.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Request %s resolved via %s\n", r.RequestID, r.Source)
	fmt.Fprintf(&b, "  Tokens charged: %d\n", r.TokensCharged)
	if r.Source == models.SourceGeneration {
		fmt.Fprintf(&b, "  Tokens in/out:  %d/%d\n", r.TokensIn, r.TokensOut)
		fmt.Fprintf(&b, "  Cost:           $%.6f\n", r.CostUSD)
	}
	if r.Source == models.SourceSimilarity {
		fmt.Fprintf(&b, "  Similarity:     %.3f\n", r.SimilarityScore)
	}
	fmt.Fprintf(&b, "  Latency:        %dms\n", r.LatencyMs)
	if len(r.Artifact) > 0 {
		b.WriteString("\n")
		b.Write(r.Artifact)
		b.WriteString("\n")
	}
	return b.String()
}

// formatQuota formats a quota snapshot as text.
func formatQuota(s models.QuotaSnapshot) string {
	return fmt.Sprintf("Quota for %s\n"+
		"  Daily   (%s): %d / %d used, %d remaining\n"+
		"  Monthly (%s): %d / %d used, %d remaining\n",
		s.UserID,
		s.Day, s.DailyUsed, s.DailyLimit, s.DailyRemaining,
		s.Month, s.MonthlyUsed, s.MonthlyLimit, s.MonthlyRemaining)
}

// formatCacheStats formats cache stats as text.
func formatCacheStats(stats models.CacheStats) string {
	total := stats.Hits + stats.Misses
	hitRate := float64(0)
	if total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}
	return fmt.Sprintf("Cache Statistics\n"+
		"  Entries:  %d\n"+
		"  Hits:     %d\n"+
		"  Misses:   %d\n"+
		"  Hit Rate: %.1f%%\n",
		stats.Entries, stats.Hits, stats.Misses, hitRate)
}

// formatAuditEntries formats audit entries as a text table.
func formatAuditEntries(entries []models.AuditEntry) string {
	if len(entries) == 0 {
		return "No audit entries found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %-12s %-18s %8s %10s %8s\n",
		"Time", "User", "Source", "Charged", "Cost", "Latency")
	b.WriteString(strings.Repeat("-", 82) + "\n")
	for _, e := range entries {
		user := e.UserID
		if len(user) > 12 {
			user = user[:9] + "..."
		}
		fmt.Fprintf(&b, "%-20s %-12s %-18s %8d %10.6f %6dms\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"),
			user, e.Source, e.TokensCharged, e.CostUSD, e.LatencyMs)
	}
	return b.String()
}
