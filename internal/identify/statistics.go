package identify

import (
	"context"
	"fmt"
	"math"
	"strings"

	"cardscan/internal/logging"
)

// HighConfidencePattern is the confidence a pattern must exceed to count as
// high confidence in Statistics.
const HighConfidencePattern = 0.8

// Statistics summarizes the learning stores.
type Statistics struct {
	CachedCards     int     `json:"total_cached_cards"`
	TotalScans      int     `json:"total_scans"`
	SuccessfulScans int     `json:"successful_scans"`
	SuccessRate     float64 `json:"success_rate"`
	LearnedPatterns int     `json:"learned_patterns"`
	HighConfidence  int     `json:"high_confidence_patterns"`
	Corrections     int     `json:"user_corrections"`
}

// Statistics gathers counts from every store. A failing store contributes
// zero and is logged.
func (e *Engine) Statistics(ctx context.Context) Statistics {
	var stats Statistics
	count := func(name string, fn func(context.Context) (int, error)) int {
		n, err := fn(ctx)
		if err != nil {
			logging.WarnWithContext(logging.WithContext(ctx, e.logger), "statistics query failed", "statistics_query_failed",
				logging.Error(err),
				logging.String("source", name),
				logging.String(logging.FieldErrorHint, "check learning.db"),
				logging.String(logging.FieldImpact, "statistic reported as zero"),
			)
			return 0
		}
		return n
	}
	stats.CachedCards = count("namecache", e.deps.Names.Count)
	stats.TotalScans = count("scanstats", e.deps.Stats.Total)
	stats.SuccessfulScans = count("scanstats", e.deps.Stats.Successful)
	stats.LearnedPatterns = count("patterns", e.deps.Patterns.Count)
	stats.HighConfidence = count("patterns", func(ctx context.Context) (int, error) {
		return e.deps.Patterns.CountAbove(ctx, HighConfidencePattern)
	})
	stats.Corrections = count("corrections", e.deps.Corrections.Count)
	stats.SuccessRate = successRate(stats.SuccessfulScans, stats.TotalScans)
	return stats
}

func successRate(successful, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(successful)/float64(total)*10000) / 100
}

// Export renders the statistics report.
func (s Statistics) Export() string {
	var b strings.Builder
	b.WriteString("=== Learning System Statistics ===\n\n")
	fmt.Fprintf(&b, "Cached Cards: %d\n", s.CachedCards)
	fmt.Fprintf(&b, "Total Scans: %d\n", s.TotalScans)
	fmt.Fprintf(&b, "Successful Scans: %d\n", s.SuccessfulScans)
	if s.TotalScans == 0 {
		b.WriteString("Success Rate: 0%\n")
	} else {
		fmt.Fprintf(&b, "Success Rate: %s%%\n", formatRate(s.SuccessRate))
	}
	fmt.Fprintf(&b, "Learned OCR Patterns: %d\n", s.LearnedPatterns)
	fmt.Fprintf(&b, "High Confidence Patterns: %d\n", s.HighConfidence)
	fmt.Fprintf(&b, "User Corrections: %d\n", s.Corrections)
	return b.String()
}

// formatRate prints the rate the way a rounded float reads: 75.0, 66.67.
func formatRate(rate float64) string {
	out := fmt.Sprintf("%.2f", rate)
	out = strings.TrimRight(out, "0")
	if strings.HasSuffix(out, ".") {
		out += "0"
	}
	return out
}
