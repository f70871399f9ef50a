package audit

import (
	"context"
	"testing"
)

func TestRulesEnrichHealthyMetrics(t *testing.T) {
	rules := NewRules()
	metrics := &RawMetrics{PerformanceScore: 95, LCP: 1200, CLS: 0.02, TBT: 50}

	report, err := rules.Enrich(context.Background(), "https://example.com", metrics)
	if err != nil {
		t.Fatalf("Enrich returned error: %v", err)
	}

	if report.PerformanceScore != 95 {
		t.Fatalf("PerformanceScore = %v, want 95", report.PerformanceScore)
	}
	if report.PredictedScore != 95 {
		t.Fatalf("PredictedScore = %v, want 95 (no suggestions)", report.PredictedScore)
	}
	// 問題なしの場合はエラーではなく空リストを返す
	if len(report.Insights) != 0 {
		t.Fatalf("Insights = %v, want empty", report.Insights)
	}
	if len(report.Suggestions) != 0 {
		t.Fatalf("Suggestions = %v, want empty", report.Suggestions)
	}
	if len(report.CodeFixes) != 0 {
		t.Fatalf("CodeFixes = %v, want empty", report.CodeFixes)
	}
	if report.Simulation != nil {
		t.Fatalf("Simulation = %+v, want nil without suggestions", report.Simulation)
	}
}

func TestRulesEnrichSlowSite(t *testing.T) {
	rules := NewRules()
	metrics := &RawMetrics{PerformanceScore: 42, LCP: 4200, CLS: 0.3, TBT: 600}

	report, err := rules.Enrich(context.Background(), "https://example.com", metrics)
	if err != nil {
		t.Fatalf("Enrich returned error: %v", err)
	}

	// 4つのしきい値すべてに該当するためインサイトも4件
	if len(report.Insights) != 4 {
		t.Fatalf("got %d insights, want 4: %v", len(report.Insights), report.Insights)
	}
	if len(report.Suggestions) != 3 {
		t.Fatalf("got %d suggestions, want 3", len(report.Suggestions))
	}
	// 修正案は改善見込みの降順
	for i := 1; i < len(report.Suggestions); i++ {
		if report.Suggestions[i-1].EstimatedImprovementScore < report.Suggestions[i].EstimatedImprovementScore {
			t.Fatalf("suggestions not sorted: %+v", report.Suggestions)
		}
	}
	if len(report.CodeFixes) != 2 {
		t.Fatalf("got %d code fixes, want 2", len(report.CodeFixes))
	}

	// LCPは半減、CLSは3割まで改善、TBTは据え置きの見込み
	if report.Simulation == nil {
		t.Fatal("Simulation must be present when suggestions exist")
	}
	if report.Simulation.LCP != 2100 {
		t.Fatalf("Simulation.LCP = %v, want 2100", report.Simulation.LCP)
	}
	if report.Simulation.CLS != 0.3*0.3 {
		t.Fatalf("Simulation.CLS = %v, want %v", report.Simulation.CLS, 0.3*0.3)
	}
	if report.Simulation.TBT != 600 {
		t.Fatalf("Simulation.TBT = %v, want 600", report.Simulation.TBT)
	}

	// 42 + 12 + 6 + 10 = 70
	if report.PredictedScore != 70 {
		t.Fatalf("PredictedScore = %v, want 70", report.PredictedScore)
	}
	if report.PredictedScore < report.PerformanceScore {
		t.Fatal("predicted score must not be below the measured score")
	}
}

func TestRulesPredictScoreClamped(t *testing.T) {
	rules := NewRules()
	metrics := &RawMetrics{PerformanceScore: 90, LCP: 5000, CLS: 0.5, TBT: 900}

	report, err := rules.Enrich(context.Background(), "https://example.com", metrics)
	if err != nil {
		t.Fatalf("Enrich returned error: %v", err)
	}
	if report.PredictedScore != 100 {
		t.Fatalf("PredictedScore = %v, want clamped to 100", report.PredictedScore)
	}
}

func TestRulesEnrichNilMetrics(t *testing.T) {
	rules := NewRules()
	if _, err := rules.Enrich(context.Background(), "https://example.com", nil); err == nil {
		t.Fatal("expected error for nil metrics")
	}
}

func TestRulesExplain(t *testing.T) {
	rules := NewRules()

	report := &Report{PerformanceScore: 42, LCP: 4200, CLS: 0.3, TBT: 600}
	answer, err := rules.Explain(context.Background(), report, "なぜ遅いのですか？")
	if err != nil {
		t.Fatalf("Explain returned error: %v", err)
	}
	if answer == "" {
		t.Fatal("answer must not be empty")
	}

	healthy := &Report{PerformanceScore: 98, LCP: 900, CLS: 0.01, TBT: 20}
	answer, err = rules.Explain(context.Background(), healthy, "問題はありますか？")
	if err != nil {
		t.Fatalf("Explain returned error: %v", err)
	}
	if answer == "" {
		t.Fatal("healthy report should still produce a non-empty answer")
	}
}
