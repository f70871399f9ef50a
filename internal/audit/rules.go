package audit

import (
	"context"
	"sort"
	"strings"
)

// しきい値はLighthouseの一般的な判定基準に合わせています。
const (
	lowScoreThreshold = 50
	lcpThresholdMs    = 4000
	clsThreshold      = 0.1
	tbtThresholdMs    = 300
)

// Rules は外部コラボレーターなしで動作する内蔵の評価エンジンです。
// しきい値ベースでインサイト・修正案・コード例・予測スコアを導出します。
type Rules struct{}

// NewRules は Rules を作成します。
func NewRules() *Rules {
	return &Rules{}
}

// Enrich は計測値からレポートを組み立てます。
// 問題が検出されない場合、各リストは空のまま返されます。
func (r *Rules) Enrich(ctx context.Context, url string, metrics *RawMetrics) (*Report, error) {
	if metrics == nil {
		return nil, newError(CodeCollaboratorFailure, "計測値が存在しません。", nil)
	}

	suggestions := buildSuggestions(metrics)
	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].EstimatedImprovementScore > suggestions[j].EstimatedImprovementScore
	})

	return &Report{
		PerformanceScore: metrics.PerformanceScore,
		PredictedScore:   predictScore(metrics.PerformanceScore, suggestions),
		LCP:              metrics.LCP,
		CLS:              metrics.CLS,
		TBT:              metrics.TBT,
		Insights:         buildInsights(metrics),
		Suggestions:      suggestions,
		CodeFixes:        buildCodeFixes(metrics),
		Simulation:       buildSimulation(metrics, suggestions),
	}, nil
}

// Explain は質問に関連する観測事項を組み合わせてヒューリスティックな回答を返します。
func (r *Rules) Explain(ctx context.Context, report *Report, question string) (string, error) {
	if report == nil {
		return "", newError(CodeJobNotReady, "レポートが存在しません。", nil)
	}

	lines := explanationLines(report)
	if len(lines) == 0 {
		return "主要な指標はいずれも良好です。現時点で対応が必要な項目は検出されていません。", nil
	}
	return strings.Join(lines, " "), nil
}

func buildInsights(m *RawMetrics) []string {
	insights := []string{}

	if m.PerformanceScore < lowScoreThreshold {
		insights = append(insights, "パフォーマンススコアが非常に低く、大幅な最適化が必要です。")
	}
	if m.LCP > lcpThresholdMs {
		insights = append(insights, "LCPが4秒を超えています。主要コンテンツの描画が遅すぎます。")
	}
	if m.CLS > clsThreshold {
		insights = append(insights, "レイアウトシフトが検出されました。")
	}
	if m.TBT > tbtThresholdMs {
		insights = append(insights, "Total Blocking Timeが高く、操作への応答が阻害されています。")
	}

	return insights
}

func buildSuggestions(m *RawMetrics) []Suggestion {
	suggestions := []Suggestion{}

	if m.LCP > lcpThresholdMs {
		suggestions = append(suggestions, Suggestion{
			Issue:                     "LCPが大きすぎます",
			Fix:                       "ヒーロー画像を preload するか、<img loading='lazy'> で後続画像を遅延読み込みしてください。",
			EstimatedImprovementScore: 12,
		})
	}
	if m.CLS > clsThreshold {
		suggestions = append(suggestions, Suggestion{
			Issue:                     "レイアウトシフトが発生しています",
			Fix:                       "画像に width / height 属性を指定してください。",
			EstimatedImprovementScore: 6,
		})
	}
	if m.TBT > tbtThresholdMs {
		suggestions = append(suggestions, Suggestion{
			Issue:                     "JavaScriptのブロッキング時間が長すぎます",
			Fix:                       "dynamic import() によるコード分割を検討してください。",
			EstimatedImprovementScore: 10,
		})
	}

	return suggestions
}

func buildCodeFixes(m *RawMetrics) []CodeFix {
	fixes := []CodeFix{}

	if m.LCP > lcpThresholdMs {
		fixes = append(fixes, CodeFix{
			Issue: "LCPが大きすぎます",
			HTML:  "<img loading='lazy' />",
			React: "const Hero = dynamic(() => import('./Hero'), { ssr: false })",
		})
	}
	if m.CLS > clsThreshold {
		fixes = append(fixes, CodeFix{
			Issue: "レイアウトシフトが発生しています",
			HTML:  "<img width='400' height='300' />",
		})
	}

	return fixes
}

// buildSimulation は修正案をすべて適用した後の計測値の見込みを返します。
// LCPはpreloadで半減、CLSはサイズ指定で7割減を想定し、TBTは据え置きです。
// 修正案がない場合はnilを返します。
func buildSimulation(m *RawMetrics, suggestions []Suggestion) *Simulation {
	if len(suggestions) == 0 {
		return nil
	}

	sim := &Simulation{LCP: m.LCP, CLS: m.CLS, TBT: m.TBT}
	if m.LCP > lcpThresholdMs {
		sim.LCP = m.LCP * 0.5
	}
	if m.CLS > clsThreshold {
		sim.CLS = m.CLS * 0.3
	}
	return sim
}

// predictScore は修正案の改善見込みを合算した到達可能スコアを返します（上限100）。
func predictScore(current float64, suggestions []Suggestion) float64 {
	predicted := current
	for _, s := range suggestions {
		predicted += float64(s.EstimatedImprovementScore)
	}
	if predicted > 100 {
		predicted = 100
	}
	return predicted
}

func explanationLines(report *Report) []string {
	lines := []string{}

	if report.LCP > lcpThresholdMs {
		lines = append(lines, "主要コンテンツの描画が遅れています。レンダリングをブロックするリソースや大きなJSバンドルが原因と考えられます。")
	}
	if report.TBT > tbtThresholdMs {
		lines = append(lines, "JavaScriptの長時間実行がユーザー操作をブロックしています。")
	}
	if report.CLS > clsThreshold {
		lines = append(lines, "画像や動的なDOM変更によるレイアウトシフトが発生しています。")
	}
	if report.PerformanceScore < lowScoreThreshold {
		lines = append(lines, "総合スコアが低いため、上位の修正案から順に対応することを推奨します。")
	}

	return lines
}
