// Package audit はウェブサイトのパフォーマンス監査機能を提供します。
package audit

// RawMetrics は監査エンジンが生成した未加工の計測値を表します。
// 一度生成されたら変更されません。
type RawMetrics struct {
	PerformanceScore float64 `json:"performance_score"` // 0〜100
	LCP              float64 `json:"lcp"`               // Largest Contentful Paint (ms)
	CLS              float64 `json:"cls"`               // Cumulative Layout Shift（無次元）
	TBT              float64 `json:"tbt"`               // Total Blocking Time (ms)
}

// Suggestion は検出された問題と修正案のペアです。
type Suggestion struct {
	Issue                     string `json:"issue"`
	Fix                       string `json:"fix"`
	EstimatedImprovementScore int    `json:"estimated_improvement_score"`
}

// CodeFix は問題に対する具体的なコード修正例です。
type CodeFix struct {
	Issue string `json:"issue"`
	HTML  string `json:"code_fix_html,omitempty"`
	React string `json:"code_fix_react,omitempty"`
}

// Simulation は提案された修正をすべて適用した場合の計測値の見込みです。
type Simulation struct {
	LCP float64 `json:"lcp"`
	CLS float64 `json:"cls"`
	TBT float64 `json:"tbt"`
}

// Report は計測値とモデル生成の助言を組み合わせた最終成果物です。
// ジョブに添付された後は変更されません。
type Report struct {
	PerformanceScore float64      `json:"performance_score"`
	PredictedScore   float64      `json:"predicted_score"`
	LCP              float64      `json:"lcp"`
	CLS              float64      `json:"cls"`
	TBT              float64      `json:"tbt"`
	Insights         []string     `json:"insights"`
	Suggestions      []Suggestion `json:"suggestions"`
	CodeFixes        []CodeFix    `json:"code_fixes"`
	Simulation       *Simulation  `json:"simulation,omitempty"`
	Alert            string       `json:"alert,omitempty"`
}
