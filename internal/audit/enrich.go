package audit

import "context"

// Enricher は計測値からレポートを生成するコラボレーターです。
// 実装はリモートのスコアリングサービス、または内蔵のルールエンジンです。
type Enricher interface {
	Enrich(ctx context.Context, url string, metrics *RawMetrics) (*Report, error)
}

// Explainer は完了済みレポートに関する自由記述の質問に回答します。
type Explainer interface {
	Explain(ctx context.Context, report *Report, question string) (string, error)
}
