package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Runner は外部の監査エンジン（Lighthouse起動スクリプト）を1回分の作業単位として起動します。
// スクリプトはヘッドレスChromeを1インスタンス起動し、結果をJSON1行で標準出力に書き出します。
type Runner struct {
	nodePath   string
	scriptPath string
	timeout    time.Duration
}

// NewRunner は Runner を作成します。
func NewRunner(nodePath, scriptPath string, timeout time.Duration) *Runner {
	return &Runner{
		nodePath:   nodePath,
		scriptPath: scriptPath,
		timeout:    timeout,
	}
}

// Run は url に対して監査を1回実行し、正規化した計測値を返します。
// タイムアウト・起動失敗・不正な出力はすべて ENGINE_FAILURE として報告されます。
// CommandContext によりエンジンプロセスはどの経路でも確実に終了します。
func (r *Runner) Run(ctx context.Context, url string) (*RawMetrics, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.nodePath, r.scriptPath, url)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, newError(CodeEngineFailure,
				fmt.Sprintf("監査が%s以内に完了しませんでした。", r.timeout), ctx.Err())
		}
		return nil, newError(CodeEngineFailure,
			fmt.Sprintf("監査エンジンの実行に失敗しました: %s", firstLine(stderr.String())), err)
	}

	metrics, err := parseEngineOutput(stdout.Bytes())
	if err != nil {
		return nil, err
	}
	return metrics, nil
}

// parseEngineOutput はエンジンのJSON出力を検証しつつ RawMetrics へ変換します。
// 4つの指標のいずれかが欠けている出力は不正として扱います。
func parseEngineOutput(data []byte) (*RawMetrics, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, newError(CodeEngineFailure, "監査エンジンの出力が空です。", nil)
	}

	var raw struct {
		PerformanceScore *float64 `json:"performance_score"`
		LCP              *float64 `json:"lcp"`
		CLS              *float64 `json:"cls"`
		TBT              *float64 `json:"tbt"`
	}
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, newError(CodeEngineFailure, "監査エンジンの出力を解析できませんでした。", err)
	}

	missing := []string{}
	if raw.PerformanceScore == nil {
		missing = append(missing, "performance_score")
	}
	if raw.LCP == nil {
		missing = append(missing, "lcp")
	}
	if raw.CLS == nil {
		missing = append(missing, "cls")
	}
	if raw.TBT == nil {
		missing = append(missing, "tbt")
	}
	if len(missing) > 0 {
		return nil, newError(CodeEngineFailure,
			fmt.Sprintf("監査エンジンの出力に必須フィールドがありません: %s", strings.Join(missing, ", ")), nil)
	}

	return &RawMetrics{
		PerformanceScore: *raw.PerformanceScore,
		LCP:              *raw.LCP,
		CLS:              *raw.CLS,
		TBT:              *raw.TBT,
	}, nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
