// Package insight はリモートのスコアリング/説明サービスへのクライアントを提供します。
package insight

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yourusername/sitepulse/internal/audit"
)

const defaultTimeout = 60 * time.Second

// Client はスコアリング/LLMコラボレーターのHTTPクライアントです。
// コラボレーターはリモートかつ不安定なものとして扱い、失敗はすべて
// COLLABORATOR_FAILURE として報告します。
type Client struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewClient は Client を作成します。
func NewClient(baseURL, apiKey, model string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

type enrichRequest struct {
	Model   string            `json:"model,omitempty"`
	URL     string            `json:"url"`
	Metrics *audit.RawMetrics `json:"metrics"`
}

type enrichResponse struct {
	PredictedScore *float64           `json:"predicted_score"`
	Insights       []string           `json:"insights"`
	Suggestions    []audit.Suggestion `json:"suggestions"`
	CodeFixes      []audit.CodeFix    `json:"code_fixes"`
	Simulation     *audit.Simulation  `json:"simulation"`
}

// Enrich は計測値をコラボレーターへ送信し、レポートを受け取ります。
// インサイト・修正案・コード例が省略された応答は有効で、空のリストとして扱います。
func (c *Client) Enrich(ctx context.Context, url string, metrics *audit.RawMetrics) (*audit.Report, error) {
	var resp enrichResponse
	if err := c.post(ctx, "/v1/enrich", &enrichRequest{
		Model:   c.model,
		URL:     url,
		Metrics: metrics,
	}, &resp); err != nil {
		return nil, err
	}

	if resp.PredictedScore == nil {
		return nil, audit.NewError(audit.CodeCollaboratorFailure, "コラボレーターの応答に predicted_score がありません。", nil)
	}

	report := &audit.Report{
		PerformanceScore: metrics.PerformanceScore,
		PredictedScore:   *resp.PredictedScore,
		LCP:              metrics.LCP,
		CLS:              metrics.CLS,
		TBT:              metrics.TBT,
		Insights:         resp.Insights,
		Suggestions:      resp.Suggestions,
		CodeFixes:        resp.CodeFixes,
		Simulation:       resp.Simulation,
	}
	if report.Insights == nil {
		report.Insights = []string{}
	}
	if report.Suggestions == nil {
		report.Suggestions = []audit.Suggestion{}
	}
	if report.CodeFixes == nil {
		report.CodeFixes = []audit.CodeFix{}
	}
	return report, nil
}

type explainRequest struct {
	Model    string        `json:"model,omitempty"`
	Report   *audit.Report `json:"report"`
	Question string        `json:"question"`
}

type explainResponse struct {
	Answer string `json:"answer"`
}

// Explain はレポートと質問文をコラボレーターへ転送し、回答をそのまま返します。
func (c *Client) Explain(ctx context.Context, report *audit.Report, question string) (string, error) {
	var resp explainResponse
	if err := c.post(ctx, "/v1/explain", &explainRequest{
		Model:    c.model,
		Report:   report,
		Question: question,
	}, &resp); err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.Answer) == "" {
		return "", audit.NewError(audit.CodeCollaboratorFailure, "コラボレーターの応答に answer がありません。", nil)
	}
	return resp.Answer, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return audit.NewError(audit.CodeCollaboratorFailure, "コラボレーターへのリクエスト生成に失敗しました。", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return audit.NewError(audit.CodeCollaboratorFailure, "コラボレーターへのリクエスト作成に失敗しました。", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return audit.NewError(audit.CodeCollaboratorFailure, "コラボレーターに接続できませんでした。", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return audit.NewError(audit.CodeCollaboratorFailure,
			fmt.Sprintf("コラボレーターがエラーを返しました (status %d): %s", resp.StatusCode, strings.TrimSpace(string(respBody))), nil)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return audit.NewError(audit.CodeCollaboratorFailure, "コラボレーターの応答を解析できませんでした。", err)
	}
	return nil
}
