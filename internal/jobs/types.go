// Package jobs は監査ジョブのライフサイクル管理機能を提供します。
package jobs

import (
	"time"

	"github.com/yourusername/sitepulse/internal/audit"
)

// Status はジョブの実行状態を表します。
type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
)

// Terminal は終端状態かどうかを返します。
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// allowedTransitions は前方向のみ許可される状態遷移の隣接表です。
var allowedTransitions = map[Status][]Status{
	StatusPending: {StatusRunning, StatusFailed},
	StatusRunning: {StatusComplete, StatusFailed},
}

// CanTransition は from から to への遷移が許可されているかを返します。
// 終端状態からの遷移、および後ろ向きの遷移は常に拒否されます。
func CanTransition(from, to Status) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ErrorInfo はジョブ失敗時のエラー情報を保持します。
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Record はジョブの現在状態を表します。
type Record struct {
	JobID     string            `json:"jobId"`
	URL       string            `json:"url"`
	Status    Status            `json:"status"`
	Metrics   *audit.RawMetrics `json:"metrics,omitempty"`
	Report    *audit.Report     `json:"report,omitempty"`
	Error     *ErrorInfo        `json:"error,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
	ExpiresAt time.Time         `json:"expiresAt"`
}
