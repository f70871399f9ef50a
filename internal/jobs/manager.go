package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/yourusername/sitepulse/internal/audit"
	"github.com/yourusername/sitepulse/internal/config"
)

const (
	taskTypeAudit = "audit:run"
	queueAudits   = "audits"

	// regressionDropThreshold を超えてスコアが下落した場合、レポートに警告を付けます。
	regressionDropThreshold = 5
)

// enrichTimeBudget は監査タスクのタイムアウトに含めるコラボレーター呼び出し分の余裕です。
// insight.Client 自身のHTTPタイムアウト（60秒）より長く取ります。
const enrichTimeBudget = 90 * time.Second

// Runner は1つのURLに対する監査を実行します。
type Runner interface {
	Run(ctx context.Context, url string) (*audit.RawMetrics, error)
}

// Registry は Manager が使用するジョブレコードの読み書き操作です。
// 実運用では Redis 実装の Store がこれを満たします。
type Registry interface {
	Create(ctx context.Context, targetURL string) (*Record, error)
	Get(ctx context.Context, jobID string) (*Record, error)
	MarkRunning(ctx context.Context, jobID string) error
	AttachMetrics(ctx context.Context, jobID string, metrics *audit.RawMetrics) error
	MarkComplete(ctx context.Context, jobID string, report *audit.Report) error
	MarkFailed(ctx context.Context, jobID string, errInfo *ErrorInfo) error
	AppendHistory(ctx context.Context, targetURL string, report *audit.Report) error
	LastReport(ctx context.Context, targetURL string) (*audit.Report, error)
}

// Manager はジョブの投入と実行を担います。
// Asynqサーバーの Concurrency が同時実行スロット数の上限になります。
type Manager struct {
	cfg      *config.Config
	client   *asynq.Client
	server   *asynq.Server
	mux      *asynq.ServeMux
	store    Registry
	runner   Runner
	enricher audit.Enricher
	logger   *log.Logger
}

// TaskPayload は監査ジョブのペイロードです。
type TaskPayload struct {
	JobID string `json:"jobId"`
	URL   string `json:"url"`
}

// NewManager は Manager を初期化します。
func NewManager(cfg *config.Config, store Registry, runner Runner, enricher audit.Enricher, logger *log.Logger) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if store == nil {
		return nil, errors.New("store is nil")
	}
	if runner == nil {
		return nil, errors.New("runner is nil")
	}
	if enricher == nil {
		return nil, errors.New("enricher is nil")
	}
	opt, err := asynq.ParseRedisURI(cfg.QueueRedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := asynq.NewClient(opt)
	server := asynq.NewServer(
		opt,
		asynq.Config{
			Concurrency: cfg.AuditConcurrency,
			Queues: map[string]int{
				queueAudits: 1,
			},
		},
	)

	mux := asynq.NewServeMux()
	manager := &Manager{
		cfg:      cfg,
		client:   client,
		server:   server,
		mux:      mux,
		store:    store,
		runner:   runner,
		enricher: enricher,
		logger:   logger,
	}
	mux.HandleFunc(taskTypeAudit, manager.handleAuditTask)
	return manager, nil
}

// StartWorkers は Asynq サーバーをバックグラウンドで起動します。
func (m *Manager) StartWorkers() {
	go func() {
		if err := m.server.Run(m.mux); err != nil && err != asynq.ErrServerClosed {
			if m.logger != nil {
				m.logger.Printf("asynq server stopped with error: %v", err)
			} else {
				log.Printf("asynq server stopped with error: %v", err)
			}
		}
	}()
}

// Shutdown はサーバーとクライアントを閉じます。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.server.Shutdown()
	m.client.Close()
	return nil
}

// Schedule はpending状態のジョブを作成し、監査タスクを1件だけキューへ投入します。
// 失敗した監査は再試行されず、呼び出し側が新しいジョブとして再投入します。
func (m *Manager) Schedule(ctx context.Context, targetURL string) (string, error) {
	record, err := m.store.Create(ctx, targetURL)
	if err != nil {
		return "", err
	}

	payload := &TaskPayload{JobID: record.JobID, URL: targetURL}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	// タスク側のタイムアウトはエンジンとコラボレーター両方の所要時間を覆うように取り、
	// 通常はRunner側・クライアント側のタイムアウトが先に発火するようにする
	taskTimeout := time.Duration(m.cfg.AuditTimeoutSeconds)*time.Second + enrichTimeBudget
	task := asynq.NewTask(taskTypeAudit, body, asynq.Queue(queueAudits))
	if _, err := m.client.EnqueueContext(ctx, task, asynq.MaxRetry(0), asynq.Timeout(taskTimeout)); err != nil {
		// キュー投入に失敗したジョブをpendingのまま放置しない
		_ = m.store.MarkFailed(ctx, record.JobID, &ErrorInfo{
			Code:    "INTERNAL_ERROR",
			Message: "ジョブのキュー投入に失敗しました。",
		})
		return "", err
	}
	return record.JobID, nil
}

// GetRecord はジョブ情報を取得します。
func (m *Manager) GetRecord(ctx context.Context, jobID string) (*Record, error) {
	return m.store.Get(ctx, jobID)
}

func (m *Manager) handleAuditTask(ctx context.Context, task *asynq.Task) error {
	var payload TaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return err
	}
	if payload.JobID == "" {
		return fmt.Errorf("missing jobId in payload")
	}

	if err := m.store.MarkRunning(ctx, payload.JobID); err != nil {
		// 同一ジョブの二重実行（遷移拒否）はここで止まる
		return err
	}

	metrics, err := m.runner.Run(ctx, payload.URL)
	if err != nil {
		return m.failJobWithError(ctx, payload.JobID, err)
	}
	if err := m.store.AttachMetrics(ctx, payload.JobID, metrics); err != nil {
		return m.failJobWithError(ctx, payload.JobID, err)
	}

	report, err := m.enricher.Enrich(ctx, payload.URL, metrics)
	if err != nil {
		return m.failJobWithError(ctx, payload.JobID, err)
	}

	// 終端状態の書き込みはタスクのキャンセルに巻き込まれないよう切り離して行う。
	// ここで書き込めないとジョブがrunningのまま取り残される。
	writeCtx := context.WithoutCancel(ctx)
	m.attachRegressionAlert(writeCtx, payload.URL, report)

	if err := m.store.MarkComplete(writeCtx, payload.JobID, report); err != nil {
		return m.failJobWithError(ctx, payload.JobID, err)
	}
	if err := m.store.AppendHistory(writeCtx, payload.URL, report); err != nil && m.logger != nil {
		m.logger.Printf("failed to append history job=%s: %v", payload.JobID, err)
	}

	if m.logger != nil {
		m.logger.Printf("audit completed job=%s url=%s score=%.0f", payload.JobID, payload.URL, report.PerformanceScore)
	}
	return nil
}

// attachRegressionAlert は前回の監査結果と比較し、大きなスコア下落を警告として記録します。
func (m *Manager) attachRegressionAlert(ctx context.Context, targetURL string, report *audit.Report) {
	prev, err := m.store.LastReport(ctx, targetURL)
	if err != nil || prev == nil {
		return
	}
	drop := prev.PerformanceScore - report.PerformanceScore
	if drop > regressionDropThreshold {
		report.Alert = fmt.Sprintf("パフォーマンススコアが前回から%.0fポイント低下しました。", drop)
	}
}

// failJobWithError はジョブをfailed状態にし、スロットを解放するためタスクとしては正常終了させます。
func (m *Manager) failJobWithError(ctx context.Context, jobID string, err error) error {
	var apiErr *audit.Error
	errInfo := &ErrorInfo{Code: "INTERNAL_ERROR", Message: err.Error()}
	if errors.As(err, &apiErr) {
		errInfo = &ErrorInfo{Code: apiErr.Code, Message: apiErr.Message}
	}

	// タスクのタイムアウトやシャットダウンで失敗した場合でも終端状態は必ず記録する
	ctx = context.WithoutCancel(ctx)
	if markErr := m.store.MarkFailed(ctx, jobID, errInfo); markErr != nil {
		if m.logger != nil {
			m.logger.Printf("failed to mark job failed job=%s: %v", jobID, markErr)
		}
		return markErr
	}
	if m.logger != nil {
		m.logger.Printf("audit failed job=%s code=%s: %s", jobID, errInfo.Code, errInfo.Message)
	}
	// 失敗は記録済みなので再試行させない
	return nil
}
