package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/yourusername/sitepulse/internal/audit"
)

const (
	jobKeyPrefix     = "job:"
	historyKeyPrefix = "history:"
)

var (
	// ErrNotFound は指定されたジョブIDが存在しないことを示します。
	ErrNotFound = errors.New("job not found")
	// ErrInvalidTransition は許可されていない状態遷移を示します。
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Store はジョブ状態とURLごとの監査履歴を Redis に保存します。
// ジョブレコードの正本であり、他のコンポーネントはすべて Store 経由で読み書きします。
type Store struct {
	rdb          *redis.Client
	ttl          time.Duration
	historyLimit int
}

// NewStore は Store を作成します。
func NewStore(rdb *redis.Client, ttl time.Duration, historyLimit int) *Store {
	if historyLimit < 1 {
		historyLimit = 1
	}
	return &Store{
		rdb:          rdb,
		ttl:          ttl,
		historyLimit: historyLimit,
	}
}

// Create は新しいジョブIDを割り当て、pending状態のレコードを保存します。
func (s *Store) Create(ctx context.Context, targetURL string) (*Record, error) {
	now := time.Now().UTC()
	record := &Record{
		JobID:     uuid.NewString(),
		URL:       targetURL,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if s.ttl > 0 {
		record.ExpiresAt = now.Add(s.ttl)
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	// uuidは衝突しない前提だが、既存キーの上書きだけは防いでおく
	ok, err := s.rdb.SetNX(ctx, jobKey(record.JobID), payload, s.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("job id collision: %s", record.JobID)
	}
	return record, nil
}

// Get はジョブ情報のスナップショットを取得します。存在しない場合は nil を返します。
func (s *Store) Get(ctx context.Context, jobID string) (*Record, error) {
	if jobID == "" {
		return nil, fmt.Errorf("jobID is required")
	}
	data, err := s.rdb.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// MarkRunning はジョブを running 状態へ進めます。
func (s *Store) MarkRunning(ctx context.Context, jobID string) error {
	return s.transition(ctx, jobID, StatusRunning, func(record *Record) {})
}

// AttachMetrics は実行中のジョブに未加工の計測値を添付します。状態は変更しません。
func (s *Store) AttachMetrics(ctx context.Context, jobID string, metrics *audit.RawMetrics) error {
	return s.update(ctx, jobID, func(record *Record) error {
		if record.Status != StatusRunning {
			return fmt.Errorf("%w: metrics can only be attached while running (status=%s)", ErrInvalidTransition, record.Status)
		}
		record.Metrics = metrics
		return nil
	})
}

// MarkComplete はジョブを complete 状態へ進め、最終レポートを添付します。
func (s *Store) MarkComplete(ctx context.Context, jobID string, report *audit.Report) error {
	return s.transition(ctx, jobID, StatusComplete, func(record *Record) {
		record.Report = report
		record.Error = nil
	})
}

// MarkFailed はジョブを failed 状態へ進め、失敗理由を記録します。
func (s *Store) MarkFailed(ctx context.Context, jobID string, errInfo *ErrorInfo) error {
	return s.transition(ctx, jobID, StatusFailed, func(record *Record) {
		if errInfo != nil {
			record.Error = errInfo
		}
	})
}

func (s *Store) transition(ctx context.Context, jobID string, to Status, mutate func(*Record)) error {
	return s.update(ctx, jobID, func(record *Record) error {
		if !CanTransition(record.Status, to) {
			return fmt.Errorf("%w: %s -> %s (job=%s)", ErrInvalidTransition, record.Status, to, jobID)
		}
		record.Status = to
		mutate(record)
		return nil
	})
}

// update は WATCH による楽観ロックの下でレコードを読み取り・変更・保存します。
// 競合時は再試行するため、並行する読み取りが途中状態を観測することはありません。
func (s *Store) update(ctx context.Context, jobID string, mutate func(*Record) error) error {
	key := jobKey(jobID)
	for {
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				if err == redis.Nil {
					return fmt.Errorf("%w: %s", ErrNotFound, jobID)
				}
				return err
			}
			var record Record
			if err := json.Unmarshal(data, &record); err != nil {
				return err
			}
			if err := mutate(&record); err != nil {
				return err
			}
			record.UpdatedAt = time.Now().UTC()
			payload, err := json.Marshal(&record)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, payload, s.ttl)
				return nil
			})
			return err
		}, key)
		if err == redis.TxFailedErr {
			continue
		}
		return err
	}
}

// AppendHistory は完了レポートをURLごとの履歴リストへ追加し、上限まで切り詰めます。
func (s *Store) AppendHistory(ctx context.Context, targetURL string, report *audit.Report) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return err
	}
	key := historyKey(targetURL)
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, payload)
		pipe.LTrim(ctx, key, int64(-s.historyLimit), -1)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	return err
}

// History はURLの監査履歴を古い順に返します。
func (s *Store) History(ctx context.Context, targetURL string) ([]*audit.Report, error) {
	entries, err := s.rdb.LRange(ctx, historyKey(targetURL), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	reports := make([]*audit.Report, 0, len(entries))
	for _, entry := range entries {
		var report audit.Report
		if err := json.Unmarshal([]byte(entry), &report); err != nil {
			return nil, err
		}
		reports = append(reports, &report)
	}
	return reports, nil
}

// LastReport はURLの直近の監査レポートを返します。履歴がない場合は nil を返します。
func (s *Store) LastReport(ctx context.Context, targetURL string) (*audit.Report, error) {
	entries, err := s.rdb.LRange(ctx, historyKey(targetURL), -1, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	var report audit.Report
	if err := json.Unmarshal([]byte(entries[0]), &report); err != nil {
		return nil, err
	}
	return &report, nil
}

func jobKey(id string) string {
	return jobKeyPrefix + id
}

func historyKey(url string) string {
	return historyKeyPrefix + url
}
