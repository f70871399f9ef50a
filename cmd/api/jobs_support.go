package main

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"

	"github.com/yourusername/sitepulse/internal/audit"
	"github.com/yourusername/sitepulse/internal/config"
	"github.com/yourusername/sitepulse/internal/insight"
	"github.com/yourusername/sitepulse/internal/jobs"
)

// setupJobs はレジストリ・監査ランナー・コラボレーターを組み立てます。
// INSIGHT_API_URL が設定されていればリモートコラボレーターを、
// なければ内蔵ルールエンジンをスコアリングと説明の両方に使用します。
func setupJobs(cfg *config.Config) (*jobs.Manager, *jobs.Store, audit.Explainer, error) {
	opt, err := redis.ParseURL(cfg.QueueRedisURL)
	if err != nil {
		return nil, nil, nil, err
	}
	redisClient := redis.NewClient(opt)

	ttlMinutes := cfg.ResultExpireMinutes
	if ttlMinutes <= 0 {
		ttlMinutes = 60
	}
	store := jobs.NewStore(redisClient, time.Duration(ttlMinutes)*time.Minute, cfg.HistoryLimit)

	runner := audit.NewRunner(cfg.NodePath, cfg.AuditScriptPath, time.Duration(cfg.AuditTimeoutSeconds)*time.Second)

	var (
		enricher  audit.Enricher
		explainer audit.Explainer
	)
	if cfg.InsightAPIURL != "" {
		client := insight.NewClient(cfg.InsightAPIURL, cfg.InsightAPIKey, cfg.InsightModel)
		enricher = client
		explainer = client
	} else {
		rules := audit.NewRules()
		enricher = rules
		explainer = rules
	}

	manager, err := jobs.NewManager(cfg, store, runner, enricher, log.Default())
	if err != nil {
		return nil, nil, nil, err
	}
	return manager, store, explainer, nil
}

// recordGetter はジョブレコードの読み取りを提供します。
type recordGetter interface {
	GetRecord(ctx context.Context, jobID string) (*jobs.Record, error)
}

// historyReader はURLごとの監査履歴の読み取りを提供します。
type historyReader interface {
	History(ctx context.Context, targetURL string) ([]*audit.Report, error)
}

// auditResultHandler は GET /api/audits/:id のハンドラーを返します。
// 未完了のジョブは status マーカーのみを返し、完了後は最終レポートを返します。
// レスポンスに status フィールドが存在するかどうかが「処理中/最終」の判別子です。
func auditResultHandler(records recordGetter) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := strings.TrimSpace(c.Param("id"))
		if jobID == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    audit.CodeInvalidInput,
				"message": "job_id を指定してください。",
			})
			return
		}

		record, err := records.GetRecord(c.Request.Context(), jobID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "ジョブ情報の取得に失敗しました。",
			})
			return
		}
		if record == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"code":    audit.CodeJobNotFound,
				"message": "指定されたジョブは存在しません。",
			})
			return
		}

		switch record.Status {
		case jobs.StatusComplete:
			c.JSON(http.StatusOK, record.Report)
		case jobs.StatusFailed:
			payload := gin.H{"status": string(record.Status)}
			if record.Error != nil {
				payload["error"] = record.Error
			}
			c.JSON(http.StatusOK, payload)
		default:
			// pending / running は途中の計測値を一切含めない
			c.JSON(http.StatusOK, gin.H{"status": string(record.Status)})
		}
	}
}

type explainRequest struct {
	Question string `json:"question"`
}

// auditExplainHandler は POST /api/audits/:id/explain のハンドラーを返します。
// 完了済みレポートと質問文をコラボレーターへ転送し、回答をそのまま返します。
func auditExplainHandler(records recordGetter, explainer audit.Explainer) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := strings.TrimSpace(c.Param("id"))
		if jobID == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    audit.CodeInvalidInput,
				"message": "job_id を指定してください。",
			})
			return
		}

		var req explainRequest
		if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Question) == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    audit.CodeInvalidInput,
				"message": "question を指定してください。",
			})
			return
		}

		record, err := records.GetRecord(c.Request.Context(), jobID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "ジョブ情報の取得に失敗しました。",
			})
			return
		}
		if record == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"code":    audit.CodeJobNotFound,
				"message": "指定されたジョブは存在しません。",
			})
			return
		}
		if record.Status != jobs.StatusComplete || record.Report == nil {
			c.JSON(http.StatusConflict, gin.H{
				"code":    audit.CodeJobNotReady,
				"message": "ジョブがまだ完了していないため、回答できません。",
			})
			return
		}

		answer, err := explainer.Explain(c.Request.Context(), record.Report, req.Question)
		if err != nil {
			audit.RespondWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"answer": answer})
	}
}

// auditHistoryHandler は GET /api/history?url= のハンドラーを返します。
// 指定URLの監査履歴を古い順に返します。
func auditHistoryHandler(histories historyReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		targetURL := strings.TrimSpace(c.Query("url"))
		if err := audit.ValidateTargetURL(targetURL); err != nil {
			audit.RespondWithError(c, err)
			return
		}

		reports, err := histories.History(c.Request.Context(), targetURL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "履歴の取得に失敗しました。",
			})
			return
		}
		if reports == nil {
			reports = []*audit.Report{}
		}

		c.JSON(http.StatusOK, reports)
	}
}
