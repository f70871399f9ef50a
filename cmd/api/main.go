// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/sitepulse/internal/audit"
	"github.com/yourusername/sitepulse/internal/config"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	// Ginルーターの初期化（デフォルトミドルウェア: Logger, Recovery）
	router := gin.Default()

	// CORSミドルウェアの設定（ダッシュボードからのポーリング用）
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = strings.Split(cfg.CORSAllowedOrigins, ",")
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
	}
	router.Use(cors.New(corsConfig))

	// ジョブ管理（レジストリ・ディスパッチャ・コラボレーター）の初期化
	manager, store, explainer, err := setupJobs(cfg)
	if err != nil {
		log.Fatalf("Failed to setup jobs: %v", err)
	}

	// ルーティングの設定
	router.GET("/health", handleHealth)
	api := router.Group("/api")
	{
		api.POST("/audits", audit.SubmitHandler(manager))
		api.GET("/audits/:id", auditResultHandler(manager))
		api.POST("/audits/:id/explain", auditExplainHandler(manager, explainer))
		api.GET("/history", auditHistoryHandler(store))
	}

	// 監査ワーカーの起動
	manager.StartWorkers()

	// サーバーの起動
	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}
	go func() {
		log.Printf("Starting API server on %s (mode: %s, slots: %d)", addr, cfg.GinMode, cfg.AuditConcurrency)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// シグナル受信でワーカーとサーバーを順に停止する
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := manager.Shutdown(ctx); err != nil {
		log.Printf("Worker shutdown error: %v", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "sitepulse-api",
		"version": "0.1.0",
	})
}
