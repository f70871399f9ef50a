// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// サーバー設定
	Port    string // APIサーバーのポート番号
	GinMode string // Ginの実行モード (debug, release, test)

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// ジョブ/キュー設定
	QueueRedisURL       string // Asynq用Redis接続URL
	AuditConcurrency    int    // 同時に実行する監査スロット数（= Chromeインスタンス数）
	ResultExpireMinutes int    // 完了ジョブの保持期間（分）

	// 監査エンジン設定
	NodePath            string // Node.js実行ファイルのパス
	AuditScriptPath     string // Lighthouse起動スクリプトのパス
	AuditTimeoutSeconds int    // 1回の監査に許容する最大秒数

	// 履歴設定
	HistoryLimit int // URLごとに保持する監査履歴の件数

	// インサイト/LLMコラボレーター設定（未設定時は内蔵ルールエンジンを使用）
	InsightAPIURL string // スコアリング/説明サービスのベースURL
	InsightAPIKey string // スコアリング/説明サービスのAPIキー
	InsightModel  string // 使用するモデル名
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	loadEnvFile()

	config := &Config{
		// サーバー設定
		Port:    getEnv("PORT", "8080"),
		GinMode: getEnv("GIN_MODE", "debug"),

		// CORS設定
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),

		// ジョブ/キュー設定
		QueueRedisURL:       getEnv("QUEUE_REDIS_URL", "redis://127.0.0.1:6379/0"),
		AuditConcurrency:    getEnvAsInt("AUDIT_CONCURRENCY", 2),
		ResultExpireMinutes: getEnvAsInt("RESULT_EXPIRE_MINUTES", 60),

		// 監査エンジン設定
		NodePath:            getEnv("NODE_PATH", "node"),
		AuditScriptPath:     getEnv("AUDIT_SCRIPT_PATH", "scripts/runaudit.js"),
		AuditTimeoutSeconds: getEnvAsInt("AUDIT_TIMEOUT_SECONDS", 120),

		// 履歴設定
		HistoryLimit: getEnvAsInt("HISTORY_LIMIT", 20),

		// コラボレーター設定
		InsightAPIURL: getEnv("INSIGHT_API_URL", ""),
		InsightAPIKey: getEnv("INSIGHT_API_KEY", ""),
		InsightModel:  getEnv("INSIGHT_MODEL", ""),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	if c.AuditConcurrency < 1 {
		return fmt.Errorf("AUDIT_CONCURRENCY must be at least 1 (got %d)", c.AuditConcurrency)
	}
	if c.AuditTimeoutSeconds < 1 {
		return fmt.Errorf("AUDIT_TIMEOUT_SECONDS must be at least 1 (got %d)", c.AuditTimeoutSeconds)
	}

	if c.GinMode == "release" {
		if c.QueueRedisURL == "" {
			return fmt.Errorf("QUEUE_REDIS_URL is required in release mode")
		}
		if c.NodePath == "" {
			return fmt.Errorf("NODE_PATH is required in release mode")
		}
		if c.AuditScriptPath == "" {
			return fmt.Errorf("AUDIT_SCRIPT_PATH is required in release mode")
		}
		if c.InsightAPIURL != "" && c.InsightAPIKey == "" {
			return fmt.Errorf("INSIGHT_API_KEY is required when INSIGHT_API_URL is set in release mode")
		}
	}

	return nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
