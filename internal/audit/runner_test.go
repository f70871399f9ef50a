package audit

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestParseEngineOutputSuccess(t *testing.T) {
	metrics, err := parseEngineOutput([]byte(`{"performance_score":42,"lcp":4200,"cls":0.3,"tbt":600}` + "\n"))
	if err != nil {
		t.Fatalf("parseEngineOutput returned error: %v", err)
	}
	if metrics.PerformanceScore != 42 {
		t.Fatalf("PerformanceScore = %v, want 42", metrics.PerformanceScore)
	}
	if metrics.LCP != 4200 {
		t.Fatalf("LCP = %v, want 4200", metrics.LCP)
	}
	if metrics.CLS != 0.3 {
		t.Fatalf("CLS = %v, want 0.3", metrics.CLS)
	}
	if metrics.TBT != 600 {
		t.Fatalf("TBT = %v, want 600", metrics.TBT)
	}
}

func TestParseEngineOutputZeroValues(t *testing.T) {
	// 0 は有効な計測値であり、フィールド欠落と区別されること
	metrics, err := parseEngineOutput([]byte(`{"performance_score":0,"lcp":0,"cls":0,"tbt":0}`))
	if err != nil {
		t.Fatalf("parseEngineOutput returned error: %v", err)
	}
	if metrics.PerformanceScore != 0 || metrics.LCP != 0 {
		t.Fatalf("unexpected metrics: %+v", metrics)
	}
}

func TestParseEngineOutputMissingField(t *testing.T) {
	_, err := parseEngineOutput([]byte(`{"performance_score":42,"lcp":4200,"cls":0.3}`))
	if err == nil {
		t.Fatal("expected error for missing tbt field")
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Code != CodeEngineFailure {
		t.Fatalf("error = %v, want ENGINE_FAILURE", err)
	}
	if !strings.Contains(apiErr.Message, "tbt") {
		t.Fatalf("message should name the missing field: %s", apiErr.Message)
	}
}

func TestParseEngineOutputEmpty(t *testing.T) {
	_, err := parseEngineOutput([]byte("  \n"))
	if err == nil {
		t.Fatal("expected error for empty output")
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Code != CodeEngineFailure {
		t.Fatalf("error = %v, want ENGINE_FAILURE", err)
	}
}

func TestParseEngineOutputMalformed(t *testing.T) {
	_, err := parseEngineOutput([]byte("Chrome failed to start"))
	if err == nil {
		t.Fatal("expected error for non-JSON output")
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Code != CodeEngineFailure {
		t.Fatalf("error = %v, want ENGINE_FAILURE", err)
	}
}

func TestRunnerLaunchFailure(t *testing.T) {
	runner := NewRunner("/nonexistent/bin/node", "runaudit.js", time.Second)

	_, err := runner.Run(context.Background(), "https://example.com")
	if err == nil {
		t.Fatal("expected error for missing engine binary")
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Code != CodeEngineFailure {
		t.Fatalf("error = %v, want ENGINE_FAILURE", err)
	}
}

func TestRunnerMalformedEngineOutput(t *testing.T) {
	// echoはスクリプトパスとURLをそのまま出力するため、JSONとして解析できない
	runner := NewRunner("echo", "runaudit.js", 5*time.Second)

	_, err := runner.Run(context.Background(), "https://example.com")
	if err == nil {
		t.Fatal("expected error for malformed engine output")
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Code != CodeEngineFailure {
		t.Fatalf("error = %v, want ENGINE_FAILURE", err)
	}
}
