package audit

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
)

// Scheduler は監査ジョブを1件登録し、割り当てたジョブIDを返します。
type Scheduler interface {
	Schedule(ctx context.Context, targetURL string) (string, error)
}

type submitRequest struct {
	URL string `json:"url"`
}

// SubmitHandler は POST /api/audits のハンドラーを返します。
// URLの検証に通った場合のみジョブを登録し、即座にジョブIDを返します。
func SubmitHandler(svc Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req submitRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    CodeInvalidInput,
				"message": "JSON形式で url を指定してください。",
			})
			return
		}

		if err := ValidateTargetURL(req.URL); err != nil {
			RespondWithError(c, err)
			return
		}

		jobID, err := svc.Schedule(c.Request.Context(), req.URL)
		if err != nil {
			RespondWithError(c, err)
			return
		}

		c.JSON(http.StatusAccepted, gin.H{"job_id": jobID})
	}
}

// ValidateTargetURL は監査対象URLが絶対URLとして整形式であることを検証します。
func ValidateTargetURL(raw string) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return newError(CodeInvalidInput, "監査対象のURLを指定してください。", nil)
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return newError(CodeInvalidInput, "URLの形式が正しくありません。", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return newError(CodeInvalidInput, "URLは http または https で始まる絶対URLで指定してください。", nil)
	}
	if parsed.Host == "" {
		return newError(CodeInvalidInput, "URLにホスト名が含まれていません。", nil)
	}

	return nil
}

// RespondWithError はエラー種別をHTTPステータスへ変換して応答します。
func RespondWithError(c *gin.Context, err error) {
	var apiErr *Error
	switch {
	case errors.As(err, &apiErr):
		c.JSON(statusForCode(apiErr.Code), gin.H{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		})
	case errors.Is(err, context.Canceled):
		c.JSON(http.StatusRequestTimeout, gin.H{
			"code":    "REQUEST_CANCELED",
			"message": "リクエストがキャンセルされました。",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "サーバー内部でエラーが発生しました。",
		})
	}
}

func statusForCode(code string) int {
	switch code {
	case CodeInvalidInput:
		return http.StatusBadRequest
	case CodeJobNotFound:
		return http.StatusNotFound
	case CodeJobNotReady:
		return http.StatusConflict
	case CodeCollaboratorFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
