package audit

// エラーコード一覧。API応答の code フィールドにそのまま使用されます。
const (
	CodeInvalidInput        = "INVALID_INPUT"
	CodeEngineFailure       = "ENGINE_FAILURE"
	CodeCollaboratorFailure = "COLLABORATOR_FAILURE"
	CodeJobNotFound         = "JOB_NOT_FOUND"
	CodeJobNotReady         = "JOB_NOT_READY"
)

// Error はAPI境界まで伝播する監査エラーです。
type Error struct {
	Code    string
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

func newError(code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// NewError はパッケージ外のコンポーネント（コラボレータークライアント等）が
// 監査エラーを生成するためのコンストラクタです。
func NewError(code, message string, cause error) *Error {
	return newError(code, message, cause)
}
