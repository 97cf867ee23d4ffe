package errors

// Code 是稳定错误码（字符串），供 UI 层与程序判断。
// 只增不改、不复用旧含义。
type Code string

const (
	// Config / args
	CodeCfgNotFound Code = "TUME_CFG_NOT_FOUND"
	CodeCfgInvalid  Code = "TUME_CFG_INVALID"

	// Backend
	CodeBackendUnavailable Code = "TUME_BACKEND_UNAVAILABLE"

	// Vault
	CodeAuthFailed  Code = "TUME_AUTH_FAILED"
	CodeVaultFormat Code = "TUME_VAULT_FORMAT"
	CodeIO          Code = "TUME_IO"

	// Credential store 状态机
	CodeNotConfigured  Code = "TUME_NOT_CONFIGURED"
	CodeInvalidState   Code = "TUME_INVALID_STATE"
	CodePasswordPolicy Code = "TUME_PASSWORD_POLICY"

	// Internal
	CodeInternal Code = "TUME_INTERNAL"
)

func AllCodes() []Code {
	return []Code{
		CodeCfgNotFound,
		CodeCfgInvalid,
		CodeBackendUnavailable,
		CodeAuthFailed,
		CodeVaultFormat,
		CodeIO,
		CodeNotConfigured,
		CodeInvalidState,
		CodePasswordPolicy,
		CodeInternal,
	}
}

// Retryable 报告该错误码是否允许用户直接重试（例如重新输入主密码）。
func Retryable(code Code) bool {
	return code == CodeAuthFailed || code == CodePasswordPolicy
}

// ResetRequired 报告该错误码是否意味着现有 vault 无法恢复，需要用户显式 reset。
func ResetRequired(code Code) bool {
	return code == CodeVaultFormat
}
