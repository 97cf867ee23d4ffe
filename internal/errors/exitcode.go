package errors

// ExitCode 是进程退出码（稳定契约）。
type ExitCode int

const (
	ExitOK ExitCode = 0

	// 2: 参数/配置/状态错误
	ExitConfig ExitCode = 2

	// 3: 指定的后端不可用
	ExitBackend ExitCode = 3

	// 4: 主密码错误或 vault 被篡改
	ExitAuth ExitCode = 4

	// 5: vault 格式错误（需要 reset）
	ExitFormat ExitCode = 5

	// 6: 磁盘/权限错误
	ExitIO ExitCode = 6

	// 10: 内部错误
	ExitInternal ExitCode = 10
)

func ExitCodeFor(code Code) ExitCode {
	switch code {
	case CodeCfgNotFound, CodeCfgInvalid, CodeNotConfigured,
		CodeInvalidState, CodePasswordPolicy:
		return ExitConfig
	case CodeBackendUnavailable:
		return ExitBackend
	case CodeAuthFailed:
		return ExitAuth
	case CodeVaultFormat:
		return ExitFormat
	case CodeIO:
		return ExitIO
	case CodeInternal:
		fallthrough
	default:
		return ExitInternal
	}
}
