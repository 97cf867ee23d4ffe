package output

// Format 是输出格式；auto 在 TTY 上解析为 table，否则为 json。
type Format string

const (
	FormatAuto  Format = "auto"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
	FormatTable Format = "table"
	FormatCSV   Format = "csv"
)

// Formats 返回全部可选格式，用于错误提示与 spec 输出。
func Formats() []Format {
	return []Format{FormatAuto, FormatJSON, FormatYAML, FormatTable, FormatCSV}
}

func IsValid(f Format) bool {
	for _, v := range Formats() {
		if f == v {
			return true
		}
	}
	return false
}
