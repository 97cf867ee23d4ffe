package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/tume-mail/tume/internal/errors"
)

type Writer struct {
	Out io.Writer
	Err io.Writer
}

func New(out, err io.Writer) Writer {
	return Writer{Out: out, Err: err}
}

func (w Writer) WriteOK(format Format, data any) error {
	return w.write(format, Envelope{OK: true, SchemaVersion: SchemaVersion, Data: data})
}

func (w Writer) WriteError(format Format, xe *errors.XError) error {
	errObj := &ErrorObject{Code: xe.Code, Message: xe.Message, Details: xe.Details}
	return w.write(format, Envelope{OK: false, SchemaVersion: SchemaVersion, Error: errObj})
}

func (w Writer) write(format Format, env Envelope) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w.Out)
		enc.SetEscapeHTML(false)
		return enc.Encode(env)
	case FormatYAML:
		b, err := yaml.Marshal(env)
		if err != nil {
			return err
		}
		_, err = w.Out.Write(b)
		if err != nil {
			return err
		}
		if len(b) == 0 || b[len(b)-1] != '\n' {
			_, _ = w.Out.Write([]byte("\n"))
		}
		return nil
	case FormatTable:
		return writeTable(w.Out, env)
	case FormatCSV:
		return writeCSV(w.Out, env)
	default:
		return errors.New(errors.CodeCfgInvalid, "invalid output format", map[string]any{"format": string(format)})
	}
}

// table/csv 面向人阅读，只输出 data 本身，不输出 ok/schema_version。
func writeTable(out io.Writer, env Envelope) error {
	tw := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
	if !env.OK {
		_, _ = fmt.Fprintf(tw, "ok\t%v\n", false)
		if env.Error != nil {
			_, _ = fmt.Fprintf(tw, "error.code\t%s\n", env.Error.Code)
			_, _ = fmt.Fprintf(tw, "error.message\t%s\n", env.Error.Message)
			for _, kv := range flattenAny(env.Error.Details, "error.details") {
				_, _ = fmt.Fprintf(tw, "%s\t%s\n", kv[0], kv[1])
			}
		}
		return tw.Flush()
	}

	if tf, ok := env.Data.(TableFormatter); ok {
		if cols, rows, ok := tf.ToTableData(); ok {
			header := make([]string, len(cols))
			sep := make([]string, len(cols))
			for i, c := range cols {
				header[i] = strings.ToUpper(c)
				sep[i] = strings.Repeat("-", len(c))
			}
			_, _ = fmt.Fprintln(tw, strings.Join(header, "\t"))
			_, _ = fmt.Fprintln(tw, strings.Join(sep, "\t"))
			for _, r := range rows {
				cells := make([]string, len(cols))
				for i, c := range cols {
					cells[i] = formatCellValue(r[c], "")
				}
				_, _ = fmt.Fprintln(tw, strings.Join(cells, "\t"))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			_, err := fmt.Fprintf(out, "(%d rows)\n", len(rows))
			return err
		}
	}

	for _, kv := range flattenAny(env.Data, "") {
		_, _ = fmt.Fprintf(tw, "%s\t%s\n", kv[0], kv[1])
	}
	return tw.Flush()
}

func writeCSV(out io.Writer, env Envelope) error {
	cw := csv.NewWriter(out)
	defer cw.Flush()
	if !env.OK {
		_ = cw.Write([]string{"ok", "false"})
		if env.Error != nil {
			_ = cw.Write([]string{"error.code", string(env.Error.Code)})
			_ = cw.Write([]string{"error.message", env.Error.Message})
		}
		return cw.Error()
	}
	if tf, ok := env.Data.(TableFormatter); ok {
		if cols, rows, ok := tf.ToTableData(); ok {
			_ = cw.Write(cols)
			for _, r := range rows {
				cells := make([]string, len(cols))
				for i, c := range cols {
					cells[i] = formatCellValue(r[c], "")
				}
				_ = cw.Write(cells)
			}
			return cw.Error()
		}
	}
	for _, kv := range flattenAny(env.Data, "") {
		_ = cw.Write([]string{kv[0], kv[1]})
	}
	return cw.Error()
}

// flattenAny 把任意数据展开成有序的 key/value 行：嵌套 mapping 使用点分 key，
// 序列以 flow 风格内联。借助 yaml.Node 保留结构体字段顺序。
func flattenAny(v any, prefix string) [][2]string {
	if v == nil {
		return nil
	}
	var n yaml.Node
	if err := n.Encode(v); err != nil {
		return [][2]string{{keyOr(prefix, "data"), fmt.Sprint(v)}}
	}
	var out [][2]string
	flattenNode(&n, prefix, &out)
	return out
}

func flattenNode(n *yaml.Node, prefix string, out *[][2]string) {
	switch n.Kind {
	case yaml.DocumentNode:
		for _, c := range n.Content {
			flattenNode(c, prefix, out)
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i].Value
			if prefix != "" {
				key = prefix + "." + key
			}
			flattenNode(n.Content[i+1], key, out)
		}
	case yaml.SequenceNode:
		n.Style = yaml.FlowStyle
		b, err := yaml.Marshal(n)
		if err != nil {
			return
		}
		*out = append(*out, [2]string{keyOr(prefix, "data"), strings.TrimSpace(string(b))})
	default:
		*out = append(*out, [2]string{keyOr(prefix, "data"), n.Value})
	}
}

func keyOr(k, def string) string {
	if k == "" {
		return def
	}
	return k
}

func formatCellValue(v any, null string) string {
	switch x := v.(type) {
	case nil:
		return null
	case string:
		return x
	case float64:
		if x == float64(int64(x)) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}
