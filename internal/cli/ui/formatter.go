// Package ui 命令行输出与交互
package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/pterm/pterm"
)

// Format 输出格式
type Format string

const (
	// FormatJSON 紧凑JSON（默认，便于脚本处理）
	FormatJSON Format = "json"
	// FormatPretty 美化JSON
	FormatPretty Format = "pretty"
	// FormatTable 表格
	FormatTable Format = "table"
)

// ParseFormat 解析输出格式
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatJSON, FormatPretty, FormatTable:
		return f, nil
	}
	return "", fmt.Errorf("未知输出格式: %q（支持 json|pretty|table）", s)
}

// Formatter 输出格式化器
//
// 数据写入 writer，提示信息写入 logWriter，避免污染 JSON 输出。
type Formatter struct {
	format    Format
	writer    io.Writer
	logWriter io.Writer
	silent    bool
}

// NewFormatter 创建格式化器
func NewFormatter(format Format, writer io.Writer) *Formatter {
	if writer == nil {
		writer = os.Stdout
	}
	return &Formatter{
		format:    format,
		writer:    writer,
		logWriter: os.Stderr,
	}
}

// SetLogWriter 设置提示信息输出目标
func (f *Formatter) SetLogWriter(w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	f.logWriter = w
}

// SetSilent 静默模式下只输出数据
func (f *Formatter) SetSilent(silent bool) {
	f.silent = silent
}

// Format 当前输出格式
func (f *Formatter) Format() Format {
	return f.format
}

// Print 按格式输出数据，table 格式下无法表格化的值回退为美化JSON
func (f *Formatter) Print(data interface{}) error {
	pretty := f.format != FormatJSON
	var (
		out []byte
		err error
	)
	if pretty {
		out, err = json.MarshalIndent(data, "", "  ")
	} else {
		out, err = json.Marshal(data)
	}
	if err != nil {
		return fmt.Errorf("序列化输出失败: %w", err)
	}
	_, err = fmt.Fprintln(f.writer, string(out))
	return err
}

// PrintTable table 格式下渲染表格，其他格式输出 data
func (f *Formatter) PrintTable(headers []string, rows [][]string, data interface{}) error {
	if f.format != FormatTable {
		return f.Print(data)
	}
	tableData := pterm.TableData{headers}
	tableData = append(tableData, rows...)
	s, err := pterm.DefaultTable.WithHasHeader(true).WithData(tableData).Srender()
	if err != nil {
		return fmt.Errorf("渲染表格失败: %w", err)
	}
	_, err = fmt.Fprintln(f.writer, s)
	return err
}

// PrintKV table 格式下渲染两列表格，其他格式输出 data
func (f *Formatter) PrintKV(pairs [][2]string, data interface{}) error {
	if f.format != FormatTable {
		return f.Print(data)
	}
	tableData := make(pterm.TableData, 0, len(pairs))
	for _, p := range pairs {
		tableData = append(tableData, []string{p[0], p[1]})
	}
	s, err := pterm.DefaultTable.WithData(tableData).Srender()
	if err != nil {
		return fmt.Errorf("渲染表格失败: %w", err)
	}
	_, err = fmt.Fprintln(f.writer, s)
	return err
}

// PrintSuccess 成功提示
func (f *Formatter) PrintSuccess(msg string) {
	f.log(pterm.Success.Sprint(msg))
}

// PrintInfo 普通提示
func (f *Formatter) PrintInfo(msg string) {
	f.log(pterm.Info.Sprint(msg))
}

// PrintWarning 警告提示
func (f *Formatter) PrintWarning(msg string) {
	f.log(pterm.Warning.Sprint(msg))
}

// PrintError 错误提示，静默模式下仍输出
func (f *Formatter) PrintError(err error) {
	fmt.Fprintln(f.logWriter, pterm.Error.Sprint(err.Error()))
}

func (f *Formatter) log(line string) {
	if f.silent {
		return
	}
	fmt.Fprintln(f.logWriter, line)
}
