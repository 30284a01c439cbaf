package logger

// 进程级日志门面。回测的各个包直接用 Debugf/Infof 等自由函数，
// 避免把 *slog.Logger 穿过整条流水线；输出目标与级别在 main 里一次性定好。

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

var (
	levelVar slog.LevelVar
	active   atomic.Pointer[slog.Logger]
)

func init() {
	levelVar.Set(slog.LevelInfo)
	active.Store(newLogger(os.Stdout))
}

func newLogger(w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: &levelVar}))
}

// SetOutput 切换日志输出目标，通常是 stdout 与日志文件的 MultiWriter。
func SetOutput(w io.Writer) {
	active.Store(newLogger(w))
}

// SetLevel 解析级别字符串，未知值回落到 info。
func SetLevel(level string) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		levelVar.Set(slog.LevelDebug)
	case "warn", "warning":
		levelVar.Set(slog.LevelWarn)
	case "error":
		levelVar.Set(slog.LevelError)
	default:
		levelVar.Set(slog.LevelInfo)
	}
}

func Debugf(format string, v ...any) {
	active.Load().Debug(fmt.Sprintf(format, v...))
}

func Infof(format string, v ...any) {
	active.Load().Info(fmt.Sprintf(format, v...))
}

func Warnf(format string, v ...any) {
	active.Load().Warn(fmt.Sprintf(format, v...))
}

func Errorf(format string, v ...any) {
	active.Load().Error(fmt.Sprintf(format, v...))
}

// InfoBlock 把多行文本（账户概要等）按行打成 info 日志，保持对齐。
func InfoBlock(block string) {
	block = strings.TrimSpace(block)
	if block == "" {
		return
	}
	for _, line := range strings.Split(block, "\n") {
		Infof("%s", line)
	}
}
