package logger

import (
	"io"
	"log"
	"strings"
	"sync"
)

// 打分服务的请求/响应原文落盘，默认关闭，排查特征对齐问题时打开。

var (
	wireMu   sync.Mutex
	wireLog  *log.Logger
	wireDump bool
)

func SetWireWriter(w io.Writer) {
	wireMu.Lock()
	defer wireMu.Unlock()
	if w == nil {
		wireLog = nil
		return
	}
	wireLog = log.New(w, "", log.LstdFlags)
}

func EnableWireDump(enabled bool) {
	wireMu.Lock()
	wireDump = enabled
	wireMu.Unlock()
}

func logWire(kind, endpoint, body string) {
	wireMu.Lock()
	logger := wireLog
	enabled := wireDump
	wireMu.Unlock()
	if logger == nil || !enabled {
		return
	}
	var b strings.Builder
	b.WriteString("[scorer][")
	b.WriteString(kind)
	b.WriteString("][")
	b.WriteString(endpoint)
	b.WriteString("]\n")
	b.WriteString(body)
	if !strings.HasSuffix(body, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("=====\n")
	logger.Print(b.String())
}

func LogWireRequest(endpoint, body string) {
	text := strings.TrimSpace(body)
	if text == "" {
		return
	}
	logWire("request", endpoint, text)
}

func LogWireResponse(endpoint, body string) {
	text := strings.TrimSpace(body)
	if text == "" {
		return
	}
	logWire("response", endpoint, text)
}
