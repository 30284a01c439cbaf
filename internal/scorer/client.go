package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"tickmill/internal/logger"

	"github.com/tidwall/gjson"
)

// Client 封装外部打分服务的 REST 接口（/health 与 /predict）。
// 每次交易决策都串行等待这次网络往返，慢的打分服务会拖慢整个回测，
// 这是刻意保留的串行点，不要在这里引入并发。
type Client struct {
	baseURL    string
	httpc      *http.Client
	maxRetries int
	breaker    *breaker
}

type ClientConfig struct {
	BaseURL        string
	TimeoutSeconds int
	MaxRetries     int
	// 连续失败 BreakerThreshold 次后熔断 BreakerCooldownSeconds 秒，
	// 期间 Predict 快速失败。零值取默认，负数关闭熔断。
	BreakerThreshold       int
	BreakerCooldownSeconds int
}

func NewClient(cfg ClientConfig) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "http://127.0.0.1:8000"
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	var br *breaker
	if cfg.BreakerThreshold >= 0 {
		threshold := cfg.BreakerThreshold
		if threshold == 0 {
			threshold = 10
		}
		cooldown := time.Duration(cfg.BreakerCooldownSeconds) * time.Second
		if cooldown <= 0 {
			cooldown = 30 * time.Second
		}
		br = newBreaker(threshold, cooldown)
	}
	return &Client{
		baseURL:    base,
		httpc:      &http.Client{Timeout: timeout},
		maxRetries: retries,
		breaker:    br,
	}
}

// Health 探测打分服务。非 2xx、model_loaded 缺失或为 false 都视为不可用。
func (c *Client) Health(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		logger.Warnf("[scorer] 健康检查失败: %v", err)
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		logger.Warnf("[scorer] 健康检查失败: HTTP %d", resp.StatusCode)
		return false
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false
	}
	loaded := gjson.GetBytes(body, "model_loaded")
	if !loaded.Exists() || !loaded.Bool() {
		logger.Warnf("[scorer] 模型未加载")
		return false
	}
	return true
}

type predictRequest struct {
	Symbol    string    `json:"symbol"`
	Timestamp int64     `json:"timestamp"`
	Features  []float64 `json:"features"`
}

// Predict 请求一次打分。特征顺序是与模型的线上契约，由调用方保证。
func (c *Client) Predict(ctx context.Context, symbol string, timestamp int64, features []float64) Prediction {
	payload, err := json.Marshal(predictRequest{
		Symbol:    symbol,
		Timestamp: timestamp,
		Features:  features,
	})
	if err != nil {
		return failure(fmt.Sprintf("encode request: %v", err))
	}
	if c.breaker != nil && !c.breaker.Allow() {
		return failure("circuit open")
	}
	logger.LogWireRequest("/predict", string(payload))

	var lastErr string
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", bytes.NewReader(payload))
		if err != nil {
			return c.fail(err.Error())
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpc.Do(req)
		if err != nil {
			// 连接失败不重试，回测场景下服务要么在要么不在。
			return c.fail(fmt.Sprintf("connection failed: %v", err))
		}
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return c.fail(fmt.Sprintf("read response: %v", readErr))
		}
		if resp.StatusCode/100 == 2 {
			logger.LogWireResponse("/predict", string(body))
			if c.breaker != nil {
				c.breaker.RecordSuccess()
			}
			return parsePrediction(body)
		}
		lastErr = fmt.Sprintf("HTTP %d", resp.StatusCode)
		if !retryable(resp.StatusCode) || attempt == c.maxRetries {
			break
		}
		logger.Debugf("[scorer] %s，第 %d 次重试", lastErr, attempt+1)
	}
	return c.fail(lastErr)
}

// fail 记录一次熔断器失败并返回失败结果。
func (c *Client) fail(reason string) Prediction {
	if c.breaker != nil {
		c.breaker.RecordFailure()
	}
	return failure(reason)
}

func retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func parsePrediction(body []byte) Prediction {
	if !gjson.ValidBytes(body) {
		return failure("malformed response body")
	}
	res := gjson.ParseBytes(body)
	pred := res.Get("prediction")
	score := res.Get("score")
	version := res.Get("model_version")
	if !pred.Exists() || !score.Exists() || !version.Exists() {
		return failure("response missing required fields")
	}
	var probs []float64
	for _, p := range res.Get("probabilities").Array() {
		probs = append(probs, p.Float())
	}
	return Prediction{
		Label:         Label(pred.Int()),
		Probabilities: probs,
		Score:         score.Float(),
		ModelVersion:  version.String(),
		OK:            true,
	}
}
