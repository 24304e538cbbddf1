package risk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// ModelAssessment — ответ вероятностного скорера (контракт коллаборатора).
type ModelAssessment struct {
	RiskScore float64  `json:"risk_score"`
	RiskLevel string   `json:"risk_level"`
	Threats   []string `json:"threats"`
	Reasoning string   `json:"reasoning"`
}

// ModelProvider — то, что нужно гибридному скореру от модели.
// Ошибка здесь — деградация, а не отказ пайплайна.
type ModelProvider interface {
	Assess(ctx context.Context, tool string, arguments json.RawMessage) (*ModelAssessment, error)
}

// ModelClient ходит в inference-сервер по HTTP.
// Обернут в предохранитель и лимитер: упавшая или захлебнувшаяся модель
// не должна съедать латентность каждого интента на полный таймаут.
type ModelClient struct {
	url     string
	http    *http.Client
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

func NewModelClient(url string, timeout time.Duration) *ModelClient {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "risk-model",
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     15 * time.Second, // Время, через которое CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})

	return &ModelClient{
		url:     url,
		http:    &http.Client{Timeout: timeout},
		cb:      cb,
		limiter: rate.NewLimiter(rate.Limit(200), 50),
	}
}

func (c *ModelClient) Assess(ctx context.Context, tool string, arguments json.RawMessage) (*ModelAssessment, error) {
	// Allow вместо Wait: ждать квоту на Hot Path нельзя, лучше сразу деградировать
	if !c.limiter.Allow() {
		return nil, fmt.Errorf("risk model: rate limit exceeded")
	}

	res, err := c.cb.Execute(func() (interface{}, error) {
		return c.call(ctx, tool, arguments)
	})
	if err != nil {
		return nil, err
	}
	return res.(*ModelAssessment), nil
}

func (c *ModelClient) call(ctx context.Context, tool string, arguments json.RawMessage) (*ModelAssessment, error) {
	body, err := json.Marshal(map[string]interface{}{
		"tool":      tool,
		"arguments": arguments,
	})
	if err != nil {
		return nil, fmt.Errorf("risk model: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("risk model: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("risk model: call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("risk model: unexpected status %d", resp.StatusCode)
	}

	var out ModelAssessment
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("risk model: decode response: %w", err)
	}

	// Модель могла вернуть мусор — зажимаем в [0,1]
	if out.RiskScore < 0 {
		out.RiskScore = 0
	}
	if out.RiskScore > 1 {
		out.RiskScore = 1
	}
	return &out, nil
}
