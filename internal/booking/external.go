package booking

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/SwiftFleetRent/SwiftFleetRent/internal/common/middleware"
)

// IdentityVerifier 外部实名/证件校验服务。核心只看布尔结果，不解析任何细节。
type IdentityVerifier interface {
	Verified(ctx context.Context, customerRef string) (bool, error)
}

// PaymentProvider 外部支付服务（M-Pesa 码 / 银行卡由它处理）。
// 核心只看“已确认”布尔结果和引用号。
type PaymentProvider interface {
	Confirmed(ctx context.Context, paymentRef string) (bool, error)
}

// HTTPIdentityVerifier 实名校验服务的 HTTP 客户端，经熔断器保护。
type HTTPIdentityVerifier struct {
	baseURL string
	client  *http.Client
	breaker *middleware.CircuitBreaker
}

func NewHTTPIdentityVerifier(baseURL string, timeout time.Duration, breaker *middleware.CircuitBreaker) *HTTPIdentityVerifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if breaker == nil {
		breaker = middleware.NewCircuitBreaker("identity", 5, 30*time.Second)
	}
	return &HTTPIdentityVerifier{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		breaker: breaker,
	}
}

func (v *HTTPIdentityVerifier) Verified(ctx context.Context, customerRef string) (bool, error) {
	var out struct {
		Verified bool `json:"verified"`
	}
	u := fmt.Sprintf("%s/v1/verifications/%s", v.baseURL, url.PathEscape(customerRef))
	if err := v.breaker.Call(ctx, func() error {
		return getJSON(ctx, v.client, u, &out)
	}); err != nil {
		return false, fmt.Errorf("identity service: %w", err)
	}
	return out.Verified, nil
}

// HTTPPaymentProvider 支付状态查询的 HTTP 客户端，经熔断器保护。
type HTTPPaymentProvider struct {
	baseURL string
	client  *http.Client
	breaker *middleware.CircuitBreaker
}

func NewHTTPPaymentProvider(baseURL string, timeout time.Duration, breaker *middleware.CircuitBreaker) *HTTPPaymentProvider {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if breaker == nil {
		breaker = middleware.NewCircuitBreaker("payment", 5, 30*time.Second)
	}
	return &HTTPPaymentProvider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		breaker: breaker,
	}
}

func (p *HTTPPaymentProvider) Confirmed(ctx context.Context, paymentRef string) (bool, error) {
	var out struct {
		Confirmed bool `json:"confirmed"`
	}
	u := fmt.Sprintf("%s/v1/payments/%s", p.baseURL, url.PathEscape(paymentRef))
	if err := p.breaker.Call(ctx, func() error {
		return getJSON(ctx, p.client, u, &out)
	}); err != nil {
		return false, fmt.Errorf("payment service: %w", err)
	}
	return out.Confirmed, nil
}

func getJSON(ctx context.Context, client *http.Client, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
