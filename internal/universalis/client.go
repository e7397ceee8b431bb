package universalis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL   = "https://universalis.app"
	DefaultUserAgent = "utrading-price-insight"
	defaultTimeout   = 10 * time.Second
	maxBodySize      = 16 << 20
)

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=universalis -destination=mock_http_client_test.go -source=client.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Worlds 服务器元数据查询，用于把响应里的 worldId 转成名称
type Worlds interface {
	Describe(id uint32) (name, datacenter, region string, ok bool)
}

// API 上游接口形态
type API string

const (
	APIAggregated API = "aggregated"
	APILegacy     API = "legacy"
)

// Client Universalis API 客户端
type Client struct {
	baseURL    string
	api        API
	userAgent  string
	httpClient HTTPClient
	limiter    *rate.Limiter
	worlds     Worlds
	now        func() time.Time
}

// Option 客户端配置项
type Option func(*Client)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(httpClient HTTPClient) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithAPI 选择 aggregated 或 legacy 接口
func WithAPI(api API) Option {
	return func(c *Client) {
		if api == APILegacy {
			c.api = APILegacy
		} else {
			c.api = APIAggregated
		}
	}
}

// WithRateLimit 限制请求速率，rps <= 0 表示不限速
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithWorlds 设置服务器名称来源
func WithWorlds(worlds Worlds) Option {
	return func(c *Client) {
		c.worlds = worlds
	}
}

// NewHTTPClient 默认 HTTP 客户端，forceIPv4 时只走 IPv4 拨号
func NewHTTPClient(timeout time.Duration, forceIPv4 bool) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	dialer := &net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		if forceIPv4 && strings.HasPrefix(network, "tcp") {
			network = "tcp4"
		}
		return dialer.DialContext(ctx, network, addr)
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

// NewClient 创建 Universalis 客户端
func NewClient(options ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		api:        APIAggregated,
		userAgent:  DefaultUserAgent,
		httpClient: NewHTTPClient(defaultTimeout, false),
		limiter:    rate.NewLimiter(rate.Inf, 1),
		worlds:     noWorlds{},
		now:        time.Now,
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// API 当前使用的接口形态
func (c *Client) API() API {
	return c.api
}

// get 发起 GET 请求，返回响应体
func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("performing request: %w", err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		break

	case http.StatusNotFound:
		return nil, &StatusError{Code: res.StatusCode, Reason: "not found"}

	case http.StatusTooManyRequests:
		return nil, &StatusError{Code: res.StatusCode, Reason: "rate limited"}

	default:
		return nil, &StatusError{Code: res.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodySize))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("reading body: %w", err)
	}
	return body, nil
}

// ErrStatus 非 200 响应
var ErrStatus = errors.New("universalis: unexpected status")

// ErrMalformed 响应无法解析
var ErrMalformed = errors.New("universalis: malformed response")

// StatusError 带状态码的错误，errors.Is(err, ErrStatus) 为 true
type StatusError struct {
	Code   int
	Reason string
}

func (e *StatusError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("universalis: status %d (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("universalis: status %d", e.Code)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrStatus
}

type noWorlds struct{}

func (noWorlds) Describe(uint32) (string, string, string, bool) { return "", "", "", false }
