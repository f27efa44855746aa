// Package client talks to the SentinAI analysis service.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/sentinai-cli/api/schemas"
	"github.com/xkilldash9x/sentinai-cli/internal/config"
	"github.com/xkilldash9x/sentinai-cli/internal/network"
	"github.com/xkilldash9x/sentinai-cli/internal/session"
)

// Service paths.
const (
	PathAnalyze        = "/api/analyze"
	PathHistory        = "/api/analyze/history"
	PathMetrics        = "/api/dashboard/metrics"
	PathGoogleLogin    = "/auth/google"
	PathMe             = "/auth/me"
	PathLogout         = "/auth/logout"
	PathEthicsCheck    = "/api/ethics/check"
	PathEthicsPolicies = "/api/ethics/policies"

	HeaderRequestID = "X-Request-ID"
)

// maxErrorBody caps how much of a failed response is read for its message.
const maxErrorBody = 64 << 10

// Client is safe for concurrent use.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
	userAgent  string
	session    *session.Session
	logger     *zap.Logger
	now        func() time.Time
	newBackOff func() backoff.BackOff
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the transport built from the api config.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithSession attaches the bearer token of s to every request.
func WithSession(s *session.Session) Option {
	return func(c *Client) { c.session = s }
}

// WithLogger sets the parent logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithClock overrides the time source used for session expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithBackOff overrides the retry schedule for idempotent requests.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(c *Client) { c.newBackOff = fn }
}

// New builds a client for the service described by cfg.
func New(cfg config.APIConfig, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid api base url %q", cfg.BaseURL)
	}

	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	c := &Client{
		baseURL:    base,
		limiter:    rate.NewLimiter(limit, burst),
		maxRetries: cfg.MaxRetries,
		userAgent:  cfg.UserAgent,
		logger:     zap.NewNop(),
		now:        time.Now,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 10 * time.Second
			b.MaxElapsedTime = 0
			return b
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = network.NewClient(network.ClientConfigFromAPI(cfg)).Client
	}
	c.logger = c.logger.Named("client")
	return c, nil
}

// Session returns the attached session, or nil.
func (c *Client) Session() *session.Session { return c.session }

// Analyze submits content for analysis. Content is trimmed first and blank
// content is rejected without contacting the service.
func (c *Client) Analyze(ctx context.Context, req schemas.AnalysisRequest) (*schemas.AnalysisResult, error) {
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var result schemas.AnalysisResult
	if err := c.do(ctx, http.MethodPost, PathAnalyze, req, &result, MsgAnalyzeFailed); err != nil {
		return nil, err
	}
	return &result, nil
}

// History returns every stored analysis result for the current user.
func (c *Client) History(ctx context.Context) ([]schemas.AnalysisResult, error) {
	var history []schemas.AnalysisResult
	if err := c.do(ctx, http.MethodGet, PathHistory, nil, &history, MsgHistoryFailed); err != nil {
		return nil, err
	}
	if history == nil {
		history = []schemas.AnalysisResult{}
	}
	return history, nil
}

// DashboardMetrics returns the server-side aggregate.
func (c *Client) DashboardMetrics(ctx context.Context) (*schemas.DashboardMetrics, error) {
	var metrics schemas.DashboardMetrics
	if err := c.do(ctx, http.MethodGet, PathMetrics, nil, &metrics, MsgMetricsFailed); err != nil {
		return nil, err
	}
	metrics.Normalize()
	return &metrics, nil
}

// GoogleLogin exchanges a Google ID token for a service session token.
func (c *Client) GoogleLogin(ctx context.Context, idToken string) (*schemas.AuthResponse, error) {
	idToken = strings.TrimSpace(idToken)
	if idToken == "" {
		return nil, errors.New("a Google ID token is required")
	}
	var resp schemas.AuthResponse
	if err := c.do(ctx, http.MethodPost, PathGoogleLogin, schemas.GoogleLoginRequest{Token: idToken}, &resp, MsgLoginFailed); err != nil {
		return nil, err
	}
	if resp.Token == "" {
		return nil, errors.New("login response did not include a token")
	}
	return &resp, nil
}

// Me returns the user the attached session belongs to.
func (c *Client) Me(ctx context.Context) (*schemas.User, error) {
	var user schemas.User
	if err := c.do(ctx, http.MethodGet, PathMe, nil, &user, MsgUserFailed); err != nil {
		return nil, err
	}
	return &user, nil
}

// Logout ends the session on the server.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, PathLogout, nil, nil, MsgLogoutFailed)
}

// EthicsCheck asks the service whether the intended use is acceptable.
func (c *Client) EthicsCheck(ctx context.Context, check schemas.ComplianceCheck) (*schemas.ComplianceVerdict, error) {
	var verdict schemas.ComplianceVerdict
	if err := c.do(ctx, http.MethodPost, PathEthicsCheck, check, &verdict, MsgComplianceFailed); err != nil {
		return nil, err
	}
	return &verdict, nil
}

// EthicsPolicies lists the published ethical-use policies.
func (c *Client) EthicsPolicies(ctx context.Context) ([]schemas.EthicalNotice, error) {
	var notices []schemas.EthicalNotice
	if err := c.do(ctx, http.MethodGet, PathEthicsPolicies, nil, &notices, MsgPoliciesFailed); err != nil {
		return nil, err
	}
	if notices == nil {
		notices = []schemas.EthicalNotice{}
	}
	return notices, nil
}

// do sends one logical request. GETs are retried on transport errors, 429 and
// 5xx up to maxRetries times; other methods are attempted once.
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}, fallback string) error {
	if c.session != nil {
		if err := c.session.Check(c.now()); err != nil {
			return err
		}
	}

	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("failed to marshal request payload: %w", err)
		}
	}

	retries := 0
	if method == http.MethodGet && c.maxRetries > 0 {
		retries = c.maxRetries
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), uint64(retries)), ctx)

	tries := 0
	operation := func() error {
		tries++
		err := c.attempt(ctx, method, path, payload, out, fallback)
		if err == nil {
			return nil
		}
		if !retryable(ctx, err) {
			var permanent *backoff.PermanentError
			if errors.As(err, &permanent) {
				return err
			}
			return backoff.Permanent(err)
		}
		if tries <= retries {
			c.logger.Warn("Request to analysis service failed, retrying",
				zap.String("method", method),
				zap.String("path", path),
				zap.Int("attempt", tries),
				zap.Error(err))
		}
		return err
	}

	return backoff.Retry(operation, policy)
}

func (c *Client) attempt(ctx context.Context, method, path string, payload []byte, out interface{}, fallback string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), body)
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set(HeaderRequestID, requestID)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.session != nil && c.session.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.session.Token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("Analysis service responded",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.String("request_id", requestID),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(resp, requestID, fallback)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return backoff.Permanent(fmt.Errorf("failed to decode %s response: %w", path, err))
	}
	return nil
}

func (c *Client) endpoint(path string) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String()
}

// newAPIError reads the service's message field, falling back when the body
// is empty or not JSON.
func newAPIError(resp *http.Response, requestID, fallback string) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: fallback, RequestID: requestID}
	if id := resp.Header.Get(HeaderRequestID); id != "" {
		apiErr.RequestID = id
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(raw) == 0 {
		return apiErr
	}
	var body errorBody
	if json.Unmarshal(raw, &body) != nil {
		return apiErr
	}
	switch {
	case strings.TrimSpace(body.Message) != "":
		apiErr.Message = strings.TrimSpace(body.Message)
	case strings.TrimSpace(body.Error) != "":
		apiErr.Message = strings.TrimSpace(body.Error)
	}
	return apiErr
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return true
}
