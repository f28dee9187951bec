package okx

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"okxrest/internal/metrics"
	"okxrest/internal/ratelimit"
	"okxrest/internal/tlspolicy"
	"okxrest/internal/transport"
	"okxrest/pkg/core"
)

// Executor signs and sends OKX REST requests with bounded retry.
// It is safe for concurrent use.
type Executor struct {
	config  *core.Config
	creds   core.Credentials
	signer  *Signer
	policy  *tlspolicy.Policy
	http    *transport.Client
	limiter *ratelimit.RateLimiter
	logger  zerolog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger. The level is still capped by Config.LogLevel.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithPolicy shares a TLS policy between executors so that a downgrade seen
// by one applies to all of them.
func WithPolicy(policy *tlspolicy.Policy) Option {
	return func(e *Executor) {
		e.policy = policy
	}
}

// WithRateLimiter shares a rate limiter between executors.
func WithRateLimiter(limiter *ratelimit.RateLimiter) Option {
	return func(e *Executor) {
		e.limiter = limiter
	}
}

// NewExecutor validates config and builds an Executor.
func NewExecutor(config *core.Config, opts ...Option) (*Executor, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	e := &Executor{
		config: config,
		creds:  *config.Credentials,
		signer: NewSigner(config.Credentials.SecretKey),
		logger: zerolog.Nop(),
		now:    time.Now,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}

	if config.LogLevel != "" {
		level, err := zerolog.ParseLevel(config.LogLevel)
		if err != nil {
			level = zerolog.InfoLevel
		}
		if level > e.logger.GetLevel() {
			e.logger = e.logger.Level(level)
		}
	}
	e.logger = e.logger.With().Str("exchange", config.Exchange).Logger()

	if e.policy == nil {
		e.policy = tlspolicy.New(config.VerifyTLS, tlspolicy.WithLogger(e.logger))
	}
	if e.limiter == nil {
		e.limiter = ratelimit.New(config.RateLimitRequests, config.RateLimitPeriod)
		applyEndpointLimits(e.limiter, config)
	}
	e.http = transport.NewClient(config, e.policy, e.logger)

	return e, nil
}

// Policy returns the TLS policy used by the executor.
func (e *Executor) Policy() *tlspolicy.Policy {
	return e.policy
}

// RateLimiter returns the limiter awaited before every attempt.
func (e *Executor) RateLimiter() *ratelimit.RateLimiter {
	return e.limiter
}

// Close releases the underlying HTTP client.
func (e *Executor) Close() error {
	return e.http.Close()
}

// Request sends method endpoint with an optional JSON body using the default
// retry budget and returns the decoded JSON payload. endpoint is relative to
// /api/v5 and may carry a query string. A string or []byte body must already
// be JSON; any other value is marshalled.
func (e *Executor) Request(ctx context.Context, method, endpoint string, body any) (any, error) {
	return e.Do(ctx, core.NewRequest(method, endpoint).SetBody(body))
}

// Do executes req and returns the decoded JSON payload.
func (e *Executor) Do(ctx context.Context, req *core.Request) (any, error) {
	var payload any
	if err := e.DoInto(ctx, req, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// DoInto executes req and decodes the JSON payload into out.
//
// The returned error is nil, a *core.SecurityFailure, a *core.TransportFailure,
// or, for requests that cannot be sent at all, a plain validation error.
func (e *Executor) DoInto(ctx context.Context, req *core.Request, out any) error {
	c, err := e.prepare(req)
	if err != nil {
		return err
	}
	return e.execute(ctx, c, func(body []byte) error {
		return sonic.Unmarshal(body, out)
	})
}

// call is the immutable, pre-serialized form of a request shared by all of
// its attempts.
type call struct {
	method   string
	path     string
	endpoint string
	body     string
	headers  map[string]string
	budget   int
}

func (e *Executor) prepare(req *core.Request) (*call, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}

	method := strings.ToUpper(req.Method)
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch:
	default:
		return nil, fmt.Errorf("unsupported http method: %q", req.Method)
	}

	body, err := encodeBody(req.Body)
	if err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}

	budget := req.RetryBudget
	if budget <= 0 {
		budget = e.config.MaxRetries
	}

	path := req.SignedPath()
	endpoint, _, _ := strings.Cut(path, "?")

	return &call{
		method:   method,
		path:     path,
		endpoint: endpoint,
		body:     body,
		headers:  req.Headers,
		budget:   budget,
	}, nil
}

// encodeBody serializes body once; the same string is signed and sent.
// string and []byte bodies are sent as is and must already be valid JSON.
func encodeBody(body any) (string, error) {
	switch b := body.(type) {
	case nil:
		return "", nil
	case []byte:
		return rawJSON(b)
	case string:
		return rawJSON([]byte(b))
	default:
		data, err := sonic.Marshal(b)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}

func rawJSON(b []byte) (string, error) {
	if len(b) == 0 {
		return "", nil
	}
	if !sonic.Valid(b) {
		return "", errors.New("body is not valid json")
	}
	return string(b), nil
}

func (e *Executor) execute(ctx context.Context, c *call, decode func([]byte) error) error {
	start := time.Now()
	err := e.retry(ctx, c, decode)

	outcome := metrics.OutcomeSuccess
	switch {
	case core.IsSecurityFailure(err):
		outcome = metrics.OutcomeSecurityFailure
	case err != nil:
		outcome = metrics.OutcomeTransportFailure
	}
	metrics.RecordRequest(c.endpoint, outcome, time.Since(start))

	return err
}

func (e *Executor) retry(ctx context.Context, c *call, decode func([]byte) error) error {
	var res attemptResult
	logger := e.logger.With().
		Str("call_id", uuid.NewString()).
		Str("method", c.method).
		Str("path", c.endpoint).
		Logger()

	for attempt := 0; attempt < c.budget; attempt++ {
		res = e.attempt(ctx, c, decode)
		metrics.RecordAttempt(c.endpoint, res.kind.label())
		last := attempt == c.budget-1

		switch res.kind {
		case attemptSucceeded:
			if attempt > 0 {
				logger.Info().
					Int("attempts", attempt+1).
					Msg("request succeeded after retry")
			}
			return nil

		case attemptSecurityFailed:
			if e.policy.Disable(res.err) {
				metrics.RecordTLSDowngrade()
			}
			if last {
				return &core.SecurityFailure{
					Exchange: e.config.Exchange,
					Attempts: attempt + 1,
					Err:      res.err,
				}
			}
			logger.Warn().Err(res.err).
				Int("attempt", attempt+1).
				Msg("tls verification failed, retrying")

		case attemptTransportFailed:
			if last {
				return &core.TransportFailure{
					Exchange:   e.config.Exchange,
					Attempts:   attempt + 1,
					StatusCode: res.status,
					Err:        res.err,
				}
			}

			delay := e.backoff(attempt)
			logger.Warn().Err(res.err).
				Int("attempt", attempt+1).
				Int("status", res.status).
				Dur("delay", delay).
				Msg("request failed, retrying")

			if err := e.sleep(ctx, delay); err != nil {
				return &core.TransportFailure{
					Exchange:   e.config.Exchange,
					Attempts:   attempt + 1,
					StatusCode: res.status,
					Err:        errors.Join(err, res.err),
				}
			}
		}
	}

	// Not reached: budget is at least 1.
	return &core.TransportFailure{
		Exchange:   e.config.Exchange,
		Attempts:   c.budget,
		StatusCode: res.status,
		Err:        fmt.Errorf("retry budget %d exhausted", c.budget),
	}
}

func (e *Executor) attempt(ctx context.Context, c *call, decode func([]byte) error) attemptResult {
	if err := e.limiter.Wait(ctx, c.endpoint); err != nil {
		return transportFailed(0, fmt.Errorf("rate limit wait: %w", err))
	}

	headers := signHeaders(e.signer, e.creds, e.now(), c.method, c.path, c.body)

	req := core.NewRequest(c.method, c.path).
		SetHeaders(c.headers).
		SetHeaders(headers.Map())
	if c.body != "" {
		req.SetBody([]byte(c.body))
	}

	resp, err := e.http.Do(ctx, req)
	if err != nil {
		if tlspolicy.IsVerificationError(err) {
			return securityFailed(err)
		}
		return transportFailed(0, e.connectionError(err))
	}

	if !resp.IsSuccess() {
		return transportFailed(resp.StatusCode, e.statusError(resp))
	}

	if err := decode(resp.Body); err != nil {
		return transportFailed(resp.StatusCode, core.NewExchangeError(
			e.config.Exchange,
			core.ErrorTypeServerError,
			resp.StatusCode,
			fmt.Sprintf("decode response: %v", err),
		).WithCode(core.ErrCodeInvalidBody))
	}

	return succeeded(resp.StatusCode)
}

// connectionError classifies a failure that produced no response as a
// timeout or network ExchangeError, keeping err in the chain.
func (e *Executor) connectionError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, core.ErrClientClosed) {
		return err
	}

	errType, code, msg := core.ErrorTypeNetwork, core.ErrCodeNetwork, "connection failed"
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		errType, code, msg = core.ErrorTypeTimeout, core.ErrCodeTimeout, "request timed out"
	}

	return errors.Join(
		core.NewExchangeError(e.config.Exchange, errType, 0, msg).WithCode(code),
		err,
	)
}

// statusError builds the cause of a non-2xx response, using the OKX error
// body when there is one.
func (e *Executor) statusError(resp *transport.Response) *core.ExchangeError {
	var apiErr apiError
	if err := resp.Unmarshal(&apiErr); err == nil && apiErr.Code != "" {
		return core.NewExchangeErrorWithCode(
			e.config.Exchange,
			mapErrorCode(apiErr.Code, resp.StatusCode),
			resp.StatusCode,
			apiErr.Code,
			apiErr.Msg,
		)
	}

	msg := http.StatusText(resp.StatusCode)
	if len(resp.Body) > 0 {
		msg = truncate(string(resp.Body), 256)
	}
	return core.NewExchangeError(e.config.Exchange, core.ErrorTypeFromStatus(resp.StatusCode), resp.StatusCode, msg)
}

// backoff returns RetryWaitMin * 2^attempt, capped at RetryWaitMax.
func (e *Executor) backoff(attempt int) time.Duration {
	d := e.config.RetryWaitMin
	for i := 0; i < attempt && d < e.config.RetryWaitMax; i++ {
		d *= 2
	}
	return min(d, e.config.RetryWaitMax)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
