package okx

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"okxrest/internal/metrics"
	"okxrest/internal/ratelimit"
	"okxrest/internal/tlspolicy"
	"okxrest/pkg/core"
)

const (
	testAPIKey     = "test-api-key"
	testSecret     = "test-secret-key"
	testPassphrase = "test-passphrase"

	serverTimeBody = `{"code":"0","msg":"","data":[{"ts":"1690000000000"}]}`
)

func testConfig(baseURL string) *core.Config {
	return core.DefaultConfig().
		WithCredentials(&core.Credentials{
			APIKey:     testAPIKey,
			SecretKey:  testSecret,
			Passphrase: testPassphrase,
		}).
		WithBaseURL(baseURL).
		WithRateLimit(1000, time.Second)
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return nil
}

func (s *sleepRecorder) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

func newTestExecutor(t *testing.T, config *core.Config, opts ...Option) (*Executor, *sleepRecorder) {
	t.Helper()

	exec, err := NewExecutor(config, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = exec.Close() })

	rec := &sleepRecorder{}
	exec.sleep = rec.sleep
	return exec, rec
}

// signatureValid recomputes OK-ACCESS-SIGN from the bytes the server received.
func signatureValid(r *http.Request, body []byte) bool {
	ts := r.Header.Get(HeaderTimestamp)
	want := NewSigner(testSecret).Sign(ts, r.Method, r.RequestURI, string(body))
	return r.Header.Get(HeaderSign) == want
}

func TestNewExecutor(t *testing.T) {
	t.Run("nil_config", func(t *testing.T) {
		exec, err := NewExecutor(nil)
		require.Error(t, err)
		assert.Nil(t, exec)
	})

	t.Run("missing_credentials", func(t *testing.T) {
		exec, err := NewExecutor(core.DefaultConfig())
		require.Error(t, err)
		assert.Nil(t, exec)
	})

	t.Run("valid", func(t *testing.T) {
		exec, _ := newTestExecutor(t, testConfig("https://www.okx.com"))
		require.NotNil(t, exec.Policy())
		assert.True(t, exec.Policy().VerifyEnabled())
	})

	t.Run("verification_off_from_start", func(t *testing.T) {
		exec, _ := newTestExecutor(t, testConfig("https://www.okx.com").WithVerifyTLS(false))
		assert.False(t, exec.Policy().VerifyEnabled())
	})
}

func TestExecutor_Success(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)

		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v5/public/time", r.RequestURI)
		assert.Equal(t, testAPIKey, r.Header.Get(HeaderAccessKey))
		assert.Equal(t, testPassphrase, r.Header.Get(HeaderPassphrase))
		assert.Equal(t, "application/json", r.Header.Get(HeaderContentType))
		assert.Regexp(t, timestampPattern, r.Header.Get(HeaderTimestamp))
		assert.True(t, signatureValid(r, nil), "signature mismatch")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(serverTimeBody))
	}))
	defer server.Close()

	exec, rec := newTestExecutor(t, testConfig(server.URL))

	payload, err := exec.Request(context.Background(), "get", "/public/time", nil)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"code": "0",
		"msg":  "",
		"data": []any{map[string]any{"ts": "1690000000000"}},
	}, payload)
	assert.Equal(t, int32(1), hits.Load())
	assert.Empty(t, rec.recorded())
}

func TestExecutor_PostBodySignedAsSent(t *testing.T) {
	var received []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		received = body

		assert.Equal(t, http.MethodPost, r.Method)
		assert.True(t, signatureValid(r, body), "signature mismatch")

		_, _ = w.Write([]byte(`{"code":"0","msg":"","data":[{"ordId":"1"}]}`))
	}))
	defer server.Close()

	exec, _ := newTestExecutor(t, testConfig(server.URL))

	order := map[string]string{"instId": "BTC-USDT", "sz": "1"}
	_, err := exec.Request(context.Background(), http.MethodPost, "/trade/order", order)
	require.NoError(t, err)

	assert.JSONEq(t, `{"instId":"BTC-USDT","sz":"1"}`, string(received))
}

func TestExecutor_QuerySignedAsSent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v5/account/balance?ccy=BTC,USDT", r.RequestURI)
		assert.True(t, signatureValid(r, nil), "signature mismatch")
		_, _ = w.Write([]byte(`{"code":"0","msg":"","data":[]}`))
	}))
	defer server.Close()

	exec, _ := newTestExecutor(t, testConfig(server.URL))

	req := core.NewRequest(http.MethodGet, "/account/balance").SetQuery("ccy", "BTC,USDT")
	_, err := exec.Do(context.Background(), req)
	require.NoError(t, err)
}

func TestExecutor_RetryExhaustion(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("upstream unavailable"))
	}))
	defer server.Close()

	exec, rec := newTestExecutor(t, testConfig(server.URL))

	payload, err := exec.Request(context.Background(), http.MethodGet, "/public/time", nil)
	require.Error(t, err)
	assert.Nil(t, payload)

	var tf *core.TransportFailure
	require.ErrorAs(t, err, &tf)
	assert.Equal(t, 3, tf.Attempts)
	assert.Equal(t, http.StatusInternalServerError, tf.StatusCode)
	assert.False(t, core.IsSecurityFailure(err))

	var exErr *core.ExchangeError
	require.ErrorAs(t, err, &exErr)
	assert.Equal(t, core.ErrorTypeServerError, exErr.Type)
	assert.Equal(t, "upstream unavailable", exErr.Message)

	assert.Equal(t, int32(3), hits.Load())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rec.recorded())
	assert.True(t, exec.Policy().VerifyEnabled())
}

func TestExecutor_RecoversAfterTransientFailure(t *testing.T) {
	var hits atomic.Int32
	var mu sync.Mutex
	var timestamps []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		timestamps = append(timestamps, r.Header.Get(HeaderTimestamp))
		mu.Unlock()
		assert.True(t, signatureValid(r, nil), "signature mismatch")

		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(serverTimeBody))
	}))
	defer server.Close()

	exec, rec := newTestExecutor(t, testConfig(server.URL))

	clock := time.UnixMilli(1690000000000)
	exec.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	_, err := exec.Request(context.Background(), http.MethodGet, "/public/time", nil)
	require.NoError(t, err)

	assert.Equal(t, int32(3), hits.Load())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rec.recorded())
	assert.Equal(t, []string{
		"2023-07-22T04:26:41.000Z",
		"2023-07-22T04:26:42.000Z",
		"2023-07-22T04:26:43.000Z",
	}, timestamps)
}

func TestExecutor_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	exec, rec := newTestExecutor(t, testConfig(url))

	_, err := exec.Request(context.Background(), http.MethodGet, "/public/time", nil)

	var tf *core.TransportFailure
	require.ErrorAs(t, err, &tf)
	assert.Equal(t, 3, tf.Attempts)
	assert.Zero(t, tf.StatusCode)
	assert.Len(t, rec.recorded(), 2)
	assert.True(t, core.IsNetworkError(err))
	assert.False(t, core.IsTimeoutError(err))
	assert.True(t, core.IsErrorCode(err, core.ErrCodeNetwork))
}

func TestExecutor_Timeout(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer server.Close()

	config := testConfig(server.URL).
		WithTimeout(50*time.Millisecond).
		WithRetry(2, time.Second, 30*time.Second)
	exec, rec := newTestExecutor(t, config)

	_, err := exec.Request(context.Background(), http.MethodGet, "/public/time", nil)

	var tf *core.TransportFailure
	require.ErrorAs(t, err, &tf)
	assert.Equal(t, 2, tf.Attempts)
	assert.Zero(t, tf.StatusCode)
	assert.True(t, core.IsTimeoutError(err))
	assert.False(t, core.IsNetworkError(err))
	assert.True(t, core.IsErrorCode(err, core.ErrCodeTimeout))
	assert.Equal(t, []time.Duration{time.Second}, rec.recorded())
	assert.Equal(t, int32(2), hits.Load())
}

func TestExecutor_ConnectionErrorKeepsCause(t *testing.T) {
	exec, _ := newTestExecutor(t, testConfig("https://www.okx.com"))

	err := exec.connectionError(context.DeadlineExceeded)
	assert.True(t, core.IsTimeoutError(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	cause := errors.New("dial tcp: connection refused")
	err = exec.connectionError(cause)
	assert.True(t, core.IsNetworkError(err))
	assert.ErrorIs(t, err, cause)

	assert.Equal(t, context.Canceled, exec.connectionError(context.Canceled))
	assert.Equal(t, core.ErrClientClosed, exec.connectionError(core.ErrClientClosed))
}

func TestExecutor_InvalidJSONIsRetried(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("<html>maintenance</html>"))
	}))
	defer server.Close()

	exec, _ := newTestExecutor(t, testConfig(server.URL))

	_, err := exec.Request(context.Background(), http.MethodGet, "/public/time", nil)

	var tf *core.TransportFailure
	require.ErrorAs(t, err, &tf)
	assert.Equal(t, http.StatusOK, tf.StatusCode)
	assert.True(t, core.IsErrorCode(err, core.ErrCodeInvalidBody))
	assert.Equal(t, int32(3), hits.Load())
}

func TestExecutor_OKXErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"code":"50113","msg":"Invalid Sign"}`))
	}))
	defer server.Close()

	exec, rec := newTestExecutor(t, testConfig(server.URL))

	req := core.NewRequest(http.MethodGet, "/account/balance").SetRetryBudget(1)
	_, err := exec.Do(context.Background(), req)

	var tf *core.TransportFailure
	require.ErrorAs(t, err, &tf)
	assert.Equal(t, 1, tf.Attempts)
	assert.Equal(t, http.StatusUnauthorized, tf.StatusCode)
	assert.True(t, core.IsAuthenticationError(err))

	var exErr *core.ExchangeError
	require.ErrorAs(t, err, &exErr)
	assert.Equal(t, "50113", exErr.Code)
	assert.Equal(t, "Invalid Sign", exErr.Message)

	assert.Empty(t, rec.recorded())
}

func TestExecutor_SecurityDowngrade(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(serverTimeBody))
	}))
	defer server.Close()

	var logs bytes.Buffer
	exec, rec := newTestExecutor(t, testConfig(server.URL), WithLogger(zerolog.New(&logs)))
	require.True(t, exec.Policy().VerifyEnabled())

	_, err := exec.Request(context.Background(), http.MethodGet, "/public/time", nil)
	require.NoError(t, err)

	assert.False(t, exec.Policy().VerifyEnabled())
	assert.Equal(t, uint64(1), exec.Policy().Generation())
	assert.True(t, tlspolicy.IsVerificationError(exec.Policy().Cause()))
	assert.Equal(t, int32(1), hits.Load())
	assert.Empty(t, rec.recorded(), "security failures retry without delay")
	assert.Equal(t, 1, strings.Count(logs.String(), "tls verification failed, retrying"))

	// Later calls go straight through.
	_, err = exec.Request(context.Background(), http.MethodGet, "/public/time", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, 1, strings.Count(logs.String(), "tls verification failed, retrying"))

	// So do calls from another executor sharing the policy.
	var otherLogs bytes.Buffer
	other, _ := newTestExecutor(t, testConfig(server.URL),
		WithPolicy(exec.Policy()),
		WithLogger(zerolog.New(&otherLogs)),
	)
	_, err = other.Request(context.Background(), http.MethodGet, "/public/time", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(3), hits.Load())
	assert.NotContains(t, otherLogs.String(), "tls verification failed")
	assert.Equal(t, uint64(1), exec.Policy().Generation())
}

func TestExecutor_SecurityFailure(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(serverTimeBody))
	}))
	defer server.Close()

	exec, _ := newTestExecutor(t, testConfig(server.URL))

	req := core.NewRequest(http.MethodGet, "/public/time").SetRetryBudget(1)
	_, err := exec.Do(context.Background(), req)
	require.Error(t, err)

	var sf *core.SecurityFailure
	require.ErrorAs(t, err, &sf)
	assert.Equal(t, 1, sf.Attempts)
	assert.True(t, tlspolicy.IsVerificationError(err))
	assert.False(t, core.IsTransportFailure(err))
	assert.Zero(t, hits.Load())

	// The downgrade outlives the failed call.
	assert.False(t, exec.Policy().VerifyEnabled())
	_, err = exec.Do(context.Background(), core.NewRequest(http.MethodGet, "/public/time").SetRetryBudget(1))
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestExecutor_ConcurrentDowngrade(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(serverTimeBody))
	}))
	defer server.Close()

	policy := tlspolicy.New(true)
	exec, _ := newTestExecutor(t, testConfig(server.URL),
		WithPolicy(policy),
		WithRateLimiter(ratelimit.New(1000, time.Second)),
	)

	const workers = 10
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := exec.Request(context.Background(), http.MethodGet, "/public/time", nil)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.False(t, policy.VerifyEnabled())
	assert.Equal(t, uint64(1), policy.Generation())
}

func TestExecutor_ContextCancelledDuringBackoff(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	exec, _ := newTestExecutor(t, testConfig(server.URL).WithRetry(3, time.Minute, time.Minute))
	exec.sleep = sleepContext

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	_, err := exec.Request(ctx, http.MethodGet, "/public/time", nil)
	require.Error(t, err)

	assert.Less(t, time.Since(start), 10*time.Second)
	assert.ErrorIs(t, err, context.Canceled)

	var tf *core.TransportFailure
	require.ErrorAs(t, err, &tf)
	assert.Equal(t, 1, tf.Attempts)
	assert.Equal(t, http.StatusBadGateway, tf.StatusCode)
	assert.Equal(t, int32(1), hits.Load())
}

func TestExecutor_RejectsMalformedRequests(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	exec, _ := newTestExecutor(t, testConfig(server.URL))

	tests := []struct {
		name string
		req  *core.Request
	}{
		{"nil_request", nil},
		{"unsupported_method", core.NewRequest("TRACE", "/public/time")},
		{"empty_method", core.NewRequest("", "/public/time")},
		{"unencodable_body", core.NewRequest(http.MethodPost, "/trade/order").SetBody(make(chan int))},
		{"non_json_string_body", core.NewRequest(http.MethodPost, "/trade/order").SetBody("instId=BTC-USDT")},
		{"non_json_bytes_body", core.NewRequest(http.MethodPost, "/trade/order").SetBody([]byte("{\"instId\":"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := exec.Do(context.Background(), tt.req)
			require.Error(t, err)
			assert.False(t, core.IsTransportFailure(err))
			assert.False(t, core.IsSecurityFailure(err))
		})
	}
	assert.Zero(t, hits.Load())
}

func TestExecutor_Backoff(t *testing.T) {
	exec, _ := newTestExecutor(t, testConfig("https://www.okx.com"))

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{40, 30 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, exec.backoff(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestEncodeBody(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, ""},
		{"bytes", []byte(`{"a":1}`), `{"a":1}`},
		{"string", `{"a":1}`, `{"a":1}`},
		{"struct", struct {
			InstID string `json:"instId"`
		}{"BTC-USDT"}, `{"instId":"BTC-USDT"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := encodeBody(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncodeBody_RejectsInvalidJSON(t *testing.T) {
	for _, in := range []any{"not json", []byte(`{"a":`)} {
		_, err := encodeBody(in)
		assert.Error(t, err, "%v", in)
	}
}

func TestSleepContext(t *testing.T) {
	require.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.True(t, errors.Is(sleepContext(ctx, time.Hour), context.Canceled))
	assert.True(t, errors.Is(sleepContext(ctx, 0), context.Canceled))
}

func TestAttemptKind_String(t *testing.T) {
	assert.Equal(t, "SUCCESS", attemptSucceeded.String())
	assert.Equal(t, "SECURITY_FAILURE", attemptSecurityFailed.String())
	assert.Equal(t, "TRANSPORT_FAILURE", attemptTransportFailed.String())

	assert.Equal(t, metrics.OutcomeSuccess, attemptSucceeded.label())
	assert.Equal(t, metrics.OutcomeSecurityFailure, attemptSecurityFailed.label())
	assert.Equal(t, metrics.OutcomeTransportFailure, attemptTransportFailed.label())
}
