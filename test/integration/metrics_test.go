package integration

import (
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docquery/docquery/internal/metrics"
	"github.com/docquery/docquery/internal/observability"
	"github.com/docquery/docquery/internal/ratelimit"
	"github.com/docquery/docquery/internal/server"
)

// isPermissionError normalizes OS-specific permission errors (macOS/Linux/BSD)
// so we can gracefully skip when loopback sockets are blocked.
func isPermissionError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, os.ErrPermission) || errors.Is(err, syscall.EACCES) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, fragment := range []string{"permission denied", "operation not permitted", "not permitted"} {
		if strings.Contains(msg, fragment) {
			return true
		}
	}

	return false
}

// listenOrSkip binds to IPv4 loopback explicitly (avoiding IPv6-only defaults)
// and skips when the sandbox refuses to open sockets.
func listenOrSkip(t *testing.T) net.Listener {
	t.Helper()
	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		if isPermissionError(err) {
			t.Skipf("skipping loopback test: %v", err)
		}
		require.NoError(t, err)
	}
	return listener
}

// newTestServer serves a docquery server for a limiter of maxRequests per minute.
// withMetrics installs a process-wide metrics set under the "test" namespace.
func newTestServer(t *testing.T, maxRequests int, withMetrics bool) (*httptest.Server, *ratelimit.Limiter) {
	t.Helper()
	observability.InitCLILogger("test", false)

	opts := ratelimit.Opts{Name: "integration"}
	var set *metrics.Set
	if withMetrics {
		set = metrics.Init("test")
		t.Cleanup(metrics.Reset)
		observer, err := set.NewLimiterObserver()
		require.NoError(t, err)
		opts.Observer = observer
	}

	limiter, err := ratelimit.NewWithOpts(maxRequests, time.Minute, opts)
	require.NoError(t, err)
	if set != nil {
		require.NoError(t, set.RegisterLimiter(limiter))
	}

	srv, err := server.New(server.Options{Host: "127.0.0.1", Version: "test", Limiter: limiter, Metrics: set})
	require.NoError(t, err)

	ts := &httptest.Server{
		Listener: listenOrSkip(t),
		Config:   &http.Server{Handler: srv.Handler()},
	}
	ts.Start()
	t.Cleanup(ts.Close)
	return ts, limiter
}

func get(t *testing.T, client *http.Client, url string) (int, string) {
	t.Helper()
	resp, err := client.Get(url)
	require.NoError(t, err)
	body, readErr := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, readErr)
	return resp.StatusCode, string(body)
}

func TestMetricsEndpoint_Integration(t *testing.T) {
	ts, limiter := newTestServer(t, 15, true)
	client := ts.Client()

	const numRequests = 50
	const numWorkers = 10

	requestChan := make(chan int, numRequests)
	for i := 0; i < numRequests; i++ {
		requestChan <- i
	}
	close(requestChan)

	start := time.Now()

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func() {
			defer wg.Done()
			for reqNum := range requestChan {
				var resp *http.Response
				var err error
				switch reqNum % 5 {
				case 0:
					resp, err = client.Post(ts.URL+"/v1/ratelimit/acquire?timeout=5s", "application/json", nil)
				case 1:
					resp, err = client.Get(ts.URL + "/v1/ratelimit/status")
				case 2:
					resp, err = client.Get(ts.URL + "/does-not-exist")
				case 3:
					resp, err = client.Get(ts.URL + "/version")
				default:
					resp, err = client.Get(ts.URL + "/health")
				}
				if err == nil {
					_, _ = io.Copy(io.Discard, resp.Body)
					_ = resp.Body.Close()
				}
			}
		}()
	}
	wg.Wait()

	elapsed := time.Since(start)

	// 10 acquires against a limit of 15 never block.
	assert.Equal(t, 10, limiter.Status().CurrentCount)

	status, body := get(t, client, ts.URL+"/metrics")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "test_http_requests_total", "Should have HTTP request metrics")
	assert.Contains(t, body, "test_http_request_duration_seconds", "Should have duration metrics")
	assert.Contains(t, body, `test_ratelimit_current_requests{limiter="integration"} 10`)
	assert.Contains(t, body, `test_ratelimit_remaining_requests{limiter="integration"} 5`)
	assert.Contains(t, body, `test_ratelimit_acquire_total{result="granted"} 10`)
	assert.Contains(t, body, `test_errors_total{error_code="NOT_FOUND",http_status="404"} 10`)
	assert.True(t, elapsed < 5*time.Second, "Load test should complete in reasonable time")
	t.Logf("Load test completed: %d requests in %v (%.2f req/s)", numRequests, elapsed, float64(numRequests)/elapsed.Seconds())
}

func TestMetricsEndpoint_PrometheusFormat(t *testing.T) {
	ts, _ := newTestServer(t, 15, true)
	client := ts.Client()

	status, _ := get(t, client, ts.URL+"/v1/ratelimit/status")
	assert.Equal(t, http.StatusOK, status)

	resp, err := client.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	contentType := resp.Header.Get("Content-Type")
	assert.True(t, strings.HasPrefix(contentType, "text/plain; version=0.0.4"),
		"Expected Prometheus content type, got: %s", contentType)

	body, readErr := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, readErr)

	metricLines := 0
	hasLabelledMetric := false
	for _, line := range strings.Split(strings.TrimSpace(string(body)), "\n") {
		if strings.HasPrefix(line, "#") || strings.TrimSpace(line) == "" {
			continue
		}
		metricLines++
		if strings.Contains(line, "{") && len(strings.Fields(line)) >= 2 {
			hasLabelledMetric = true
		}
	}
	assert.True(t, hasLabelledMetric, "Should have valid Prometheus metric lines")
	assert.Greater(t, metricLines, 0, "Should have actual metric values")
}

func TestMetricsEndpoint_WithMetricsDisabled(t *testing.T) {
	ts, _ := newTestServer(t, 15, false)
	client := ts.Client()

	status, _ := get(t, client, ts.URL+"/v1/ratelimit/status")
	assert.Equal(t, http.StatusOK, status)

	status, body := get(t, client, ts.URL+"/metrics")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Contains(t, body, "SERVICE_UNAVAILABLE")
}

func TestAcquireEndpoint_SaturatedLimiterAnswersRetryAfter(t *testing.T) {
	ts, limiter := newTestServer(t, 2, true)
	client := ts.Client()

	for i := 0; i < 2; i++ {
		resp, err := client.Post(ts.URL+"/v1/ratelimit/acquire", "application/json", nil)
		require.NoError(t, err)
		_, _ = io.Copy(io.Discard, resp.Body)
		require.NoError(t, resp.Body.Close())
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp, err := client.Post(ts.URL+"/v1/ratelimit/acquire?timeout=50ms", "application/json", nil)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
	assert.Contains(t, string(body), "RATE_LIMIT_WAIT_CANCELLED")
	assert.Equal(t, 2, limiter.Status().CurrentCount, "abandoned waits must not record a call")

	_, metricsBody := get(t, client, ts.URL+"/metrics")
	assert.Contains(t, metricsBody, `test_ratelimit_acquire_total{result="cancelled"} 1`)
}
