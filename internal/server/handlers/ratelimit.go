package handlers

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/docquery/docquery/internal/errors"
	"github.com/docquery/docquery/internal/metrics"
	"github.com/docquery/docquery/internal/observability"
	"github.com/docquery/docquery/internal/ratelimit"
)

// MaxAcquireTimeout caps the ?timeout= accepted by the acquire endpoint. It is
// also the wait limit when no timeout is given.
const MaxAcquireTimeout = 10 * time.Minute

// acquireWriteMargin is the time left after a grant to write the response.
const acquireWriteMargin = 5 * time.Second

// RateLimitHandler exposes the process limiter over HTTP.
type RateLimitHandler struct {
	Limiter *ratelimit.Limiter
	// WriteTimeout is the server's write timeout. Acquire extends the
	// connection's write deadline to cover its wait; when the writer cannot
	// do that, the wait is cut short of WriteTimeout instead.
	WriteTimeout time.Duration
}

// AcquireResponse is returned once a slot is granted.
type AcquireResponse struct {
	Granted       bool             `json:"granted"`
	WaitedSeconds float64          `json:"waited_seconds"`
	Status        ratelimit.Status `json:"status"`
}

// Status handles GET /v1/ratelimit/status. It never reserves a slot.
func (h *RateLimitHandler) Status(w http.ResponseWriter, r *http.Request) {
	metrics.RecordOperation("status", true)
	writeJSON(w, http.StatusOK, h.Limiter.Status())
}

// Acquire handles POST /v1/ratelimit/acquire[?timeout=30s]. It blocks until a
// slot is granted. If the client disconnects or the timeout passes first it
// answers 503 with Retry-After and no slot is recorded. A slot is only granted
// while the response can still be written.
func (h *RateLimitHandler) Acquire(w http.ResponseWriter, r *http.Request) {
	wait := MaxAcquireTimeout
	if raw := r.URL.Query().Get("timeout"); raw != "" {
		timeout, err := parseAcquireTimeout(raw)
		if err != nil {
			respondWithError(w, r, apperrors.Wrap(r.Context(), apperrors.CodeInvalidInput, err, "invalid timeout"))
			return
		}
		wait = timeout
	}

	start := time.Now()
	wait = h.acquireBudget(w, start, wait)
	ctx, cancel := context.WithTimeout(r.Context(), wait)
	defer cancel()

	err := h.Limiter.Acquire(ctx)
	metrics.RecordOperation("acquire", err == nil)
	if err != nil {
		if !errors.Is(err, ratelimit.ErrCancelled) {
			respondWithError(w, r, apperrors.Wrap(ctx, apperrors.CodeInternal, err, "acquire failed"))
			return
		}
		retryAfter := RetryAfterSeconds(h.Limiter.Status())
		observability.Logger().Info("Acquire abandoned by caller",
			zap.Duration("waited", time.Since(start)),
			zap.Int("retry_after_seconds", retryAfter))
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		respondWithError(w, r, apperrors.NewRateLimitWaitError(r.Context(), err, retryAfter))
		return
	}

	writeJSON(w, http.StatusOK, AcquireResponse{
		Granted:       true,
		WaitedSeconds: math.Round(time.Since(start).Seconds()*1000) / 1000,
		Status:        h.Limiter.Status(),
	})
}

// acquireBudget pushes the write deadline past wait plus a margin and returns
// how long Acquire may block. net/http does not cancel the request context
// when the write deadline passes, so a grant made after it would be lost.
func (h *RateLimitHandler) acquireBudget(w http.ResponseWriter, now time.Time, wait time.Duration) time.Duration {
	err := http.NewResponseController(w).SetWriteDeadline(now.Add(wait + acquireWriteMargin))
	if err == nil || h.WriteTimeout <= 0 {
		return wait
	}
	budget := h.WriteTimeout - min(acquireWriteMargin, h.WriteTimeout/4)
	if budget < wait {
		observability.Logger().Debug("Acquire wait limited by write timeout",
			zap.Duration("requested", wait),
			zap.Duration("budget", budget),
			zap.Error(err))
		return budget
	}
	return wait
}

// RetryAfterSeconds converts the time to the next free slot into a Retry-After value (at least 1).
func RetryAfterSeconds(st ratelimit.Status) int {
	if st.CanProceed {
		return 1
	}
	return max(1, int(math.Ceil(st.ResetIn.Seconds())))
}

func parseAcquireTimeout(raw string) (time.Duration, error) {
	d, err := time.ParseDuration(raw)
	if err != nil {
		secs, convErr := strconv.ParseFloat(raw, 64)
		if convErr != nil {
			return 0, err
		}
		d = time.Duration(secs * float64(time.Second))
	}
	if d <= 0 || d > MaxAcquireTimeout {
		return 0, errors.New("timeout must be within (0, " + MaxAcquireTimeout.String() + "]")
	}
	return d, nil
}
