package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/ascii"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/docquery/docquery/internal/observability"
	"github.com/docquery/docquery/internal/output"
	"github.com/docquery/docquery/internal/ratelimit"
)

var (
	burstCount    int
	burstInterval time.Duration
	burstEvery    int

	monitorDuration time.Duration
	monitorEvery    time.Duration
	monitorBurst    int

	statusServer string
)

// serverStatusTimeout bounds the GET against a running serve.
const serverStatusTimeout = 10 * time.Second

var limiterCmd = &cobra.Command{
	Use:   "limiter",
	Short: "Exercise and inspect the rate limiter without calling a provider",
}

var limiterBurstCmd = &cobra.Command{
	Use:   "burst",
	Short: "Acquire slots back to back and watch the limiter block",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := interruptContext(cmd.Context())
		defer stop()
		return runBurst(ctx, cmd.OutOrStdout(), a.limiter, burstCount, burstInterval, burstEvery)
	},
}

var limiterMonitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Print one status line per tick while the window drains",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := interruptContext(cmd.Context())
		defer stop()

		for i := 0; i < monitorBurst && a.limiter.Allowed(); i++ {
			if err := a.limiter.Acquire(ctx); err != nil {
				return err
			}
		}
		return runMonitor(ctx, cmd.OutOrStdout(), a.limiter, monitorDuration, monitorEvery)
	},
}

var limiterStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print limiter status (configured limits, or a running server with --server)",
	Long: `Print limiter status.

Each CLI process has its own limiter, so without --server this shows the
configured limits with an empty call log. With --server it reads
GET /v1/ratelimit/status from a running "serve".`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}
		outPath, err := resolveOutputTarget(cmd, "ratelimit.status."+outputExtension(format))
		if err != nil {
			return err
		}

		var st ratelimit.Status
		if statusServer != "" {
			st, err = fetchServerStatus(cmd.Context(), http.DefaultClient, statusServer)
			if err != nil {
				return err
			}
		} else {
			a, err := newApp(appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()
			st = a.limiter.Status()
		}

		sink, err := openSink(outPath)
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		rendered, err := renderStatus(format, st)
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(sink.writer, rendered)
		return err
	},
}

// fetchServerStatus reads the live limiter status from a running server.
func fetchServerStatus(ctx context.Context, client *http.Client, baseURL string) (ratelimit.Status, error) {
	ctx, cancel := context.WithTimeout(ctx, serverStatusTimeout)
	defer cancel()

	url := strings.TrimRight(baseURL, "/") + "/v1/ratelimit/status"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ratelimit.Status{}, fmt.Errorf("build status request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return ratelimit.Status{}, fmt.Errorf("fetch server status: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return ratelimit.Status{}, fmt.Errorf("fetch server status: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	var st ratelimit.Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return ratelimit.Status{}, fmt.Errorf("decode server status: %w", err)
	}
	return st, nil
}

// runBurst acquires n slots, sleeping interval between them, and prints the
// status after every `every` grants and after the last one.
func runBurst(ctx context.Context, w io.Writer, limiter *ratelimit.Limiter, n int, interval time.Duration, every int) error {
	if n <= 0 {
		return fmt.Errorf("burst count must be positive, got %d", n)
	}
	if every <= 0 {
		every = 5
	}
	logger := observability.Logger()

	_, _ = fmt.Fprintf(w, "Sending %d requests (limit %d per %s)\n", n, limiter.MaxRequests(), limiter.Window())
	started := time.Now()
	for i := 1; i <= n; i++ {
		requested := time.Now()
		if err := limiter.Acquire(ctx); err != nil {
			if errors.Is(err, ratelimit.ErrCancelled) {
				_, _ = fmt.Fprintf(w, "Cancelled after %d of %d requests\n", i-1, n)
			}
			return err
		}
		if waited := time.Since(requested); waited >= 10*time.Millisecond {
			_, _ = fmt.Fprintf(w, "Request %d waited %.1fs\n", i, waited.Seconds())
		}
		logger.Debug("Burst request granted", zap.Int("request", i))

		if i%every == 0 || i == n {
			_, _ = fmt.Fprintf(w, "After %d requests:\n%s\n", i, ratelimit.FormatStatus(limiter.Status()))
		}
		if interval > 0 && i < n {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(interval):
			}
		}
	}
	_, _ = fmt.Fprintf(w, "Done: %d requests in %.1fs\n", n, time.Since(started).Seconds())
	return nil
}

// runMonitor prints a status line every tick until duration elapses or ctx ends.
func runMonitor(ctx context.Context, w io.Writer, limiter *ratelimit.Limiter, duration, every time.Duration) error {
	if every <= 0 {
		return fmt.Errorf("monitor interval must be positive, got %s", every)
	}

	ctx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	started := time.Now()
	report := func() {
		_, _ = fmt.Fprintf(w, "[%5.1fs] %s\n", time.Since(started).Seconds(), ratelimit.FormatStatusLine(limiter.Status()))
	}
	report()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			report()
		}
	}
}

// renderStatus formats a status; text output is drawn in a box.
func renderStatus(format output.Format, st ratelimit.Status) (string, error) {
	if format == output.FormatText {
		return ascii.DrawBox(ratelimit.FormatStatus(st), 0), nil
	}
	rendered, err := output.NewFormatter(format).FormatStatus(st)
	if err != nil {
		return "", err
	}
	if !strings.HasSuffix(rendered, "\n") {
		rendered += "\n"
	}
	return rendered, nil
}

func init() {
	limiterBurstCmd.Flags().IntVarP(&burstCount, "count", "n", 20, "Number of requests to send")
	limiterBurstCmd.Flags().DurationVar(&burstInterval, "interval", 100*time.Millisecond, "Pause between requests")
	limiterBurstCmd.Flags().IntVar(&burstEvery, "every", 5, "Print the status every N requests")

	limiterMonitorCmd.Flags().DurationVar(&monitorDuration, "duration", 70*time.Second, "How long to monitor")
	limiterMonitorCmd.Flags().DurationVar(&monitorEvery, "every", time.Second, "Interval between status lines")
	limiterMonitorCmd.Flags().IntVar(&monitorBurst, "burst", 0, "Acquire up to N slots before monitoring")

	limiterStatusCmd.Flags().String("output-format", string(output.FormatText), "Output format: text|table|json|yaml|markdown")
	limiterStatusCmd.Flags().String("out", "", "Write output to a file (default stdout)")
	limiterStatusCmd.Flags().String("out-dir", "", "Write output to a directory")
	limiterStatusCmd.Flags().StringVar(&statusServer, "server", "", "Base URL of a running serve (e.g. http://localhost:8080)")

	limiterCmd.AddCommand(limiterBurstCmd)
	limiterCmd.AddCommand(limiterMonitorCmd)
	limiterCmd.AddCommand(limiterStatusCmd)
	rootCmd.AddCommand(limiterCmd)
}
