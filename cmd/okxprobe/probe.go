package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"okxrest/pkg/core"
	"okxrest/pkg/exchange/okx"
)

// errProbeFailed is returned after the remediation hints have been printed.
var errProbeFailed = errors.New("connectivity probe failed")

func runProbe(ctx context.Context, out io.Writer, cfg *core.Config, logger zerolog.Logger, instrument string) error {
	exec, err := okx.NewExecutor(cfg, okx.WithLogger(logger))
	if err != nil {
		return err
	}
	defer exec.Close()

	client := okx.NewClient(exec)

	fmt.Fprintf(out, "=== Probe %s ===\n", cfg.BaseURL())
	start := time.Now()
	serverTime, err := client.ServerTime(ctx)
	if err != nil {
		printHints(out, err)
		return fmt.Errorf("%w: %w", errProbeFailed, err)
	}
	latency := time.Since(start)

	fmt.Fprintf(out, "Connected in %s\n", latency.Round(time.Millisecond))
	fmt.Fprintf(out, "Server time:  %s\n", okx.Timestamp(serverTime))
	fmt.Fprintf(out, "Clock skew:   %s\n", time.Until(serverTime).Round(time.Millisecond))
	if !exec.Policy().VerifyEnabled() {
		fmt.Fprintf(out, "WARNING: TLS certificate verification is disabled (%v)\n", exec.Policy().Cause())
	}

	var (
		ticker      *core.Ticker
		balances    []core.Balance
		tickerErr   error
		balancesErr error
	)

	var g errgroup.Group
	g.Go(func() error {
		ticker, tickerErr = client.Ticker(ctx, instrument)
		return nil
	})
	g.Go(func() error {
		balances, balancesErr = client.Balance(ctx)
		return nil
	})
	_ = g.Wait()

	fmt.Fprintln(out, "\n=== Ticker ===")
	if tickerErr != nil {
		fmt.Fprintf(out, "Error: %v\n", tickerErr)
	} else {
		fmt.Fprintf(out, "%s  last=%s  bid=%s  ask=%s\n",
			ticker.Symbol, ticker.Last.String(), ticker.Bid.String(), ticker.Ask.String())
	}

	fmt.Fprintln(out, "\n=== Balance ===")
	if balancesErr != nil {
		fmt.Fprintf(out, "Error: %v\n", balancesErr)
		if core.IsAuthenticationError(balancesErr) {
			fmt.Fprintln(out, "Check the API key, secret and passphrase, and that SANDBOX_MODE matches the key.")
		}
		printLimiter(out, exec)
		return nil
	}
	if len(balances) == 0 {
		fmt.Fprintln(out, "(no balances)")
	}
	for _, b := range balances {
		fmt.Fprintf(out, "%-8s free=%s  locked=%s\n", b.Asset, b.Free.String(), b.Locked.String())
	}

	printLimiter(out, exec)
	return nil
}

func printLimiter(out io.Writer, exec *okx.Executor) {
	m := exec.RateLimiter().Metrics()
	fmt.Fprintf(out, "\nRate limiter: %d requests on %d endpoints, %d waited, %d denied\n",
		m.TotalRequests, m.Endpoints, m.Waited, m.DeniedRequests)
}

func printHints(out io.Writer, err error) {
	fmt.Fprintf(out, "Connection failed: %v\n", err)
	fmt.Fprintln(out, "Suggested fixes:")
	fmt.Fprintln(out, "  1. Check network connectivity to the OKX domain")
	switch {
	case core.IsSecurityFailure(err):
		fmt.Fprintln(out, "  2. Update the system CA bundle (e.g. sudo update-ca-certificates)")
		fmt.Fprintln(out, "  3. As a last resort run with --insecure")
	case core.IsAuthenticationError(err):
		fmt.Fprintln(out, "  2. Check the API key, secret and passphrase")
		fmt.Fprintln(out, "  3. Check SANDBOX_MODE matches the environment the key was created in")
	case core.IsTimeoutError(err):
		fmt.Fprintln(out, "  2. The exchange answered too slowly; raise OKX_TIMEOUT or try a closer network")
	case core.IsNetworkError(err):
		fmt.Fprintln(out, "  2. Check DNS resolution, proxy settings and firewall rules for outbound HTTPS")
		fmt.Fprintln(out, "  3. Check OKX_BASE_URL and OKX_SANDBOX point at a reachable host")
	default:
		fmt.Fprintln(out, "  2. Check that the local clock is in sync")
	}
}
