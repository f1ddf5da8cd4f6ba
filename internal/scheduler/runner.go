package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/probekit/check"
	"github.com/hamed0406/probekit/internal/packager"
)

// splitConfig divides a merged asset view into what the check sees as asset
// configuration (credentials, connection parameters) and the per-check-type
// configuration under the reserved `checks:` sub-map.
func splitConfig(cfg check.Config, checkName string) (assetCfg, checkCfg check.Config) {
	assetCfg = check.Config{}
	for k, v := range cfg {
		if k != "checks" {
			assetCfg[k] = v
		}
	}
	checkCfg = check.Config{}
	if all, ok := cfg["checks"].(map[string]any); ok {
		if one, ok := all[checkName].(map[string]any); ok {
			checkCfg = check.Config(one)
		}
	}
	return assetCfg, checkCfg
}

// runner owns one (asset, check) pair. The loop runs the check inline, so
// executions of the same pair are strictly sequential.
type runner struct {
	sched       *Scheduler
	asset       check.Asset
	fn          check.Func
	cancel      context.CancelFunc
	done        chan struct{}
	fingerprint string
}

func (r *runner) finished() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

func (r *runner) loop(ctx context.Context) {
	logger := r.sched.logger.With(
		zap.Int("asset_id", r.asset.ID),
		zap.String("check", r.asset.Check),
	)

	interval := r.currentInterval()

	// Splay the first run across the interval so a config with many assets
	// does not fire everything at once.
	next := time.Now().Add(time.Duration(rand.Float64() * float64(interval)))
	timer := time.NewTimer(time.Until(next))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("pair_cancelled", zap.String("asset", r.asset.Name))
			return
		case <-timer.C:
		}

		interval = r.tick(ctx, logger)
		if interval <= 0 {
			// hard-skip: no future scheduling for this pair
			return
		}

		// Skipped ticks are never queued: if the execution overran the next
		// deadline (or the clock jumped), move forward on the schedule grid.
		now := time.Now()
		next = next.Add(interval)
		skipped := 0
		for !next.After(now) {
			next = next.Add(interval)
			skipped++
		}
		if skipped > 0 {
			logger.Warn("ticks_skipped_after_overrun",
				zap.Int("skipped", skipped),
				zap.Duration("interval", interval),
			)
		}
		timer.Reset(time.Until(next))
	}
}

func (r *runner) currentInterval() time.Duration {
	snap := r.sched.store.Snapshot()
	cfg, _ := snap.Resolve(r.sched.probe, r.asset.ID)
	_, checkCfg := splitConfig(cfg, r.asset.Check)
	return checkCfg.Dur("interval", r.sched.defaultInterval)
}

// tick executes the check once with a fresh config snapshot and emits the
// resulting envelope. It returns the interval until the next tick, or <= 0
// to stop scheduling this pair.
func (r *runner) tick(ctx context.Context, logger *zap.Logger) time.Duration {
	snap := r.sched.store.Snapshot()
	cfg, configured := snap.Resolve(r.sched.probe, r.asset.ID)
	if !configured {
		logger.Debug("asset_unconfigured_using_probe_defaults")
	}
	if a, ok := snap.Asset(r.sched.probe, r.asset.ID); ok {
		// id and check name are immutable for a pair, the display name is not
		r.asset.Name = a.Name
	}

	assetCfg, checkCfg := splitConfig(cfg, r.asset.Check)
	interval := checkCfg.Dur("interval", r.sched.defaultInterval)
	timeout := checkCfg.Dur("timeout", interval*4/5)
	retries := checkCfg.Int("retries", 0)
	backoff := time.Duration(checkCfg.Int("retry_backoff_ms", 250)) * time.Millisecond

	start := time.Now()
	result, err := r.execute(ctx, timeout, retries, backoff, assetCfg, checkCfg)
	duration := time.Since(start)

	if ctx.Err() != nil {
		// cancelled mid-execution; the result is discarded, not reported
		return interval
	}

	out := packager.Classify(result, err)
	switch out.Kind {
	case packager.SoftSkip:
		logger.Info("result_ignored", zap.String("asset", r.asset.Name))
		return interval
	case packager.HardSkip:
		// The user can silence this by disabling the check for the asset.
		logger.Warn("check_ignored_permanently", zap.String("asset", r.asset.Name))
		return 0
	case packager.Failed:
		logger.Error("check_error",
			zap.String("asset", r.asset.Name),
			zap.String("error", out.Message),
			zap.String("severity", out.Severity.String()),
			zap.Bool("timeout", out.Timeout),
		)
	case packager.Partial:
		logger.Warn("incomplete_result",
			zap.String("asset", r.asset.Name),
			zap.String("error", out.Message),
			zap.String("severity", out.Severity.String()),
		)
	default:
		logger.Debug("check_ok",
			zap.String("asset", r.asset.Name),
			zap.Duration("duration", duration),
		)
	}

	env := packager.NewEnvelope(r.asset, out, start, duration)
	select {
	case r.sched.out <- env:
	case <-ctx.Done():
	}
	return interval
}

// execute runs the check under its deadline, retrying plain failures up to
// retries times. Control signals and deadline expiries are never retried.
func (r *runner) execute(
	ctx context.Context,
	timeout time.Duration,
	retries int,
	backoff time.Duration,
	assetCfg, checkCfg check.Config,
) (check.Result, error) {
	var (
		result check.Result
		err    error
	)
	for attempt := 0; ; attempt++ {
		result, err = r.invoke(ctx, timeout, assetCfg, checkCfg)
		if err == nil || attempt >= retries || !retryable(err) {
			return result, err
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return result, err
		}
	}
}

// invoke is the recovery boundary: a panicking check becomes a plain error,
// and a check that ignores its context but returns after the deadline is
// still treated as timed out.
func (r *runner) invoke(
	ctx context.Context,
	timeout time.Duration,
	assetCfg, checkCfg check.Config,
) (result check.Result, err error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			result, err = nil, fmt.Errorf("check panic: %v", rec)
		}
	}()

	result, err = r.fn(cctx, r.asset, assetCfg, checkCfg)
	if cctx.Err() == context.DeadlineExceeded {
		return nil, context.DeadlineExceeded
	}
	return result, err
}

func retryable(err error) bool {
	if errors.Is(err, check.ErrIgnoreResult) ||
		errors.Is(err, check.ErrIgnoreCheck) ||
		errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var inc *check.IncompleteError
	return !errors.As(err, &inc)
}
