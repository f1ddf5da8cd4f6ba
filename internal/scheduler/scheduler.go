// Package scheduler owns the registered check functions and drives one
// independent repeating timer per (asset, check) pair.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/probekit/check"
	"github.com/hamed0406/probekit/internal/confstore"
	"github.com/hamed0406/probekit/internal/packager"
)

// ErrDuplicateCheck rejects registering two checks under one name.
var ErrDuplicateCheck = errors.New("check already registered")

// Registry maps check names to their functions. Registration happens before
// the runtime starts; lookups are concurrent.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]check.Func
}

func NewRegistry() *Registry {
	return &Registry{funcs: map[string]check.Func{}}
}

func (r *Registry) Register(name string, fn check.Func) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.funcs[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateCheck, name)
	}
	r.funcs[name] = fn
	return nil
}

func (r *Registry) Lookup(name string) (check.Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type pairKey struct {
	assetID int
	check   string
}

// Scheduler drives one runner goroutine per (asset, check) pair derived from
// the config snapshot. Runners execute their check inline, so two ticks of
// the same pair can never overlap.
type Scheduler struct {
	logger          *zap.Logger
	store           *confstore.Store
	registry        *Registry
	probe           string
	defaultInterval time.Duration
	out             chan<- *packager.Envelope

	mu      sync.Mutex
	ctx     context.Context
	pairs   map[pairKey]*runner
	wg      sync.WaitGroup
	stopped bool
}

func New(
	logger *zap.Logger,
	store *confstore.Store,
	registry *Registry,
	probe string,
	defaultInterval time.Duration,
	out chan<- *packager.Envelope,
) *Scheduler {
	if defaultInterval <= 0 {
		defaultInterval = 5 * time.Minute
	}
	return &Scheduler{
		logger:          logger,
		store:           store,
		registry:        registry,
		probe:           probe,
		defaultInterval: defaultInterval,
		out:             out,
		pairs:           map[pairKey]*runner{},
	}
}

// Run starts the pair runners and keeps them in sync with the config until
// ctx is cancelled. It never blocks on a slow check: runners are independent
// goroutines.
func (s *Scheduler) Run(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.store.OnReload(s.Sync)
	s.Sync()

	<-ctx.Done()

	s.mu.Lock()
	s.stopped = true
	for _, r := range s.pairs {
		r.cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
	s.logger.Info("scheduler_stopped")
}

// Pairs reports the number of currently scheduled pairs.
func (s *Scheduler) Pairs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.pairs {
		if !r.finished() {
			n++
		}
	}
	return n
}

// Sync reconciles running pairs against the current config snapshot: new
// pairs start, removed pairs stop, and a hard-skipped pair restarts once its
// config changed.
func (s *Scheduler) Sync() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil || s.stopped {
		return
	}

	snap := s.store.Snapshot()
	desired := map[pairKey]check.Asset{}
	for _, asset := range snap.Assets(s.probe) {
		cfg, _ := snap.Resolve(s.probe, asset.ID)
		for _, name := range s.registry.Names() {
			assetCfg, checkCfg := splitConfig(cfg, name)
			if assetCfg.Bool("disabled", false) || checkCfg.Bool("disabled", false) {
				continue
			}
			a := asset
			a.Check = name
			desired[pairKey{assetID: asset.ID, check: name}] = a
		}
	}

	for key, r := range s.pairs {
		if _, want := desired[key]; !want {
			r.cancel()
			delete(s.pairs, key)
			s.logger.Info("pair_removed",
				zap.Int("asset_id", key.assetID),
				zap.String("check", key.check),
			)
			continue
		}
		if r.finished() && r.fingerprint != s.fingerprint(snap, key.assetID) {
			// Hard-skipped earlier, config changed since: schedule again.
			delete(s.pairs, key)
		}
	}

	for key, asset := range desired {
		if _, running := s.pairs[key]; running {
			continue
		}
		fn, ok := s.registry.Lookup(key.check)
		if !ok {
			continue
		}
		s.startPair(key, asset, fn, snap)
	}
}

func (s *Scheduler) fingerprint(snap *confstore.Tree, assetID int) string {
	cfg, _ := snap.Resolve(s.probe, assetID)
	return fmt.Sprintf("%v", map[string]any(cfg))
}

// startPair launches a runner; callers hold s.mu.
func (s *Scheduler) startPair(key pairKey, asset check.Asset, fn check.Func, snap *confstore.Tree) {
	ctx, cancel := context.WithCancel(s.ctx)
	r := &runner{
		sched:       s,
		asset:       asset,
		fn:          fn,
		cancel:      cancel,
		done:        make(chan struct{}),
		fingerprint: s.fingerprint(snap, asset.ID),
	}
	s.pairs[key] = r
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(r.done)
		r.loop(ctx)
	}()
	s.logger.Info("pair_started",
		zap.Int("asset_id", asset.ID),
		zap.String("asset", asset.Name),
		zap.String("check", key.check),
	)
}
