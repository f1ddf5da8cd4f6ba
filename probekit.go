// Package probekit is a runtime for monitoring probes: long-lived agents
// that periodically run user-supplied check functions against assets and
// deliver the results to an AgentCore collector over a persistent
// connection.
//
// A probe registers its checks and hands control to Run:
//
//	p, err := probekit.New("myprobe", "1.0.0")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := p.RegisterCheck("snmp", snmpCheck); err != nil {
//	    log.Fatal(err)
//	}
//	err = p.Run(ctx)
package probekit

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/probekit/check"
	"github.com/hamed0406/probekit/internal/agentcore"
	"github.com/hamed0406/probekit/internal/config"
	"github.com/hamed0406/probekit/internal/confstore"
	"github.com/hamed0406/probekit/internal/logging"
	"github.com/hamed0406/probekit/internal/packager"
	"github.com/hamed0406/probekit/internal/scheduler"
	"github.com/hamed0406/probekit/internal/statusapi"
)

// Probe is the runtime façade. Build one per process with New.
type Probe struct {
	name    string
	version string

	cfg      *config.Config
	logger   *zap.Logger
	store    *confstore.Store
	registry *scheduler.Registry

	mu     sync.Mutex
	sched  *scheduler.Scheduler
	client *agentcore.Client
}

// New loads settings and configuration and prepares the runtime. It fails on
// unrecoverable configuration problems (malformed YAML, alias cycle,
// out-of-range package size); everything past this point is recovered and
// the probe keeps running.
func New(name, version string) (*Probe, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logger.Info("starting_probe",
		zap.String("name", name),
		zap.String("version", version),
	)

	store, err := confstore.Load(cfg.ConfigPath, logger)
	if err != nil {
		return nil, err
	}

	return &Probe{
		name:     name,
		version:  version,
		cfg:      cfg,
		logger:   logger,
		store:    store,
		registry: scheduler.NewRegistry(),
	}, nil
}

// RegisterCheck adds a named check function. Names must be unique.
func (p *Probe) RegisterCheck(name string, fn check.Func) error {
	return p.registry.Register(name, fn)
}

// Status reports the current runtime snapshot for the status API.
func (p *Probe) Status() statusapi.Status {
	st := statusapi.Status{Name: p.name, Version: p.version}
	p.mu.Lock()
	sched, client := p.sched, p.client
	p.mu.Unlock()
	if sched != nil {
		st.Pairs = sched.Pairs()
	}
	if client != nil {
		st.Connected = client.Connected()
		st.QueueDepth = client.QueueDepth()
	}
	return st
}

// Run wires the runtime together and blocks until ctx is cancelled: config
// watcher, per-pair schedulers, packaging pipeline, collector client and the
// optional status API. Shutdown cancels in-flight checks and flushes queued
// packages best-effort within the grace period.
func (p *Probe) Run(ctx context.Context) error {
	envelopes := make(chan *packager.Envelope, 256)

	sched := scheduler.New(p.logger, p.store, p.registry, p.name,
		p.cfg.DefaultInterval(), envelopes)
	client := agentcore.New(p.logger, p.cfg.AgentcoreURL(), p.name, p.version,
		p.cfg.SendQueue)
	pipe := agentcore.NewPipeline(p.logger, envelopes, client, p.cfg.MaxPackageSize())

	p.mu.Lock()
	p.sched = sched
	p.client = client
	p.mu.Unlock()

	// A config push from AgentCore takes the same path as a file change:
	// reload, then the store's subscribers (the scheduler) resync.
	client.OnConfigUpdate(func() { _ = p.store.Reload() })

	// The client outlives the other components so the final flush still has
	// a connection to write on.
	clientCtx, stopClient := context.WithCancel(context.Background())
	defer stopClient()
	go client.Run(clientCtx)

	var statusSrv *http.Server
	if p.cfg.StatusAddr != "" {
		statusSrv = &http.Server{
			Addr:    p.cfg.StatusAddr,
			Handler: statusapi.NewServer(p.logger, p).Router(),
		}
		go func() {
			p.logger.Info("status_api_listen", zap.String("addr", p.cfg.StatusAddr))
			if err := statusSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				p.logger.Warn("status_api_error", zap.Error(err))
			}
		}()
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		if err := p.store.Watch(ctx); err != nil {
			p.logger.Warn("config_watcher_failed", zap.Error(err))
		}
	}()
	go func() {
		defer wg.Done()
		sched.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		pipe.Run(ctx)
	}()

	<-ctx.Done()
	p.logger.Info("stopping_probe", zap.String("name", p.name))
	wg.Wait()

	grace, cancel := context.WithTimeout(context.Background(), p.cfg.ShutdownGrace)
	defer cancel()

	var err error
	if flushErr := client.Flush(grace); flushErr != nil {
		p.logger.Warn("final_flush_incomplete", zap.Error(flushErr))
		err = multierr.Append(err, flushErr)
	}
	stopClient()
	if statusSrv != nil {
		err = multierr.Append(err, statusSrv.Shutdown(grace))
	}
	_ = p.logger.Sync()
	return err
}
