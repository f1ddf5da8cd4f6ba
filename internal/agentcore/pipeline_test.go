package agentcore

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/probekit/check"
	"github.com/hamed0406/probekit/internal/packager"
)

func collectPackages(c *Client) []packager.Package {
	var out []packager.Package
	for {
		select {
		case item := <-c.queue:
			out = append(out, item.pkg)
		default:
			return out
		}
	}
}

func TestPipeline_BatchesCompletedEnvelopes(t *testing.T) {
	client := New(zap.NewNop(), "ws://unused", "p", "1.0", 64)
	in := make(chan *packager.Envelope, 16)
	pipe := NewPipeline(zap.NewNop(), in, client, 1<<20)
	pipe.Linger = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		pipe.Run(ctx)
		close(done)
	}()

	asset := check.Asset{ID: 1, Name: "a", Check: "http"}
	for i := 0; i < 3; i++ {
		in <- packager.NewEnvelope(asset, packager.Outcome{Kind: packager.Success, Result: check.Result{}}, time.Now(), 0)
	}

	deadline := time.Now().Add(2 * time.Second)
	for client.QueueDepth() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	pkgs := collectPackages(client)
	total := 0
	for _, p := range pkgs {
		total += len(p.Envelopes)
	}
	if total != 3 {
		t.Fatalf("want 3 envelopes delivered, got %d in %d packages", total, len(pkgs))
	}
}

func TestPipeline_OversizedBecomesSyntheticError(t *testing.T) {
	client := New(zap.NewNop(), "ws://unused", "p", "1.0", 64)
	in := make(chan *packager.Envelope, 4)
	pipe := NewPipeline(zap.NewNop(), in, client, 200)
	pipe.Linger = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		pipe.Run(ctx)
		close(done)
	}()

	asset := check.Asset{ID: 2, Name: "big", Check: "wmi"}
	huge := check.Result{"rows": {{"blob": strings.Repeat("z", 1000)}}}
	in <- packager.NewEnvelope(asset, packager.Outcome{Kind: packager.Success, Result: huge}, time.Now(), 0)

	deadline := time.Now().Add(2 * time.Second)
	for client.QueueDepth() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	pkgs := collectPackages(client)
	if len(pkgs) != 1 || len(pkgs[0].Envelopes) != 1 {
		t.Fatalf("want one synthetic package, got %+v", pkgs)
	}
	env := pkgs[0].Envelopes[0]
	if env.Error == nil || env.Result != nil {
		t.Fatalf("synthetic envelope must carry only the error: %+v", env)
	}
	if env.AssetID != 2 || env.Check != "wmi" {
		t.Fatalf("synthetic envelope lost identity: %+v", env)
	}
	if !strings.Contains(env.Error.Message, "too large") {
		t.Fatalf("unexpected message: %q", env.Error.Message)
	}
}
