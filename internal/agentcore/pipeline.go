package agentcore

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/probekit/internal/packager"
)

// Pipeline batches completed-check envelopes into size-bounded packages and
// hands them to the client. Envelopes are packaged in completion order; a
// short linger lets concurrent checks share a package.
type Pipeline struct {
	Logger  *zap.Logger
	In      <-chan *packager.Envelope
	Client  *Client
	MaxSize int
	Linger  time.Duration
}

func NewPipeline(logger *zap.Logger, in <-chan *packager.Envelope, client *Client, maxSize int) *Pipeline {
	return &Pipeline{
		Logger:  logger,
		In:      in,
		Client:  client,
		MaxSize: maxSize,
		Linger:  time.Second,
	}
}

// Run collects and flushes until ctx is cancelled, then flushes once more so
// completed results still reach the queue before the final Flush.
func (p *Pipeline) Run(ctx context.Context) {
	ticker := time.NewTicker(p.Linger)
	defer ticker.Stop()

	var buf []*packager.Envelope
	for {
		select {
		case <-ctx.Done():
			// drain what already completed before the final flush
			for {
				select {
				case env := <-p.In:
					buf = append(buf, env)
					continue
				default:
				}
				break
			}
			p.flush(buf)
			return
		case env := <-p.In:
			buf = append(buf, env)
		case <-ticker.C:
			p.flush(buf)
			buf = nil
		}
	}
}

func (p *Pipeline) flush(buf []*packager.Envelope) {
	if len(buf) == 0 {
		return
	}
	packages, rejected := packager.Pack(buf, p.MaxSize)

	// An oversized single result is an error in its own right: reported,
	// replaced by a synthetic error envelope, never packaged as-is.
	for _, env := range rejected {
		size := 0
		if b, err := env.Encode(); err == nil {
			size = len(b)
		}
		p.Logger.Error("oversized_result",
			zap.Int("asset_id", env.AssetID),
			zap.String("check", env.Check),
			zap.Int("size", size),
			zap.Int("limit", p.MaxSize),
		)
		syn, _ := packager.Pack([]*packager.Envelope{packager.Oversized(env, size, p.MaxSize)}, p.MaxSize)
		packages = append(packages, syn...)
	}

	for _, pkg := range packages {
		p.Client.Submit(pkg)
	}
}
