// demoprobe shows a minimal probekit collector: an HTTP reachability check
// and a TCP connect check against configured assets.
//
// Example asset configuration:
//
//	demoprobe:
//	  config:
//	    checks:
//	      http:
//	        interval: 60
//	  assets:
//	  - id: 1
//	    name: example
//	    config:
//	      url: https://example.com
//	      address: example.com:443
package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hamed0406/probekit"
	"github.com/hamed0406/probekit/check"
)

func main() {
	p, err := probekit.New("demoprobe", "0.3.0")
	if err != nil {
		log.Fatal(err)
	}
	if err := p.RegisterCheck("http", httpCheck); err != nil {
		log.Fatal(err)
	}
	if err := p.RegisterCheck("tcp", tcpCheck); err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := p.Run(ctx); err != nil {
		log.Printf("probe stopped: %v", err)
	}
}

// httpCheck reports reachability, status code and latency for the asset's
// configured URL.
func httpCheck(ctx context.Context, asset check.Asset, assetCfg, checkCfg check.Config) (check.Result, error) {
	url := assetCfg.Str("url", "")
	if url == "" {
		// asset not configured for this check; skip quietly
		return nil, check.ErrIgnoreResult
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, check.Failf("bad url %q: %v", url, err)
	}

	start := time.Now()
	resp, err := http.DefaultClient.Do(req)
	latency := time.Since(start).Seconds() * 1000 // ms
	if err != nil {
		return nil, check.Failf("http request failed: %v", err)
	}
	defer resp.Body.Close()

	up := resp.StatusCode >= 200 && resp.StatusCode < 400
	return check.Result{
		"http": {{
			"name":       url,
			"up":         up,
			"status":     resp.StatusCode,
			"latency_ms": latency,
		}},
	}, nil
}

// tcpCheck measures connect latency to the asset's address.
func tcpCheck(ctx context.Context, asset check.Asset, assetCfg, checkCfg check.Config) (check.Result, error) {
	address := assetCfg.Str("address", "")
	if address == "" {
		return nil, check.ErrIgnoreResult
	}

	var d net.Dialer
	start := time.Now()
	conn, err := d.DialContext(ctx, "tcp", address)
	latency := time.Since(start).Seconds() * 1000
	if err != nil {
		return nil, check.Failf("tcp connect failed: %v", err)
	}
	conn.Close()

	return check.Result{
		"tcp": {{
			"name":       address,
			"up":         true,
			"latency_ms": latency,
		}},
	}, nil
}
