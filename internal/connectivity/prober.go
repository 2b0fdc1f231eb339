package connectivity

import (
	"context"
	"net/http"
	"time"

	"github.com/pders01/storykeep/internal/debuglog"
)

// Pinger checks whether the remote service can be reached. Any HTTP answer
// counts as reachable; only transport failures are errors.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Prober feeds the monitor from periodic reachability checks, standing in
// for the link-layer events a browser would deliver.
type Prober struct {
	monitor  *Monitor
	pinger   Pinger
	interval time.Duration
	timeout  time.Duration
	log      *debuglog.FieldLogger
}

func NewProber(monitor *Monitor, pinger Pinger, interval time.Duration) *Prober {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	timeout := 5 * time.Second
	if interval < timeout {
		timeout = interval
	}
	return &Prober{
		monitor:  monitor,
		pinger:   pinger,
		interval: interval,
		timeout:  timeout,
		log:      debuglog.Component("prober"),
	}
}

// Check performs one probe and updates the monitor.
func (p *Prober) Check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.pinger.Ping(ctx)
	if err != nil {
		p.log.Debugf("probe failed: %v", err)
	}
	online := err == nil
	p.monitor.SetOnline(online)
	return online
}

// Run probes immediately and then on every interval until ctx is done.
func (p *Prober) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.Check(ctx)
		}
	}
}

// HTTPPinger probes a fixed URL with HEAD requests.
type HTTPPinger struct {
	URL    string
	Client *http.Client
}

func (p HTTPPinger) Ping(ctx context.Context) error {
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.URL, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}
