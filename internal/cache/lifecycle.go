package cache

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/sync/errgroup"
)

const installConcurrency = 4

// InstallReport lists which manifest assets were precached.
type InstallReport struct {
	Cached []string
	Failed map[string]error
}

// Install precaches every manifest asset into the static partition. Asset
// failures are logged and reported, never fatal; only a store that cannot
// open the partition returns an error.
func (l *Layer) Install(ctx context.Context) (*InstallReport, error) {
	if err := l.store.OpenCache(l.cfg.StaticName); err != nil {
		return nil, fmt.Errorf("opening %s: %w", l.cfg.StaticName, err)
	}

	report := &InstallReport{Failed: make(map[string]error)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(installConcurrency)

	for _, asset := range l.cfg.Manifest.Resolve(l.cfg.AppOrigin) {
		asset := asset
		g.Go(func() error {
			err := l.precache(gctx, asset)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				l.log.Warnf("failed to precache %s: %v", asset, err)
				report.Failed[asset] = err
				return nil
			}
			report.Cached = append(report.Cached, asset)
			return nil
		})
	}
	_ = g.Wait()

	l.log.Infof("installed %s: %d cached, %d failed", l.cfg.StaticName, len(report.Cached), len(report.Failed))
	return report, nil
}

func (l *Layer) precache(ctx context.Context, asset string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, asset, nil)
	if err != nil {
		return err
	}
	resp, err := l.base.RoundTrip(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	l.store2xx(l.cfg.StaticName, req, resp)
	return nil
}

// Activate deletes every partition that belongs to another version and
// returns the names it removed.
func (l *Layer) Activate() ([]string, error) {
	names, err := l.store.CacheNames()
	if err != nil {
		return nil, fmt.Errorf("listing caches: %w", err)
	}

	var deleted []string
	for _, name := range names {
		if name == l.cfg.StaticName || name == l.cfg.DynamicName {
			continue
		}
		if err := l.store.DeleteCache(name); err != nil {
			return deleted, fmt.Errorf("deleting %s: %w", name, err)
		}
		l.log.Infof("deleted old cache %s", name)
		deleted = append(deleted, name)
	}
	if err := l.store.OpenCache(l.cfg.DynamicName); err != nil {
		return deleted, fmt.Errorf("opening %s: %w", l.cfg.DynamicName, err)
	}
	return deleted, nil
}

// Names returns the current static and dynamic partition names.
func (l *Layer) Names() (static, dynamic string) {
	return l.cfg.StaticName, l.cfg.DynamicName
}
