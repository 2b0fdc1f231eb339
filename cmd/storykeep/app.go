package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/pders01/storykeep/internal/cache"
	"github.com/pders01/storykeep/internal/config"
	"github.com/pders01/storykeep/internal/connectivity"
	"github.com/pders01/storykeep/internal/debuglog"
	"github.com/pders01/storykeep/internal/offline"
	"github.com/pders01/storykeep/internal/queue"
	"github.com/pders01/storykeep/internal/remote"
	"github.com/pders01/storykeep/internal/search"
	"github.com/pders01/storykeep/internal/storage"
	"github.com/pders01/storykeep/internal/syncer"
	"github.com/pders01/storykeep/internal/validation"
	"github.com/pders01/storykeep/internal/worker"
)

// app is every component wired together for one process.
type app struct {
	cfg        *config.Config
	origin     *url.URL
	store      *storage.Store
	monitor    *connectivity.Monitor
	prober     *connectivity.Prober
	queue      *queue.Queue
	layer      *cache.Layer
	client     *remote.Client
	engine     *syncer.Engine
	dispatcher *syncer.Dispatcher
	worker     *worker.Worker
	index      *search.BleveEngine
	manager    *offline.Manager
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	return cfg, nil
}

func newApp(cfg *config.Config) (*app, error) {
	debuglog.SetFormat(cfg.Log.Format)
	if err := debuglog.Setup(debuglog.ParseLogLevel(cfg.Log.Level), cfg.Log.Path); err != nil {
		return nil, fmt.Errorf("setting up logging: %w", err)
	}

	urls := validation.NewPermissiveBaseURLValidator()
	baseURL, err := urls.ValidateAndNormalize(cfg.Remote.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("remote.base_url: %w", err)
	}
	originURL, err := urls.ValidateAndNormalize(cfg.Cache.AppOrigin)
	if err != nil {
		return nil, fmt.Errorf("cache.app_origin: %w", err)
	}
	apiBase, _ := url.Parse(baseURL)
	origin, _ := url.Parse(originURL)

	manifest, err := loadManifest(cfg.Cache.Manifest)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, origin: origin}
	a.store = storage.Open(cfg.Database.Path, storage.Options{Timeout: cfg.Database.Timeout})
	a.monitor = connectivity.NewMonitor(!forceOffline)
	a.queue = queue.New(a.store)

	a.layer, err = cache.New(a.store, http.DefaultTransport, cache.Config{
		StaticName:   cfg.Cache.StaticName(),
		DynamicName:  cfg.Cache.DynamicName(),
		APIBase:      apiBase,
		AppOrigin:    origin,
		MaxAssetSize: cfg.Cache.MaxAssetSize,
		Manifest:     manifest,
	})
	if err != nil {
		return nil, fmt.Errorf("building cache layer: %w", err)
	}

	tokens := offline.NewTokenSource(a.store, cfg.Remote.Token)
	a.client = remote.New(remote.Options{
		BaseURL:   baseURL,
		UserAgent: cfg.Remote.UserAgent,
		Timeout:   cfg.Remote.HTTPTimeout,
		Transport: a.layer,
		Tokens:    tokens,
	})

	a.engine = syncer.NewEngine(syncer.Deps{
		Queue:  a.queue,
		Remote: a.client,
		Tokens: tokens,
		Conn:   a.monitor,
		Local:  a.store,
	}, syncer.Options{RequeueFailed: cfg.Sync.RequeueFailed})
	a.dispatcher = syncer.NewDispatcher(a.engine, cfg.Sync.QueueSize)
	a.monitor.OnOnline(a.dispatcher.Notify)

	var pinger connectivity.Pinger = a.client
	if cfg.Sync.ProbeURL != "" {
		pinger = connectivity.HTTPPinger{URL: cfg.Sync.ProbeURL}
	}
	a.prober = connectivity.NewProber(a.monitor, pinger, cfg.Sync.ProbeInterval)

	a.worker = worker.New(a.layer, a.dispatcher, worker.Options{SkipWaiting: true})

	deps := offline.Deps{
		Store:      a.store,
		Queue:      a.queue,
		Remote:     a.client,
		Monitor:    a.monitor,
		Tokens:     tokens,
		Dispatcher: a.dispatcher,
		Engine:     a.engine,
	}
	deps.Index = search.NewEngine(a.store)
	if cfg.Search.Enabled {
		a.index, err = search.NewBleveEngine(a.store, cfg.Search.IndexPath)
		if err != nil {
			debuglog.Warnf("opening search index, falling back to scanning search: %v", err)
			a.index = nil
		} else {
			deps.Index = a.index
		}
	}
	a.manager = offline.NewManager(deps)
	return a, nil
}

func loadManifest(path string) (*cache.Manifest, error) {
	if path == "" {
		return cache.DefaultManifest()
	}
	m, err := cache.LoadManifest(path)
	if err != nil {
		return nil, fmt.Errorf("loading asset manifest: %w", err)
	}
	return m, nil
}

// probe settles the connectivity state before a one-shot command runs.
func (a *app) probe(ctx context.Context) bool {
	if forceOffline {
		a.monitor.SetOnline(false)
		return false
	}
	return a.prober.Check(ctx)
}

func (a *app) close() {
	if a.index != nil {
		if err := a.index.Close(); err != nil {
			debuglog.Warnf("closing search index: %v", err)
		}
	}
	if err := a.store.Close(); err != nil {
		debuglog.Warnf("closing store: %v", err)
	}
	_ = debuglog.Close()
}

// withApp builds the app, runs fn and tears everything down.
func withApp(ctx context.Context, fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	err = fn(ctx, a)
	if errors.Is(err, storage.ErrStoreUnavailable) {
		return fmt.Errorf("%w (is another storykeep running?)", err)
	}
	return err
}
