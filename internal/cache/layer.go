// Package cache intercepts outbound requests and applies a per-route
// caching policy backed by the durable store's cache partitions.
package cache

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pders01/storykeep/internal/debuglog"
	"github.com/pders01/storykeep/internal/storage"
)

// HeaderCache is set to "HIT" on responses served from a partition.
const HeaderCache = "X-Cache"

// Store is the cache partition API of storage.Store.
type Store interface {
	CacheNames() ([]string, error)
	OpenCache(name string) error
	DeleteCache(name string) error
	CachePut(name string, resp *storage.CachedResponse) error
	CacheMatch(name, key string) (*storage.CachedResponse, error)
	CacheMatchAny(key string) (*storage.CachedResponse, error)
}

type Config struct {
	StaticName  string
	DynamicName string
	// APIBase is the remote story service base URL. Reads below its
	// /stories path are handled network-first with an offline answer.
	APIBase *url.URL
	// AppOrigin resolves manifest paths and the application shell.
	AppOrigin    *url.URL
	MaxAssetSize int64
	Manifest     *Manifest
}

type route int

const (
	routePassThrough route = iota
	routeAPIRead
	routeAPIOther
	routeStatic
	routeDynamic
)

func (r route) String() string {
	switch r {
	case routeAPIRead:
		return "api-read"
	case routeAPIOther:
		return "api"
	case routeStatic:
		return "static"
	case routeDynamic:
		return "dynamic"
	default:
		return "pass-through"
	}
}

// Layer is an http.RoundTripper applying the routing table:
//
//  1. non-GET requests pass through untouched
//  2. story API reads are network-first with a synthesized offline answer
//  3. manifest assets are cache-first
//  4. everything else is network-first, with the app shell for navigations
type Layer struct {
	base   http.RoundTripper
	store  Store
	cfg    Config
	static map[string]struct{}
	log    *debuglog.FieldLogger
}

func New(store Store, base http.RoundTripper, cfg Config) (*Layer, error) {
	if base == nil {
		base = http.DefaultTransport
	}
	if cfg.StaticName == "" || cfg.DynamicName == "" {
		return nil, errors.New("cache partition names are required")
	}
	if cfg.AppOrigin == nil {
		return nil, errors.New("app origin is required")
	}
	if cfg.Manifest == nil {
		m, err := DefaultManifest()
		if err != nil {
			return nil, err
		}
		cfg.Manifest = m
	}

	l := &Layer{
		base:   base,
		store:  store,
		cfg:    cfg,
		static: make(map[string]struct{}),
		log:    debuglog.Component("cache"),
	}
	for _, u := range cfg.Manifest.Resolve(cfg.AppOrigin) {
		l.static[u] = struct{}{}
	}
	return l, nil
}

func (l *Layer) route(req *http.Request) route {
	if req.Method != http.MethodGet {
		return routePassThrough
	}
	if api := l.cfg.APIBase; api != nil && sameOrigin(req.URL, api) {
		prefix := strings.TrimRight(api.Path, "/") + "/stories"
		if req.URL.Path == prefix || strings.HasPrefix(req.URL.Path, prefix+"/") {
			return routeAPIRead
		}
		return routeAPIOther
	}
	if _, ok := l.static[requestURL(req)]; ok {
		return routeStatic
	}
	return routeDynamic
}

func (l *Layer) RoundTrip(req *http.Request) (*http.Response, error) {
	r := l.route(req)
	l.log.With("route", r.String()).Debugf("%s %s", req.Method, req.URL)

	switch r {
	case routeAPIRead:
		return l.networkFirstAPI(req)
	case routeStatic:
		return l.cacheFirst(req)
	case routeDynamic:
		return l.networkFirst(req)
	default:
		return l.base.RoundTrip(req)
	}
}

func (l *Layer) networkFirstAPI(req *http.Request) (*http.Response, error) {
	resp, err := l.base.RoundTrip(req)
	if err == nil && resp.StatusCode < http.StatusInternalServerError {
		return l.store2xx(l.cfg.DynamicName, req, resp), nil
	}

	cached := l.match(l.cfg.DynamicName, req)
	if err != nil {
		l.log.Debugf("api read %s failed: %v", req.URL, err)
		if cached != nil {
			return cached, nil
		}
		return offlineResponse(req), nil
	}

	// a 5xx is a real answer; prefer the last good copy when there is one
	if cached != nil {
		resp.Body.Close()
		return cached, nil
	}
	return resp, nil
}

func (l *Layer) cacheFirst(req *http.Request) (*http.Response, error) {
	if cached := l.match(l.cfg.StaticName, req); cached != nil {
		return cached, nil
	}

	resp, err := l.base.RoundTrip(req)
	if err != nil {
		if l.cfg.Manifest.isImage(req.URL.String()) {
			l.log.Debugf("image asset %s unavailable, serving placeholder", req.URL)
			return placeholderResponse(req), nil
		}
		return nil, err
	}
	return l.store2xx(l.cfg.StaticName, req, resp), nil
}

func (l *Layer) networkFirst(req *http.Request) (*http.Response, error) {
	resp, err := l.base.RoundTrip(req)
	if err == nil {
		return l.store2xx(l.cfg.DynamicName, req, resp), nil
	}

	if cached := l.match(l.cfg.DynamicName, req); cached != nil {
		return cached, nil
	}
	if IsNavigation(req) {
		if shell := l.shell(req); shell != nil {
			return shell, nil
		}
	}
	return nil, err
}

// store2xx writes a copy of a successful response into the partition and
// returns a response with an intact body for the caller.
func (l *Layer) store2xx(partition string, req *http.Request, resp *http.Response) *http.Response {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp
	}
	maxSize := l.cfg.MaxAssetSize
	if maxSize > 0 && resp.ContentLength > maxSize {
		return resp
	}

	var body io.Reader = resp.Body
	if maxSize > 0 {
		body = io.LimitReader(resp.Body, maxSize+1)
	}
	buf, err := io.ReadAll(body)
	if err != nil {
		// hand back what was read followed by the failing remainder
		resp.Body = readCloser(io.MultiReader(bytes.NewReader(buf), resp.Body), resp.Body)
		return resp
	}
	if maxSize > 0 && int64(len(buf)) > maxSize {
		resp.Body = readCloser(io.MultiReader(bytes.NewReader(buf), resp.Body), resp.Body)
		l.log.Debugf("not caching %s: larger than %d bytes", req.URL, maxSize)
		return resp
	}
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(buf))

	entry := &storage.CachedResponse{
		Key:      storage.CacheKey(req.Method, requestURL(req)),
		Method:   req.Method,
		URL:      requestURL(req),
		Status:   resp.StatusCode,
		Header:   resp.Header.Clone(),
		Body:     buf,
		StoredAt: time.Now(),
	}
	if err := l.store.CachePut(partition, entry); err != nil {
		l.log.Warnf("caching %s in %s: %v", req.URL, partition, err)
	}
	return resp
}

func (l *Layer) match(partition string, req *http.Request) *http.Response {
	entry, err := l.store.CacheMatch(partition, storage.CacheKey(req.Method, requestURL(req)))
	if err != nil {
		l.log.Warnf("cache lookup %s in %s: %v", req.URL, partition, err)
		return nil
	}
	if entry == nil {
		return nil
	}
	return fromCache(req, entry)
}

func (l *Layer) shell(req *http.Request) *http.Response {
	shellURL := l.cfg.AppOrigin.ResolveReference(&url.URL{Path: "/"}).String()
	entry, err := l.store.CacheMatchAny(storage.CacheKey(http.MethodGet, shellURL))
	if err != nil || entry == nil {
		return nil
	}
	return fromCache(req, entry)
}

// IsNavigation reports whether req loads a full page.
func IsNavigation(req *http.Request) bool {
	if mode := req.Header.Get("Sec-Fetch-Mode"); mode != "" {
		return mode == "navigate"
	}
	return req.Method == http.MethodGet && strings.Contains(req.Header.Get("Accept"), "text/html")
}

func fromCache(req *http.Request, entry *storage.CachedResponse) *http.Response {
	header := entry.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	header.Set(HeaderCache, "HIT")
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", entry.Status, http.StatusText(entry.Status)),
		StatusCode:    entry.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(entry.Body)),
		ContentLength: int64(len(entry.Body)),
		Request:       req,
	}
}

func offlineResponse(req *http.Request) *http.Response {
	body := []byte(`{"error":true,"message":"offline"}`)
	return synthesize(req, http.StatusServiceUnavailable, "application/json", body)
}

func placeholderResponse(req *http.Request) *http.Response {
	return synthesize(req, http.StatusNotFound, "", nil)
}

func synthesize(req *http.Request, status int, contentType string, body []byte) *http.Response {
	header := make(http.Header)
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	header.Set("Content-Length", strconv.Itoa(len(body)))
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}

func requestURL(req *http.Request) string {
	u := *req.URL
	u.Fragment = ""
	return u.String()
}

func sameOrigin(a, b *url.URL) bool {
	return strings.EqualFold(a.Scheme, b.Scheme) && strings.EqualFold(a.Host, b.Host)
}

type multiCloser struct {
	io.Reader
	io.Closer
}

func readCloser(r io.Reader, c io.Closer) io.ReadCloser {
	return multiCloser{Reader: r, Closer: c}
}
