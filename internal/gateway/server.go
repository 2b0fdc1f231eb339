// Package gateway exposes the worker over HTTP: a small control API under
// /_worker/ and a proxy that sends every other request through the worker's
// fetch handler.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/pders01/storykeep/internal/debuglog"
	"github.com/pders01/storykeep/internal/offline"
	"github.com/pders01/storykeep/internal/worker"
)

const (
	shutdownTimeout = 5 * time.Second
	maxPushBody     = 64 << 10
)

// Worker is the event boundary the gateway drives.
type Worker interface {
	Dispatch(ctx context.Context, ev worker.Event) (worker.Effect, error)
	State() worker.State
}

type StatusReporter interface {
	Status() (offline.Status, error)
}

type Server struct {
	addr   string
	origin *url.URL
	worker Worker
	status StatusReporter
	router *httprouter.Router
	log    *debuglog.FieldLogger
}

// New builds the server. Proxied requests are resolved against origin.
func New(addr string, origin *url.URL, w Worker, status StatusReporter) *Server {
	s := &Server{
		addr:   addr,
		origin: origin,
		worker: w,
		status: status,
		router: httprouter.New(),
		log:    debuglog.Component("gateway"),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleMethodNotAllowed = false
	s.router.POST("/_worker/message", s.handleMessage())
	s.router.GET("/_worker/status", s.handleStatus())
	s.router.POST("/_worker/push", s.handlePush())
	s.router.POST("/_worker/notificationclick", s.handleNotificationClick())
	s.router.POST("/_worker/sync", s.handleSync())
	s.router.NotFound = http.HandlerFunc(s.handleFetch)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.router.ServeHTTP(rec, r)
	s.log.With("method", r.Method).
		With("path", r.URL.Path).
		With("status", rec.status).
		With("duration", time.Since(start).String()).
		Debugf("request")
}

// ListenAndServe serves until ctx is done and then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Infof("listening on %s", ln.Addr())
		errc <- httpServer.Serve(ln)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}

func (s *Server) handleMessage() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var msg worker.Message
		if err := json.NewDecoder(io.LimitReader(r.Body, maxPushBody)).Decode(&msg); err != nil {
			writeError(w, http.StatusBadRequest, "invalid message: "+err.Error())
			return
		}
		s.dispatch(w, r, msg)
	}
}

func (s *Server) handleSync() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		ev := worker.BackgroundSync{Tag: worker.SyncTag}
		if tag := r.URL.Query().Get("tag"); tag != "" {
			ev.Tag = tag
		}
		s.dispatch(w, r, ev)
	}
}

func (s *Server) handlePush() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		data, err := io.ReadAll(io.LimitReader(r.Body, maxPushBody))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.dispatch(w, r, worker.Push{Data: data})
	}
}

func (s *Server) handleNotificationClick() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var click struct {
			Action string `json:"action"`
			URL    string `json:"url"`
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, maxPushBody)).Decode(&click); err != nil {
			writeError(w, http.StatusBadRequest, "invalid click: "+err.Error())
			return
		}
		s.dispatch(w, r, worker.NotificationClick{Action: click.Action, URL: click.URL})
	}
}

// effectBody is the JSON form of a worker effect.
type effectBody struct {
	Error        bool                 `json:"error"`
	Message      string               `json:"message"`
	Notification *worker.Notification `json:"notification,omitempty"`
	Close        bool                 `json:"closeNotification,omitempty"`
	OpenWindow   string               `json:"openWindow,omitempty"`
	Deleted      []string             `json:"deleted,omitempty"`
	Sync         *syncBody            `json:"sync,omitempty"`
}

type syncBody struct {
	Skipped   bool   `json:"skipped"`
	Reason    string `json:"reason,omitempty"`
	Attempted int    `json:"attempted"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Error     string `json:"error,omitempty"`
}

// dispatch sends ev to the worker. Triggered syncs are awaited only when
// the request asks for it with ?wait=1.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, ev worker.Event) {
	eff, err := s.worker.Dispatch(r.Context(), ev)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, worker.ErrUnknownMessage) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}

	body := effectBody{
		Message:      "ok",
		Notification: eff.Notification,
		Close:        eff.CloseNotification,
		OpenWindow:   eff.OpenWindow,
		Deleted:      eff.Deleted,
	}
	status := http.StatusOK

	if eff.Sync != nil {
		if r.URL.Query().Get("wait") == "" {
			writeJSON(w, http.StatusAccepted, effectBody{Message: "sync scheduled"})
			return
		}
		select {
		case out := <-eff.Sync:
			sb := &syncBody{
				Skipped:   out.Result.Skipped,
				Reason:    out.Result.Reason,
				Attempted: out.Result.Attempted,
				Succeeded: out.Result.Succeeded,
				Failed:    len(out.Result.Failures),
			}
			if out.Err != nil {
				sb.Error = out.Err.Error()
			}
			body.Sync = sb
		case <-r.Context().Done():
			return
		}
	}
	writeJSON(w, status, body)
}

func (s *Server) handleStatus() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		st, err := s.status.Status()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"worker":   s.worker.State().String(),
			"online":   st.Online,
			"syncing":  st.Syncing,
			"pending":  st.Pending,
			"loggedIn": st.LoggedIn,
		})
	}
}

// handleFetch proxies everything outside /_worker/ to the app origin
// through the worker.
func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	target := s.origin.ResolveReference(&url.URL{Path: r.URL.Path, RawQuery: r.URL.RawQuery})

	out := r.Clone(r.Context())
	out.URL = target
	out.Host = target.Host
	out.RequestURI = ""

	eff, err := s.worker.Dispatch(r.Context(), worker.Fetch{Request: out})
	if err != nil {
		s.log.Warnf("fetch %s failed: %v", target, err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	resp := eff.Response
	if resp == nil {
		writeError(w, http.StatusBadGateway, "worker returned no response")
		return
	}
	defer resp.Body.Close()

	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		s.log.Debugf("copying response for %s: %v", target, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, effectBody{Error: true, Message: msg})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
