package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"

	"compliance_framework/config"
	"compliance_framework/internal/events"
	"compliance_framework/internal/metrics"
	"compliance_framework/internal/sched"
	"compliance_framework/internal/store"
)

const recentEventCap = 50

// Router builds the /ops handlers for the background service. There is no
// user-facing surface here; dashboards live elsewhere.
type Router struct {
	cfg     config.Config
	store   *store.Store
	trigger *sched.Trigger

	mu     sync.Mutex
	recent []events.Event
}

func NewRouter(cfg config.Config, st *store.Store, trigger *sched.Trigger, bus *events.Bus) *Router {
	r := &Router{cfg: cfg, store: st, trigger: trigger}
	if bus != nil {
		go r.collect(bus.Subscribe())
	}
	return r
}

func (r *Router) Register(mux *http.ServeMux) {
	mux.HandleFunc("/ops/health", r.health)
	mux.HandleFunc("/ops/status", r.status)
	mux.HandleFunc("/ops/run", r.run)
	mux.HandleFunc("/ops/overrides", r.overrides)
	mux.HandleFunc("/ops/notices", r.notices)
	mux.HandleFunc("/ops/metrics", r.metrics)
}

func (r *Router) collect(ch <-chan events.Event) {
	for ev := range ch {
		r.mu.Lock()
		r.recent = append(r.recent, ev)
		if len(r.recent) > recentEventCap {
			r.recent = r.recent[len(r.recent)-recentEventCap:]
		}
		r.mu.Unlock()
	}
}

func (r *Router) health(w http.ResponseWriter, req *http.Request) {
	if err := r.store.Health(req.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	respondJSON(w, map[string]string{"status": "ok"})
}

func (r *Router) status(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	runs, _ := r.store.ListRuns(ctx, 5)
	notices, _ := r.store.ListNotices(ctx, 10)
	r.mu.Lock()
	recent := append([]events.Event(nil), r.recent...)
	r.mu.Unlock()
	respondJSON(w, map[string]any{
		"runs":    runs,
		"notices": notices,
		"events":  recent,
	})
}

func (r *Router) run(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	// Detach from the request context so a dropped connection does not
	// abort a half-finished pass.
	result, err := r.trigger.RunOnce(context.WithoutCancel(req.Context()))
	switch {
	case errors.Is(err, sched.ErrNoCredentials):
		http.Error(w, err.Error(), http.StatusPreconditionFailed)
		return
	case errors.Is(err, sched.ErrRunInProgress):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, result)
}

func (r *Router) overrides(w http.ResponseWriter, req *http.Request) {
	list, err := r.store.ListOverrides(req.Context(), 100)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, list)
}

func (r *Router) notices(w http.ResponseWriter, req *http.Request) {
	list, err := r.store.ListNotices(req.Context(), 100)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, list)
}

func (r *Router) metrics(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, metrics.Snapshot())
}

func respondJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("respond json: %v", err)
	}
}
