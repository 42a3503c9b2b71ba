package app

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"compliance_framework/config"
	"compliance_framework/internal/events"
	"compliance_framework/internal/httpapi"
	"compliance_framework/internal/notify"
	"compliance_framework/internal/sched"
	"compliance_framework/internal/store"
	"compliance_framework/internal/watch"
	"compliance_framework/pipeline"
)

// App wires the reconciliation pipeline components together.
type App struct {
	cfg     config.Config
	store   *store.Store
	trigger *sched.Trigger
	watcher *watch.Watcher
	mux     *http.ServeMux
}

func New(cfg config.Config) (*App, error) {
	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.NoticesDir, 0o755); err != nil {
		return nil, err
	}
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	client := &http.Client{Timeout: time.Duration(cfg.Pipeline.RequestTimeoutSec) * time.Second}
	bus := events.NewBus()
	service := pipeline.NewService(
		st,
		pipeline.NewExtractor(client, cfg.Pipeline, cfg.Prompts),
		pipeline.NewValidator(client, cfg.Pipeline, cfg.Prompts),
		bus,
		notify.New(cfg.WebhookURL, client),
	)
	trigger := sched.New(cfg, service)
	watcher := watch.New(cfg, st)

	mux := http.NewServeMux()
	router := httpapi.NewRouter(cfg, st, trigger, bus)
	router.Register(mux)

	return &App{cfg: cfg, store: st, trigger: trigger, watcher: watcher, mux: mux}, nil
}

// Run starts the watcher, the daily trigger, and the ops HTTP server.
func (a *App) Run(ctx context.Context) error {
	if err := a.watcher.Backfill(ctx); err != nil {
		log.Printf("notice backfill failed: %v", err)
	}
	if a.cfg.EnableWatcher {
		if err := a.watcher.Start(ctx); err != nil {
			return err
		}
	}
	a.trigger.Start(ctx)

	srv := &http.Server{Addr: a.cfg.HTTPPort, Handler: a.mux}
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()
	log.Printf("ops listening on %s", a.cfg.HTTPPort)
	return srv.ListenAndServe()
}

func (a *App) Store() *store.Store     { return a.store }
func (a *App) Trigger() *sched.Trigger { return a.trigger }
func (a *App) Mux() *http.ServeMux     { return a.mux }
