package watch

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"compliance_framework/config"
	"compliance_framework/internal/store"
)

// Watcher monitors the notices directory for new regulatory text files and
// records them as pending notices. How the text gets there (scraping,
// manual drop, upstream feed) is someone else's problem.
type Watcher struct {
	cfg   config.Config
	store *store.Store
	now   func() time.Time
}

func New(cfg config.Config, st *store.Store) *Watcher {
	return &Watcher{cfg: cfg, store: st, now: time.Now}
}

func (w *Watcher) Start(ctx context.Context) error {
	if !w.cfg.EnableWatcher {
		log.Println("watcher disabled")
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case evt := <-watcher.Events:
				if evt.Op&(fsnotify.Create|fsnotify.Rename) != 0 && w.isNotice(evt.Name) {
					w.ingest(ctx, evt.Name)
				}
			case err := <-watcher.Errors:
				log.Printf("watcher error: %v", err)
			}
		}
	}()
	return watcher.Add(w.cfg.NoticesDir)
}

// Backfill ingests notice files already present at startup.
func (w *Watcher) Backfill(ctx context.Context) error {
	entries, err := filepath.Glob(filepath.Join(w.cfg.NoticesDir, "*"))
	if err != nil {
		return err
	}
	for _, e := range entries {
		if w.isNotice(e) {
			w.ingest(ctx, e)
		}
	}
	return nil
}

func (w *Watcher) ingest(ctx context.Context, path string) {
	body, err := os.ReadFile(path)
	if err != nil {
		log.Printf("notice read failed %s: %v", path, err)
		return
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		return
	}
	notice := store.Notice{
		ID:     uuid.NewString(),
		Source: filepath.Base(path),
		Body:   text,
	}
	if err := w.store.InsertNotice(ctx, notice, w.now().UTC()); err != nil {
		log.Printf("notice insert failed %s: %v", path, err)
		return
	}
	log.Printf("notice ingested: %s", notice.Source)
}

func (w *Watcher) isNotice(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		return true
	default:
		return false
	}
}
