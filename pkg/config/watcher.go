package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/orbsec/organization-service/pkg/observability"
)

const defaultDebounce = 250 * time.Millisecond

// Watcher reloads a policy file whenever it changes on disk. The parent
// directory is watched so that editors and ConfigMap updates, which replace
// the file instead of writing it, are seen too.
type Watcher struct {
	path     string
	apply    func(*PolicyFile)
	logger   *observability.Logger
	debounce time.Duration
}

// NewWatcher creates a watcher that hands every successfully parsed version
// of path to apply. An invalid file is logged and the previous version stays
// in effect.
func NewWatcher(path string, apply func(*PolicyFile), logger *observability.Logger) *Watcher {
	return &Watcher{
		path:     filepath.Clean(path),
		apply:    apply,
		logger:   logger.WithField("policy_file", path),
		debounce: defaultDebounce,
	}
}

// Load parses the file once and applies it
func (w *Watcher) Load() error {
	pf, err := LoadPolicyFile(w.path)
	if err != nil {
		return err
	}
	w.apply(pf)
	w.logger.WithField("policies", len(pf.Policies)).Info("policy file loaded")
	return nil
}

// Run watches the file until ctx is done
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			timer.Reset(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Warn("policy file watcher error")

		case <-timer.C:
			if err := w.Load(); err != nil {
				w.logger.WithError(err).Error("policy file reload failed, keeping previous policies")
			}
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return false
	}
	name := filepath.Clean(event.Name)
	// ConfigMaps swap a ..data symlink rather than touching the file
	return name == w.path || filepath.Base(name) == "..data"
}
