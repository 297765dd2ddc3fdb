// Package modelwatch reloads the served ensemble when its artifact file
// changes on disk.
package modelwatch

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/hed1ad/spendguard/internal/metrics"
	"github.com/hed1ad/spendguard/pkg/detectors/iforest"
	"github.com/hed1ad/spendguard/pkg/store"
)

// DefaultDebounce batches the burst of events produced by a single save.
const DefaultDebounce = 500 * time.Millisecond

// Watcher swaps a freshly decoded ensemble into a Holder after the artifact
// for key is rewritten.
type Watcher struct {
	store    *store.FileStore
	key      string
	holder   *iforest.Holder
	logger   logrus.FieldLogger
	debounce time.Duration
}

// New returns a Watcher for key in s. A non-positive debounce selects
// DefaultDebounce.
func New(s *store.FileStore, key string, holder *iforest.Holder, logger logrus.FieldLogger, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		store:    s,
		key:      key,
		holder:   holder,
		logger:   logger,
		debounce: debounce,
	}
}

// Run watches the store directory until ctx is done. The directory is watched
// rather than the file because saves replace the file by rename.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.store.Dir()); err != nil {
		return fmt.Errorf("watch %s: %w", w.store.Dir(), err)
	}

	target := w.store.Path(w.key)
	w.logger.WithField("path", target).Info("watching model artifact")

	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !shouldReload(event, target) {
				continue
			}
			if !pending {
				timer.Reset(w.debounce)
				pending = true
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Warn("watch error")
		case <-timer.C:
			pending = false
			// A failed reload keeps serving the previous ensemble.
			_ = w.Reload(ctx)
		}
	}
}

// Reload loads the artifact and installs it.
func (w *Watcher) Reload(ctx context.Context) error {
	e, err := store.LoadEnsemble(ctx, w.store, w.key)
	if err != nil {
		metrics.ModelReloadsTotal.WithLabelValues("error").Inc()
		w.logger.WithError(err).Error("model reload failed, keeping current model")
		return err
	}

	prev := w.holder.Swap(e)
	metrics.ModelReloadsTotal.WithLabelValues("success").Inc()
	metrics.SetModel(e)

	fields := logrus.Fields{"model_id": e.ID.String(), "trees": e.Len()}
	if prev != nil {
		fields["previous_id"] = prev.ID.String()
	}
	w.logger.WithFields(fields).Info("model reloaded")
	return nil
}

func shouldReload(event fsnotify.Event, target string) bool {
	if filepath.Clean(event.Name) != filepath.Clean(target) {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}
