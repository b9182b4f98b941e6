package ml

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// BundleWatcher reloads the artifact at path when it is replaced on disk and swaps
// the new predictor into a registry. A bundle that fails to load is logged and the
// previous one keeps serving.
type BundleWatcher struct {
	path      string
	cacheSize int
	registry  *ModelRegistry
	logger    *zap.Logger
	debounce  time.Duration
	onReload  func(path string, b *Bundle)

	watcher *fsnotify.Watcher
	started atomic.Bool
	done    chan struct{}
	once    sync.Once
}

func NewBundleWatcher(path string, cacheSize int, registry *ModelRegistry, logger *zap.Logger) (*BundleWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		w.Close()
		return nil, err
	}
	// Save renames a temp file over the target, so the directory is watched rather
	// than the file's inode.
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, err
	}
	return &BundleWatcher{
		path:      abs,
		cacheSize: cacheSize,
		registry:  registry,
		logger:    logger,
		debounce:  250 * time.Millisecond,
		watcher:   w,
		done:      make(chan struct{}),
	}, nil
}

// OnReload registers fn to run after each successful swap. It must be called
// before Start.
func (bw *BundleWatcher) OnReload(fn func(path string, b *Bundle)) {
	bw.onReload = fn
}

// Start runs the event loop until ctx is cancelled or Close is called.
func (bw *BundleWatcher) Start(ctx context.Context) {
	if bw.started.Swap(true) {
		return
	}
	go bw.run(ctx)
}

func (bw *BundleWatcher) Close() error {
	var err error
	bw.once.Do(func() {
		err = bw.watcher.Close()
		if bw.started.Load() {
			<-bw.done
		}
	})
	return err
}

func (bw *BundleWatcher) run(ctx context.Context) {
	defer close(bw.done)

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-bw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != bw.path {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(bw.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(bw.debounce)
			}
			pending = timer.C
		case <-pending:
			pending = nil
			bw.reload()
		case err, ok := <-bw.watcher.Errors:
			if !ok {
				return
			}
			bw.logger.Warn("model watcher error", zap.Error(err))
		}
	}
}

func (bw *BundleWatcher) reload() {
	bundle, err := LoadBundle(bw.path)
	if err != nil {
		bw.logger.Warn("model reload failed, keeping current bundle", zap.String("path", bw.path), zap.Error(err))
		return
	}
	predictor, err := NewPredictor(bundle, bw.cacheSize)
	if err != nil {
		bw.logger.Warn("model reload failed, keeping current bundle", zap.String("path", bw.path), zap.Error(err))
		return
	}
	bw.registry.Swap(predictor)
	bw.logger.Info("model bundle reloaded",
		zap.String("path", bw.path),
		zap.String("model_type", bundle.Metadata.ModelType),
		zap.Int("rows", bundle.Metadata.Rows),
		zap.Time("trained_at", bundle.Metadata.TrainedAt))
	if bw.onReload != nil {
		bw.onReload(bw.path, bundle)
	}
}
