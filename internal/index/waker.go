package index

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Waker signals when a file-backed queue is written, so an idle host can
// drain without waiting out its poll interval.
type Waker struct {
	fsw      *fsnotify.Watcher
	prefix   string
	c        chan struct{}
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewWaker watches the directory holding queuePath. Writes to the queue file
// or its SQLite sidecars (-wal, -journal) trigger a wake.
func NewWaker(queuePath string) (*Waker, error) {
	abs, err := filepath.Abs(queuePath)
	if err != nil {
		return nil, fmt.Errorf("resolve queue path: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	w := &Waker{
		fsw:    fsw,
		prefix: filepath.Base(abs),
		c:      make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	w.wg.Add(1)
	go w.loop()
	return w, nil
}

// C delivers at most one pending wake at a time.
func (w *Waker) C() <-chan struct{} {
	return w.c
}

// Close stops watching. Safe to call more than once.
func (w *Waker) Close() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.fsw.Close()
		w.wg.Wait()
	})
	return err
}

func (w *Waker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				w.handle(ev.Name)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Debug("queue_watch_error", slog.String("error", err.Error()))
		}
	}
}

func (w *Waker) handle(name string) {
	if !strings.HasPrefix(filepath.Base(name), w.prefix) {
		return
	}
	select {
	case w.c <- struct{}{}:
	default:
	}
}
