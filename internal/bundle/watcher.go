package bundle

import (
	"context"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/akvo/akvo-flow-mobile-sub002/internal/logging"
)

// Watcher observes the bundle inbox and nudges the install worker
// when a new archive lands, so installs happen on arrival instead of
// waiting for the next periodic scan.
type Watcher struct {
	inbox  string
	notify chan<- struct{}
	fsw    *fsnotify.Watcher
}

// NewWatcher creates a watcher on the inbox directory. notify
// receives a nudge per relevant filesystem event; sends are
// non-blocking, a busy worker coalesces them.
func NewWatcher(inbox string, notify chan<- struct{}) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(inbox); err != nil {
		fsw.Close()
		return nil, err
	}
	return &Watcher{inbox: inbox, notify: notify, fsw: fsw}, nil
}

// Run dispatches inbox events until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	defer w.fsw.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !relevant(ev) {
				continue
			}
			logging.WithFields(logging.Fields{"file": ev.Name}).
				Debugf("bundle inbox event %s", ev.Op)
			select {
			case w.notify <- struct{}{}:
			default:
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logging.Get().WithError(err).Warn("bundle inbox watch error")
		}
	}
}

// relevant filters out marker renames and hidden files so the
// installer's own bookkeeping does not re-trigger it.
func relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
		return false
	}
	name := ev.Name
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	if strings.HasPrefix(name, ".") {
		return false
	}
	return !strings.HasSuffix(name, processedSuffix) && !strings.HasSuffix(name, errorSuffix)
}
