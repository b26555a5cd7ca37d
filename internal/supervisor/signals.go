package supervisor

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Signal file names inside the control directory.
const (
	stopSignalFile  = "stop"
	pauseSignalFile = "pause"
)

// Signals watches a control directory for out-of-band pause/stop signal
// files, so an operator can pause or halt a running supervisor without
// talking to the process.
type Signals struct {
	dir string

	mu      sync.RWMutex
	stopped bool

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// WatchSignals creates the control directory and starts watching it.
func WatchSignals(dir string) (*Signals, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	s := &Signals{dir: dir, done: make(chan struct{})}

	// The watcher gives immediate reaction; ShouldStop/ShouldPause also
	// stat the files directly, so a missed event only delays a signal.
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return s, nil
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return s, nil
	}
	s.watcher = watcher
	go s.watch()

	return s, nil
}

func (s *Signals) watch() {
	for {
		select {
		case <-s.done:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) == stopSignalFile &&
				event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				s.mu.Lock()
				s.stopped = true
				s.mu.Unlock()
			}
		case <-s.watcher.Errors:
			// Keep watching; the stat fallback covers missed events.
		}
	}
}

// ShouldStop reports whether a stop signal has been received. Stop is
// sticky: once seen it stays set until the file is cleared and a new
// watcher is created.
func (s *Signals) ShouldStop() bool {
	if _, err := os.Stat(filepath.Join(s.dir, stopSignalFile)); err == nil {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stopped
}

// ShouldPause reports whether the pause signal file currently exists.
// Removing the file resumes the supervisor on its next interval.
func (s *Signals) ShouldPause() bool {
	_, err := os.Stat(filepath.Join(s.dir, pauseSignalFile))
	return err == nil
}

// Clear removes both signal files.
func (s *Signals) Clear() {
	s.mu.Lock()
	s.stopped = false
	s.mu.Unlock()
	os.Remove(filepath.Join(s.dir, stopSignalFile))
	os.Remove(filepath.Join(s.dir, pauseSignalFile))
}

// Close stops the watcher.
func (s *Signals) Close() {
	close(s.done)
	if s.watcher != nil {
		s.watcher.Close()
	}
}
