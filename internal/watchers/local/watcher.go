// Package local implements the raw watch primitive on top of fsnotify
package local

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/frouter/frouter/internal/core/interfaces"
	"github.com/frouter/frouter/internal/watchers/ignore"
	rerrors "github.com/frouter/frouter/pkg/errors"
	"github.com/frouter/frouter/pkg/logger"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// FSWatcher implements interfaces.RawWatcher using fsnotify. Directories
// are watched non-recursively.
type FSWatcher struct {
	watcher       *fsnotify.Watcher
	paths         map[string]bool // directories being watched
	pathsMu       sync.RWMutex
	ignoreMatcher *ignore.Matcher
	eventsChan    chan interfaces.Notification
	errorsChan    chan error
	stopChan      chan struct{}
	logger        *zap.Logger
	wg            sync.WaitGroup
	closeOnce     sync.Once
}

// NewFSWatcher creates a watcher and starts its event pump. A nil matcher
// disables filtering.
func NewFSWatcher(matcher *ignore.Matcher) (*FSWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, rerrors.NewWatchError("failed to create fsnotify watcher", err)
	}

	fw := &FSWatcher{
		watcher:       w,
		paths:         make(map[string]bool),
		ignoreMatcher: matcher,
		eventsChan:    make(chan interfaces.Notification, 256),
		errorsChan:    make(chan error, 16),
		stopChan:      make(chan struct{}),
		logger:        logger.Get(),
	}

	fw.wg.Add(1)
	go fw.monitor()

	return fw, nil
}

// Watch starts watching dir
func (fw *FSWatcher) Watch(dir string) (interfaces.WatchHandle, error) {
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return interfaces.WatchHandle{}, rerrors.NewWatchError("failed to get absolute path", err)
	}

	fw.pathsMu.Lock()
	defer fw.pathsMu.Unlock()

	if fw.paths[absPath] {
		return interfaces.WatchHandle{Path: absPath}, nil
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return interfaces.WatchHandle{}, rerrors.NewWatchError(fmt.Sprintf("cannot watch %s", absPath), err)
	}
	if !info.IsDir() {
		return interfaces.WatchHandle{}, rerrors.NewWatchError(fmt.Sprintf("%s is not a directory", absPath), nil)
	}

	// inotify accepts unreadable directories, so check readability here
	// to surface permission problems at watch time.
	f, err := os.Open(absPath)
	if err != nil {
		return interfaces.WatchHandle{}, rerrors.NewWatchError(fmt.Sprintf("cannot read %s", absPath), err)
	}
	f.Close()

	if err := fw.watcher.Add(absPath); err != nil {
		return interfaces.WatchHandle{}, rerrors.NewWatchError(fmt.Sprintf("failed to add %s to watcher", absPath), err)
	}
	fw.paths[absPath] = true

	fw.logger.Debug("Added directory to watcher", zap.String("path", absPath))
	return interfaces.WatchHandle{Path: absPath}, nil
}

// Unwatch stops watching the directory behind h
func (fw *FSWatcher) Unwatch(h interfaces.WatchHandle) error {
	fw.pathsMu.Lock()
	defer fw.pathsMu.Unlock()

	if !fw.paths[h.Path] {
		return rerrors.NewUnwatchError(fmt.Sprintf("%s is not being watched", h.Path), nil)
	}
	delete(fw.paths, h.Path)

	if err := fw.watcher.Remove(h.Path); err != nil {
		return rerrors.NewUnwatchError(fmt.Sprintf("failed to remove %s from watcher", h.Path), err)
	}

	fw.logger.Debug("Removed directory from watcher", zap.String("path", h.Path))
	return nil
}

// Notifications returns the channel for receiving raw notifications
func (fw *FSWatcher) Notifications() <-chan interfaces.Notification {
	return fw.eventsChan
}

// Errors returns the channel for receiving errors
func (fw *FSWatcher) Errors() <-chan error {
	return fw.errorsChan
}

// WatchedPaths returns a list of all watched directories
func (fw *FSWatcher) WatchedPaths() []string {
	fw.pathsMu.RLock()
	defer fw.pathsMu.RUnlock()

	paths := make([]string, 0, len(fw.paths))
	for path := range fw.paths {
		paths = append(paths, path)
	}
	return paths
}

// Close stops the watcher and closes both channels
func (fw *FSWatcher) Close() error {
	var err error
	fw.closeOnce.Do(func() {
		close(fw.stopChan)
		err = fw.watcher.Close()
		fw.wg.Wait()
		close(fw.eventsChan)
		close(fw.errorsChan)
		fw.logger.Info("File watcher stopped")
	})
	return err
}

// monitor forwards fsnotify events until the watcher is closed
func (fw *FSWatcher) monitor() {
	defer fw.wg.Done()

	for {
		select {
		case <-fw.stopChan:
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleEvent(event)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.sendError(rerrors.NewChannelError("file watcher error", err))
		}
	}
}

func (fw *FSWatcher) handleEvent(event fsnotify.Event) {
	if fw.ignoreMatcher != nil && fw.ignoreMatcher.ShouldIgnore(event.Name) {
		return
	}

	kind := MapOp(event.Op)
	if kind == interfaces.ChangeTypeUnknown {
		return
	}

	select {
	case fw.eventsChan <- interfaces.Notification{Path: event.Name, Kind: kind}:
	case <-fw.stopChan:
	}
}

func (fw *FSWatcher) sendError(err error) {
	select {
	case fw.errorsChan <- err:
	default:
		fw.logger.Warn("Error buffer full, dropping error", zap.Error(err))
	}
}

// MapOp maps fsnotify operations to change types
func MapOp(op fsnotify.Op) interfaces.ChangeType {
	switch {
	case op.Has(fsnotify.Create):
		return interfaces.ChangeTypeCreate
	case op.Has(fsnotify.Write):
		return interfaces.ChangeTypeModify
	case op.Has(fsnotify.Remove):
		return interfaces.ChangeTypeDelete
	case op.Has(fsnotify.Rename):
		return interfaces.ChangeTypeRename
	case op.Has(fsnotify.Chmod):
		return interfaces.ChangeTypeChmod
	default:
		return interfaces.ChangeTypeUnknown
	}
}
