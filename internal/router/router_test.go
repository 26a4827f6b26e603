package router

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/frouter/frouter/internal/config"
	"github.com/frouter/frouter/internal/core/interfaces"
	"github.com/frouter/frouter/internal/fileops"
	"github.com/frouter/frouter/internal/watchers/ignore"
	rerrors "github.com/frouter/frouter/pkg/errors"
	"github.com/frouter/frouter/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// fakeWatcher hands out handles for any directory except those in fail
type fakeWatcher struct {
	mu        sync.Mutex
	watched   map[string]bool
	unwatched []string
	fail      map[string]error
	events    chan interfaces.Notification
	errs      chan error
}

func newFakeWatcher() *fakeWatcher {
	return &fakeWatcher{
		watched: make(map[string]bool),
		fail:    make(map[string]error),
		events:  make(chan interfaces.Notification, 16),
		errs:    make(chan error, 4),
	}
}

func (w *fakeWatcher) Watch(dir string) (interfaces.WatchHandle, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.fail[dir]; err != nil {
		return interfaces.WatchHandle{}, err
	}
	w.watched[dir] = true
	return interfaces.WatchHandle{Path: dir}, nil
}

func (w *fakeWatcher) Unwatch(h interfaces.WatchHandle) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.watched, h.Path)
	w.unwatched = append(w.unwatched, h.Path)
	return nil
}

func (w *fakeWatcher) Notifications() <-chan interfaces.Notification { return w.events }
func (w *fakeWatcher) Errors() <-chan error                         { return w.errs }
func (w *fakeWatcher) Close() error                                 { return nil }

func (w *fakeWatcher) isWatched(dir string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.watched[dir]
}

// recordingLog keeps committed transactions in memory
type recordingLog struct {
	mu        sync.Mutex
	begins    int
	open      bool
	pending   []models.MoveRecord
	committed [][]models.MoveRecord
	beginErr  error
	commitErr error

	// appendErr is returned for records whose Filename is rejectName
	appendErr  error
	rejectName string
}

func (l *recordingLog) Begin() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.begins++
	if l.beginErr != nil {
		return l.beginErr
	}
	if l.open {
		return errors.New("transaction already open")
	}
	l.open = true
	return nil
}

func (l *recordingLog) Append(rec models.MoveRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.open {
		return errors.New("no transaction")
	}
	if l.appendErr != nil && rec.Filename == l.rejectName {
		return l.appendErr
	}
	l.pending = append(l.pending, rec)
	return nil
}

func (l *recordingLog) Commit() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.open {
		return errors.New("no transaction")
	}
	if l.commitErr != nil {
		l.pending = nil
		l.open = false
		return l.commitErr
	}
	l.committed = append(l.committed, l.pending)
	l.pending = nil
	l.open = false
	return nil
}

func (l *recordingLog) Rollback() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending = nil
	l.open = false
	return nil
}

func (l *recordingLog) transactions() [][]models.MoveRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([][]models.MoveRecord(nil), l.committed...)
}

// keepSourceMover copies like CopyMover but fails to delete the source
type keepSourceMover struct{}

func (keepSourceMover) Move(source, target string) error {
	data, err := os.ReadFile(source)
	if err != nil {
		return err
	}
	if err := os.WriteFile(target, data, 0644); err != nil {
		return err
	}
	return rerrors.NewMoveError("failed to delete "+source, os.ErrPermission)
}

// fixture wires a Router to temp directories, a fake watcher, a fake
// clock and a swappable loader.
type fixture struct {
	t       *testing.T
	src     string
	dst     string
	cfgPath string
	watcher *fakeWatcher
	log     *recordingLog
	clock   *fakeClock
	cfg     *config.Configuration
	loadErr error
	logs    *observer.ObservedLogs
	router  *Router
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		t:       t,
		src:     t.TempDir(),
		dst:     filepath.Join(t.TempDir(), "txt"),
		cfgPath: filepath.Join(t.TempDir(), "config.toml"),
		watcher: newFakeWatcher(),
		log:     &recordingLog{},
		clock:   newFakeClock(),
	}
	f.cfg = config.New(
		map[string]string{"downloads": f.src},
		[]config.FileExtension{{Name: "txt", Path: f.dst}},
	)

	hasher, err := fileops.NewFileHasher("sha256")
	require.NoError(t, err)

	core, logs := observer.New(zapcore.DebugLevel)
	f.logs = logs

	r, err := New(Options{
		ConfigPath: f.cfgPath,
		Delay:      10 * time.Second,
		Loader: interfaces.ConfigLoaderFunc(func(string) (*config.Configuration, error) {
			if f.loadErr != nil {
				return nil, f.loadErr
			}
			return f.cfg, nil
		}),
		Watcher:  f.watcher,
		Mover:    fileops.NewCopyMover(),
		Hasher:   hasher,
		EventLog: f.log,
		Logger:   zap.New(core),
		Clock:    f.clock.Now,
	})
	require.NoError(t, err)
	f.router = r
	return f
}

// errorsLogged returns the Error entries logged under msg
func (f *fixture) errorsLogged(msg string) []observer.LoggedEntry {
	return f.logs.FilterLevelExact(zapcore.ErrorLevel).FilterMessage(msg).All()
}

func (f *fixture) write(dir, name, content string) string {
	f.t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(f.t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// notify delivers n raw notifications for path, like a single write does
func (f *fixture) notify(path string, n int) {
	for i := 0; i < n; i++ {
		f.router.HandleNotification(interfaces.Notification{Path: path, Kind: interfaces.ChangeTypeModify})
	}
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(Options{})
	assert.True(t, rerrors.IsValidationError(err))

	_, err = New(Options{ConfigPath: "/tmp/config.toml"})
	assert.True(t, rerrors.IsValidationError(err))
}

func TestStartWatchesConfiguredAndConfigDirectories(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.router.Start())

	assert.True(t, f.watcher.isWatched(f.src))
	assert.True(t, f.watcher.isWatched(f.dst))
	assert.True(t, f.watcher.isWatched(filepath.Dir(f.cfgPath)))

	info, err := os.Stat(f.dst)
	require.NoError(t, err, "destination directories are created")
	assert.True(t, info.IsDir())
}

func TestStartFailsOnBadConfig(t *testing.T) {
	f := newFixture(t)
	f.loadErr = rerrors.NewConfigError("malformed", nil)

	err := f.router.Start()
	require.Error(t, err)
	assert.True(t, rerrors.IsConfigError(err))
}

func TestStartRoutesExistingFiles(t *testing.T) {
	f := newFixture(t)
	f.write(f.src, "old.txt", "old")
	f.write(f.src, "skip.bin", "bin")
	f.write(f.src, "partial.txt.crdownload", "x")
	f.router.opts.Ignore = ignore.NewMatcher()

	require.NoError(t, f.router.Start())

	assert.FileExists(t, filepath.Join(f.dst, "old.txt"))
	assert.FileExists(t, filepath.Join(f.src, "skip.bin"))
	assert.FileExists(t, filepath.Join(f.src, "partial.txt.crdownload"))
	txs := f.log.transactions()
	require.Len(t, txs, 1)
	require.Len(t, txs[0], 1)
	assert.Equal(t, "old.txt", txs[0][0].Filename)
}

func TestBatchOfThreeFilesIsOneTransaction(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.router.Start())

	a := f.write(f.src, "a.txt", "a")
	b := f.write(f.src, "b.txt", "b")
	c := f.write(f.src, "c.txt", "c")
	f.notify(a, 3)
	f.notify(b, 2)
	f.notify(c, 4)
	assert.Equal(t, 3, f.router.Pending())

	f.clock.Advance(5 * time.Second)
	f.router.FlushIfReady()
	assert.Empty(t, f.log.transactions(), "not quiet long enough")

	f.clock.Advance(6 * time.Second)
	f.router.FlushIfReady()

	txs := f.log.transactions()
	require.Len(t, txs, 1)
	require.Len(t, txs[0], 3)
	assert.Equal(t, 1, f.log.begins)

	batchID := txs[0][0].BatchID
	assert.NotEmpty(t, batchID)
	for i, name := range []string{"a.txt", "b.txt", "c.txt"} {
		rec := txs[0][i]
		assert.Equal(t, name, rec.Filename)
		assert.Equal(t, filepath.Join(f.src, name), rec.Source)
		assert.Equal(t, filepath.Join(f.dst, name), rec.Destination)
		assert.Equal(t, batchID, rec.BatchID)
		assert.Len(t, rec.Digest, 64)
		assert.FileExists(t, rec.Destination)
		assert.NoFileExists(t, rec.Source)
	}
	assert.Equal(t, 0, f.router.Pending())

	stats := f.router.Stats()
	assert.Equal(t, 1, stats.Batches)
	assert.Equal(t, 3, stats.Moved)
	assert.Equal(t, f.clock.Now(), stats.LastBatch)
	assert.Contains(t, stats.Watched, f.src)
}

func TestMovedTargetsAreNotReprocessed(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.router.Start())

	a := f.write(f.src, "a.txt", "a")
	f.notify(a, 1)
	f.clock.Advance(11 * time.Second)
	f.router.FlushIfReady()
	require.Len(t, f.log.transactions(), 1)

	// The move itself produces notifications in both directories.
	f.notify(filepath.Join(f.dst, "a.txt"), 2)
	assert.Equal(t, 0, f.router.Pending())

	f.notify(a, 1)
	assert.Equal(t, 1, f.router.Pending(), "the source removal is queued")

	var last BatchResult
	f.router.opts.OnBatch = func(b BatchResult) { last = b }
	f.clock.Advance(11 * time.Second)
	f.router.FlushIfReady()
	assert.Equal(t, 1, last.Skipped)
	assert.Empty(t, last.Moved)
	assert.Len(t, f.log.transactions(), 1)
}

func TestRedroppedSourceIsRoutedAgain(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.router.Start())

	a := f.write(f.src, "a.txt", "first")
	f.notify(a, 1)
	f.clock.Advance(11 * time.Second)
	f.router.FlushIfReady()
	require.FileExists(t, filepath.Join(f.dst, "a.txt"))

	f.clock.Advance(2 * time.Second)
	f.write(f.src, "a.txt", "second")
	f.notify(a, 1)
	assert.Equal(t, 1, f.router.Pending())

	f.clock.Advance(11 * time.Second)
	f.router.FlushIfReady()

	assert.NoFileExists(t, a)
	data, err := os.ReadFile(filepath.Join(f.dst, "a_1.txt"))
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
	assert.Len(t, f.log.transactions(), 2)
}

func TestVanishedPathIsSkipped(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.router.Start())

	a := f.write(f.src, "a.txt", "a")
	require.NoError(t, os.Remove(a))

	result := f.router.RouteBatch([]string{a})
	assert.Equal(t, 1, result.Skipped)
	assert.Empty(t, result.Moved)
	assert.False(t, result.Committed)
	assert.Equal(t, 0, f.log.begins, "no transaction for a batch with nothing to record")
}

func TestUnmatchedExtensionStays(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.router.Start())

	bin := f.write(f.src, "a.bin", "x")
	noext := f.write(f.src, "Makefile", "x")
	result := f.router.RouteBatch([]string{bin, noext})

	assert.Equal(t, 2, result.Skipped)
	assert.FileExists(t, bin)
	assert.FileExists(t, noext)
}

func TestCollisionGetsSuffixedName(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.router.Start())
	f.write(f.dst, "a.txt", "existing")

	a := f.write(f.src, "a.txt", "incoming")
	result := f.router.RouteBatch([]string{a})

	require.Len(t, result.Moved, 1)
	target := filepath.Join(f.dst, "a_1.txt")
	assert.Equal(t, target, result.Moved[0].Destination)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "incoming", string(data))

	data, err = os.ReadFile(filepath.Join(f.dst, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "existing", string(data))
}

func TestIdenticalContentReusesExistingName(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.router.Start())
	f.write(f.dst, "a.txt", "same")

	a := f.write(f.src, "a.txt", "same")
	result := f.router.RouteBatch([]string{a})

	require.Len(t, result.Moved, 1)
	assert.Equal(t, filepath.Join(f.dst, "a.txt"), result.Moved[0].Destination)
	assert.NoFileExists(t, a)
	assert.NoFileExists(t, filepath.Join(f.dst, "a_1.txt"))
}

func TestBeginFailureStillMovesFiles(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.router.Start())
	f.log.beginErr = errors.New("disk full")

	a := f.write(f.src, "a.txt", "a")
	result := f.router.RouteBatch([]string{a})

	require.Len(t, result.Moved, 1)
	assert.False(t, result.Committed)
	assert.FileExists(t, filepath.Join(f.dst, "a.txt"))
	assert.Empty(t, f.log.transactions())
}

func TestReloadUnwatchesDroppedDirectories(t *testing.T) {
	f := newFixture(t)
	extra := t.TempDir()
	f.cfg = config.New(
		map[string]string{"downloads": f.src, "desktop": extra},
		[]config.FileExtension{{Name: "txt", Path: f.dst}},
	)
	require.NoError(t, f.router.Start())
	require.True(t, f.watcher.isWatched(extra))

	var reloaded ReconcileResult
	f.router.opts.OnReload = func(r ReconcileResult) { reloaded = r }

	f.cfg = config.New(
		map[string]string{"downloads": f.src},
		[]config.FileExtension{{Name: "txt", Path: f.dst}},
	)
	f.notify(f.cfgPath, 1)

	assert.Equal(t, []string{extra}, reloaded.Unwatched)
	assert.False(t, f.watcher.isWatched(extra))
	assert.True(t, f.watcher.isWatched(f.src))

	// Leftover notifications from the dropped directory are ignored.
	f.notify(f.write(extra, "late.txt", "x"), 1)
	assert.Equal(t, 0, f.router.Pending())
}

func TestMalformedReloadKeepsPreviousConfig(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.router.Start())
	before := f.router.Configuration()

	f.loadErr = rerrors.NewConfigError("malformed", nil)
	f.router.Reload()

	assert.Same(t, before, f.router.Configuration())
	assert.True(t, f.watcher.isWatched(f.src))
	assert.True(t, f.watcher.isWatched(f.dst))
	assert.Empty(t, f.watcher.unwatched)

	a := f.write(f.src, "a.txt", "a")
	f.notify(a, 1)
	assert.Equal(t, 1, f.router.Pending(), "routing continues under the previous rules")
}

func TestPermissionDeniedDirectoryDoesNotStopOthers(t *testing.T) {
	f := newFixture(t)
	locked := filepath.Join(t.TempDir(), "locked")
	f.watcher.fail[locked] = rerrors.NewWatchError("cannot read "+locked, os.ErrPermission)
	f.cfg = config.New(
		map[string]string{"downloads": f.src, "locked": locked},
		[]config.FileExtension{{Name: "txt", Path: f.dst}},
	)

	require.NoError(t, f.router.Start())
	assert.True(t, f.watcher.isWatched(f.src))
	assert.False(t, f.watcher.isWatched(locked))

	errs := f.logs.FilterLevelExact(zapcore.ErrorLevel).All()
	require.Len(t, errs, 1)
	fields := errs[0].ContextMap()
	assert.Equal(t, "watch", fields["error_type"])
	assert.Equal(t, locked, fields["path"])

	a := f.write(f.src, "a.txt", "a")
	f.notify(a, 1)
	assert.Equal(t, 1, f.router.Pending())
}

func TestCommitFailureIsReportedAndNotRequeued(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.router.Start())
	f.log.commitErr = errors.New("database is locked")

	a := f.write(f.src, "a.txt", "a")
	f.notify(a, 1)
	f.clock.Advance(11 * time.Second)

	var last BatchResult
	f.router.opts.OnBatch = func(b BatchResult) { last = b }
	f.router.FlushIfReady()

	require.Len(t, last.Moved, 1)
	assert.False(t, last.Committed)
	assert.FileExists(t, filepath.Join(f.dst, "a.txt"))
	assert.NoFileExists(t, a)
	assert.Empty(t, f.log.transactions())
	assert.Equal(t, 0, f.router.Pending())

	errs := f.errorsLogged("Transaction Error")
	require.Len(t, errs, 1)
	assert.Equal(t, "sink", errs[0].ContextMap()["error_type"])
	assert.EqualValues(t, 1, errs[0].ContextMap()["lost_entries"])

	f.clock.Advance(time.Minute)
	f.router.FlushIfReady()
	assert.Equal(t, 1, f.log.begins, "nothing is retried")
}

func TestAppendFailureKeepsRestOfBatch(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.router.Start())
	f.log.appendErr = errors.New("constraint failed")
	f.log.rejectName = "b.txt"

	paths := []string{
		f.write(f.src, "a.txt", "a"),
		f.write(f.src, "b.txt", "b"),
		f.write(f.src, "c.txt", "c"),
	}
	result := f.router.RouteBatch(paths)

	assert.Len(t, result.Moved, 3)
	assert.True(t, result.Committed)
	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		assert.FileExists(t, filepath.Join(f.dst, name))
	}

	txs := f.log.transactions()
	require.Len(t, txs, 1)
	require.Len(t, txs[0], 2)
	assert.Equal(t, "a.txt", txs[0][0].Filename)
	assert.Equal(t, "c.txt", txs[0][1].Filename)

	errs := f.errorsLogged("Log Append Error")
	require.Len(t, errs, 1)
	assert.Equal(t, paths[1], errs[0].ContextMap()["path"])
}

func TestFailedSourceDeleteLeavesBothFiles(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.router.Start())
	f.router.opts.Mover = keepSourceMover{}

	a := f.write(f.src, "a.txt", "a")
	result := f.router.RouteBatch([]string{a})

	assert.Equal(t, 1, result.Failed)
	assert.Empty(t, result.Moved)
	assert.FileExists(t, a)
	assert.FileExists(t, filepath.Join(f.dst, "a.txt"))

	errs := f.errorsLogged("File Move Error")
	require.Len(t, errs, 1)
	assert.Equal(t, "move", errs[0].ContextMap()["error_type"])

	for _, tx := range f.log.transactions() {
		assert.Empty(t, tx, "no record for a failed move")
	}
}

func TestReloadLeavesPendingFilesInTheirBatch(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.router.Start())

	a := f.write(f.src, "a.txt", "a")
	f.notify(a, 1)
	f.clock.Advance(5 * time.Second)

	f.notify(f.cfgPath, 3)
	assert.FileExists(t, a, "pending file is not swept")
	assert.Equal(t, 1, f.router.Pending())
	assert.Empty(t, f.log.transactions())

	b := f.write(f.src, "b.txt", "b")
	f.notify(b, 1)
	f.clock.Advance(11 * time.Second)
	f.router.FlushIfReady()

	txs := f.log.transactions()
	require.Len(t, txs, 1)
	require.Len(t, txs[0], 2)
	assert.Equal(t, "a.txt", txs[0][0].Filename)
	assert.Equal(t, "b.txt", txs[0][1].Filename)
}

func TestServeFlushesOnTickWithoutFurtherEvents(t *testing.T) {
	f := newFixture(t)
	f.router.now = time.Now
	f.router.debounce.now = time.Now
	f.router.accumulator.now = time.Now
	f.router.opts.Delay = 50 * time.Millisecond
	f.router.opts.Tick = 10 * time.Millisecond

	batches := make(chan BatchResult, 1)
	f.router.opts.OnBatch = func(b BatchResult) { batches <- b }

	require.NoError(t, f.router.Start())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.router.Serve(ctx) }()

	a := f.write(f.src, "a.txt", "a")
	f.watcher.events <- interfaces.Notification{Path: a, Kind: interfaces.ChangeTypeCreate}

	select {
	case b := <-batches:
		require.Len(t, b.Moved, 1)
		assert.True(t, b.Committed)
	case <-time.After(5 * time.Second):
		t.Fatal("batch was not flushed")
	}

	cancel()
	require.NoError(t, <-done)
	assert.False(t, f.watcher.isWatched(f.src), "directories are unwatched on shutdown")
}

func TestServeStopsWhenNotificationsClose(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.router.Start())

	f.watcher.errs <- rerrors.NewChannelError("overflow", nil)
	close(f.watcher.events)

	done := make(chan error, 1)
	go func() { done <- f.router.Serve(context.Background()) }()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, rerrors.IsChannelError(err))
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop")
	}
}
