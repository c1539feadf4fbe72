package review

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/review-automation/internal/agent/navigator"
	"github.com/feichai0017/review-automation/internal/agent/navigator/navigatortest"
	"github.com/feichai0017/review-automation/internal/browser"
	"github.com/feichai0017/review-automation/pkg/dataset"
	"github.com/feichai0017/review-automation/pkg/logger"
	"github.com/feichai0017/review-automation/pkg/report"
)

type fixture struct {
	dir     string
	app     *navigatortest.App
	reports *report.Writer
	nav     *navigator.Navigator
	log     *logger.TestLogger
}

func newFixture(t *testing.T, docs ...string) *fixture {
	t.Helper()
	dir := t.TempDir()
	for _, d := range docs {
		require.NoError(t, os.WriteFile(filepath.Join(dir, d), []byte("%PDF-1.4\n"), 0o644))
	}

	app := navigatortest.NewApp()
	log := logger.NewTestLogger()
	reports := report.NewWriter(filepath.Join(t.TempDir(), report.FileName), log)
	samples := dataset.NewWriter(t.TempDir(), log)
	nav := navigator.NewNavigator(app.Sections, reports, samples, log,
		navigator.WithTimings(navigatortest.FastTimings()))

	return &fixture{dir: dir, app: app, reports: reports, nav: nav, log: log}
}

func (f *fixture) task(timeout time.Duration, retries int) *Task {
	return NewTask(&TaskConfig{
		SourceDir:   f.dir,
		Endpoint:    "http://review.local/login/",
		Credentials: f.app.Credentials(),
		Timeout:     timeout,
		MaxRetries:  retries,
	}, f.app, f.nav, f.log)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestProcessSuccess(t *testing.T) {
	f := newFixture(t, "a.pdf")

	out := f.task(5*time.Second, 1).Process(context.Background(), "a.pdf")

	require.NoError(t, out.Err)
	assert.True(t, out.Succeeded)
	assert.Equal(t, 1, out.Attempts)
	assert.True(t, exists(filepath.Join(f.dir, ProcessedDir, "a.pdf")))
	assert.False(t, exists(filepath.Join(f.dir, "a.pdf")))
	assert.Equal(t, []string{"a.pdf"}, f.app.Finished())
	assert.Equal(t, 1, f.app.Logouts())
	assert.Equal(t, 1, f.app.Quits())
	assert.Contains(t, f.reports.Processed(), "a.pdf")
}

func TestProcessRetriesTimeoutOnce(t *testing.T) {
	f := newFixture(t, "slow.pdf")
	f.app.Hang = true

	out := f.task(50*time.Millisecond, 1).Process(context.Background(), "slow.pdf")

	assert.False(t, out.Succeeded)
	assert.Equal(t, 2, out.Attempts)
	assert.ErrorIs(t, out.Err, ErrTaskTimeout)
	assert.Equal(t, 2, f.app.Opens())
	assert.Equal(t, 2, f.app.Quits())
	assert.True(t, exists(filepath.Join(f.dir, FailedDir, "slow.pdf")))
	assert.False(t, exists(filepath.Join(f.dir, ProcessedDir, "slow.pdf")))
	assert.True(t, f.log.Contains("ERROR", "Max retries reached due to timeout"))
}

func TestProcessDoesNotRetryOtherErrors(t *testing.T) {
	f := newFixture(t, "a.pdf")
	f.app.Password = "rotated"

	out := f.task(5*time.Second, 3).Process(context.Background(), "a.pdf")

	assert.False(t, out.Succeeded)
	assert.Equal(t, 1, out.Attempts)
	assert.NotErrorIs(t, out.Err, ErrTaskTimeout)
	assert.Equal(t, 1, f.app.Opens())
	assert.True(t, exists(filepath.Join(f.dir, FailedDir, "a.pdf")))
}

func TestProcessOpenFailure(t *testing.T) {
	f := newFixture(t, "a.pdf")
	f.app.OpenErr = errors.New("chrome not found")

	out := f.task(5*time.Second, 1).Process(context.Background(), "a.pdf")

	assert.False(t, out.Succeeded)
	assert.ErrorContains(t, out.Err, "chrome not found")
	assert.True(t, exists(filepath.Join(f.dir, FailedDir, "a.pdf")))
}

// slowNavigator finishes every review successfully, but only after delay
// and without watching ctx.
type slowNavigator struct {
	delay  time.Duration
	mu     sync.Mutex
	calls  int
	logout int
}

func (n *slowNavigator) Login(ctx context.Context, sess browser.Session, endpoint string, creds navigator.Credentials) error {
	return nil
}

func (n *slowNavigator) Review(ctx context.Context, sess browser.Session, path string) error {
	n.mu.Lock()
	n.calls++
	n.mu.Unlock()
	time.Sleep(n.delay)
	return nil
}

func (n *slowNavigator) Logout(ctx context.Context, sess browser.Session) error {
	n.mu.Lock()
	n.logout++
	n.mu.Unlock()
	return nil
}

func TestProcessTimeoutOverridesLateSuccess(t *testing.T) {
	f := newFixture(t, "late.pdf")
	nav := &slowNavigator{delay: 80 * time.Millisecond}

	task := NewTask(&TaskConfig{
		SourceDir:   f.dir,
		Endpoint:    "http://review.local/login/",
		Credentials: f.app.Credentials(),
		Timeout:     20 * time.Millisecond,
		MaxRetries:  1,
	}, f.app, nav, f.log)

	out := task.Process(context.Background(), "late.pdf")

	assert.False(t, out.Succeeded)
	assert.Equal(t, 2, out.Attempts)
	assert.ErrorIs(t, out.Err, ErrTaskTimeout)
	assert.Equal(t, 2, nav.calls)
	assert.Zero(t, nav.logout)
	assert.Equal(t, 2, f.app.Opens())
	assert.True(t, exists(filepath.Join(f.dir, FailedDir, "late.pdf")))
	assert.False(t, exists(filepath.Join(f.dir, ProcessedDir, "late.pdf")))
	assert.False(t, exists(filepath.Join(f.dir, "late.pdf")))
}

type rejectAll struct{}

func (rejectAll) Preflight(path string) error {
	return errors.New("not a pdf")
}

func TestProcessPreflightRejects(t *testing.T) {
	f := newFixture(t, "bad.pdf")

	out := f.task(5*time.Second, 1).WithPreflight(rejectAll{}).Process(context.Background(), "bad.pdf")

	assert.False(t, out.Succeeded)
	assert.Zero(t, out.Attempts)
	assert.Zero(t, f.app.Opens())
	assert.True(t, exists(filepath.Join(f.dir, FailedDir, "bad.pdf")))
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.pdf", "A.PDF", "notes.txt", "c.Pdf"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.pdf"), 0o755))

	names, err := discover(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"A.PDF", "b.pdf", "c.Pdf"}, names)
}

func TestMoveFileCreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.pdf")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o644))

	dst, err := moveFile(src, filepath.Join(dir, ProcessedDir))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, ProcessedDir, "a.pdf"), dst)
	assert.False(t, exists(src))
	assert.True(t, exists(dst))
}
