package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/review-automation/pkg/logger"
)

const reviewPage = `<!DOCTYPE html>
<html>
<head><title>Subject | Section to Review</title></head>
<body>
  <input id="user" oninput="document.title = 'typed:' + this.value">
  <button class="tab" onclick="document.title = 'tab 1'">Subject</button>
  <button class="tab" onclick="document.title = 'tab 2'">Contract</button>
  <button id="hidden" style="display:none">Hidden</button>
  <button id="disabled" disabled>Disabled</button>
  <div id="validation-container">
    <p class="validation-message">  APN missing  </p>
    <p class="validation-message">Owner name mismatch</p>
  </div>
</body>
</html>`

// chromeBinary finds a local Chrome or skips the test.
func chromeBinary(t *testing.T) string {
	t.Helper()
	if p := os.Getenv("CHROME_PATH"); p != "" {
		return p
	}
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "chrome"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	t.Skip("no Chrome binary found")
	return ""
}

func openPage(t *testing.T) (context.Context, Session) {
	t.Helper()
	bin := chromeBinary(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, reviewPage)
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	t.Cleanup(cancel)

	sess, err := NewLauncher(true, bin, logger.NewNop()).Open(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sess.Quit() })

	require.NoError(t, sess.Navigate(ctx, srv.URL))
	return ctx, sess
}

func TestChromeSessionQueries(t *testing.T) {
	ctx, sess := openPage(t)

	require.NoError(t, WaitUntil(ctx, sess, TitleContains("Section to Review"), 10*time.Second))

	n, err := sess.Count(ctx, CSS("#validation-container .validation-message"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	texts, err := sess.Texts(ctx, XPath("//p[@class='validation-message']"))
	require.NoError(t, err)
	require.Len(t, texts, 2)
	assert.Equal(t, "APN missing", strings.TrimSpace(texts[0]))
	assert.Equal(t, "Owner name mismatch", strings.TrimSpace(texts[1]))

	cases := []struct {
		sel  Selector
		want bool
	}{
		{CSS("button.tab"), true},
		{CSS("#hidden"), false},
		{CSS("#disabled"), false},
		{CSS("#missing"), false},
		{XPath("//button[text()=" + XPathLiteral("Contract") + "]"), true},
	}
	for _, tc := range cases {
		ok, err := sess.Clickable(ctx, tc.sel)
		require.NoError(t, err, tc.sel.String())
		assert.Equal(t, tc.want, ok, tc.sel.String())
	}
}

func TestChromeSessionInteractions(t *testing.T) {
	ctx, sess := openPage(t)
	tabs := CSS("button.tab")

	require.NoError(t, sess.ScrollIntoView(ctx, tabs, 1))
	require.NoError(t, sess.Click(ctx, tabs, 1))
	require.NoError(t, WaitUntil(ctx, sess, TitleContains("tab 2"), 5*time.Second))

	require.NoError(t, sess.ScriptClick(ctx, XPath("//button[@class='tab']"), 0))
	require.NoError(t, WaitUntil(ctx, sess, TitleContains("tab 1"), 5*time.Second))

	require.NoError(t, sess.SendKeys(ctx, CSS("#user"), "reviewer"))
	require.NoError(t, WaitUntil(ctx, sess, TitleContains("typed:reviewer"), 5*time.Second))

	assert.ErrorIs(t, sess.Click(ctx, tabs, 2), ErrNoSuchElement)
	assert.ErrorIs(t, sess.ScriptClick(ctx, tabs, 5), ErrNoSuchElement)
	assert.ErrorIs(t, sess.ScrollIntoView(ctx, CSS("#missing"), 0), ErrNoSuchElement)
}

func TestChromeSessionErrors(t *testing.T) {
	ctx, sess := openPage(t)

	cause := errors.New("attempt budget spent")
	callCtx, cancel := context.WithCancelCause(ctx)
	cancel(cause)
	_, err := sess.Title(callCtx)
	assert.ErrorIs(t, err, cause)

	// A cancelled call leaves the session usable.
	title, err := sess.Title(ctx)
	require.NoError(t, err)
	assert.Contains(t, title, "Section to Review")

	require.NoError(t, sess.Quit())
	require.NoError(t, sess.Quit())
	_, err = sess.Title(ctx)
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.ErrorIs(t, WaitUntil(ctx, sess, Present(CSS("#user")), time.Second), ErrSessionClosed)
}

func TestChromeSessionEndsWithOpenContext(t *testing.T) {
	bin := chromeBinary(t)

	ctx, cancel := context.WithCancel(context.Background())
	sess, err := NewLauncher(true, bin, logger.NewNop()).Open(ctx)
	require.NoError(t, err)
	defer sess.Quit()

	cancel()
	_, err = sess.Title(context.Background())
	assert.ErrorIs(t, err, ErrSessionClosed)
}
