// Package browser defines the automation session the review flow drives and
// a chromedp-backed implementation of it.
//
// Sessions are addressed by selector on every call; element handles are never
// cached because the remote pages re-render after most interactions.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrWaitTimeout means the page was reachable but the condition never held.
	ErrWaitTimeout = errors.New("wait timed out")
	// ErrSessionClosed means the session was quit or the browser went away.
	ErrSessionClosed = errors.New("session closed")
	// ErrNoSuchElement means no element matched the selector at the given index.
	ErrNoSuchElement = errors.New("no such element")
)

// By selects the query language of a Selector.
type By int

const (
	ByXPath By = iota
	ByCSS
)

// Selector locates elements on the current page.
type Selector struct {
	By   By
	Expr string
}

func XPath(expr string) Selector { return Selector{By: ByXPath, Expr: expr} }
func CSS(expr string) Selector   { return Selector{By: ByCSS, Expr: expr} }

func (s Selector) String() string {
	if s.By == ByCSS {
		return "css=" + s.Expr
	}
	return "xpath=" + s.Expr
}

// XPathLiteral quotes text for use inside an XPath expression.
func XPathLiteral(text string) string {
	if !strings.Contains(text, "'") {
		return "'" + text + "'"
	}
	if !strings.Contains(text, `"`) {
		return `"` + text + `"`
	}
	parts := strings.Split(text, "'")
	quoted := make([]string, 0, 2*len(parts))
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		quoted = append(quoted, "'"+p+"'")
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}

// Session is one browser session against the remote application.
// Quit may be called from any goroutine and more than once.
type Session interface {
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	Title(ctx context.Context) (string, error)

	// Count returns the number of elements currently matching sel.
	Count(ctx context.Context, sel Selector) (int, error)
	// Texts returns the visible text of every element matching sel.
	Texts(ctx context.Context, sel Selector) ([]string, error)
	// Clickable reports whether the first match is displayed and enabled.
	Clickable(ctx context.Context, sel Selector) (bool, error)

	// Click performs a real mouse click on the index-th match.
	Click(ctx context.Context, sel Selector, index int) error
	// ScriptClick dispatches element.click() on the index-th match.
	ScriptClick(ctx context.Context, sel Selector, index int) error
	ScrollIntoView(ctx context.Context, sel Selector, index int) error
	SendKeys(ctx context.Context, sel Selector, text string) error
	// SetFile attaches a local file to a file input.
	SetFile(ctx context.Context, sel Selector, path string) error

	Quit() error
}

// Opener starts fresh sessions.
type Opener interface {
	Open(ctx context.Context) (Session, error)
}

func noSuchElement(sel Selector, index int) error {
	return fmt.Errorf("%w: %s[%d]", ErrNoSuchElement, sel, index)
}
