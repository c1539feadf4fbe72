// Package navigatortest provides an in-memory stand-in for the remote review
// application that satisfies browser.Opener.
package navigatortest

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/feichai0017/review-automation/internal/agent/navigator"
	"github.com/feichai0017/review-automation/internal/browser"
	"github.com/feichai0017/review-automation/internal/models"
)

// Prompt is one custom analysis button and the result it renders.
type Prompt struct {
	Name   string
	Output string
}

// App is a scriptable fake of the review application. Configure the exported
// fields before the first Open.
type App struct {
	UI       navigator.UI
	Sections []models.Section
	Username string
	Password string

	// Messages lists the validation messages shown on each section page.
	Messages map[string][]string
	Prompts  []Prompt
	// MissingLinks hides the navigation link of the named sections.
	MissingLinks map[string]bool
	// UploadFailures is the number of Start Review clicks that do nothing.
	UploadFailures int
	// Hang makes every Start Review click do nothing.
	Hang bool
	// OpenErr fails every Open.
	OpenErr error

	mu          sync.Mutex
	failedStart int
	opens       int
	quits       int
	logouts     int
	finished    []string
}

func NewApp() *App {
	return &App{
		UI:       navigator.DefaultUI(),
		Sections: models.DefaultSections(),
		Username: "reviewer",
		Password: "secret",
		Messages: map[string][]string{},
	}
}

// Credentials returns the credentials the app accepts.
func (a *App) Credentials() navigator.Credentials {
	return navigator.Credentials{Username: a.Username, Password: a.Password}
}

// FastTimings shrinks every wait so failing paths finish quickly.
func FastTimings() navigator.Timings {
	return navigator.Timings{
		ElementWait:    50 * time.Millisecond,
		UploadComplete: 100 * time.Millisecond,
		UploadAttempts: 3,
		UploadBackoff:  time.Millisecond,
		SectionReady:   50 * time.Millisecond,
		FinishWait:     50 * time.Millisecond,
		LoginWait:      50 * time.Millisecond,
		LogoutWait:     50 * time.Millisecond,
		LogoutConfirm:  50 * time.Millisecond,
	}
}

func (a *App) Open(ctx context.Context) (browser.Session, error) {
	if a.OpenErr != nil {
		return nil, a.OpenErr
	}
	a.mu.Lock()
	a.opens++
	a.mu.Unlock()

	s := &Session{app: a, page: pageBlank, selected: -1, ran: -1}
	context.AfterFunc(ctx, func() { _ = s.Quit() })
	return s, nil
}

// Opens returns how many sessions were opened.
func (a *App) Opens() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.opens
}

// Quits returns how many sessions were closed.
func (a *App) Quits() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.quits
}

// Logouts returns how many sessions logged out.
func (a *App) Logouts() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.logouts
}

// Finished returns the base names of documents whose review was finished.
func (a *App) Finished() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.finished...)
}

type page int

const (
	pageBlank page = iota
	pageLogin
	pageUpload
	pageSection
)

type element struct {
	text  string
	click func()
}

// Session is one fake browser session.
type Session struct {
	app *App

	mu       sync.Mutex
	closed   bool
	page     page
	section  string
	user     string
	pass     string
	file     string
	selected int
	ran      int
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	return s.do(ctx, func() error {
		s.page = pageLogin
		s.user, s.pass = "", ""
		return nil
	})
}

func (s *Session) Reload(ctx context.Context) error {
	return s.do(ctx, func() error {
		s.file = ""
		return nil
	})
}

func (s *Session) Title(ctx context.Context) (string, error) {
	var title string
	err := s.do(ctx, func() error {
		switch s.page {
		case pageLogin:
			title = "Sign In"
		case pageUpload:
			title = s.app.UI.UploadTitle
		case pageSection:
			title = s.app.UI.SectionTitle
			if s.section != "" {
				title = s.section + " | " + title
			}
		}
		return nil
	})
	return title, err
}

func (s *Session) Count(ctx context.Context, sel browser.Selector) (int, error) {
	var n int
	err := s.do(ctx, func() error {
		n = len(s.lookup(sel))
		return nil
	})
	return n, err
}

func (s *Session) Texts(ctx context.Context, sel browser.Selector) ([]string, error) {
	var texts []string
	err := s.do(ctx, func() error {
		for _, e := range s.lookup(sel) {
			texts = append(texts, e.text)
		}
		return nil
	})
	return texts, err
}

func (s *Session) Clickable(ctx context.Context, sel browser.Selector) (bool, error) {
	var ok bool
	err := s.do(ctx, func() error {
		ok = len(s.lookup(sel)) > 0
		return nil
	})
	return ok, err
}

func (s *Session) Click(ctx context.Context, sel browser.Selector, index int) error {
	return s.ScriptClick(ctx, sel, index)
}

func (s *Session) ScriptClick(ctx context.Context, sel browser.Selector, index int) error {
	return s.do(ctx, func() error {
		e, err := s.at(sel, index)
		if err != nil {
			return err
		}
		if e.click != nil {
			e.click()
		}
		return nil
	})
}

func (s *Session) ScrollIntoView(ctx context.Context, sel browser.Selector, index int) error {
	return s.do(ctx, func() error {
		_, err := s.at(sel, index)
		return err
	})
}

func (s *Session) SendKeys(ctx context.Context, sel browser.Selector, text string) error {
	return s.do(ctx, func() error {
		if _, err := s.at(sel, 0); err != nil {
			return err
		}
		switch sel {
		case s.app.UI.Username:
			s.user += text
		case s.app.UI.Password:
			s.pass += text
		}
		return nil
	})
}

func (s *Session) SetFile(ctx context.Context, sel browser.Selector, path string) error {
	return s.do(ctx, func() error {
		if _, err := s.at(sel, 0); err != nil {
			return err
		}
		s.file = path
		return nil
	})
}

func (s *Session) Quit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.app.mu.Lock()
	s.app.quits++
	s.app.mu.Unlock()
	return nil
}

func (s *Session) do(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return context.Cause(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return browser.ErrSessionClosed
	}
	return fn()
}

func (s *Session) at(sel browser.Selector, index int) (element, error) {
	els := s.lookup(sel)
	if index < 0 || index >= len(els) {
		return element{}, fmt.Errorf("%w: %s[%d]", browser.ErrNoSuchElement, sel, index)
	}
	return els[index], nil
}

// lookup resolves sel against the current page. Callers hold s.mu.
func (s *Session) lookup(sel browser.Selector) []element {
	ui := s.app.UI
	switch s.page {
	case pageLogin:
		switch sel {
		case ui.Username, ui.Password:
			return []element{{}}
		case ui.LoginButton:
			return []element{{text: "Login", click: s.login}}
		}
	case pageUpload:
		switch sel {
		case ui.FileInput:
			return []element{{}}
		case ui.StartReview:
			return []element{{text: "Start Review", click: s.start}}
		case ui.LogoutLink:
			return []element{{text: "Logout", click: s.logout}}
		}
	case pageSection:
		switch sel {
		case ui.LogoutLink:
			return []element{{text: "Logout", click: s.logout}}
		case ui.FinishReview:
			return []element{{text: "Finish Review", click: s.finish}}
		case ui.Messages:
			return s.messages()
		case ui.PromptButtons:
			if !s.onCustomAnalysis() {
				return nil
			}
			els := make([]element, len(s.app.Prompts))
			for i, p := range s.app.Prompts {
				i := i // per-iteration copy; go.mod targets go1.21 loop semantics
				els[i] = element{text: p.Name, click: func() { s.selected = i }}
			}
			return els
		case ui.SubmitButton:
			if s.onCustomAnalysis() && s.selected >= 0 {
				return []element{{text: "Run Custom Analysis", click: s.runPrompt}}
			}
			return nil
		}
		for _, sec := range s.app.Sections {
			if sel == ui.SectionLink(sec.Name) && !s.app.MissingLinks[sec.Name] {
				name := sec.Name
				return []element{{text: name, click: func() { s.open(name) }}}
			}
		}
	}
	return nil
}

func (s *Session) messages() []element {
	if s.onCustomAnalysis() && s.ran >= 0 {
		p := s.app.Prompts[s.ran]
		return []element{{text: fmt.Sprintf(" Prompt '%s': %s ", p.Name, p.Output)}}
	}
	var els []element
	for _, m := range s.app.Messages[s.section] {
		els = append(els, element{text: "  " + m + "\n"})
	}
	return els
}

func (s *Session) onCustomAnalysis() bool {
	for _, sec := range s.app.Sections {
		if sec.Name == s.section {
			return sec.IsCustomAnalysis()
		}
	}
	return false
}

func (s *Session) login() {
	if s.user == s.app.Username && s.pass == s.app.Password {
		s.page = pageUpload
	}
}

func (s *Session) logout() {
	s.page = pageLogin
	s.user, s.pass = "", ""
	s.app.mu.Lock()
	s.app.logouts++
	s.app.mu.Unlock()
}

func (s *Session) start() {
	if s.file == "" {
		return
	}
	s.app.mu.Lock()
	stuck := s.app.Hang || s.app.failedStart < s.app.UploadFailures
	if stuck && !s.app.Hang {
		s.app.failedStart++
	}
	s.app.mu.Unlock()
	if stuck {
		return
	}
	s.page = pageSection
	s.section = ""
}

func (s *Session) open(name string) {
	s.section = name
	s.selected = -1
	s.ran = -1
}

func (s *Session) runPrompt() {
	s.ran = s.selected
	s.selected = -1
}

func (s *Session) finish() {
	s.app.mu.Lock()
	s.app.finished = append(s.app.finished, filepath.Base(s.file))
	s.app.mu.Unlock()
	s.page = pageUpload
	s.section = ""
	s.file = ""
}
