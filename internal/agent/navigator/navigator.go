// Package navigator drives one document through the remote review
// application: upload, section walk, custom analysis prompts and finish.
package navigator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/feichai0017/review-automation/internal/browser"
	"github.com/feichai0017/review-automation/internal/models"
	"github.com/feichai0017/review-automation/pkg/converters"
	"github.com/feichai0017/review-automation/pkg/logger"
	"github.com/feichai0017/review-automation/pkg/report"
)

// Reporter receives the report block of a review.
type Reporter interface {
	Append(entry report.Entry)
}

// SampleRecorder receives dataset samples as messages are captured.
type SampleRecorder interface {
	SaveValidation(pdf, section, message string)
	SaveAnalysis(pdf, prompt, output string)
}

// Credentials authenticate against the remote application.
type Credentials struct {
	Username string
	Password string
}

type Navigator struct {
	sections []models.Section
	ui       UI
	timings  Timings
	reporter Reporter
	samples  SampleRecorder
	logger   logger.Logger
	now      func() time.Time
}

type Option func(*Navigator)

func WithUI(ui UI) Option {
	return func(n *Navigator) { n.ui = ui }
}

func WithTimings(t Timings) Option {
	return func(n *Navigator) { n.timings = t }
}

func WithClock(now func() time.Time) Option {
	return func(n *Navigator) { n.now = now }
}

func NewNavigator(sections []models.Section, reporter Reporter, samples SampleRecorder, log logger.Logger, opts ...Option) *Navigator {
	n := &Navigator{
		sections: sections,
		ui:       DefaultUI(),
		timings:  DefaultTimings(),
		reporter: reporter,
		samples:  samples,
		logger:   log,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.timings.UploadAttempts < 1 {
		n.timings.UploadAttempts = 1
	}
	return n
}

// Login opens endpoint and signs in.
func (n *Navigator) Login(ctx context.Context, sess browser.Session, endpoint string, creds Credentials) error {
	if err := sess.Navigate(ctx, endpoint); err != nil {
		return err
	}
	if err := browser.WaitUntil(ctx, sess, browser.Present(n.ui.Username), n.timings.LoginWait); err != nil {
		return fmt.Errorf("failed to load login page: %w", err)
	}
	if err := sess.SendKeys(ctx, n.ui.Username, creds.Username); err != nil {
		return fmt.Errorf("failed to enter username: %w", err)
	}
	if err := sess.SendKeys(ctx, n.ui.Password, creds.Password); err != nil {
		return fmt.Errorf("failed to enter password: %w", err)
	}
	if err := sess.Click(ctx, n.ui.LoginButton, 0); err != nil {
		return fmt.Errorf("failed to submit login: %w", err)
	}
	if err := browser.WaitUntil(ctx, sess, browser.TitleContains(n.ui.LoggedInTitle), n.timings.LoginWait); err != nil {
		return fmt.Errorf("failed to log in: %w", err)
	}
	return nil
}

// Logout signs out and waits for the login form to come back.
func (n *Navigator) Logout(ctx context.Context, sess browser.Session) error {
	if err := browser.WaitUntil(ctx, sess, browser.Clickable(n.ui.LogoutLink), n.timings.LogoutWait); err != nil {
		return fmt.Errorf("failed to find logout link: %w", err)
	}
	if err := sess.ScriptClick(ctx, n.ui.LogoutLink, 0); err != nil {
		return fmt.Errorf("failed to click logout: %w", err)
	}
	if err := browser.WaitUntil(ctx, sess, browser.Present(n.ui.Username), n.timings.LogoutConfirm); err != nil {
		return fmt.Errorf("failed to confirm logout: %w", err)
	}
	return nil
}

// review is the per-call state of one Review.
type review struct {
	pdf     string
	name    string
	log     models.ReviewLog
	retries int
	logger  logger.Logger
}

// Review uploads the document at path, walks every section and finishes the
// review. It returns nil only when the finish step completed.
//
// Section errors are recorded in the report and do not abort the walk. The
// report block is appended before Review returns whenever any section was
// reached, including when ctx ended midway.
func (n *Navigator) Review(ctx context.Context, sess browser.Session, path string) error {
	r := &review{
		pdf:    path,
		name:   filepath.Base(path),
		logger: n.logger.With(logger.String("file", filepath.Base(path))),
	}
	start := n.now()
	defer func() {
		if r.log.Empty() {
			return
		}
		n.reporter.Append(report.Entry{
			FileName: r.name,
			Start:    start,
			End:      n.now(),
			Retries:  r.retries,
			Sections: r.log.Sections(),
		})
	}()

	if err := n.uploadWithRetry(ctx, sess, r); err != nil {
		r.logger.Error("An error occurred", logger.Error(err))
		return err
	}

	for _, section := range n.sections {
		if err := n.visitSection(ctx, sess, r, section); err != nil {
			r.logger.Error("An error occurred", logger.Error(err))
			return err
		}
	}

	if err := n.finish(ctx, sess); err != nil {
		r.logger.Error("An error occurred", logger.Error(err))
		return err
	}
	r.logger.Debug("Review finished")
	return nil
}

func (n *Navigator) uploadWithRetry(ctx context.Context, sess browser.Session, r *review) error {
	attempts := n.timings.UploadAttempts
	for attempt := 0; attempt < attempts; attempt++ {
		r.retries = attempt
		err := n.upload(ctx, sess, r.pdf)
		if err == nil {
			return nil
		}
		r.logger.Warn("Upload failed", logger.Int("attempt", attempt+1), logger.Error(err))
		if attempt == attempts-1 || fatal(ctx, err) {
			return fmt.Errorf("failed to upload document: %w", err)
		}

		r.logger.Info("Retrying upload", logger.Duration("backoff", n.timings.UploadBackoff))
		if err := sleep(ctx, n.timings.UploadBackoff); err != nil {
			return err
		}
		if err := sess.Reload(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (n *Navigator) upload(ctx context.Context, sess browser.Session, path string) error {
	if err := browser.WaitUntil(ctx, sess, browser.Present(n.ui.FileInput), n.timings.ElementWait); err != nil {
		return err
	}
	if err := sess.SetFile(ctx, n.ui.FileInput, path); err != nil {
		return err
	}
	if err := sleep(ctx, n.timings.UploadSettle); err != nil {
		return err
	}
	if err := browser.WaitUntil(ctx, sess, browser.Clickable(n.ui.StartReview), n.timings.ElementWait); err != nil {
		return err
	}
	if err := sess.ScriptClick(ctx, n.ui.StartReview, 0); err != nil {
		return err
	}
	return browser.WaitUntil(ctx, sess, browser.TitleContains(n.ui.SectionTitle), n.timings.UploadComplete)
}

// visitSection records one section. Only a lost session is returned; every
// other failure becomes an ERROR entry of the section.
func (n *Navigator) visitSection(ctx context.Context, sess browser.Session, r *review, section models.Section) error {
	r.logger.Debug("Navigating to section", logger.String("section", section.Name))
	r.log.Begin(section.Name)

	if err := n.openSection(ctx, sess, r, section); err != nil {
		n.recordError(r, section.Name, fmt.Sprintf("Could not process section '%s': %v", section.Name, err))
		if fatal(ctx, err) {
			return err
		}
	}

	if !section.IsCustomAnalysis() {
		return nil
	}
	if err := n.runPrompts(ctx, sess, r, section); err != nil {
		n.recordError(r, section.Name, fmt.Sprintf("An error occurred during Custom Analysis: %v", err))
		if fatal(ctx, err) {
			return err
		}
	}
	return nil
}

func (n *Navigator) openSection(ctx context.Context, sess browser.Session, r *review, section models.Section) error {
	link := n.ui.SectionLink(section.Name)
	if err := browser.WaitUntil(ctx, sess, browser.Clickable(link), n.timings.ElementWait); err != nil {
		return err
	}
	if err := sess.ScrollIntoView(ctx, link, 0); err != nil {
		return err
	}
	if err := sleep(ctx, n.timings.ClickSettle); err != nil {
		return err
	}
	if err := sess.Click(ctx, link, 0); err != nil {
		if fatal(ctx, err) {
			return err
		}
		r.logger.Warn("Normal click failed, trying script click",
			logger.String("section", section.Name), logger.Error(err))
		if err := sess.ScriptClick(ctx, link, 0); err != nil {
			return err
		}
	}

	ready := browser.TitleContains(section.Name)
	if section.IsCustomAnalysis() {
		ready = browser.Present(n.ui.PromptButtons)
	}
	if err := browser.WaitUntil(ctx, sess, ready, n.timings.SectionReady); err != nil {
		return err
	}
	return n.collect(ctx, sess, r, section.Name, false)
}

// runPrompts runs every prompt button once. Buttons are looked up by index on
// each pass because running a prompt re-renders the page.
func (n *Navigator) runPrompts(ctx context.Context, sess browser.Session, r *review, section models.Section) error {
	r.logger.Debug("Running custom analysis prompts")
	if err := browser.WaitUntil(ctx, sess, browser.Present(n.ui.PromptButtons), n.timings.ElementWait); err != nil {
		return err
	}
	total, err := sess.Count(ctx, n.ui.PromptButtons)
	if err != nil {
		return err
	}

	for i := 0; i < total; i++ {
		if err := browser.WaitUntil(ctx, sess, browser.Present(n.ui.PromptButtons), n.timings.ElementWait); err != nil {
			return err
		}
		if labels, err := sess.Texts(ctx, n.ui.PromptButtons); err == nil && i < len(labels) {
			r.logger.Debug("Testing prompt", logger.String("prompt", strings.TrimSpace(labels[i])))
		}
		if err := sess.ScrollIntoView(ctx, n.ui.PromptButtons, i); err != nil {
			return err
		}
		if err := sleep(ctx, n.timings.ClickSettle); err != nil {
			return err
		}
		if err := sess.Click(ctx, n.ui.PromptButtons, i); err != nil {
			return err
		}
		if err := browser.WaitUntil(ctx, sess, browser.Clickable(n.ui.SubmitButton), n.timings.ElementWait); err != nil {
			return err
		}
		if err := sess.ScriptClick(ctx, n.ui.SubmitButton, 0); err != nil {
			return err
		}
		if err := n.collect(ctx, sess, r, section.Name, true); err != nil {
			return err
		}
	}
	return nil
}

// collect appends the messages currently shown to the section log and the
// dataset. Prompt results also become analysis samples when analysis is set.
func (n *Navigator) collect(ctx context.Context, sess browser.Session, r *review, section string, analysis bool) error {
	texts, err := sess.Texts(ctx, n.ui.Messages)
	if err != nil {
		return err
	}
	if len(texts) == 0 {
		r.logger.Debug("No validation messages found", logger.String("section", section))
		return nil
	}

	for _, raw := range texts {
		text := strings.TrimSpace(raw)
		r.logger.Info("Validation message", logger.String("section", section), logger.String("message", text))
		r.log.Add(section, n.now(), text)
		n.samples.SaveValidation(r.pdf, section, text)

		if !analysis || !converters.IsPromptMessage(text) {
			continue
		}
		name, output, ok := converters.ParsePromptMessage(text)
		if !ok {
			r.logger.Warn("Could not parse custom analysis prompt for dataset", logger.String("message", text))
			continue
		}
		n.samples.SaveAnalysis(r.pdf, converters.AnalysisInstruction(name), output)
	}
	return nil
}

func (n *Navigator) finish(ctx context.Context, sess browser.Session) error {
	if err := browser.WaitUntil(ctx, sess, browser.Clickable(n.ui.FinishReview), n.timings.ElementWait); err != nil {
		return fmt.Errorf("failed to find finish button: %w", err)
	}
	if err := sess.ScriptClick(ctx, n.ui.FinishReview, 0); err != nil {
		return fmt.Errorf("failed to finish review: %w", err)
	}
	if err := browser.WaitUntil(ctx, sess, browser.TitleContains(n.ui.UploadTitle), n.timings.FinishWait); err != nil {
		return fmt.Errorf("failed to return to upload page: %w", err)
	}
	return nil
}

func (n *Navigator) recordError(r *review, section, msg string) {
	r.logger.Error(msg)
	r.log.Add(section, n.now(), "ERROR: "+msg)
}

// fatal reports whether err leaves nothing useful to do with the session.
func fatal(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, browser.ErrSessionClosed)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-t.C:
		return nil
	}
}
