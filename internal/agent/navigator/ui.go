package navigator

import (
	"time"

	"github.com/feichai0017/review-automation/internal/browser"
)

// UI holds every selector and title marker of the remote review application.
type UI struct {
	Username    browser.Selector
	Password    browser.Selector
	LoginButton browser.Selector
	LogoutLink  browser.Selector

	FileInput    browser.Selector
	StartReview  browser.Selector
	FinishReview browser.Selector

	Messages      browser.Selector
	PromptButtons browser.Selector
	SubmitButton  browser.Selector

	// LoggedInTitle, SectionTitle and UploadTitle are matched as substrings.
	LoggedInTitle string
	SectionTitle  string
	UploadTitle   string
}

// DefaultUI returns the selectors of the production application.
func DefaultUI() UI {
	return UI{
		Username:    browser.XPath("//input[@id='id_username']"),
		Password:    browser.XPath("//input[@id='id_password']"),
		LoginButton: browser.XPath("//button[normalize-space()='Login']"),
		LogoutLink:  browser.XPath("//a[normalize-space()='Logout']"),

		FileInput:    browser.XPath("//input[@type='file']"),
		StartReview:  browser.XPath("//button[normalize-space()='Start Review']"),
		FinishReview: browser.XPath("//button[normalize-space()='Finish Review']"),

		Messages:      browser.CSS("#validation-container .validation-message"),
		PromptButtons: browser.CSS(".prompt-suggestion-btn"),
		SubmitButton:  browser.CSS(".btn-submit"),

		LoggedInTitle: "Review",
		SectionTitle:  "Section to Review",
		UploadTitle:   "Full File Review",
	}
}

// SectionLink locates the navigation link of a section by its display name.
func (u UI) SectionLink(name string) browser.Selector {
	return browser.XPath("//a[normalize-space()=" + browser.XPathLiteral(name) + "]")
}

// Timings bounds every wait and pause of a review.
type Timings struct {
	ElementWait    time.Duration
	UploadSettle   time.Duration
	UploadComplete time.Duration
	UploadAttempts int
	UploadBackoff  time.Duration
	ClickSettle    time.Duration
	SectionReady   time.Duration
	FinishWait     time.Duration
	LoginWait      time.Duration
	LogoutWait     time.Duration
	LogoutConfirm  time.Duration
}

func DefaultTimings() Timings {
	return Timings{
		ElementWait:    10 * time.Second,
		UploadSettle:   2 * time.Second,
		UploadComplete: 120 * time.Second,
		UploadAttempts: 3,
		UploadBackoff:  5 * time.Second,
		ClickSettle:    500 * time.Millisecond,
		SectionReady:   20 * time.Second,
		FinishWait:     20 * time.Second,
		LoginWait:      10 * time.Second,
		LogoutWait:     5 * time.Second,
		LogoutConfirm:  10 * time.Second,
	}
}
