// Package notify sends best-effort batch summary emails over SMTP.
package notify

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/mail.v2"

	"github.com/feichai0017/review-automation/pkg/logger"
)

const (
	DefaultSMTPServer = "smtp.gmail.com"
	DefaultSMTPPort   = 587
	defaultRetries    = 3
	defaultRetryDelay = 5 * time.Second
)

// Config 邮件通知配置
type Config struct {
	Sender     string        `mapstructure:"sender"`
	Receiver   string        `mapstructure:"receiver"`
	CC         string        `mapstructure:"cc"`
	Password   string        `mapstructure:"password"`
	SMTPServer string        `mapstructure:"smtp_server"`
	SMTPPort   int           `mapstructure:"smtp_port"`
	MaxRetries int           `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// Resolve fills every empty field from the environment, then from defaults.
// Spaces are stripped from the password.
func (c Config) Resolve(getenv func(string) string) Config {
	if getenv == nil {
		getenv = os.Getenv
	}
	pick := func(explicit, env string) string {
		if explicit != "" {
			return explicit
		}
		return getenv(env)
	}

	c.Sender = pick(c.Sender, "EMAIL_SENDER")
	c.Receiver = pick(c.Receiver, "EMAIL_RECEIVER")
	c.CC = pick(c.CC, "EMAIL_CC")
	c.Password = strings.ReplaceAll(pick(c.Password, "EMAIL_PASSWORD"), " ", "")
	c.SMTPServer = pick(c.SMTPServer, "SMTP_SERVER")
	if c.SMTPServer == "" {
		c.SMTPServer = DefaultSMTPServer
	}
	if c.SMTPPort == 0 {
		if p, err := strconv.Atoi(getenv("SMTP_PORT")); err == nil && p > 0 {
			c.SMTPPort = p
		} else {
			c.SMTPPort = DefaultSMTPPort
		}
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultRetries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = defaultRetryDelay
	}
	return c
}

// Complete reports whether the config can send mail at all.
func (c Config) Complete() bool {
	return c.Sender != "" && c.Receiver != "" && c.Password != ""
}

// Sender delivers a composed message.
type Sender interface {
	Send(m *mail.Message) error
}

type dialerSender struct {
	dialer *mail.Dialer
}

func (s dialerSender) Send(m *mail.Message) error {
	return s.dialer.DialAndSend(m)
}

type Notifier struct {
	config Config
	sender Sender
	logger logger.Logger
}

type Option func(*Notifier)

// WithSender replaces the SMTP transport.
func WithSender(s Sender) Option {
	return func(n *Notifier) { n.sender = s }
}

// New resolves cfg against the process environment.
func New(cfg Config, log logger.Logger, opts ...Option) *Notifier {
	cfg = cfg.Resolve(os.Getenv)

	d := mail.NewDialer(cfg.SMTPServer, cfg.SMTPPort, cfg.Sender, cfg.Password)
	d.StartTLSPolicy = mail.MandatoryStartTLS
	d.Timeout = 30 * time.Second

	n := &Notifier{
		config: cfg,
		sender: dialerSender{dialer: d},
		logger: log,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Send mails subject and body, attaching the file at attachment when it
// exists. Failures are logged; Send never fails the caller.
func (n *Notifier) Send(ctx context.Context, subject, body, attachment string) {
	if !n.config.Complete() {
		n.logger.Warn("Email configuration missing (Sender, Receiver, or Password). Skipping notification.")
		return
	}

	m := n.compose(subject, body, attachment)
	for attempt := 1; attempt <= n.config.MaxRetries; attempt++ {
		err := n.sender.Send(m)
		if err == nil {
			n.logger.Info("Email notification sent", logger.String("subject", subject))
			return
		}
		n.logger.Warn("Email send attempt failed", logger.Int("attempt", attempt), logger.Error(err))
		if attempt == n.config.MaxRetries {
			break
		}

		t := time.NewTimer(n.config.RetryDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			n.logger.Error("Email notification abandoned", logger.Error(context.Cause(ctx)))
			return
		case <-t.C:
		}
	}
	n.logger.Error(fmt.Sprintf("Failed to send email notification after %d attempts.", n.config.MaxRetries))
}

func (n *Notifier) compose(subject, body, attachment string) *mail.Message {
	m := mail.NewMessage()
	m.SetHeader("From", n.config.Sender)
	m.SetHeader("To", splitAddresses(n.config.Receiver)...)
	if cc := splitAddresses(n.config.CC); len(cc) > 0 {
		m.SetHeader("Cc", cc...)
	}
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if attachment != "" {
		if info, err := os.Stat(attachment); err == nil && !info.IsDir() {
			m.Attach(attachment)
		}
	}
	return m
}

func splitAddresses(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}
