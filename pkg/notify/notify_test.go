package notify

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/mail.v2"

	"github.com/feichai0017/review-automation/pkg/logger"
)

type fakeSender struct {
	failures int
	calls    int
	sent     []*mail.Message
}

func (f *fakeSender) Send(m *mail.Message) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("connection refused")
	}
	f.sent = append(f.sent, m)
	return nil
}

func TestResolve(t *testing.T) {
	env := map[string]string{
		"EMAIL_SENDER":   "env-sender@example.com",
		"EMAIL_RECEIVER": "env-receiver@example.com",
		"EMAIL_PASSWORD": "abcd efgh ijkl mnop",
		"SMTP_PORT":      "2525",
	}
	getenv := func(k string) string { return env[k] }

	tests := []struct {
		name string
		in   Config
		want Config
	}{
		{
			name: "environment fills the gaps",
			in:   Config{},
			want: Config{
				Sender:     "env-sender@example.com",
				Receiver:   "env-receiver@example.com",
				Password:   "abcdefghijklmnop",
				SMTPServer: DefaultSMTPServer,
				SMTPPort:   2525,
				MaxRetries: 3,
				RetryDelay: 5 * time.Second,
			},
		},
		{
			name: "explicit values win",
			in: Config{
				Sender:     "ops@example.com",
				Password:   "x y",
				SMTPServer: "mail.local",
				SMTPPort:   25,
				MaxRetries: 1,
				RetryDelay: time.Second,
			},
			want: Config{
				Sender:     "ops@example.com",
				Receiver:   "env-receiver@example.com",
				Password:   "xy",
				SMTPServer: "mail.local",
				SMTPPort:   25,
				MaxRetries: 1,
				RetryDelay: time.Second,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Resolve(getenv))
		})
	}

	t.Run("defaults without environment", func(t *testing.T) {
		got := Config{}.Resolve(func(string) string { return "" })
		assert.Equal(t, DefaultSMTPServer, got.SMTPServer)
		assert.Equal(t, DefaultSMTPPort, got.SMTPPort)
		assert.False(t, got.Complete())
	})
}

func newNotifier(t *testing.T, sender *fakeSender, log logger.Logger) *Notifier {
	t.Helper()
	t.Setenv("EMAIL_CC", "")
	cfg := Config{
		Sender:     "bot@example.com",
		Receiver:   "a@example.com, b@example.com",
		Password:   "secret",
		RetryDelay: time.Millisecond,
	}
	return New(cfg, log, WithSender(sender))
}

func TestSendRetriesUntilSuccess(t *testing.T) {
	sender := &fakeSender{failures: 2}
	log := logger.NewTestLogger()
	n := newNotifier(t, sender, log)

	n.Send(context.Background(), "Batch Processing Complete - 1/1 Success", "body", "")

	assert.Equal(t, 3, sender.calls)
	require.Len(t, sender.sent, 1)
	m := sender.sent[0]
	assert.Equal(t, []string{"Batch Processing Complete - 1/1 Success"}, m.GetHeader("Subject"))
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, m.GetHeader("To"))
	assert.Empty(t, m.GetHeader("Cc"))
	assert.True(t, log.Contains("INFO", "Email notification sent"))
}

func TestSendGivesUpAfterMaxRetries(t *testing.T) {
	sender := &fakeSender{failures: 10}
	log := logger.NewTestLogger()
	n := newNotifier(t, sender, log)

	n.Send(context.Background(), "subject", "body", "")

	assert.Equal(t, 3, sender.calls)
	assert.True(t, log.Contains("ERROR", "after 3 attempts"))
}

func TestSendSkipsWhenUnconfigured(t *testing.T) {
	t.Setenv("EMAIL_SENDER", "")
	t.Setenv("EMAIL_RECEIVER", "")
	t.Setenv("EMAIL_PASSWORD", "")
	sender := &fakeSender{}
	log := logger.NewTestLogger()

	New(Config{}, log, WithSender(sender)).Send(context.Background(), "subject", "body", "")

	assert.Zero(t, sender.calls)
	assert.True(t, log.Contains("WARN", "Skipping notification"))
}

func TestSendAttachesExistingReport(t *testing.T) {
	report := filepath.Join(t.TempDir(), "review_log.txt")
	require.NoError(t, os.WriteFile(report, []byte("File Name: a.pdf\n"), 0o644))

	sender := &fakeSender{}
	n := newNotifier(t, sender, logger.NewNop())
	n.Send(context.Background(), "subject", "body", report)
	n.Send(context.Background(), "subject", "body", filepath.Join(t.TempDir(), "missing.txt"))

	require.Len(t, sender.sent, 2)

	var withFile, without bytes.Buffer
	_, err := sender.sent[0].WriteTo(&withFile)
	require.NoError(t, err)
	_, err = sender.sent[1].WriteTo(&without)
	require.NoError(t, err)

	assert.Contains(t, withFile.String(), `filename="review_log.txt"`)
	assert.NotContains(t, without.String(), "filename=")
}
