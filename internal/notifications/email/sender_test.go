package email

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatherly/gatherly/internal/domain"
	"github.com/gatherly/gatherly/internal/notifications"
)

func TestNewSender_Validation(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{
			name: "enabled without smtp host",
			config: Config{
				Enabled:     true,
				FromAddress: "noreply@gatherly.example.com",
			},
			wantErr: "SMTP host is required",
		},
		{
			name: "enabled without from address",
			config: Config{
				Enabled:  true,
				SMTPHost: "smtp.example.com",
			},
			wantErr: "from address is required",
		},
		{
			name: "disabled - no validation",
			config: Config{
				Enabled: false,
			},
			wantErr: "",
		},
		{
			name: "valid config",
			config: Config{
				Enabled:     true,
				SMTPHost:    "smtp.example.com",
				FromAddress: "noreply@gatherly.example.com",
			},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender, err := NewSender(tt.config)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Nil(t, sender)
			} else {
				require.NoError(t, err)
				assert.NotNil(t, sender)
			}
		})
	}
}

func TestNewSender_Defaults(t *testing.T) {
	sender, err := NewSender(Config{
		Enabled:     true,
		SMTPHost:    "smtp.example.com",
		FromAddress: "noreply@gatherly.example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, 587, sender.config.SMTPPort)
}

func TestSend_DisabledReturnsError(t *testing.T) {
	sender, err := NewSender(Config{Enabled: false})
	require.NoError(t, err)

	err = sender.Send(context.Background(), notifications.Message{To: "user@example.com"})
	assert.Error(t, err)
}

func TestBuildMessage_PlainText(t *testing.T) {
	sender, err := NewSender(Config{
		Enabled:     true,
		SMTPHost:    "smtp.example.com",
		FromAddress: "noreply@gatherly.example.com",
	})
	require.NoError(t, err)

	data := string(sender.buildMessage(notifications.Message{
		To:      "user@example.com",
		Subject: "Event Reminder",
		Body:    "See you tomorrow",
	}))

	assert.Contains(t, data, "From: noreply@gatherly.example.com\r\n")
	assert.Contains(t, data, "To: user@example.com\r\n")
	assert.Contains(t, data, "Subject: Event Reminder\r\n")
	assert.Contains(t, data, "Content-Type: text/plain")
	assert.Contains(t, data, "See you tomorrow")
	assert.NotContains(t, data, "multipart/mixed")
}

func TestBuildMessage_WithAttachments(t *testing.T) {
	sender, err := NewSender(Config{
		Enabled:     true,
		SMTPHost:    "smtp.example.com",
		FromAddress: "noreply@gatherly.example.com",
	})
	require.NoError(t, err)

	content := []byte("BEGIN:VCALENDAR")
	data := string(sender.buildMessage(notifications.Message{
		To:      "user@example.com",
		Subject: "Event Reminder",
		Body:    "See you tomorrow",
		Attachments: []domain.Attachment{
			{FileName: "invite.ics", ContentType: "text/calendar", Bytes: content},
			{FileName: "map", Bytes: []byte("pretend png")},
		},
	}))

	assert.Contains(t, data, "multipart/mixed")
	assert.Contains(t, data, `Content-Disposition: attachment; filename="invite.ics"`)
	assert.Contains(t, data, "Content-Type: text/calendar")
	assert.Contains(t, data, base64.StdEncoding.EncodeToString(content))
	// Missing content type falls back to octet-stream
	assert.Contains(t, data, "Content-Type: application/octet-stream")
	// Closing boundary present
	assert.Contains(t, data, "--gatherly-mail-boundary--")
}

func TestWrapBase64(t *testing.T) {
	long := strings.Repeat("A", 200)
	wrapped := wrapBase64(long)

	for _, line := range strings.Split(wrapped, "\r\n") {
		assert.LessOrEqual(t, len(line), 76)
	}
	assert.Equal(t, long, strings.ReplaceAll(wrapped, "\r\n", ""))
}

func TestExtractEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"noreply@gatherly.example.com", "noreply@gatherly.example.com"},
		{"Gatherly <noreply@gatherly.example.com>", "noreply@gatherly.example.com"},
		{"<noreply@gatherly.example.com>", "noreply@gatherly.example.com"},
		{"broken <", "broken <"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, extractEmail(tt.in))
	}
}
