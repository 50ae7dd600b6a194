package smtp

import (
	"context"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMessage(t *testing.T) {
	from := mail.Address{Name: "HR Platform", Address: "noreply@hr.example"}
	to := mail.Address{Address: "jane@example.com"}

	raw, err := buildMessage(from, to, Message{
		Subject: "Your daily digest (2 notifications)",
		HTML:    "<p>Hello</p>",
		Text:    "Hello",
	}, time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	parsed, err := mail.ReadMessage(strings.NewReader(string(raw)))
	require.NoError(t, err)

	dec := new(mime.WordDecoder)
	subject, err := dec.DecodeHeader(parsed.Header.Get("Subject"))
	require.NoError(t, err)
	assert.Equal(t, "Your daily digest (2 notifications)", subject)
	assert.Contains(t, parsed.Header.Get("Message-ID"), "@hr.example>")

	mediaType, params, err := mime.ParseMediaType(parsed.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/alternative", mediaType)

	mr := multipart.NewReader(parsed.Body, params["boundary"])
	var types []string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		types = append(types, part.Header.Get("Content-Type"))
	}
	assert.Equal(t, []string{"text/plain; charset=utf-8", "text/html; charset=utf-8"}, types)
}

func TestBuildMessage_SkipsEmptyParts(t *testing.T) {
	raw, err := buildMessage(
		mail.Address{Address: "a@b.c"},
		mail.Address{Address: "d@e.f"},
		Message{Subject: "x", Text: "only text"},
		time.Now(),
	)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "text/html")
}

func TestMailer_RejectsBadRecipient(t *testing.T) {
	m := NewMailer(NewSMTPPool(SMTPConfig{Host: "localhost", Port: 1}, 1), "noreply@hr.example", "HR")
	err := m.Send(context.Background(), Message{To: "not an address", Subject: "x", Text: "y"})
	assert.Error(t, err)
}
