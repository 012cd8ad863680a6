// Package mailer sends the weekly digest over SMTP as a
// multipart/alternative message, one message per recipient so each carries
// its own unsubscribe link.
package mailer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"strings"

	"github.com/okello/hornwatch/internal/digest"
	"github.com/okello/hornwatch/internal/metrics"
	"github.com/okello/hornwatch/internal/store"
)

type Mailer struct {
	host     string
	port     int
	user     string
	password string
	from     string
	baseURL  string
	secret   string
	store    *store.Store
}

func New(host string, port int, user, password, baseURL, secret string, st *store.Store) *Mailer {
	return &Mailer{
		host:     host,
		port:     port,
		user:     user,
		password: password,
		from:     user,
		baseURL:  strings.TrimRight(baseURL, "/"),
		secret:   secret,
		store:    st,
	}
}

// UnsubscribeToken derives the per-address opt-out token. HMAC keeps the
// link unforgeable without storing tokens ahead of time.
func (m *Mailer) UnsubscribeToken(email string) string {
	mac := hmac.New(sha256.New, []byte(m.secret))
	mac.Write([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(mac.Sum(nil))[:32]
}

// VerifyToken checks an opt-out token from the unsubscribe endpoint.
func (m *Mailer) VerifyToken(email, token string) bool {
	return hmac.Equal([]byte(m.UnsubscribeToken(email)), []byte(token))
}

func (m *Mailer) unsubscribeURL(email string) string {
	if m.baseURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/unsubscribe?email=%s&token=%s", m.baseURL, email, m.UnsubscribeToken(email))
}

// SendDigest dispatches the digest to every recipient that has not opted
// out. Per-recipient failures are logged and do not abort the batch.
func (m *Mailer) SendDigest(d *digest.Digest, recipients []string) error {
	subject := digest.Subject(d)
	sent := 0

	for _, rcpt := range recipients {
		skip, err := m.store.IsUnsubscribed(rcpt)
		if err != nil {
			slog.Error("unsubscribe lookup failed", "recipient", rcpt, "error", err)
		}
		if skip {
			slog.Info("recipient opted out, skipping", "recipient", rcpt)
			continue
		}

		html, err := digest.RenderHTML(d, m.unsubscribeURL(rcpt))
		if err != nil {
			return err
		}

		msg, err := m.buildMessage(rcpt, subject, digest.RenderText(d), html)
		if err != nil {
			return err
		}

		addr := fmt.Sprintf("%s:%d", m.host, m.port)
		auth := smtp.PlainAuth("", m.user, m.password, m.host)
		if err := smtp.SendMail(addr, auth, m.from, []string{rcpt}, msg); err != nil {
			slog.Error("digest send failed", "recipient", rcpt, "error", err)
			continue
		}
		sent++
	}

	slog.Info("digest dispatched", "sent", sent, "recipients", len(recipients))
	if sent > 0 {
		metrics.Global.IncrementDigestsSent()
	}
	return nil
}

// buildMessage assembles a multipart/alternative MIME message, text part
// first so HTML-capable clients prefer the HTML part.
func (m *Mailer) buildMessage(to, subject, textBody, htmlBody string) ([]byte, error) {
	var b strings.Builder
	mp := multipart.NewWriter(&b)

	fmt.Fprintf(&b, "From: Hornwatch <%s>\r\n", m.from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n", mp.Boundary())
	b.WriteString("\r\n")

	text, err := mp.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/plain; charset=UTF-8"},
	})
	if err != nil {
		return nil, fmt.Errorf("build message: %w", err)
	}
	if _, err := text.Write([]byte(textBody)); err != nil {
		return nil, fmt.Errorf("build message: %w", err)
	}

	html, err := mp.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/html; charset=UTF-8"},
	})
	if err != nil {
		return nil, fmt.Errorf("build message: %w", err)
	}
	if _, err := html.Write([]byte(htmlBody)); err != nil {
		return nil, fmt.Errorf("build message: %w", err)
	}

	if err := mp.Close(); err != nil {
		return nil, fmt.Errorf("build message: %w", err)
	}
	return []byte(b.String()), nil
}
