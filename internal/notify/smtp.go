package notify

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"sort"
	"strings"
	"time"
)

// SMTPConfig holds relay credentials.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

// SMTPMailer sends through an authenticated SMTP relay.
type SMTPMailer struct {
	cfg  SMTPConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPMailer builds a relay mailer.
func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &SMTPMailer{cfg: cfg, send: smtp.SendMail}
}

func (m *SMTPMailer) Configured() bool {
	return m != nil && m.cfg.Host != "" && m.cfg.Username != "" && m.cfg.Password != ""
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if !m.Configured() {
		return ErrNotConfigured
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	raw, err := buildMIME(msg, time.Now())
	if err != nil {
		return err
	}
	to := make([]string, 0, len(msg.To))
	for _, a := range msg.To {
		to = append(to, a.Email)
	}
	addr := net.JoinHostPort(m.cfg.Host, fmt.Sprint(m.cfg.Port))
	auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)

	done := make(chan error, 1)
	go func() { done <- m.send(addr, auth, msg.From.Email, to, raw) }()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("notify: smtp send: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func buildMIME(msg Message, now time.Time) ([]byte, error) {
	var body bytes.Buffer
	mixed := multipart.NewWriter(&body)

	to := make([]string, 0, len(msg.To))
	for _, a := range msg.To {
		to = append(to, a.String())
	}
	headers := []string{
		"From: " + msg.From.String(),
		"To: " + strings.Join(to, ", "),
		"Subject: " + mime.QEncoding.Encode("utf-8", msg.Subject),
		"Date: " + now.Format(time.RFC1123Z),
		"MIME-Version: 1.0",
		"Content-Type: multipart/mixed; boundary=" + mixed.Boundary(),
	}
	if msg.ReplyTo != nil {
		headers = append(headers, "Reply-To: "+msg.ReplyTo.String())
	}
	keys := make([]string, 0, len(msg.CustomArgs))
	for k := range msg.CustomArgs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		headers = append(headers, fmt.Sprintf("X-Dewater-%s: %s", textproto.CanonicalMIMEHeaderKey(strings.ReplaceAll(k, "_", "-")), msg.CustomArgs[k]))
	}

	if msg.Text != "" {
		if err := writePart(mixed, "text/plain; charset=utf-8", []byte(msg.Text), nil); err != nil {
			return nil, err
		}
	}
	if msg.HTML != "" {
		if err := writePart(mixed, "text/html; charset=utf-8", []byte(msg.HTML), nil); err != nil {
			return nil, err
		}
	}
	for _, att := range msg.Attachments {
		disp := textproto.MIMEHeader{"Content-Disposition": {mime.FormatMediaType("attachment", map[string]string{"filename": att.Filename})}}
		if err := writePart(mixed, att.ContentType, att.Content, disp); err != nil {
			return nil, err
		}
	}
	if err := mixed.Close(); err != nil {
		return nil, err
	}

	var out bytes.Buffer
	out.WriteString(strings.Join(headers, "\r\n"))
	out.WriteString("\r\n\r\n")
	out.Write(body.Bytes())
	return out.Bytes(), nil
}

func writePart(w *multipart.Writer, contentType string, content []byte, extra textproto.MIMEHeader) error {
	h := textproto.MIMEHeader{}
	h.Set("Content-Type", contentType)
	h.Set("Content-Transfer-Encoding", "base64")
	for k, v := range extra {
		h[k] = v
	}
	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	encoded := base64.StdEncoding.EncodeToString(content)
	for len(encoded) > 76 {
		if _, err := part.Write([]byte(encoded[:76] + "\r\n")); err != nil {
			return err
		}
		encoded = encoded[76:]
	}
	_, err = part.Write([]byte(encoded))
	return err
}
