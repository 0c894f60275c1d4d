package notify

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

const sendGridHost = "https://api.sendgrid.com"

// SendGridMailer sends through the SendGrid v3 mail API.
type SendGridMailer struct {
	apiKey string
	host   string
}

// NewSendGridMailer builds a mailer. An empty key yields an unconfigured mailer.
func NewSendGridMailer(apiKey string) *SendGridMailer {
	return &SendGridMailer{apiKey: strings.TrimSpace(apiKey), host: sendGridHost}
}

// WithHost points the mailer at another API host, e.g. a local fake.
func (m *SendGridMailer) WithHost(host string) *SendGridMailer {
	m.host = strings.TrimRight(host, "/")
	return m
}

func (m *SendGridMailer) Configured() bool {
	return m != nil && m.apiKey != ""
}

func (m *SendGridMailer) Send(ctx context.Context, msg Message) error {
	if !m.Configured() {
		return ErrNotConfigured
	}
	if err := msg.Validate(); err != nil {
		return err
	}

	request := sendgrid.GetRequest(m.apiKey, "/v3/mail/send", m.host)
	request.Method = "POST"
	request.Body = mail.GetRequestBody(buildV3Mail(msg))

	resp, err := sendgrid.MakeRequestWithContext(ctx, request)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return &ProviderError{StatusCode: resp.StatusCode, Body: resp.Body}
	}
	return nil
}

func buildV3Mail(msg Message) *mail.SGMailV3 {
	m := mail.NewV3Mail()
	m.SetFrom(mail.NewEmail(msg.From.Name, msg.From.Email))
	m.Subject = msg.Subject

	p := mail.NewPersonalization()
	for _, to := range msg.To {
		p.AddTos(mail.NewEmail(to.Name, to.Email))
	}
	for k, v := range msg.CustomArgs {
		p.SetCustomArg(k, v)
	}
	m.AddPersonalizations(p)

	if msg.ReplyTo != nil {
		m.SetReplyTo(mail.NewEmail(msg.ReplyTo.Name, msg.ReplyTo.Email))
	}
	// text/plain must precede text/html
	if msg.Text != "" {
		m.AddContent(mail.NewContent("text/plain", msg.Text))
	}
	if msg.HTML != "" {
		m.AddContent(mail.NewContent("text/html", msg.HTML))
	}
	for _, att := range msg.Attachments {
		a := mail.NewAttachment()
		a.SetContent(base64.StdEncoding.EncodeToString(att.Content))
		a.SetType(att.ContentType)
		a.SetFilename(att.Filename)
		a.SetDisposition("attachment")
		m.AddAttachment(a)
	}
	if len(msg.Categories) > 0 {
		m.AddCategories(msg.Categories...)
	}
	return m
}
