package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/redkey-web/DewaterQuote-sub003/internal/document"
)

const (
	tmplCustomerQuote = "customer_quote.html"
	tmplBusinessQuote = "business_new_quote.html"
	tmplCustomerAck   = "customer_ack.html"
	tmplDeliveryAlert = "delivery_alert.html"
)

// Templates renders the embedded email templates.
type Templates struct {
	set *template.Template
}

// ParseTemplates loads templates/email/*.html from fsys.
func ParseTemplates(fsys fs.FS) (*Templates, error) {
	set, err := template.New("email").Funcs(document.TemplateFuncs()).ParseFS(fsys, "templates/email/*.html")
	if err != nil {
		return nil, fmt.Errorf("notify: parse templates: %w", err)
	}
	for _, name := range []string{tmplCustomerQuote, tmplBusinessQuote, tmplCustomerAck, tmplDeliveryAlert} {
		if set.Lookup(name) == nil {
			return nil, fmt.Errorf("notify: template %s missing", name)
		}
	}
	return &Templates{set: set}, nil
}

// Render executes a named template and derives its plain text body.
func (t *Templates) Render(name string, data any) (htmlBody, textBody string, err error) {
	var buf bytes.Buffer
	if err := t.set.ExecuteTemplate(&buf, name, data); err != nil {
		return "", "", fmt.Errorf("notify: render %s: %w", name, err)
	}
	htmlBody = buf.String()
	return htmlBody, PlainText(htmlBody), nil
}

var blankLines = regexp.MustCompile(`\n[ \t]*(\n[ \t]*)+`)

// PlainText flattens an HTML email into readable text.
func PlainText(htmlContent string) string {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return htmlContent
	}

	var text strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if s := strings.Join(strings.Fields(n.Data), " "); s != "" {
				text.WriteString(s)
				text.WriteString(" ")
			}
		case html.ElementNode:
			switch n.Data {
			case "style", "script", "title", "head":
				return
			case "p", "div", "br", "h1", "h2", "h3", "tr", "table":
				text.WriteString("\n")
			case "li":
				text.WriteString("\n- ")
			case "td", "th":
				text.WriteString(" ")
			case "a":
				defer func() {
					for _, attr := range n.Attr {
						if attr.Key == "href" && strings.HasPrefix(attr.Val, "http") {
							text.WriteString("(" + attr.Val + ") ")
						}
					}
				}()
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)

	lines := strings.Split(text.String(), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	out := blankLines.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(out)
}
