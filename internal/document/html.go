package document

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io/fs"
)

// Converter turns an HTML page into a PDF.
type Converter interface {
	ConvertHTML(ctx context.Context, html []byte) ([]byte, error)
}

// QuoteTemplatePath is the embedded template used by HTMLRenderer.
const QuoteTemplatePath = "templates/documents/quote.html"

type htmlView struct {
	QuotePDFData
	Company Company
	Terms   []string
}

// HTMLRenderer executes the quote template and converts it remotely.
type HTMLRenderer struct {
	tmpl      *template.Template
	converter Converter
	company   Company
}

// NewHTMLRenderer parses the quote template from fsys.
func NewHTMLRenderer(fsys fs.FS, converter Converter, company Company) (*HTMLRenderer, error) {
	tmpl, err := template.New("quote.html").Funcs(TemplateFuncs()).ParseFS(fsys, QuoteTemplatePath)
	if err != nil {
		return nil, fmt.Errorf("parse quote template: %w", err)
	}
	if company.Name == "" {
		company = DefaultCompany
	}
	return &HTMLRenderer{tmpl: tmpl, converter: converter, company: company}, nil
}

// HTML executes the template without converting.
func (r *HTMLRenderer) HTML(data QuotePDFData) ([]byte, error) {
	var buf bytes.Buffer
	view := htmlView{QuotePDFData: data, Company: r.company, Terms: quoteTerms}
	if err := r.tmpl.ExecuteTemplate(&buf, "quote.html", view); err != nil {
		return nil, fmt.Errorf("execute quote template: %w", err)
	}
	return buf.Bytes(), nil
}

// Render produces the PDF through the converter.
func (r *HTMLRenderer) Render(ctx context.Context, data QuotePDFData) ([]byte, error) {
	html, err := r.HTML(data)
	if err != nil {
		return nil, err
	}
	return r.converter.ConvertHTML(ctx, html)
}
