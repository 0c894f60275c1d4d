package web

import "embed"

// Templates embeds the document and email HTML templates.
//
//go:embed templates/**/*.html
var Templates embed.FS
