package web

import (
	"bytes"
	"html"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// helpRenderer turns the bot command listing into HTML. Raw HTML in the input
// is dropped by goldmark's default renderer; Linkify makes bare URLs clickable.
var helpRenderer = goldmark.New(goldmark.WithExtensions(extension.Linkify))

// helpPolicy admits only what a command listing renders to: paragraphs, lists,
// inline code, emphasis and web links.
var helpPolicy = newHelpPolicy()

func newHelpPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("p", "ul", "ol", "li", "code", "strong", "em")
	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("http", "https")
	p.RequireNoFollowOnLinks(true)
	return p
}

// RenderMarkdown converts command help markdown to sanitized HTML. Empty input
// renders as an empty string.
func RenderMarkdown(src string) string {
	if src == "" {
		return ""
	}

	var buf bytes.Buffer
	if err := helpRenderer.Convert([]byte(src), &buf); err != nil {
		return "<p>" + html.EscapeString(src) + "</p>"
	}

	return helpPolicy.Sanitize(buf.String())
}
