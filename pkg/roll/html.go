package roll

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.Strikethrough))

// RenderHTML converts a markdown breakdown such as "(~~2~~ → **5**)" into
// inline HTML. Raw HTML in the input is not passed through.
func RenderHTML(formatted string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(formatted), &buf); err != nil {
		return "", err
	}
	out := strings.TrimSpace(buf.String())
	out = strings.TrimPrefix(out, "<p>")
	out = strings.TrimSuffix(out, "</p>")
	return out, nil
}
