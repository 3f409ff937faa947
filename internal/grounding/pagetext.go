// internal/grounding/pagetext.go
package grounding

import (
	"context"
	"fmt"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/lyubovchubarova/SiriusAgentBrowser/internal/browser"
)

// PageText renders the current document as markdown, which reads far better
// in a planner prompt than raw HTML. Output is truncated to maxBytes on a
// rune boundary.
func PageText(ctx context.Context, driver browser.Driver, maxBytes int) (string, error) {
	html, err := driver.OuterHTML(ctx)
	if err != nil {
		return "", fmt.Errorf("page html: %w", err)
	}

	markdown, err := htmltomarkdown.ConvertString(html)
	if err != nil {
		return "", fmt.Errorf("convert page text: %w", err)
	}

	markdown = strings.TrimSpace(markdown)
	if maxBytes > 0 && len(markdown) > maxBytes {
		cut := markdown[:maxBytes]
		if i := strings.LastIndexByte(cut, '\n'); i > maxBytes/2 {
			cut = cut[:i]
		}
		markdown = strings.ToValidUTF8(cut, "") + "\n[truncated]"
	}
	return markdown, nil
}
