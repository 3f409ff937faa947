// internal/vlm/oracle.go

// Package vlm wraps the vision model behind a small oracle API. The oracle
// answers two questions about an annotated screenshot: "which numbered
// element is X" and "what does the page say about Y".
package vlm

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/lyubovchubarova/SiriusAgentBrowser/api/schemas"
	"github.com/lyubovchubarova/SiriusAgentBrowser/internal/config"
	"github.com/lyubovchubarova/SiriusAgentBrowser/internal/llmclient"
)

// ErrNotFound is returned when the oracle cannot see a matching element.
var ErrNotFound = fmt.Errorf("vision oracle found no matching element")

const locateSystemPrompt = `You are a precise visual grounding assistant. You are shown a screenshot of a web page where interactive elements are outlined in red and labeled with numeric IDs.

Identify the single element that best matches the user's description.

Respond with EXACTLY one token:
- :id:N: where N is the numeric label of the matching element
- :not_found: if no labeled element matches

No other text.`

const extractSystemPrompt = `You are a careful reading assistant. You are shown a screenshot of a web page. Answer the user's question using only what is visible in the screenshot. Be concise and literal. If the answer is not visible, say so.`

var idPattern = regexp.MustCompile(`:id:\s*(\d+)\s*:`)

// Oracle resolves visual descriptions against annotated screenshots.
type Oracle struct {
	client llmclient.Client
	model  string
	logger *zap.Logger
}

// NewOracle builds the oracle over an LLM client.
func NewOracle(client llmclient.Client, cfg config.LLMConfig, logger *zap.Logger) *Oracle {
	return &Oracle{
		client: client,
		model:  cfg.VisionModel,
		logger: logger.Named("vlm"),
	}
}

// Locate asks the oracle which catalogued element matches the description.
// The returned ID is validated against the snapshot; an ID the snapshot does
// not contain is treated as not found.
func (o *Oracle) Locate(ctx context.Context, screenshot []byte, description string, snapshot *schemas.Snapshot) (int, error) {
	if len(snapshot.Elements) == 0 {
		return 0, ErrNotFound
	}

	reply, err := o.client.Generate(ctx, llmclient.GenerationRequest{
		Model:        o.model,
		SystemPrompt: locateSystemPrompt,
		UserPrompt:   fmt.Sprintf("Find the element matching: %s", description),
		Images:       [][]byte{screenshot},
	})
	if err != nil {
		return 0, fmt.Errorf("vision locate: %w", err)
	}

	reply = strings.TrimSpace(reply)
	if strings.Contains(reply, ":not_found:") {
		return 0, ErrNotFound
	}

	m := idPattern.FindStringSubmatch(reply)
	if m == nil {
		o.logger.Warn("Oracle reply did not follow the protocol.", zap.String("reply", truncate(reply, 200)))
		return 0, ErrNotFound
	}
	id, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, ErrNotFound
	}
	if _, ok := snapshot.ElementByID(id); !ok {
		o.logger.Warn("Oracle named an element outside the catalog.",
			zap.Int("id", id), zap.Int("catalog_size", len(snapshot.Elements)))
		return 0, ErrNotFound
	}

	o.logger.Debug("Oracle located element.", zap.Int("id", id), zap.String("description", description))
	return id, nil
}

// Extract answers a free-form question about the screenshot.
func (o *Oracle) Extract(ctx context.Context, screenshot []byte, instruction string) (string, error) {
	reply, err := o.client.Generate(ctx, llmclient.GenerationRequest{
		Model:        o.model,
		SystemPrompt: extractSystemPrompt,
		UserPrompt:   instruction,
		Images:       [][]byte{screenshot},
	})
	if err != nil {
		return "", fmt.Errorf("vision extract: %w", err)
	}
	return strings.TrimSpace(reply), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
