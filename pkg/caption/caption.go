package caption

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/menta2k/circle-snip/pkg/client"
	"github.com/menta2k/circle-snip/pkg/types"
)

// MaxAltLength caps alt text in runes
const MaxAltLength = 200

// MaxTags caps the number of tags kept per caption
const MaxTags = 5

// SimplePrompt asks for plain alt text
const SimplePrompt = `Write one short sentence of alt text for this image. No preamble, no quotes.`

// DefaultPrompt asks for a structured caption
const DefaultPrompt = `You write alt text for cropped screenshots.

Return JSON only:
{
  "alt": "one factual sentence (at most 25 words)",
  "tags": ["tag1", "tag2", "tag3"]
}

RULES
- Describe what is visible. Do not guess real identities.
- Mention readable text only if it is the main subject.
- Tags: lowercase, concise, no punctuation or duplicates, at most 5.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// Captioner produces alt text for snips with a vision model
type Captioner struct {
	client client.VisionClient
	model  string
	prompt string
	logger *slog.Logger
}

// NewCaptioner creates a captioner using model on the given backend
func NewCaptioner(c client.VisionClient, model string) *Captioner {
	return &Captioner{
		client: c,
		model:  model,
		prompt: DefaultPrompt,
		logger: slog.Default(),
	}
}

// SetPrompt overrides the structured prompt
func (c *Captioner) SetPrompt(prompt string) {
	if strings.TrimSpace(prompt) != "" {
		c.prompt = prompt
	}
}

// SetLogger sets the logger used for fallback diagnostics
func (c *Captioner) SetLogger(logger *slog.Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// Describe captions an encoded PNG snip. When the structured reply carries no
// alt text it retries once with a plain-text prompt.
func (c *Captioner) Describe(ctx context.Context, png []byte) (*types.Caption, error) {
	if len(png) == 0 {
		return nil, fmt.Errorf("caption: empty image")
	}
	imgB64 := base64.StdEncoding.EncodeToString(png)

	result, err := c.client.DescribeImage(ctx, c.model, c.prompt, imgB64)
	if err != nil {
		return nil, fmt.Errorf("caption: %w", err)
	}
	result.Alt = SanitizeAlt(result.Alt)
	result.Tags = NormalizeTags(result.Tags)
	if result.Model == "" {
		result.Model = c.model
	}
	if result.Alt != "" {
		return result, nil
	}

	c.logger.Debug("caption: structured reply had no alt text, retrying as plain text", "model", c.model)
	raw, err := c.client.SimpleQuery(ctx, c.model, SimplePrompt, imgB64)
	if err != nil {
		return nil, fmt.Errorf("caption: %w", err)
	}
	result.Alt = SanitizeAlt(raw)
	if result.Alt == "" {
		return nil, fmt.Errorf("caption: model returned no text")
	}
	return result, nil
}

// SanitizeAlt strips fences, quotes and surplus whitespace and truncates to
// MaxAltLength runes on a word boundary where possible.
func SanitizeAlt(raw string) string {
	s := client.StripFences(raw)
	s = strings.Join(strings.Fields(s), " ")
	s = strings.Trim(s, "\"'“”‘’ ")
	if lower := strings.ToLower(s); strings.HasPrefix(lower, "alt text:") {
		s = strings.TrimSpace(s[len("alt text:"):])
	}

	runes := []rune(s)
	if len(runes) <= MaxAltLength {
		return s
	}
	cut := string(runes[:MaxAltLength])
	if i := strings.LastIndex(cut, " "); i > MaxAltLength/2 {
		cut = cut[:i]
	}
	return strings.TrimRightFunc(cut, func(r rune) bool {
		return unicode.IsSpace(r) || r == ',' || r == ';'
	})
}

// NormalizeTags lower-cases tags, drops punctuation and duplicates, and keeps
// at most MaxTags
func NormalizeTags(tags []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		tag = strings.TrimFunc(tag, unicode.IsPunct)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
		if len(out) == MaxTags {
			break
		}
	}
	return out
}
