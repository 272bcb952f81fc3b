package messaging

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// MaxChunkSize is the transport-imposed body ceiling long messages are
// pre-chunked to.
const MaxChunkSize = 1500

// sentenceBoundaries are preferred split points, in order of preference
// against a line break or a plain space.
var sentenceBoundaries = []string{". ", ".\n", "! ", "? "}

// Chunk splits text into pieces of at most limit characters, preferring
// sentence boundaries, then line breaks, then spaces, splitting mid-word only
// as a last resort.
func Chunk(text string, limit int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	for len(text) > limit {
		window := text[:limit]
		cut := -1
		for _, b := range sentenceBoundaries {
			if idx := strings.LastIndex(window, b); idx+len(b) > cut {
				cut = idx + len(b)
			}
		}
		if cut <= 0 {
			if idx := strings.LastIndexByte(window, '\n'); idx > 0 {
				cut = idx + 1
			}
		}
		if cut <= 0 {
			if idx := strings.LastIndexByte(window, ' '); idx > 0 {
				cut = idx + 1
			}
		}
		if cut <= 0 {
			cut = limit
		}
		chunks = append(chunks, strings.TrimSpace(text[:cut]))
		text = strings.TrimSpace(text[cut:])
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

// SendChunked splits body for the transport ceiling and sends each piece,
// labeling multi-part messages "(Part i/N)".
func SendChunked(ctx context.Context, svc Service, to, body string) error {
	chunks := Chunk(body, MaxChunkSize)
	for i, chunk := range chunks {
		if len(chunks) > 1 {
			chunk = fmt.Sprintf("(Part %d/%d)\n\n%s", i+1, len(chunks), chunk)
		}
		if err := svc.SendMessage(ctx, to, chunk); err != nil {
			return fmt.Errorf("failed to send part %d/%d to %s: %w", i+1, len(chunks), to, err)
		}
	}
	return nil
}

var (
	headingRe     = regexp.MustCompile(`(?m)^#{1,6}\s*`)
	excessBlankRe = regexp.MustCompile(`\n{3,}`)
	boldMarkerRe  = regexp.MustCompile(`\*\*`)
	underMarkerRe = regexp.MustCompile(`__`)
)

// CleanFormatting normalizes LLM markdown for WhatsApp rendering: headings
// are stripped, double markers become WhatsApp-style single markers, and runs
// of blank lines collapse.
func CleanFormatting(text string) string {
	text = headingRe.ReplaceAllString(text, "")
	text = boldMarkerRe.ReplaceAllString(text, "*")
	text = underMarkerRe.ReplaceAllString(text, "_")
	text = excessBlankRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// IsRateLimited reports whether a transport error carries the rate-limit
// signature. Rate-limited sends are tallied separately in broadcast summaries.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") || strings.Contains(msg, "daily messages limit")
}
