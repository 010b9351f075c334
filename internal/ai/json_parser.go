// Package ai adjudicates ambiguous skill pairs with a hosted language model.
package ai

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/logging"
)

var (
	// Newlines around the fence body are optional; models are inconsistent about them.
	codeFenceStartRegex = regexp.MustCompile(`(?s)^` + "`" + `{3}(?:json|javascript|js)?\s*\n?([\s\S]*?)\n?` + "`" + `{3}\s*$`)
	codeFenceAnyRegex   = regexp.MustCompile(`(?s)` + "`" + `{3}(?:json|javascript|js)?\s*\n?([\s\S]*?)\n?` + "`" + `{3}`)

	trailingCommaRegex     = regexp.MustCompile(`,(\s*[}\]])`)
	unquotedKeyRegex       = regexp.MustCompile(`([{,]\s*)([a-zA-Z_$][a-zA-Z0-9_$]*)\s*:`)
	singleLineCommentRegex = regexp.MustCompile(`(?m)^\s*//.*$`)
	multiLineCommentRegex  = regexp.MustCompile(`(?s)/\*.*?\*/`)

	objectRegex = regexp.MustCompile(`(?s)\{[\s\S]*\}`)
)

// ParseResult is the outcome of a lenient JSON parse.
type ParseResult[T any] struct {
	Success      bool
	Data         T
	Error        string
	OriginalText string
}

// ParseOptions configures Parse.
type ParseOptions struct {
	Context      string // prefix for error messages
	MaxInputSize int    // bytes; 0 means the 1MB default
	Logger       *logging.Logger
}

const defaultMaxInputSize = 1 << 20

// Parse decodes a model response into T, trying progressively looser strategies:
// direct decode, code fence removal, cleanup of trailing commas/comments/unquoted keys,
// and finally extraction of the first object from mixed prose.
func Parse[T any](text string, opts ParseOptions) ParseResult[T] {
	maxSize := opts.MaxInputSize
	if maxSize == 0 {
		maxSize = defaultMaxInputSize
	}
	log := opts.Logger
	if log == nil {
		log = logging.NewNop()
	}

	if len(text) > maxSize {
		return createError[T](fmt.Sprintf("input exceeds size limit (%d > %d bytes)", len(text), maxSize),
			truncate(text, 1000), opts.Context)
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return createError[T]("empty input", text, opts.Context)
	}

	result, err := tryDirectParse[T](trimmed)
	if err == nil {
		return ParseResult[T]{Success: true, Data: result, OriginalText: text}
	}
	log.Debug("direct JSON parse failed, trying cleanup strategies",
		"error", err.Error(), "preview", truncate(text, 100), "context", opts.Context)

	withoutFences := removeCodeFences(trimmed)
	if withoutFences != trimmed {
		if result, err := tryDirectParse[T](withoutFences); err == nil {
			return ParseResult[T]{Success: true, Data: result, OriginalText: text}
		}
	}

	cleaned := cleanupJSON(withoutFences)
	if result, err := tryDirectParse[T](cleaned); err == nil {
		return ParseResult[T]{Success: true, Data: result, OriginalText: text}
	}

	if extracted := objectRegex.FindString(cleaned); extracted != "" {
		if result, err := tryDirectParse[T](extracted); err == nil {
			return ParseResult[T]{Success: true, Data: result, OriginalText: text}
		}
	}

	return createError[T]("all JSON parsing strategies failed", text, opts.Context)
}

func tryDirectParse[T any](text string) (T, error) {
	var result T
	err := json.Unmarshal([]byte(text), &result)
	return result, err
}

func removeCodeFences(text string) string {
	cleaned := codeFenceStartRegex.ReplaceAllString(text, "$1")
	if cleaned == text {
		cleaned = codeFenceAnyRegex.ReplaceAllString(text, "$1")
	}
	if strings.HasPrefix(cleaned, "`") && strings.HasSuffix(cleaned, "`") {
		cleaned = strings.Trim(cleaned, "`")
	}
	return strings.TrimSpace(cleaned)
}

// cleanupJSON removes trailing commas and comments and quotes bare keys.
// Single quotes are left alone since apostrophes inside valid strings are common.
func cleanupJSON(text string) string {
	cleaned := strings.TrimSpace(text)
	cleaned = trailingCommaRegex.ReplaceAllString(cleaned, "$1")
	cleaned = unquotedKeyRegex.ReplaceAllString(cleaned, `$1"$2":`)
	cleaned = singleLineCommentRegex.ReplaceAllString(cleaned, "")
	cleaned = multiLineCommentRegex.ReplaceAllString(cleaned, "")
	return strings.TrimSpace(cleaned)
}

func createError[T any](message, text, context string) ParseResult[T] {
	if context != "" {
		message = context + ": " + message
	}
	return ParseResult[T]{Error: message, OriginalText: text}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
