package ai

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseResult is either a success carrying a value or a failure carrying a
// reason. LLM output only reaches the domain through one of these.
type ParseResult[T any] interface {
	isParseResult(*T)
}

type ParseSuccess[T any] struct {
	Value T
}

type ParseFailure[T any] struct {
	Reason string
}

func (ParseSuccess[T]) isParseResult(*T) {}
func (ParseFailure[T]) isParseResult(*T) {}

// ParseJSON strips markdown fences, cuts out the first balanced JSON object
// and decodes it into T.
func ParseJSON[T any](resp string) ParseResult[T] {
	cleaned := stripFences(resp)
	if cleaned == "" {
		return ParseFailure[T]{Reason: "empty response"}
	}

	jsonStr, ok := extractFirstJSONObject(cleaned)
	if !ok {
		return ParseFailure[T]{Reason: fmt.Sprintf("no json object in response: %s", preview(cleaned))}
	}

	var value T
	if err := json.Unmarshal([]byte(jsonStr), &value); err != nil {
		return ParseFailure[T]{Reason: fmt.Sprintf("invalid json: %v", err)}
	}
	return ParseSuccess[T]{Value: value}
}

func stripFences(resp string) string {
	cleaned := strings.TrimSpace(resp)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```JSON")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	return strings.TrimSpace(cleaned)
}

// extractFirstJSONObject finds the first outermost balanced {...}
func extractFirstJSONObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		char := s[i]

		if escaped {
			escaped = false
			continue
		}

		if char == '\\' {
			escaped = true
			continue
		}

		if char == '"' {
			inString = !inString
			continue
		}

		if !inString {
			if char == '{' {
				depth++
			} else if char == '}' {
				depth--
				if depth == 0 {
					return s[start : i+1], true
				}
			}
		}
	}

	return "", false
}

func preview(s string) string {
	const n = 120
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
