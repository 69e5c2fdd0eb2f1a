package chat

import (
	"encoding/json"
	"regexp"
	"strings"
)

// ParseStrategy names the attempt that produced a Reply.
type ParseStrategy string

const (
	ParseStrategyDirect    ParseStrategy = "direct"
	ParseStrategyFenced    ParseStrategy = "fenced"
	ParseStrategyBraceSpan ParseStrategy = "brace_span"
	ParseStrategyFallback  ParseStrategy = "fallback"

	defaultUpdateMessage = "تم تحديث موقعك."
)

var (
	thinkTagPattern   = regexp.MustCompile(`(?s)^\s*<think>.*?</think>\s*`)
	fencedJSONPattern = regexp.MustCompile("(?is)```json\\s*(.*?)```")
)

// Reply is the structured answer extracted from raw model output. HTML is nil when the site should not change.
type Reply struct {
	Message  string
	HTML     *string
	Strategy ParseStrategy
}

type replyPayload struct {
	Message *string `json:"message"`
	HTML    *string `json:"html"`
}

type parseAttempt struct {
	strategy ParseStrategy
	extract  func(string) []string
}

var parseAttempts = []parseAttempt{
	{strategy: ParseStrategyDirect, extract: extractDirect},
	{strategy: ParseStrategyFenced, extract: extractFenced},
	{strategy: ParseStrategyBraceSpan, extract: extractBraceSpans},
}

// ParseReply runs direct, fenced and brace-span attempts in order and falls back to the raw text as the message.
func ParseReply(raw string) Reply {
	cleaned := thinkTagPattern.ReplaceAllString(raw, "")
	for _, attempt := range parseAttempts {
		for _, candidate := range attempt.extract(cleaned) {
			if reply, parsed := decodeReply(candidate); parsed {
				reply.Strategy = attempt.strategy
				return reply
			}
		}
	}
	return Reply{Message: raw, Strategy: ParseStrategyFallback}
}

func decodeReply(candidate string) (Reply, bool) {
	var payload replyPayload
	if err := json.Unmarshal([]byte(candidate), &payload); err != nil {
		return Reply{}, false
	}
	if payload.Message == nil && payload.HTML == nil {
		return Reply{}, false
	}

	reply := Reply{}
	if payload.Message != nil {
		reply.Message = strings.TrimSpace(*payload.Message)
	}
	if payload.HTML != nil && strings.TrimSpace(*payload.HTML) != "" {
		html := *payload.HTML
		reply.HTML = &html
	}
	if reply.Message == "" && reply.HTML != nil {
		reply.Message = defaultUpdateMessage
	}
	return reply, true
}

func extractDirect(text string) []string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") {
		return nil
	}
	return []string{trimmed}
}

func extractFenced(text string) []string {
	matches := fencedJSONPattern.FindAllStringSubmatch(text, -1)
	candidates := make([]string, 0, len(matches))
	for _, match := range matches {
		candidates = append(candidates, strings.TrimSpace(match[1]))
	}
	return candidates
}

// extractBraceSpans yields the first balanced object, then the widest span from the first '{' to the last '}'.
func extractBraceSpans(text string) []string {
	var candidates []string
	if balanced, found := extractBalancedObject(text); found {
		candidates = append(candidates, balanced)
	}
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start >= 0 && end > start {
		widest := text[start : end+1]
		if len(candidates) == 0 || candidates[0] != widest {
			candidates = append(candidates, widest)
		}
	}
	return candidates
}

func extractBalancedObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for index := start; index < len(text); index++ {
		character := text[index]
		if escaped {
			escaped = false
			continue
		}
		if character == '\\' && inString {
			escaped = true
			continue
		}
		if character == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch character {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : index+1], true
			}
		}
	}
	return "", false
}
