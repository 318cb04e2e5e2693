package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrUnparseable marks model output that did not contain the JSON we asked for.
var ErrUnparseable = errors.New("unparseable llm output")

var (
	arrayRe  = regexp.MustCompile(`\[[\s\S]*\]`)
	objectRe = regexp.MustCompile(`\{[\s\S]*\}`)
)

// sanitizeLLMOutput drops a surrounding markdown fence and trims whitespace.
func sanitizeLLMOutput(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		lines := strings.Split(s, "\n")
		if len(lines) > 1 {
			lines = lines[1:]
			if last := strings.TrimSpace(lines[len(lines)-1]); strings.HasPrefix(last, "```") {
				lines = lines[:len(lines)-1]
			}
			s = strings.Join(lines, "\n")
		}
	}
	return strings.TrimSpace(s)
}

// decodeSpan finds the widest span matched by re in raw and decodes it into out.
func decodeSpan(raw string, re *regexp.Regexp, out any) error {
	match := re.FindString(sanitizeLLMOutput(raw))
	if match == "" {
		return fmt.Errorf("%w: no JSON found", ErrUnparseable)
	}
	if err := json.Unmarshal([]byte(match), out); err != nil {
		return fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	return nil
}

// DecodeArray decodes the first-to-last bracket span of raw.
func DecodeArray(raw string, out any) error {
	return decodeSpan(raw, arrayRe, out)
}

// DecodeObject decodes the first-to-last brace span of raw.
func DecodeObject(raw string, out any) error {
	return decodeSpan(raw, objectRe, out)
}
