package job

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// PassthroughKey holds raw output that is not JSON.
const PassthroughKey = "output"

// Interpret turns captured container output into a payload. It never fails:
// JSON output is decoded, with a literal null yielding nil. A trailing JSON summary
// line is accepted after log noise, and anything else is wrapped under PassthroughKey.
func Interpret(raw []byte) (payload any) {
	defer func() {
		if r := recover(); r != nil {
			payload = map[string]any{
				"error":      fmt.Sprintf("output interpretation failed: %v", r),
				"raw_output": strings.ToValidUTF8(string(raw), "�"),
			}
		}
	}()

	text := strings.TrimSpace(string(raw))
	if !utf8.ValidString(text) {
		return map[string]any{
			"error":      "output is not valid UTF-8",
			"raw_output": strings.ToValidUTF8(text, "�"),
		}
	}

	if v, ok := decodeJSON(text); ok {
		return v
	}
	if line := lastLine(text); line != "" && line != text {
		if v, ok := decodeJSON(line); ok {
			return v
		}
	}
	return map[string]any{PassthroughKey: text}
}

// decodeJSON decodes s as exactly one JSON value. A literal null decodes to nil.
func decodeJSON(s string) (any, bool) {
	if s == "" {
		return nil, false
	}
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, false
	}
	return v, true
}

func lastLine(text string) string {
	lines := strings.Split(text, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
