package llm

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// fallbackLine matches a line of the form "<tool_name> <json-object>".
var fallbackLine = regexp.MustCompile(`(?m)^\s*([a-zA-Z_][a-zA-Z0-9_]*)\s+(\{.*\})\s*$`)

// ParseTextToolCall scans text for a line matching "<tool_name>
// <json-object>" where tool_name names a registered tool, per spec §4.1's
// text-tool-call fallback. It rescues providers that emit tool
// invocations as plain text instead of a structured tool-call. Returns
// ok=false if no line matches a name present in knownTools.
//
// A synthesized call is only returned when the matched name is present
// in knownTools, so callers never dispatch a call to a tool that isn't
// actually registered.
func ParseTextToolCall(text string, knownTools map[string]bool) (call ToolCallRequest, ok bool) {
	for _, match := range fallbackLine.FindAllStringSubmatch(text, -1) {
		name := match[1]
		if !knownTools[name] {
			continue
		}
		return ToolCallRequest{
			CallID: "fallback-" + uuid.NewString(),
			Name:   name,
			Args:   []byte(strings.TrimSpace(match[2])),
		}, true
	}
	return ToolCallRequest{}, false
}
