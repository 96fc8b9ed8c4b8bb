package llm

import "testing"

func TestParseTextToolCall_KnownTool(t *testing.T) {
	text := "I'll look this up.\nweb_search {\"query\": \"moon hollow\"}\n"
	call, ok := ParseTextToolCall(text, map[string]bool{"web_search": true})
	if !ok {
		t.Fatal("expected a parsed tool call")
	}
	if call.Name != "web_search" {
		t.Errorf("Name = %q, want web_search", call.Name)
	}
	if call.CallID == "" {
		t.Error("expected a generated call id")
	}
}

func TestParseTextToolCall_UnregisteredNameIgnored(t *testing.T) {
	text := "not_a_real_tool {\"query\": \"x\"}"
	_, ok := ParseTextToolCall(text, map[string]bool{"web_search": true})
	if ok {
		t.Error("matched a name absent from the live tool registry")
	}
}

func TestParseTextToolCall_NoMatch(t *testing.T) {
	_, ok := ParseTextToolCall("just a plain sentence with no tool syntax.", map[string]bool{"web_search": true})
	if ok {
		t.Error("expected no match for plain text")
	}
}
