package types

import "time"

// Role identifies who produced a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// Speaker is the label written in front of a captured line.
func (r Role) Speaker() string {
	switch r {
	case RoleUser:
		return "User"
	case RoleAssistant:
		return "Assistant"
	default:
		return "Tool"
	}
}

// Turn is one captured conversation event. Turns are immutable once written.
type Turn struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	// ToolName and ToolTarget describe a tool call when Role is RoleTool.
	ToolName   string `json:"tool_name,omitempty"`
	ToolTarget string `json:"tool_target,omitempty"`
}

// NewUserTurn creates a user turn stamped with the current time.
func NewUserTurn(text string) Turn {
	return Turn{Role: RoleUser, Text: text, Timestamp: time.Now()}
}

// NewAssistantTurn creates an assistant turn stamped with the current time.
func NewAssistantTurn(text string) Turn {
	return Turn{Role: RoleAssistant, Text: text, Timestamp: time.Now()}
}

// NewToolTurn creates a tool call turn stamped with the current time.
func NewToolTurn(name, target string) Turn {
	return Turn{Role: RoleTool, ToolName: name, ToolTarget: target, Timestamp: time.Now()}
}
