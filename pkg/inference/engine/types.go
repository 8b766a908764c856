package engine

import (
	"encoding/json"
	"strings"

	"github.com/invopop/jsonschema"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type BlockKind string

const (
	BlockKindText       BlockKind = "text"
	BlockKindToolUse    BlockKind = "tool_use"
	BlockKindToolResult BlockKind = "tool_result"
)

// ToolCall is a model's request to run one tool.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResult answers the ToolCall with the same id. Failures are carried as
// text with IsError set.
type ToolResult struct {
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
	IsError   bool   `json:"is_error,omitempty"`
}

// Block is one piece of a message. Exactly one of Text, ToolCall or
// ToolResult is meaningful, as selected by Kind.
type Block struct {
	Kind       BlockKind   `json:"kind"`
	Text       string      `json:"text,omitempty"`
	ToolCall   *ToolCall   `json:"tool_call,omitempty"`
	ToolResult *ToolResult `json:"tool_result,omitempty"`
}

func TextBlock(s string) Block {
	return Block{Kind: BlockKindText, Text: s}
}

func ToolUseBlock(c ToolCall) Block {
	return Block{Kind: BlockKindToolUse, ToolCall: &c}
}

func ToolResultBlock(r ToolResult) Block {
	return Block{Kind: BlockKindToolResult, ToolResult: &r}
}

type Message struct {
	Role   Role    `json:"role"`
	Blocks []Block `json:"blocks"`
}

func UserText(s string) Message {
	return Message{Role: RoleUser, Blocks: []Block{TextBlock(s)}}
}

func AssistantText(s string) Message {
	return Message{Role: RoleAssistant, Blocks: []Block{TextBlock(s)}}
}

// Text joins the message's text blocks.
func (m Message) Text() string {
	var parts []string
	for _, b := range m.Blocks {
		if b.Kind == BlockKindText && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// ToolSpec is what a provider needs to advertise a tool.
type ToolSpec struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  *jsonschema.Schema `json:"parameters"`
}

// SchemaJSON returns the parameter schema as a generic JSON object. A tool
// without parameters gets an empty object schema.
func (t ToolSpec) SchemaJSON() (map[string]interface{}, error) {
	out := map[string]interface{}{"type": "object"}
	if t.Parameters == nil {
		return out, nil
	}
	b, err := json.Marshal(t.Parameters)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	if _, ok := out["type"]; !ok {
		out["type"] = "object"
	}
	return out, nil
}

type Request struct {
	System   string     `json:"system"`
	Messages []Message  `json:"messages"`
	Tools    []ToolSpec `json:"tools,omitempty"`
}
