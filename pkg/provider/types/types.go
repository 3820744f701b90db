package types

// Role identifies who authored a history message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one remembered exchange in a conversation.
type Message struct {
	Role Role
	Text string
}

// Request is one responder call: standing instructions, the remembered
// history and the new prompt. Conversation is the reference key of the
// conversation the prompt came from.
type Request struct {
	Conversation string
	Instructions string
	History      []Message
	Prompt       string
}

// Reply is the normalized responder output.
type Reply struct {
	Text     string
	Metadata ReplyMetadata
}

// ReplyMetadata carries responder/model identity and optional usage accounting.
type ReplyMetadata struct {
	Provider string
	Model    string
	Usage    *TokenUsage
}

// TokenUsage captures token accounting.
type TokenUsage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
}

// IsZero reports whether all token counters are unset/zero.
func (u TokenUsage) IsZero() bool {
	return u.InputTokens == 0 &&
		u.OutputTokens == 0 &&
		u.TotalTokens == 0
}
