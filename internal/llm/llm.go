// Package llm wraps the chat-completion and vision collaborators used by the
// extraction, grounding and correction stages.
package llm

import "context"

// Message roles.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message is one chat turn.
type Message struct {
	Role    string
	Content string
}

// System returns a system message.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User returns a user message.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// Request is a single chat-completion call.
type Request struct {
	Messages    []Message
	Temperature float32
	MaxTokens   int
	JSONMode    bool
}

// Completer returns the assistant text for a chat request.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Vision describes a single image. caption may be empty.
type Vision interface {
	DescribeImage(ctx context.Context, image []byte, caption string) (string, error)
}

type opKey struct{}

// WithOperation tags ctx with an operation name used for stats and metrics.
func WithOperation(ctx context.Context, op string) context.Context {
	return context.WithValue(ctx, opKey{}, op)
}

// Operation returns the operation name attached to ctx, or "unknown".
func Operation(ctx context.Context) string {
	if op, ok := ctx.Value(opKey{}).(string); ok && op != "" {
		return op
	}
	return "unknown"
}
