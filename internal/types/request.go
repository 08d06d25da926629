package types

// ChatCompletionRequest is the validated view of an inbound OpenAI-style
// chat-completions body. Raw keeps the body exactly as received so fields the
// proxy does not know about reach the upstream untouched.
type ChatCompletionRequest struct {
	Model        string
	Stream       bool
	MessageCount int
	Raw          []byte
}

// Message is a chat message the proxy itself creates. Inbound messages are
// never decoded into this type.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
