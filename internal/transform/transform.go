// Package transform validates inbound chat-completion bodies and rewrites them
// for a resolved upstream.
package transform

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/af-corp/model-proxy/internal/provider"
	"github.com/af-corp/model-proxy/internal/types"
)

// LocaleDirective is injected after the first system message of every request.
const LocaleDirective = "重要：请务必使用中文与用户交流。无论用户使用什么语言提问，都请用中文回答。"

// ErrInvalidRequest marks a body the proxy refuses to forward.
var ErrInvalidRequest = errors.New("invalid request")

// Outbound is the request sent to the upstream.
type Outbound struct {
	URL    string
	Body   []byte
	Header http.Header
	Stream bool
}

// Parse validates the inbound body: it must be a JSON object with a
// non-empty string "model" and an array "messages".
func Parse(body []byte) (*types.ChatCompletionRequest, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: body is not valid JSON", ErrInvalidRequest)
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: body must be a JSON object", ErrInvalidRequest)
	}

	model := root.Get("model")
	if model.Type != gjson.String || model.String() == "" {
		return nil, fmt.Errorf("%w: missing required parameter: model", ErrInvalidRequest)
	}
	messages := root.Get("messages")
	if !messages.IsArray() {
		return nil, fmt.Errorf("%w: missing required parameter: messages, or it is not an array", ErrInvalidRequest)
	}

	return &types.ChatCompletionRequest{
		Model:        model.String(),
		Stream:       root.Get("stream").Bool(),
		MessageCount: len(messages.Array()),
		Raw:          body,
	}, nil
}

// Transform builds the outbound request: the model is replaced by the
// upstream model name and the locale directive (plus customPrompt, when set)
// is inserted right after the first system message. Requests without a system
// message are forwarded without injection. Every other field passes through
// byte for byte.
func Transform(req *types.ChatCompletionRequest, d provider.Descriptor, customPrompt string) (*Outbound, error) {
	body := req.Raw

	model := d.UpstreamModel
	if model == "" {
		model = req.Model
	}
	body, err := sjson.SetBytes(body, "model", model)
	if err != nil {
		return nil, fmt.Errorf("set model: %w", err)
	}

	messages, injected, err := injectSystemPrompts(gjson.GetBytes(body, "messages"), customPrompt)
	if err != nil {
		return nil, err
	}
	if injected {
		body, err = sjson.SetRawBytes(body, "messages", messages)
		if err != nil {
			return nil, fmt.Errorf("set messages: %w", err)
		}
	}

	header := make(http.Header)
	header.Set("Content-Type", "application/json")
	header.Set("Accept-Encoding", "identity")
	header.Set("Authorization", "Bearer "+d.APIKey)

	return &Outbound{
		URL:    d.ChatURL(),
		Body:   body,
		Header: header,
		Stream: req.Stream,
	}, nil
}

func injectSystemPrompts(messages gjson.Result, customPrompt string) ([]byte, bool, error) {
	extra, err := systemMessages(customPrompt)
	if err != nil {
		return nil, false, err
	}

	out := []byte{'['}
	injected := false
	first := true
	appendRaw := func(raw []byte) {
		if !first {
			out = append(out, ',')
		}
		first = false
		out = append(out, raw...)
	}

	messages.ForEach(func(_, msg gjson.Result) bool {
		appendRaw([]byte(msg.Raw))
		if !injected && msg.Get("role").String() == "system" {
			for _, raw := range extra {
				appendRaw(raw)
			}
			injected = true
		}
		return true
	})
	out = append(out, ']')
	return out, injected, nil
}

func systemMessages(customPrompt string) ([][]byte, error) {
	prompts := []string{LocaleDirective}
	if customPrompt != "" {
		prompts = append(prompts, customPrompt)
	}
	out := make([][]byte, 0, len(prompts))
	for _, p := range prompts {
		raw, err := json.Marshal(types.Message{Role: "system", Content: p})
		if err != nil {
			return nil, fmt.Errorf("marshal system message: %w", err)
		}
		out = append(out, raw)
	}
	return out, nil
}
