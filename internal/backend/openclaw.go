package backend

// openClawBuilder talks to an OpenClaw gateway, which exposes an
// OpenAI-compatible chat completions endpoint.
type openClawBuilder struct{}

func (openClawBuilder) Kind() Kind { return KindOpenClaw }

func (openClawBuilder) BuildRequest(history []ContextEntry, newMessage string, cfg Config) (RequestSpec, error) {
	target, err := endpoint(KindOpenClaw, cfg.BaseURL, "/v1/chat/completions")
	if err != nil {
		return RequestSpec{}, err
	}
	payload := chatCompletionRequest{
		Model:    cfg.Model,
		Messages: chatMessages(history, newMessage),
	}
	return jsonRequest(KindOpenClaw, target, payload, bearer(nil, cfg.Token))
}

func (openClawBuilder) ParseResponse(status int, body []byte) (string, error) {
	return parseChatCompletion(KindOpenClaw, status, body)
}
