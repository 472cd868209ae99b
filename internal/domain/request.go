package domain

// ChatRequest starts a new session or continues the held one.
type ChatRequest struct {
	SessionID string         `json:"sessionId,omitempty"`
	ContextID string         `json:"contextId"`
	Message   string         `json:"message"`
	Model     string         `json:"model,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
}

// ChatResponse is the backend's answer to a ChatRequest.
type ChatResponse struct {
	SessionID      string      `json:"sessionId"`
	Status         StartStatus `json:"status"`
	Message        string      `json:"message,omitempty"`
	StreamEndpoint string      `json:"streamEndpoint,omitempty"`
}

// RespondRequest answers an AwaitingInput prompt.
type RespondRequest struct {
	Response string `json:"response"`
	OptionID string `json:"optionId,omitempty"`
}

// RespondResponse acknowledges a RespondRequest.
type RespondResponse struct {
	OK bool `json:"ok"`
}

// SendOptions tunes a single SendMessage call.
type SendOptions struct {
	Model   string
	Context map[string]any
}
