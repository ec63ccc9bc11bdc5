package llm

import (
	"log"
	"time"
)

// ModeMock selects the mock client.
const ModeMock = "MOCK"

// NewClient creates a model client for the configured mode. MOCK returns
// a scripted mock; anything else returns the OpenAI-compatible client.
func NewClient(mode, baseURL, apiKey, model string, timeout time.Duration) Client {
	if mode == ModeMock {
		log.Println("ADPILOT_MODE=MOCK detected, using mock model client")
		return NewMockClient()
	}
	return NewOpenAIClient(baseURL, apiKey, model, timeout)
}
