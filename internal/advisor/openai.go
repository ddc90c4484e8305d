package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"reporunner/internal/config"
	"reporunner/pkg/logging"
)

const subsystem = "Advisor"

const systemPrompt = `You are a build and deployment troubleshooter for local development environments.
Given a failure from an automated repository bring-up run, respond with a single JSON object:
{"analysis": "<one paragraph root-cause analysis>", "fix": "<one sentence fix summary>", "steps": ["<concrete step>", ...]}
Respond with JSON only, no surrounding text.`

// chatClient is the slice of the OpenAI client the advisor uses,
// extracted so tests can stub the transport.
type chatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIAdvisor asks an OpenAI-compatible chat endpoint for fix
// suggestions.
type OpenAIAdvisor struct {
	client  chatClient
	model   string
	timeout time.Duration
}

// NewOpenAI builds an advisor from configuration. It returns nil
// (advisor disabled) when no API key is available; runs then rely on
// the pattern registry alone.
func NewOpenAI(cfg config.AdvisorConfig) *OpenAIAdvisor {
	if !cfg.IsEnabled() {
		return nil
	}
	apiKey := os.Getenv(cfg.APIKeyEnv)
	if apiKey == "" {
		logging.Warn(subsystem, "No API key in $%s, advisor disabled", cfg.APIKeyEnv)
		return nil
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &OpenAIAdvisor{
		client:  openai.NewClientWithConfig(clientConfig),
		model:   cfg.Model,
		timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
	}
}

// Suggest asks the model for a remediation. A transport failure or a
// response that is not the expected JSON object returns *AdvisorError.
func (a *OpenAIAdvisor) Suggest(ctx context.Context, failure FailureContext) (Suggestion, error) {
	reqCtx := ctx
	if a.timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	resp, err := a.client.CreateChatCompletion(reqCtx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildPrompt(failure)},
		},
	})
	if err != nil {
		return Suggestion{}, &AdvisorError{Reason: "chat completion request failed", Err: err}
	}
	if len(resp.Choices) == 0 {
		return Suggestion{}, &AdvisorError{Reason: "empty response from model"}
	}

	suggestion, err := parseSuggestion(resp.Choices[0].Message.Content)
	if err != nil {
		return Suggestion{}, &AdvisorError{Reason: "malformed model response", Err: err}
	}
	logging.Debug(subsystem, "Suggestion for %s/%s: %s", failure.Phase, failure.ServiceID, suggestion.Fix)
	return suggestion, nil
}

func buildPrompt(failure FailureContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Phase: %s\n", failure.Phase)
	if failure.ServiceID != "" {
		fmt.Fprintf(&b, "Service: %s\n", failure.ServiceID)
	}
	fmt.Fprintf(&b, "Error:\n%s\n", failure.ErrorText)

	if len(failure.Previous) > 0 {
		b.WriteString("\nPreviously attempted fixes (do not repeat failed ones):\n")
		for _, prior := range failure.Previous {
			outcome := "failed"
			if prior.Succeeded {
				outcome = "succeeded"
			}
			fmt.Fprintf(&b, "- error: %s\n  fix: %s (%s)\n", prior.ErrorText, prior.Fix, outcome)
		}
	}
	return b.String()
}

// parseSuggestion decodes the model's JSON reply, tolerating a fenced
// code block around it.
func parseSuggestion(content string) (Suggestion, error) {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
		trimmed = strings.TrimSpace(trimmed)
	}

	var suggestion Suggestion
	if err := json.Unmarshal([]byte(trimmed), &suggestion); err != nil {
		return Suggestion{}, fmt.Errorf("decoding suggestion JSON: %w", err)
	}
	if suggestion.Analysis == "" && suggestion.Fix == "" {
		return Suggestion{}, fmt.Errorf("suggestion JSON has neither analysis nor fix")
	}
	return suggestion, nil
}
