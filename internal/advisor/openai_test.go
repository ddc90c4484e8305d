package advisor

import (
	"context"
	"errors"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reporunner/internal/config"
)

type stubChatClient struct {
	response string
	err      error
	lastReq  openai.ChatCompletionRequest
}

func (s *stubChatClient) CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.lastReq = request
	if s.err != nil {
		return openai.ChatCompletionResponse{}, s.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: s.response}},
		},
	}, nil
}

func newStubAdvisor(stub *stubChatClient) *OpenAIAdvisor {
	return &OpenAIAdvisor{client: stub, model: "test-model", timeout: time.Second}
}

func TestSuggest_ParsesWellFormedResponse(t *testing.T) {
	stub := &stubChatClient{
		response: `{"analysis": "pip failed because of a version conflict", "fix": "pin the package", "steps": ["edit requirements.txt", "rerun pip install"]}`,
	}
	a := newStubAdvisor(stub)

	suggestion, err := a.Suggest(context.Background(), FailureContext{
		Phase:     "DEP_MGMT",
		ServiceID: "backend",
		ErrorText: "pip install failed",
	})
	require.NoError(t, err)
	assert.Equal(t, "pin the package", suggestion.Fix)
	assert.Len(t, suggestion.Steps, 2)
	assert.Equal(t, "test-model", stub.lastReq.Model)
}

func TestSuggest_ToleratesFencedJSON(t *testing.T) {
	stub := &stubChatClient{
		response: "```json\n{\"analysis\": \"a\", \"fix\": \"b\", \"steps\": []}\n```",
	}
	suggestion, err := newStubAdvisor(stub).Suggest(context.Background(), FailureContext{ErrorText: "x"})
	require.NoError(t, err)
	assert.Equal(t, "b", suggestion.Fix)
}

func TestSuggest_MalformedResponseIsAdvisorError(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"prose", "You should probably fix your requirements file."},
		{"empty object", "{}"},
		{"broken json", `{"analysis": "x"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubChatClient{response: tt.response}
			_, err := newStubAdvisor(stub).Suggest(context.Background(), FailureContext{ErrorText: "x"})
			require.Error(t, err)

			var advErr *AdvisorError
			assert.True(t, errors.As(err, &advErr))
		})
	}
}

func TestSuggest_TransportErrorIsAdvisorError(t *testing.T) {
	stub := &stubChatClient{err: errors.New("connection refused")}
	_, err := newStubAdvisor(stub).Suggest(context.Background(), FailureContext{ErrorText: "x"})

	var advErr *AdvisorError
	require.True(t, errors.As(err, &advErr))
	assert.ErrorContains(t, err, "connection refused")
}

func TestSuggest_PriorFixesInPrompt(t *testing.T) {
	stub := &stubChatClient{response: `{"analysis": "a", "fix": "b", "steps": []}`}
	a := newStubAdvisor(stub)

	_, err := a.Suggest(context.Background(), FailureContext{
		Phase:     "SERVICE_STARTUP",
		ErrorText: "exit status 1",
		Previous: []PriorFix{
			{ErrorText: "port in use", Fix: "moved to fallback port", Succeeded: true},
			{ErrorText: "exit status 1", Fix: "reinstalled dependencies", Succeeded: false},
		},
	})
	require.NoError(t, err)

	require.Len(t, stub.lastReq.Messages, 2)
	userMsg := stub.lastReq.Messages[1].Content
	assert.Contains(t, userMsg, "moved to fallback port")
	assert.Contains(t, userMsg, "reinstalled dependencies")
	assert.Contains(t, userMsg, "(failed)")
	assert.Contains(t, userMsg, "(succeeded)")
}

func TestNewOpenAI_DisabledWithoutKey(t *testing.T) {
	t.Setenv("REPORUNNER_TEST_API_KEY", "")
	cfg := config.AdvisorConfig{Enabled: config.Bool(true), APIKeyEnv: "REPORUNNER_TEST_API_KEY", Model: "gpt-4o-mini"}
	assert.Nil(t, NewOpenAI(cfg))

	cfg.Enabled = config.Bool(false)
	assert.Nil(t, NewOpenAI(cfg))

	// Unset counts as disabled too.
	cfg.Enabled = nil
	assert.Nil(t, NewOpenAI(cfg))

	t.Setenv("REPORUNNER_TEST_API_KEY", "sk-test")
	cfg.Enabled = config.Bool(true)
	assert.NotNil(t, NewOpenAI(cfg))
}
