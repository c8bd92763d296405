package inference_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"taleweaver/pkg/inference"
	"taleweaver/pkg/inference/mocks"
)

type recorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *recorder) hook(provider, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, provider+":"+outcome)
}

func TestChainFallsBackInOrder(t *testing.T) {
	ctx := context.Background()
	primary := mocks.NewMockInferencer(t, "primary")
	secondary := mocks.NewMockInferencer(t, "secondary")
	primary.On("Infer", mock.Anything, mock.Anything, "sys", "user").Return("", errors.New("boom")).Once()
	secondary.On("Infer", mock.Anything, mock.Anything, "sys", "user").Return("a story", nil).Once()

	rec := &recorder{}
	chain := inference.NewChain(nil, primary, secondary)
	chain.OnResult(rec.hook)

	out, err := chain.Infer(ctx, nil, "sys", "user")
	require.NoError(t, err)
	assert.Equal(t, "a story", out)
	assert.Equal(t, []string{"primary:error", "secondary:success"}, rec.outcomes)
	assert.Equal(t, primary, chain.Primary())
}

func TestChainStopsAtFirstSuccess(t *testing.T) {
	primary := mocks.NewMockInferencer(t, "primary")
	secondary := mocks.NewMockInferencer(t, "secondary")
	primary.On("Infer", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("first", nil).Once()

	out, err := inference.NewChain(nil, primary, secondary).Infer(context.Background(), nil, "s", "u")
	require.NoError(t, err)
	assert.Equal(t, "first", out)
	secondary.AssertNotCalled(t, "Infer", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestChainEmptyResultIsFailure(t *testing.T) {
	primary := mocks.NewMockInferencer(t, "primary")
	primary.On("Infer", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("", nil).Once()

	rec := &recorder{}
	chain := inference.NewChain(nil, primary)
	chain.OnResult(rec.hook)

	_, err := chain.Infer(context.Background(), nil, "s", "u")
	assert.ErrorIs(t, err, inference.ErrExhausted)
	assert.ErrorIs(t, err, inference.ErrEmpty)
	assert.Equal(t, []string{"primary:invalid"}, rec.outcomes)
}

func TestChainExhausted(t *testing.T) {
	a := mocks.NewMockInferencer(t, "a")
	b := mocks.NewMockInferencer(t, "b")
	a.On("Infer", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("a down")).Once()
	b.On("Infer", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("b down")).Once()

	_, err := inference.NewChain(nil, a, b).Infer(context.Background(), nil, "s", "u")
	require.ErrorIs(t, err, inference.ErrExhausted)
	assert.Contains(t, err.Error(), "a down")
	assert.Contains(t, err.Error(), "b down")

	var empty *inference.Chain
	assert.Equal(t, 0, empty.Len())
	_, err = inference.NewChain(nil).Infer(context.Background(), nil, "s", "u")
	assert.ErrorIs(t, err, inference.ErrExhausted)
	assert.Nil(t, inference.NewChain(nil).Primary())
}

func completionServer(t *testing.T, status int, body string, seen *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if seen != nil {
			raw, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(raw, seen)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

const completionJSON = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "test-model",
  "choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "Once upon a time"}}]
}`

func TestOpenAIInferencer(t *testing.T) {
	var seen map[string]any
	srv := completionServer(t, http.StatusOK, completionJSON, &seen)

	o := inference.NewOpenAIInferencer("test-key", "test-model")
	o.ChangeBaseURL(srv.URL + "/v1/")
	assert.Equal(t, "openai", o.Name())

	params := &openai.ChatCompletionNewParams{ResponseFormat: inference.JSONObject()}
	out, err := o.Infer(context.Background(), params, "be kind", "tell a story")
	require.NoError(t, err)
	assert.Equal(t, "Once upon a time", out)

	assert.Equal(t, "test-model", seen["model"])
	format, _ := seen["response_format"].(map[string]any)
	assert.Equal(t, "json_object", format["type"])
	messages, _ := seen["messages"].([]any)
	assert.Len(t, messages, 2)
	// the caller's params are not mutated
	assert.Empty(t, params.Messages)
}

func TestOpenAIInferencerCompatibleServerGetsMaxTokens(t *testing.T) {
	var seen map[string]any
	srv := completionServer(t, http.StatusOK, completionJSON, &seen)

	o := inference.NewOVHInferencer("test-key", "")
	o.ChangeBaseURL(srv.URL + "/v1/")
	params := &openai.ChatCompletionNewParams{MaxCompletionTokens: openai.Int(300)}
	_, err := o.Infer(context.Background(), params, "s", "u")
	require.NoError(t, err)

	assert.EqualValues(t, 300, seen["max_tokens"])
	assert.NotContains(t, seen, "max_completion_tokens")
	assert.Equal(t, "Meta-Llama-3_3-70B-Instruct", seen["model"])
}

func TestChainTreatsRateLimitAsFailure(t *testing.T) {
	srv := completionServer(t, http.StatusTooManyRequests, `{"error":{"message":"slow down","type":"rate_limit"}}`, nil)

	limited := inference.NewOpenAIInferencer("test-key", "test-model")
	limited.ChangeBaseURL(srv.URL + "/v1/")
	limited.SetName("ovh")

	backup := mocks.NewMockInferencer(t, "backup")
	backup.On("Infer", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("from backup", nil).Once()

	rec := &recorder{}
	chain := inference.NewChain(nil, limited, backup)
	chain.OnResult(rec.hook)

	out, err := chain.Infer(context.Background(), nil, "s", "u")
	require.NoError(t, err)
	assert.Equal(t, "from backup", out)
	assert.Equal(t, []string{"ovh:rate_limited", "backup:success"}, rec.outcomes)
}

func TestOpenAIInferencerEmptyContent(t *testing.T) {
	srv := completionServer(t, http.StatusOK, `{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":""}}]}`, nil)

	o := inference.NewOpenAIInferencer("test-key", "m")
	o.ChangeBaseURL(srv.URL + "/v1/")
	_, err := o.Infer(context.Background(), nil, "s", "u")
	assert.Error(t, err)
}
