package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hunterjsb/doorknock/internal/domain"
	"github.com/hunterjsb/doorknock/internal/personality"
)

func completion(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1,
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
	}
}

func fakeOpenAI(t *testing.T, handler func(req openai.ChatCompletionRequest) (int, any)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		var req openai.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		status, body := handler(req)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newClient(srv *httptest.Server, timeout time.Duration) *Client {
	return New(Config{
		APIKey:    "test",
		BaseURL:   srv.URL + "/v1",
		MaxTokens: 100,
		Timeout:   timeout,
	}, zerolog.Nop(), nil)
}

func owl(t *testing.T) personality.Profile {
	t.Helper()
	p, ok := personality.LookupBuiltIn("owl")
	require.True(t, ok)
	return p
}

func TestGenerateReply_MapsSpeakersToRoles(t *testing.T) {
	var seen openai.ChatCompletionRequest
	srv := fakeOpenAI(t, func(req openai.ChatCompletionRequest) (int, any) {
		seen = req
		return http.StatusOK, completion("  What's the payback period?  ")
	})
	c := newClient(srv, time.Second)

	transcript := domain.Transcript{
		{Speaker: domain.SpeakerPartner, Text: "Yes?"},
		{Speaker: domain.SpeakerUser, Text: "Hi, I'm here about solar."},
	}
	reply, err := c.GenerateReply(context.Background(), transcript, owl(t))
	require.NoError(t, err)
	assert.Equal(t, "What's the payback period?", reply)

	require.Len(t, seen.Messages, 3)
	assert.Equal(t, openai.ChatMessageRoleSystem, seen.Messages[0].Role)
	assert.Contains(t, seen.Messages[0].Content, "Traits:")
	assert.Equal(t, openai.ChatMessageRoleAssistant, seen.Messages[1].Role)
	assert.Equal(t, openai.ChatMessageRoleUser, seen.Messages[2].Role)
	assert.Equal(t, 100, seen.MaxTokens)
	assert.Equal(t, openai.GPT4oMini, seen.Model)
}

func TestGenerateReply_ServerErrorIsUnavailable(t *testing.T) {
	srv := fakeOpenAI(t, func(openai.ChatCompletionRequest) (int, any) {
		return http.StatusInternalServerError, map[string]any{"error": map[string]any{"message": "boom", "type": "server_error"}}
	})
	_, err := newClient(srv, time.Second).GenerateReply(context.Background(), nil, owl(t))
	assert.ErrorIs(t, err, domain.ErrGatewayUnavailable)
}

func TestGenerateReply_NoChoicesIsUnavailable(t *testing.T) {
	srv := fakeOpenAI(t, func(openai.ChatCompletionRequest) (int, any) {
		body := completion("")
		body["choices"] = []any{}
		return http.StatusOK, body
	})
	_, err := newClient(srv, time.Second).GenerateReply(context.Background(), nil, owl(t))
	assert.ErrorIs(t, err, domain.ErrGatewayUnavailable)
}

func TestGenerateReply_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	start := time.Now()
	_, err := newClient(srv, 50*time.Millisecond).GenerateReply(context.Background(), nil, owl(t))
	assert.ErrorIs(t, err, domain.ErrGatewayUnavailable)
	assert.Less(t, time.Since(start), time.Second)
}

func TestScoreSession_WeightsRubricCategories(t *testing.T) {
	var seen openai.ChatCompletionRequest
	srv := fakeOpenAI(t, func(req openai.ChatCompletionRequest) (int, any) {
		seen = req
		return http.StatusOK, completion(`{"categories":[
			{"key":"rapport","score":90,"feedback":"warm"},
			{"key":"made_up","score":100},
			{"key":"CLOSING","score":140}
		],"feedback":"Solid start."}`)
	})
	c := newClient(srv, time.Second)

	rubric := personality.Rubric{
		{Key: "rapport", Label: "rapport building", Weight: 2},
		{Key: "closing", Label: "closing", Weight: 1},
		{Key: "discovery", Label: "needs discovery", Weight: 1},
	}
	score, err := c.ScoreSession(context.Background(), domain.Transcript{{Speaker: domain.SpeakerUser, Text: "hi"}}, rubric)
	require.NoError(t, err)

	require.NotNil(t, seen.ResponseFormat)
	assert.Equal(t, openai.ChatCompletionResponseFormatTypeJSONObject, seen.ResponseFormat.Type)
	assert.Contains(t, seen.Messages[1].Content, "Salesperson: hi")

	// 90*.5 + 100*.25 + 0*.25
	assert.Equal(t, 70, score.Value)
	assert.Equal(t, "C+", score.Grade)
	require.Len(t, score.Breakdown, 3)
	assert.Equal(t, 100, score.Breakdown[1].Score)
	assert.Equal(t, 0, score.Breakdown[2].Score)
	assert.Equal(t, "Solid start.", score.Feedback)
	assert.Contains(t, score.Strengths, "Strong rapport building")
	assert.Contains(t, score.Improvements, "Improve needs discovery")
}

func TestScoreSession_RoundsFractionalScores(t *testing.T) {
	srv := fakeOpenAI(t, func(openai.ChatCompletionRequest) (int, any) {
		return http.StatusOK, completion(`{"categories":[
			{"key":"rapport","score":87.5,"feedback":"warm"},
			{"key":"closing","score":64.4},
			{"key":"discovery","score":-3.2}
		],"feedback":"Ask for the appointment."}`)
	})

	rubric := personality.Rubric{
		{Key: "rapport", Label: "rapport", Weight: 2},
		{Key: "closing", Label: "closing", Weight: 1},
		{Key: "discovery", Label: "discovery", Weight: 1},
	}
	score, err := newClient(srv, time.Second).ScoreSession(context.Background(), nil, rubric)
	require.NoError(t, err)

	require.Len(t, score.Breakdown, 3)
	assert.Equal(t, 88, score.Breakdown[0].Score)
	assert.Equal(t, 64, score.Breakdown[1].Score)
	assert.Equal(t, 0, score.Breakdown[2].Score)
	// 88*.5 + 64*.25 + 0*.25
	assert.Equal(t, 60, score.Value)
	assert.Equal(t, "D", score.Grade)
}

func TestScoreSession_BadJSONIsUnavailable(t *testing.T) {
	srv := fakeOpenAI(t, func(openai.ChatCompletionRequest) (int, any) {
		return http.StatusOK, completion("I think they did great!")
	})
	_, err := newClient(srv, time.Second).ScoreSession(context.Background(), nil, owl(t).Rubric())
	assert.ErrorIs(t, err, domain.ErrGatewayUnavailable)
}

func TestScoreSession_EmptyRubric(t *testing.T) {
	c := New(Config{APIKey: "test"}, zerolog.Nop(), nil)
	_, err := c.ScoreSession(context.Background(), nil, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestFit_DropsOldestEntries(t *testing.T) {
	c := New(Config{APIKey: "test", MaxPromptTokens: 12}, zerolog.Nop(), nil)
	c.count = EstimateTokens

	transcript := domain.Transcript{
		{Speaker: domain.SpeakerPartner, Text: "one two three four five"},
		{Speaker: domain.SpeakerUser, Text: "six seven eight"},
		{Speaker: domain.SpeakerPartner, Text: "nine ten"},
	}
	fitted := c.fit("system prompt", transcript)
	require.Len(t, fitted, 2)
	assert.Equal(t, "six seven eight", fitted[0].Text)

	c.cfg.MaxPromptTokens = 1
	fitted = c.fit("system prompt", transcript)
	require.Len(t, fitted, 1)
	assert.Equal(t, "nine ten", fitted[0].Text)

	c.cfg.MaxPromptTokens = 0
	assert.Len(t, c.fit("system prompt", transcript), 3)
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens("   "))
	assert.Equal(t, 1, EstimateTokens("hi"))
	assert.Equal(t, 3, EstimateTokens("a b c"))
	assert.Equal(t, 5, EstimateTokens(strings.Repeat("x", 20)))
}
