// Package gateway talks to the language model that plays the homeowner and
// grades finished practice sessions.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"github.com/hunterjsb/doorknock/internal/domain"
	"github.com/hunterjsb/doorknock/internal/metrics"
	"github.com/hunterjsb/doorknock/internal/personality"
)

// Config holds the model parameters of the gateway.
type Config struct {
	APIKey          string
	BaseURL         string
	Model           string
	MaxTokens       int
	Temperature     float64
	Timeout         time.Duration
	MaxPromptTokens int
}

// Client is the conversation partner gateway backed by the OpenAI chat API.
type Client struct {
	api     *openai.Client
	cfg     Config
	log     zerolog.Logger
	metrics *metrics.Metrics
	count   func(string) int
}

// New builds a Client. A zero Timeout falls back to 30 seconds.
func New(cfg Config, log zerolog.Logger, m *metrics.Metrics) *Client {
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		api:     openai.NewClientWithConfig(apiCfg),
		cfg:     cfg,
		log:     log.With().Str("component", "gateway").Logger(),
		metrics: m,
		count:   CountTokens,
	}
}

// GenerateReply asks the model for the partner's next line given the
// conversation so far.
func (c *Client) GenerateReply(ctx context.Context, transcript domain.Transcript, profile personality.Profile) (string, error) {
	system := profile.SystemPrompt()
	if !strings.Contains(system, "Traits:") {
		system += "\n\nTraits:\n" + profile.Traits().Render()
	}
	messages := []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleSystem, Content: system}}
	for _, e := range c.fit(system, transcript) {
		role := openai.ChatMessageRoleUser
		if e.Speaker == domain.SpeakerPartner {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: e.Text})
	}

	reply, err := c.complete(ctx, "reply", openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: float32(c.cfg.Temperature),
	})
	if err != nil {
		return "", err
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", fmt.Errorf("%w: empty reply", domain.ErrGatewayUnavailable)
	}
	return reply, nil
}

type scoreResponse struct {
	Categories []struct {
		Key      string  `json:"key"`
		Score    float64 `json:"score"`
		Feedback string  `json:"feedback"`
	} `json:"categories"`
	Feedback string `json:"feedback"`
}

// ScoreSession grades a finished transcript against rubric. Categories the
// model leaves out score zero; categories outside the rubric are ignored.
func (c *Client) ScoreSession(ctx context.Context, transcript domain.Transcript, rubric personality.Rubric) (domain.Score, error) {
	rubric = rubric.Normalized()
	if len(rubric) == 0 {
		return domain.Score{}, domain.Invalid("empty scoring rubric")
	}

	raw, err := c.complete(ctx, "score", openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: scoringInstructions},
			{Role: openai.ChatMessageRoleUser, Content: renderForScoring(transcript, rubric)},
		},
		Temperature:    0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		return domain.Score{}, err
	}

	var parsed scoreResponse
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		c.log.Warn().Err(err).Str("raw", raw).Msg("Unparseable score response")
		return domain.Score{}, fmt.Errorf("%w: decoding score: %w", domain.ErrGatewayUnavailable, err)
	}

	breakdown := make([]domain.CategoryScore, 0, len(rubric))
	for _, crit := range rubric {
		cat := domain.CategoryScore{Key: crit.Key, Label: crit.Label, Weight: crit.Weight}
		for _, got := range parsed.Categories {
			if strings.EqualFold(strings.TrimSpace(got.Key), crit.Key) {
				cat.Score = int(math.Round(min(max(got.Score, 0), 100)))
				cat.Feedback = got.Feedback
				break
			}
		}
		breakdown = append(breakdown, cat)
	}
	return domain.NewScore(breakdown, strings.TrimSpace(parsed.Feedback)), nil
}

func (c *Client) complete(ctx context.Context, op string, req openai.ChatCompletionRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err == nil && len(resp.Choices) == 0 {
		err = errors.New("no choices in response")
	}
	c.metrics.ObserveGateway(op, err, time.Since(start))
	if err != nil {
		c.log.Warn().Err(err).Str("op", op).Dur("took", time.Since(start)).Msg("Gateway call failed")
		return "", fmt.Errorf("%w: %s: %w", domain.ErrGatewayUnavailable, op, err)
	}
	return resp.Choices[0].Message.Content, nil
}

const scoringInstructions = `You are an experienced door-to-door sales coach grading a practice conversation.
Score each rubric category from 0 to 100 and give one sentence of feedback per category.
Respond with JSON only, in the form:
{"categories":[{"key":"<category key>","score":<0-100>,"feedback":"<one sentence>"}],"feedback":"<two or three sentences of overall coaching>"}`

func renderForScoring(transcript domain.Transcript, rubric personality.Rubric) string {
	var b strings.Builder
	b.WriteString("Rubric:\n")
	for _, crit := range rubric {
		fmt.Fprintf(&b, "- %s (%s), weight %.2f\n", crit.Key, crit.Label, crit.Weight)
	}
	b.WriteString("\nConversation:\n")
	for _, e := range transcript {
		who := "Salesperson"
		if e.Speaker == domain.SpeakerPartner {
			who = "Homeowner"
		}
		fmt.Fprintf(&b, "%s: %s\n", who, e.Text)
	}
	return b.String()
}
