package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/legalmitra/mitra-bot/internal/apperr"
	"github.com/legalmitra/mitra-bot/internal/models"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

type GPTConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
}

// GPTAnswerer answers questions with an OpenAI chat model instead of the
// retrieval backend. The model is asked for the Answer Service's JSON shape so
// both paths share the same mapping.
type GPTAnswerer struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float64
	logger      *zap.Logger
}

func NewGPTAnswerer(cfg GPTConfig, logger *zap.Logger) *GPTAnswerer {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &GPTAnswerer{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		logger:      logger,
	}
}

const systemPrompt = `You are a helpful legal assistant specializing in Indian law.
Provide clear, accurate guidance, cite specific acts and sections, use simple language
and say so when you are not sure.

Return the response as a JSON object with this structure:
{
    "answer": "full answer",
    "simplified_answer": "the same answer in plain words",
    "action_steps": [{"step_number": 1, "description": "what to do first"}, ...],
    "sources": [{"act_name": "Indian Penal Code", "section_number": "302"}, ...]
}`

func (a *GPTAnswerer) Ask(ctx context.Context, question string) (*models.QueryResult, error) {
	resp, err := a.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: a.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleSystem,
					Content: systemPrompt,
				},
				{
					Role:    openai.ChatMessageRoleUser,
					Content: question,
				},
			},
			MaxTokens:   a.maxTokens,
			Temperature: float32(a.temperature),
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
		},
	)
	if err != nil {
		a.logger.Error("Failed to get GPT response", zap.Error(err))
		return nil, apperr.Wrap(apperr.KindNetwork, genericFailure, err)
	}
	if len(resp.Choices) == 0 {
		return nil, apperr.Wrap(apperr.KindNetwork, genericFailure, errors.New("empty completion"))
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	result, err := decodeResult([]byte(content))
	if err != nil {
		a.logger.Error("Failed to parse GPT response",
			zap.Error(err),
			zap.String("response", content))
		return nil, apperr.Wrap(apperr.KindNetwork, genericFailure, err)
	}
	if result.Answer == "" {
		return nil, apperr.Wrap(apperr.KindNetwork, genericFailure, fmt.Errorf("model %s returned no answer", a.model))
	}

	return result, nil
}
