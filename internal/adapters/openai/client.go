package openai

import (
	"context"
	"errors"
	"strings"

	"github.com/HamedShams/sprint-pulse/internal/config"
	openai "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"
	"github.com/rs/zerolog"
)

const systemPrompt = "You are a senior agile coach. Given per-sprint average hours per workflow status and the slowest " +
	"status periods of the latest export, write at most four short sentences pointing out bottlenecks and one suggested action. Plain text, no markdown."

type Client struct {
	key   string
	model string
	cli   openai.Client
	log   zerolog.Logger
}

func NewClient(cfg config.Config, log zerolog.Logger, opts ...option.RequestOption) *Client {
	model := cfg.OpenAIModel
	if strings.TrimSpace(model) == "" {
		model = "gpt-4.1-mini"
	}
	base := []option.RequestOption{option.WithAPIKey(cfg.OpenAIKey)}
	if cfg.OpenAITimeout > 0 {
		base = append(base, option.WithRequestTimeout(cfg.OpenAITimeout))
	}
	cli := openai.NewClient(append(base, opts...)...)
	return &Client{key: cfg.OpenAIKey, model: model, cli: cli, log: log}
}

// Commentary asks the model for a short note on the summary and the slowest periods.
func (c *Client) Commentary(ctx context.Context, digest string, slowest []string) (string, error) {
	if strings.TrimSpace(c.key) == "" {
		return "", errors.New("openai: missing key")
	}
	c.log.Info().Str("model", c.model).Int("periods", len(slowest)).Msg("openai Commentary call")
	user := "Summary:\n" + digest + "\nSlowest periods:\n- " + strings.Join(slowest, "\n- ")
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(user),
		},
	}
	resp, err := c.cli.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
