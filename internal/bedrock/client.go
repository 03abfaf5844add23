// Package bedrock wraps AWS Bedrock model invocation for cluster analysis.
package bedrock

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/kubeintel/kubeintel/internal/config"
)

const anthropicVersion = "bedrock-2023-05-31"

// Completion is a parsed model response.
type Completion struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// Client invokes a single Bedrock model.
type Client struct {
	runtime   *bedrockruntime.Client
	modelID   string
	maxTokens int
}

// New loads AWS credentials for the region and returns a client bound to
// the given model ID.
func New(ctx context.Context, region, modelID string) (*Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("bedrock: load aws config: %w", err)
	}
	return &Client{
		runtime:   bedrockruntime.NewFromConfig(awsCfg),
		modelID:   modelID,
		maxTokens: config.DefaultMaxOutputTokens,
	}, nil
}

// ModelID returns the bound model identifier.
func (c *Client) ModelID() string { return c.modelID }

// Invoke sends one user message with an optional system prompt and returns
// the completion text with billed token counts. Token counts are zero when
// the response carried no usage block.
func (c *Client) Invoke(ctx context.Context, system, prompt string) (Completion, error) {
	body, err := c.buildBody(system, prompt)
	if err != nil {
		return Completion{}, err
	}

	out, err := c.runtime.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(c.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        []byte(body),
	})
	if err != nil {
		return Completion{}, fmt.Errorf("bedrock: invoke %s: %w", c.modelID, err)
	}

	resp := gjson.ParseBytes(out.Body)
	completion := Completion{
		Text:         resp.Get("content.0.text").String(),
		InputTokens:  int(resp.Get("usage.input_tokens").Int()),
		OutputTokens: int(resp.Get("usage.output_tokens").Int()),
	}
	if completion.Text == "" {
		return Completion{}, fmt.Errorf("bedrock: empty completion from %s", c.modelID)
	}

	log.Debug().
		Str("model", c.modelID).
		Int("input_tokens", completion.InputTokens).
		Int("output_tokens", completion.OutputTokens).
		Msg("model invocation complete")
	return completion, nil
}

func (c *Client) buildBody(system, prompt string) (string, error) {
	body, err := sjson.Set("", "anthropic_version", anthropicVersion)
	if err != nil {
		return "", fmt.Errorf("bedrock: build request: %w", err)
	}
	body, _ = sjson.Set(body, "max_tokens", c.maxTokens)
	if system != "" {
		body, _ = sjson.Set(body, "system", system)
	}
	body, _ = sjson.Set(body, "messages.0.role", "user")
	body, _ = sjson.Set(body, "messages.0.content.0.type", "text")
	body, _ = sjson.Set(body, "messages.0.content.0.text", prompt)
	return body, nil
}
