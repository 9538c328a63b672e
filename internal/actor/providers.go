package actor

import (
	"context"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	openai "github.com/sashabaranov/go-openai"

	"github.com/flowkernel/kernel/internal/kernelerr"
)

// AnthropicMessagesClient captures the subset of the Anthropic SDK used
// by AnthropicProvider, so tests can substitute a fake.
type AnthropicMessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams) (*sdk.Message, error)
}

// AnthropicProvider dispatches AI-actor calls through the Anthropic
// Messages API.
type AnthropicProvider struct {
	Client AnthropicMessagesClient
}

func (p *AnthropicProvider) Complete(ctx context.Context, systemPrompt, userContent string, cfg ModelParams) (string, error) {
	if p.Client == nil {
		return "", kernelerr.New(kernelerr.Config, "anthropic provider has no client configured")
	}
	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	msg, err := p.Client.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(cfg.ModelID),
		MaxTokens: maxTokens,
		System: []sdk.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(userContent)),
		},
	})
	if err != nil {
		return "", err
	}
	var out string
	for _, block := range msg.Content {
		if block.Type == "text" {
			out += block.Text
		}
	}
	return out, nil
}

// OpenAIChatClient captures the subset of go-openai used by
// OpenAIProvider.
type OpenAIChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIProvider dispatches AI-actor calls through the OpenAI Chat
// Completions API.
type OpenAIProvider struct {
	Client OpenAIChatClient
}

func (p *OpenAIProvider) Complete(ctx context.Context, systemPrompt, userContent string, cfg ModelParams) (string, error) {
	if p.Client == nil {
		return "", kernelerr.New(kernelerr.Config, "openai provider has no client configured")
	}
	resp, err := p.Client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       cfg.ModelID,
		Temperature: float32(cfg.Temperature),
		MaxTokens:   cfg.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userContent},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", kernelerr.New(kernelerr.Integration, "openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// BedrockRuntimeClient captures the subset of the AWS Bedrock runtime
// client used by BedrockProvider.
type BedrockRuntimeClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockProvider dispatches AI-actor calls through AWS Bedrock's
// Converse API, used for provider-hosted models (e.g. Titan, Llama)
// reachable via an AWS account.
type BedrockProvider struct {
	Client BedrockRuntimeClient
}

func (p *BedrockProvider) Complete(ctx context.Context, systemPrompt, userContent string, cfg ModelParams) (string, error) {
	if p.Client == nil {
		return "", kernelerr.New(kernelerr.Config, "bedrock provider has no client configured")
	}
	out, err := p.Client.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId: aws.String(cfg.ModelID),
		System: []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: systemPrompt},
		},
		Messages: []types.Message{
			{
				Role: types.ConversationRoleUser,
				Content: []types.ContentBlock{
					&types.ContentBlockMemberText{Value: userContent},
				},
			},
		},
	})
	if err != nil {
		return "", err
	}
	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return "", kernelerr.New(kernelerr.Integration, "bedrock converse returned unexpected output type")
	}
	var text string
	for _, block := range msg.Value.Content {
		if tb, ok := block.(*types.ContentBlockMemberText); ok {
			text += tb.Value
		}
	}
	if text == "" {
		return "", fmt.Errorf("bedrock converse returned no text content")
	}
	return text, nil
}
