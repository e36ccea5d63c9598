// Package tutor generates the tutor reply through the OpenAI chat API,
// steered by the current control state.
package tutor

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/MissVz/EQiLevel/internal/history"
	"github.com/MissVz/EQiLevel/internal/mcp"
	"github.com/MissVz/EQiLevel/internal/objectives"
)

const systemTemplate = `You are an emotionally-aware tutor.
- Tone: %s
- Pacing: %s
- Difficulty: %s
- Style: %s
- Next Step: %s
Respond with clear, supportive instruction; keep 3-5 sentences.`

// Client generates tutor replies.
type Client struct {
	api     *openai.Client
	model   string
	catalog *objectives.Catalog
}

// NewClient builds the reply generator. The catalog may be nil.
func NewClient(apiKey, model string, catalog *objectives.Catalog) *Client {
	return &Client{api: openai.NewClient(apiKey), model: model, catalog: catalog}
}

func (c *Client) systemPrompt(state mcp.ControlState, objectiveCode string) string {
	prompt := fmt.Sprintf(systemTemplate, state.Tone, state.Pacing, state.Difficulty, state.Style, state.NextStep)
	if c.catalog != nil && objectiveCode != "" {
		if obj := c.catalog.FindByCode(objectiveCode); obj != nil {
			prompt += objectives.FormatForPrompt([]objectives.Objective{*obj}, 1)
		}
	}
	return prompt
}

// Generate returns the tutor reply for the user's utterance. Recent dialogue
// is replayed as alternating chat turns so the model keeps context.
func (c *Client) Generate(ctx context.Context, userText string, state mcp.ControlState, hist []history.Message, objectiveCode string) (string, error) {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: c.systemPrompt(state, objectiveCode)},
	}
	for _, m := range hist {
		role := openai.ChatMessageRoleUser
		if m.Role == "tutor" {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Text})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: userText})

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: 0.3,
		MaxTokens:   220,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: empty choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
