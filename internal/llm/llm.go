// Package llm is a search backend that answers queries with the Anthropic
// Messages API instead of the knowledge service.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/joescharf/ka/internal/models"
	"github.com/joescharf/ka/internal/search"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "claude-sonnet-4-5"

const maxTokens = 2048

// Client wraps the Anthropic API and implements search.Client.
type Client struct {
	api   *anthropic.Client
	model anthropic.Model
	log   *slog.Logger
}

var _ search.Client = (*Client)(nil)

// NewClient creates an LLM client with the given API key and model. Extra
// request options are passed through to the SDK.
func NewClient(apiKey, model string, logger *slog.Logger, extra ...option.RequestOption) *Client {
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	opts = append(opts, extra...)
	if model == "" {
		model = DefaultModel
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	client := anthropic.NewClient(opts...)
	return &Client{
		api:   &client,
		model: anthropic.Model(model),
		log:   logger,
	}
}

// buildSystemPrompt describes the answer format for the given mode.
func buildSystemPrompt(mode models.SearchMode) string {
	var scope string
	if mode == models.SearchModeExternal {
		scope = `You answer questions using public web knowledge. This is a conversation: earlier turns are included and follow-up questions may refer to them. Cite web pages with type "web".`
	} else {
		scope = `You answer questions about the company's internal knowledge base. Prefer Jira issues (type "jira") and Confluence pages (type "confluence") as sources. Each question stands alone.`
	}

	return scope + `

Return ONLY a JSON object with these fields:
- "summary": a concise markdown answer to the question
- "sources": an array of objects with "title", "url" and "type", where type is one of "jira", "confluence", "web"

Rules:
- Return an empty "sources" array when you cannot cite anything
- Return valid JSON only, no markdown fencing or explanation`
}

// buildMessages replays the conversation history followed by the new query.
func buildMessages(query string, history []models.Message) []anthropic.MessageParam {
	msgs := make([]anthropic.MessageParam, 0, len(history)+1)
	for _, m := range history {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == models.RoleAssistant {
			msgs = append(msgs, anthropic.NewAssistantMessage(block))
		} else {
			msgs = append(msgs, anthropic.NewUserMessage(block))
		}
	}
	return append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(query)))
}

// Search asks the model for a summary and sources. API failures become
// *search.Error values so the session shows a readable message.
func (c *Client) Search(ctx context.Context, mode models.SearchMode, query string, history []models.Message) (*models.SearchResult, error) {
	c.log.Debug("llm search", "mode", mode, "model", c.model, "history", len(history))

	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: buildSystemPrompt(mode)},
		},
		Messages: buildMessages(query, history),
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return nil, &search.Error{
				Status:  apiErr.StatusCode,
				Message: fmt.Sprintf("Request failed with status %d", apiErr.StatusCode),
				Err:     err,
			}
		}
		return nil, &search.Error{Message: search.ConnectErrorMessage, Err: fmt.Errorf("anthropic API call: %w", err)}
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return nil, &search.Error{Message: search.UnknownServerErrorMessage, Err: errors.New("no text content in API response")}
	}

	return parseResult(text)
}

// stripFence removes a surrounding markdown code fence.
func stripFence(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		lines := strings.SplitN(text, "\n", 2)
		if len(lines) > 1 {
			text = lines[1]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}
	return text
}

// parseResult decodes the model's JSON answer into a SearchResult.
func parseResult(text string) (*models.SearchResult, error) {
	text = stripFence(text)

	var res models.SearchResult
	if err := json.Unmarshal([]byte(text), &res); err != nil {
		return nil, &search.Error{
			Message: "The search service returned a malformed response.",
			Err:     fmt.Errorf("parse LLM response as JSON: %w\nraw response: %s", err, text),
		}
	}

	sources := make([]models.Source, 0, len(res.Sources))
	for _, s := range res.Sources {
		s.Type = models.SourceType(strings.ToLower(strings.TrimSpace(string(s.Type))))
		switch s.Type {
		case models.SourceTypeJira, models.SourceTypeConfluence, models.SourceTypeWeb:
		default:
			s.Type = models.SourceTypeWeb
		}
		sources = append(sources, s)
	}
	res.Sources = sources
	return &res, nil
}
