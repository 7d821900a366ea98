package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sethvargo/go-retry"

	"github.com/inkwell-systems/comicforge-backend/pkg/config"
	"github.com/inkwell-systems/comicforge-backend/pkg/logger"
)

const panelsPerPage = 4

// PanelScript is the narrative content of a single comic panel.
type PanelScript struct {
	PanelNo  int      `json:"panel_no"`
	Dialogue []string `json:"dialogue"`
	Action   string   `json:"action"`
	Setting  string   `json:"setting"`
	Caption  *string  `json:"caption,omitempty"`
}

// PageScript groups the four panels of a comic page.
type PageScript struct {
	PageNo int           `json:"page_no"`
	Panels []PanelScript `json:"panels"`
}

// Story is the complete scripted comic returned by the model.
type Story struct {
	Title string       `json:"title"`
	Pages []PageScript `json:"pages"`
}

// StoryParams configures a story generation request.
type StoryParams struct {
	Premise  string
	ArtStyle string
	Pages    int
}

// ErrInvalidStory marks model output that failed schema validation after all
// retries. Callers must not retry it through the job substrate.
var ErrInvalidStory = errors.New("story output failed schema validation")

type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// StoryClient scripts comic stories through the chat completion API.
// Completion calls ride a bounded-timeout HTTP client and retry only
// server-side and connection-class failures.
type StoryClient struct {
	chat          chatCompleter
	model         string
	maxRetries    int
	schemaRetries int
	logg          *logger.Logger
}

// NewStoryClient builds a story client from configuration.
func NewStoryClient(cfg config.OpenAIConfig, logg *logger.Logger) (*StoryClient, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("openai api key is required")
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	clientCfg := openai.DefaultConfig(apiKey)
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}
	return &StoryClient{
		chat:          openai.NewClientWithConfig(clientCfg),
		model:         model,
		maxRetries:    cfg.MaxRetries,
		schemaRetries: cfg.SchemaRetries,
		logg:          logg,
	}, nil
}

// GenerateStory asks the model for a paged panel script and validates it
// against the expected shape, retrying a bounded number of times when the
// model returns malformed output.
func (c *StoryClient) GenerateStory(ctx context.Context, params StoryParams) (*Story, error) {
	if params.Pages < 1 {
		return nil, errors.New("page count must be at least 1")
	}
	if strings.TrimSpace(params.Premise) == "" {
		return nil, errors.New("premise is required")
	}

	req := openai.ChatCompletionRequest{
		Model: c.model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt(params)},
		},
	}

	attempts := c.schemaRetries + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		resp, err := c.complete(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("chat completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			lastErr = errors.New("empty completion response")
			continue
		}

		story, err := parseStory(resp.Choices[0].Message.Content, params.Pages)
		if err != nil {
			lastErr = err
			if c.logg != nil {
				c.logg.Warn(c.logg.WithField(ctx, "attempt", attempt+1), "story output rejected: "+err.Error())
			}
			continue
		}
		return story, nil
	}

	return nil, fmt.Errorf("%w: %v", ErrInvalidStory, lastErr)
}

func (c *StoryClient) complete(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	backoff := retry.WithMaxRetries(uint64(c.maxRetries), retry.NewExponential(500*time.Millisecond))

	var resp openai.ChatCompletionResponse
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		r, callErr := c.chat.CreateChatCompletion(ctx, req)
		if callErr != nil {
			if isTransient(callErr) {
				if c.logg != nil {
					c.logg.Warn(ctx, "chat completion failed, retrying: "+callErr.Error())
				}
				return retry.RetryableError(callErr)
			}
			return callErr
		}
		resp = r
		return nil
	})
	return resp, err
}

// isTransient reports whether the error class is worth another attempt.
// Provider 4xx responses, rate limits included, mean the request must not
// loop; only server errors and connection failures retry.
func isTransient(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode >= http.StatusInternalServerError
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "connection")
}

func parseStory(raw string, wantPages int) (*Story, error) {
	var story Story
	if err := json.Unmarshal([]byte(raw), &story); err != nil {
		return nil, fmt.Errorf("decoding story json: %w", err)
	}
	if len(story.Pages) != wantPages {
		return nil, fmt.Errorf("expected %d pages, got %d", wantPages, len(story.Pages))
	}
	for i, page := range story.Pages {
		if page.PageNo != i+1 {
			return nil, fmt.Errorf("page %d has page_no %d", i+1, page.PageNo)
		}
		if len(page.Panels) != panelsPerPage {
			return nil, fmt.Errorf("page %d has %d panels, want %d", page.PageNo, len(page.Panels), panelsPerPage)
		}
		for j, panel := range page.Panels {
			if panel.PanelNo != j+1 {
				return nil, fmt.Errorf("page %d panel %d has panel_no %d", page.PageNo, j+1, panel.PanelNo)
			}
			if strings.TrimSpace(panel.Action) == "" {
				return nil, fmt.Errorf("page %d panel %d missing action", page.PageNo, panel.PanelNo)
			}
			if strings.TrimSpace(panel.Setting) == "" {
				return nil, fmt.Errorf("page %d panel %d missing setting", page.PageNo, panel.PanelNo)
			}
		}
	}
	return &story, nil
}

const systemPrompt = `You are a comic book writer. Respond with a single JSON object of the shape
{"title": string, "pages": [{"page_no": int, "panels": [{"panel_no": int, "dialogue": [string], "action": string, "setting": string, "caption": string|null}]}]}.
Every page has exactly 4 panels numbered 1 through 4. Pages are numbered from 1. Keep dialogue lines short.`

func userPrompt(params StoryParams) string {
	style := params.ArtStyle
	if style == "" {
		style = "comic book"
	}
	return fmt.Sprintf(
		"Write a %d-page comic in a %s style.\nPremise: %s",
		params.Pages, style, strings.TrimSpace(params.Premise),
	)
}
