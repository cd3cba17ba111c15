// Package enrich asks an OpenAI-compatible chat completion API for a
// category guess on descriptors that no rule matched.
package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/similarity"
)

// Defaults for Config.
const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4o-mini"
	SourceName     = "enrich"

	DefaultRequestsPerMinute = 60

	// categorySnapThreshold is how close an answer must be to a known
	// category to be replaced by it.
	categorySnapThreshold = 0.8
)

// Config configures a Client.
type Config struct {
	BaseURL  string
	APIKey   string
	Model    string
	Timeout  time.Duration
	CacheTTL time.Duration
	Retry    common.RetryOptions

	// RequestsPerMinute caps calls to the API across all goroutines.
	RequestsPerMinute int
}

// Client implements ingest.Enricher over HTTP.
type Client struct {
	httpClient *http.Client
	cache      *suggestionCache
	limiter    *rate.Limiter
	logger     *slog.Logger
	baseURL    string
	apiKey     string
	model      string
	retry      common.RetryOptions
}

// New creates a Client. Close it to stop the cache janitor.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: enrichment API key is required", common.ErrMissingConfig)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = DefaultRequestsPerMinute
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		retry:   cfg.Retry,
		cache:   newSuggestionCache(cfg.CacheTTL),
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), cfg.RequestsPerMinute),
		logger:  logger,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

// Close releases background resources.
func (c *Client) Close() {
	c.cache.close()
}

// Suggest returns a category guess for clean, or nil when the model has
// none. When categories is non-empty the answer is snapped onto the
// closest known category, and answers far from all of them are dropped.
func (c *Client) Suggest(ctx context.Context, clean string, categories []string) (*model.Suggestion, error) {
	key := strings.ToLower(strings.TrimSpace(clean)) + "|" + strings.Join(categories, "\x1f")
	if s, ok := c.cache.get(key); ok {
		return s, nil
	}

	var answer completionAnswer
	err := common.WithRetry(ctx, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return &common.RetryableError{Err: fmt.Errorf("rate limiter: %w", err), Retryable: false}
		}
		var err error
		answer, err = c.complete(ctx, buildPrompt(clean, categories))
		return err
	}, c.retry)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrEnrichmentFailed, err)
	}

	s := answer.toSuggestion(categories)
	if s == nil {
		c.logger.Debug("no usable suggestion", "descriptor", clean, "category", answer.Category)
	}
	c.cache.set(key, s)
	return s, nil
}

const systemPrompt = "You categorize bank transactions for a household budget. " +
	"Respond with ONLY a JSON object of the form " +
	`{"category": string, "sub_category": string or null, "confidence": number between 0 and 1}. ` +
	`Use an empty category when you cannot tell.`

func buildPrompt(clean string, categories []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Merchant descriptor: %q\n", clean)
	if len(categories) > 0 {
		b.WriteString("Choose one of these categories:\n")
		for _, cat := range categories {
			fmt.Fprintf(&b, "- %s\n", cat)
		}
	}
	return b.String()
}

type completionAnswer struct {
	SubCategory *string `json:"sub_category"`
	Category    string  `json:"category"`
	Confidence  float64 `json:"confidence"`
}

func (a completionAnswer) toSuggestion(categories []string) *model.Suggestion {
	category := strings.TrimSpace(a.Category)
	if category == "" {
		return nil
	}
	if len(categories) > 0 {
		best, ok := similarity.BestMatch(category, categories, categorySnapThreshold)
		if !ok {
			return nil
		}
		category = best.Value
	}

	sub := a.SubCategory
	if sub != nil && strings.TrimSpace(*sub) == "" {
		sub = nil
	}
	return &model.Suggestion{
		Category:    category,
		SubCategory: sub,
		Confidence:  a.Confidence,
		Source:      SourceName,
	}
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *Client) complete(ctx context.Context, prompt string) (completionAnswer, error) {
	body, err := json.Marshal(map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": prompt},
		},
		"temperature": 0.1,
		"max_tokens":  100,
	})
	if err != nil {
		return completionAnswer{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return completionAnswer{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return completionAnswer{}, &common.RetryableError{Err: fmt.Errorf("request failed: %w", err), Retryable: true}
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return completionAnswer{}, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return completionAnswer{}, common.ErrRateLimit
	case resp.StatusCode >= http.StatusInternalServerError:
		return completionAnswer{}, &common.RetryableError{
			Err:       fmt.Errorf("API error (status %d): %s", resp.StatusCode, payload),
			Retryable: true,
		}
	case resp.StatusCode != http.StatusOK:
		return completionAnswer{}, &common.RetryableError{
			Err:       fmt.Errorf("API error (status %d): %s", resp.StatusCode, payload),
			Retryable: false,
		}
	}

	var chat chatResponse
	if err := json.Unmarshal(payload, &chat); err != nil {
		return completionAnswer{}, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return completionAnswer{}, fmt.Errorf("no completion choices returned")
	}

	var answer completionAnswer
	if err := json.Unmarshal([]byte(stripCodeFence(chat.Choices[0].Message.Content)), &answer); err != nil {
		return completionAnswer{}, &common.RetryableError{Err: fmt.Errorf("failed to parse answer: %w", err), Retryable: true}
	}
	return answer, nil
}

// stripCodeFence removes a ```json ... ``` wrapper some models add.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
