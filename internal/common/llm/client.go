// internal/common/llm/client.go
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/sashabaranov/go-openai"

	apperrors "geodialogue/internal/common/errors"
	"geodialogue/internal/common/logger"
	"geodialogue/internal/models"
)

// ErrEmptyResponse is returned when the model answers without content.
var ErrEmptyResponse = errors.New("LLM_EMPTY_RESPONSE")

type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	Timeout   time.Duration
	MaxTokens int
	CacheSize int
}

// Client asks a chat completion model to classify utterances and to fill
// parameters the pattern extractor could not find. Answers are cached per
// input, so identical input yields identical output for the cache lifetime.
type Client struct {
	api    *openai.Client
	cfg    Config
	cache  *lru.Cache
	logger logger.Logger
}

func NewClient(cfg Config, log logger.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm api key is empty")
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 300
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 1024
	}

	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}

	cache, err := lru.New(cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create llm cache: %w", err)
	}

	return &Client{
		api:    openai.NewClientWithConfig(apiCfg),
		cfg:    cfg,
		cache:  cache,
		logger: log,
	}, nil
}

type classification struct {
	Kind       string  `json:"kind"`
	Confidence float64 `json:"confidence"`
}

// ClassifyIntent asks the model which of kinds the utterance requests. A
// kind outside the list, or "none", comes back as KindNone.
func (c *Client) ClassifyIntent(ctx context.Context, utterance string, kinds []models.AnalysisKind) (models.AnalysisKind, float64, error) {
	key := "classify|" + strings.ToLower(strings.TrimSpace(utterance))
	if cached, ok := c.cache.Get(key); ok {
		res := cached.(classification)
		return models.AnalysisKind(res.Kind), res.Confidence, nil
	}

	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = fmt.Sprintf("%s (%s)", k, k.DisplayName())
	}
	system := "You classify requests for a geospatial analysis assistant. " +
		"Answer with a JSON object {\"kind\": string, \"confidence\": number between 0 and 1}. " +
		"kind must be one of: " + strings.Join(names, ", ") + ", or \"none\" when the request matches none of them."

	var res classification
	if err := c.complete(ctx, system, utterance, &res); err != nil {
		return models.KindNone, 0, err
	}

	kind := models.KindNone
	for _, k := range kinds {
		if models.AnalysisKind(res.Kind) == k {
			kind = k
			break
		}
	}
	if kind == models.KindNone {
		if parsed, ok := models.ParseKind(res.Kind); ok && containsKind(kinds, parsed) {
			kind = parsed
		}
	}
	res.Kind = string(kind)
	res.Confidence = clamp01(res.Confidence)
	if kind == models.KindNone {
		res.Confidence = 0
	}

	c.cache.Add(key, res)
	c.logger.Debug("llm intent classification", map[string]interface{}{
		"kind":       res.Kind,
		"confidence": res.Confidence,
	})
	return kind, res.Confidence, nil
}

// ExtractParameters asks the model for values of the named fields. fields
// maps a parameter name to a short description of what it holds. Fields the
// model does not know are left out of the result.
func (c *Client) ExtractParameters(ctx context.Context, utterance string, kind models.AnalysisKind, fields map[string]string) (map[string]interface{}, error) {
	if len(fields) == 0 {
		return map[string]interface{}{}, nil
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	key := "extract|" + string(kind) + "|" + strings.Join(names, ",") + "|" + strings.TrimSpace(utterance)
	if cached, ok := c.cache.Get(key); ok {
		return copyMap(cached.(map[string]interface{})), nil
	}

	var desc strings.Builder
	for _, name := range names {
		fmt.Fprintf(&desc, "- %s: %s\n", name, fields[name])
	}
	system := "You extract parameters for a " + kind.DisplayName() + " analysis from one chat message. " +
		"Answer with a JSON object containing only these keys, and only when the message states the value:\n" +
		desc.String() + "Use numbers for numeric values. Never guess."

	out := map[string]interface{}{}
	if err := c.complete(ctx, system, utterance, &out); err != nil {
		return nil, err
	}
	for name, v := range out {
		if _, wanted := fields[name]; !wanted || v == nil {
			delete(out, name)
		}
	}

	c.cache.Add(key, copyMap(out))
	return out, nil
}

func (c *Client) complete(ctx context.Context, system, user string, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return apperrors.NewLLMTimeoutError()
		}
		return apperrors.NewLLMRequestFailedError(err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return apperrors.NewLLMRequestFailedError(ErrEmptyResponse)
	}

	content := stripFences(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), out); err != nil {
		return apperrors.NewLLMRequestFailedError(fmt.Errorf("decode model answer: %w", err))
	}
	return nil
}

// stripFences removes a markdown code fence around a JSON answer.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func containsKind(kinds []models.AnalysisKind, k models.AnalysisKind) bool {
	for _, kind := range kinds {
		if kind == k {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func copyMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
