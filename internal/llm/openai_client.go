package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Config configures the OpenAI-backed Gateway implementation.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

type openaiGateway struct {
	client      openai.Client
	model       string
	rateLimiter *RateLimiter // nil disables proactive rate limiting
}

// New constructs a Gateway backed by the OpenAI chat completions API,
// exactly as the teacher's common/llm.New wires openai.NewClient.
func New(cfg Config, rateLimiter *RateLimiter) (Gateway, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	return &openaiGateway{
		client:      openai.NewClient(opts...),
		model:       model,
		rateLimiter: rateLimiter,
	}, nil
}

// firstStructuredBlock extracts the first well-formed JSON object from a
// string that may contain surrounding prose, implementing the Gateway's
// "extracts the first well-formed structured block" edge case (spec.md
// §4.1). It returns "" when no '{' starts a well-formed object.
func firstStructuredBlock(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] != '{' {
			continue
		}
		var raw json.RawMessage
		if json.NewDecoder(strings.NewReader(s[i:])).Decode(&raw) == nil {
			return string(raw)
		}
	}
	return ""
}

func (g *openaiGateway) Invoke(ctx context.Context, role Role, systemPrompt, userPrompt string, schema any, schemaName string, result any) (WorkerResult, error) {
	if g.rateLimiter != nil {
		if !g.rateLimiter.Allow(ctx, role) {
			return WorkerResult{}, &WorkerError{
				Kind:        FailureRateLimited,
				Attempts:    0,
				LastMessage: fmt.Sprintf("role %s exceeded requests-per-minute budget", role),
			}
		}
	}

	var lastErr error
	reinforced := false

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res, err := g.invokeOnce(ctx, systemPrompt, userPrompt, schema, schemaName, reinforced, result)
		if err == nil {
			return res, nil
		}

		kind := classify(err)
		lastErr = err

		slog.WarnContext(ctx, "worker invocation failed",
			"role", string(role), "attempt", attempt, "kind", string(kind), "error", err)

		switch kind {
		case FailureFatal, FailureRateLimited:
			return WorkerResult{}, &WorkerError{Kind: kind, Attempts: attempt, LastMessage: err.Error()}
		case FailureMalformed:
			if reinforced {
				return WorkerResult{}, &WorkerError{Kind: FailureMalformed, Attempts: attempt, LastMessage: err.Error()}
			}
			reinforced = true
			continue
		case FailureTransient:
			if attempt == maxAttempts {
				return WorkerResult{}, &WorkerError{Kind: FailureTransient, Attempts: attempt, LastMessage: err.Error()}
			}
			select {
			case <-time.After(backoffDelay(attempt)):
			case <-ctx.Done():
				return WorkerResult{}, &WorkerError{Kind: FailureTransient, Attempts: attempt, LastMessage: ctx.Err().Error()}
			}
		}
	}

	return WorkerResult{}, &WorkerError{Kind: FailureTransient, Attempts: maxAttempts, LastMessage: lastErr.Error()}
}

func (g *openaiGateway) invokeOnce(ctx context.Context, systemPrompt, userPrompt string, schema any, schemaName string, reinforced bool, result any) (WorkerResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, hardTimeout)
	defer cancel()

	if reinforced {
		userPrompt = userPrompt + "\n\nReturn ONLY a single well-formed JSON object matching the schema. Do not include any prose before or after it."
	}

	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(systemPrompt),
		openai.UserMessage(userPrompt),
	}

	params := openai.ChatCompletionNewParams{
		Model:    g.model,
		Messages: messages,
	}

	if schema != nil {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        schemaName,
					Description: openai.String("Structured response schema"),
					Schema:      schema,
					Strict:      openai.Bool(true),
				},
			},
		}
	}

	start := time.Now()
	resp, err := g.client.Chat.Completions.New(callCtx, params)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return WorkerResult{}, fmt.Errorf("worker hard timeout: %w", callCtx.Err())
		}
		return WorkerResult{}, fmt.Errorf("openai chat: %w", err)
	}

	slog.DebugContext(ctx, "worker call completed",
		"model", g.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens)

	if len(resp.Choices) == 0 {
		return WorkerResult{}, errMalformed{msg: "no choices in response"}
	}

	content := resp.Choices[0].Message.Content

	if schema != nil && result != nil {
		block := content
		if !json.Valid([]byte(block)) {
			match := firstStructuredBlock(content)
			if match == "" {
				return WorkerResult{}, errMalformed{msg: "no structured block found in response"}
			}
			block = match
		}
		if err := json.Unmarshal([]byte(block), result); err != nil {
			return WorkerResult{}, errMalformed{msg: "unmarshal response: " + err.Error()}
		}
	}

	return WorkerResult{
		RawText:          content,
		Model:            g.model,
		ResponseID:       resp.ID,
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}, nil
}

// errMalformed marks an error as Malformed regardless of its underlying
// shape, distinguishing schema/parse failures from transport failures.
type errMalformed struct{ msg string }

func (e errMalformed) Error() string { return e.msg }

// classify maps an error from the OpenAI SDK (or a local errMalformed) to a
// FailureKind, grounded on the teacher's common/llm.IsRetryable status-code
// switch but producing the richer classification spec.md §4.1 requires.
func classify(err error) FailureKind {
	if err == nil {
		return ""
	}

	var malformed errMalformed
	if errors.As(err, &malformed) {
		return FailureMalformed
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTransient
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429:
			return FailureRateLimited
		case apiErr.StatusCode >= 500:
			return FailureTransient
		case apiErr.StatusCode == 401 || apiErr.StatusCode == 403:
			return FailureFatal
		default:
			return FailureFatal
		}
	}

	// Network errors with no API response are treated as transient.
	return FailureTransient
}
