// Package ai implements the LLM Gateway, Prompt Builder, and Response
// Validator of SPEC_FULL §4.3-4.5.
//
// Grounded on the reference repo's internal/adapter/ai/real/client.go
// (provider struct wrapping an otelhttp-traced *http.Client, backoff.Retry
// with backoff.Permanent for non-retriable classification), trimmed of
// the reference's Groq/OpenRouter free-model round-robin and SSE
// streaming, which this spec's two-provider model does not need.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/TIGERVENENO/persona-feedback-engine/internal/domain"
	obsctx "github.com/TIGERVENENO/persona-feedback-engine/internal/observability"
	"github.com/TIGERVENENO/persona-feedback-engine/internal/service/ratelimiter"
	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// retriableStatuses is exactly the set specified in §4.3.
var retriableStatuses = map[int]bool{429: true, 502: true, 503: true, 504: true}

// Gateway implements domain.AIClient against an OpenAI-compatible
// chat-completion HTTP API at a single configured base URL. It does not
// branch on the configured provider name (OpenRouter or AgentRouter):
// both are reached through the same request shape and endpoint path.
type Gateway struct {
	httpClient   *http.Client
	baseURL      string
	apiKey       string
	model        string
	maxRespBytes int64
	retry        domain.RetryConfig
	limiter      *ratelimiter.RedisLuaLimiter
	limiterKey   string
	conn         *obsctx.ConnectionMetrics
}

// NewGateway constructs a Gateway. baseURL/apiKey/model come from
// config.Config's LLM_BASE_URL/LLM_API_KEY/LLM_MODEL variables and are
// used as given, whatever LLM_PROVIDER is set to; httpTimeout bounds
// each individual HTTP call (§5).
func NewGateway(baseURL, apiKey, model string, httpTimeout time.Duration, maxRespBytes int64, retry domain.RetryConfig) *Gateway {
	return &Gateway{
		httpClient: &http.Client{
			Timeout:   httpTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
		model:        model,
		maxRespBytes: maxRespBytes,
		retry:        retry,
		conn:         obsctx.NewConnectionMetrics(obsctx.ConnectionTypeAI, obsctx.OperationTypeChat, baseURL),
	}
}

// Health returns the in-process connection tracker's current stats
// (success/failure counts, latency, circuit-breaker state), exposed
// by the worker's /healthz endpoint for operational visibility into
// the provider connection independent of Prometheus scraping.
func (g *Gateway) Health() map[string]interface{} {
	return g.conn.GetStats()
}

// WithLimiter attaches a token-bucket limiter that throttles outbound
// calls under the given logical key, independent of the HTTP ingress
// rate limit. Call with a nil limiter to leave calls unthrottled.
func (g *Gateway) WithLimiter(l *ratelimiter.RedisLuaLimiter, key string, perMinute int) *Gateway {
	if l == nil {
		return g
	}
	l.SetBucketConfig(key, ratelimiter.NewBucketConfigFromPerMinute(perMinute))
	g.limiter = l
	g.limiterKey = key
	return g
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model            string        `json:"model"`
	Messages         []chatMessage `json:"messages"`
	Temperature      float64       `json:"temperature"`
	TopP             float64       `json:"top_p,omitempty"`
	FrequencyPenalty float64       `json:"frequency_penalty,omitempty"`
	PresencePenalty  float64       `json:"presence_penalty,omitempty"`
	MaxTokens        int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// ChatJSON issues one chat-completion call, retrying on the §4.3
// retriable status set with exponential backoff, and returns the
// first extracted JSON object or array in the response text. The
// bearer credential is never attached to span attributes or log
// fields (§4.3 Security).
func (g *Gateway) ChatJSON(ctx domain.Context, params domain.SamplingParams, systemPrompt, userPrompt string) (string, error) {
	tracer := otel.Tracer("ai.gateway")
	ctx, span := tracer.Start(ctx, "Gateway.ChatJSON")
	defer span.End()
	span.SetAttributes(attribute.String("ai.model", g.model))

	if g.limiter != nil {
		allowed, retryAfter, err := g.limiter.Allow(ctx, g.limiterKey, 1)
		if err == nil && !allowed {
			return "", domain.NewRetriableError(domain.CodeAIServiceTransient,
				fmt.Sprintf("ai gateway rate limit exceeded, retry after %s", retryAfter))
		}
	}

	reqBody := chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature:      params.Temperature,
		TopP:             params.TopP,
		FrequencyPenalty: params.FrequencyPenalty,
		PresencePenalty:  params.PresencePenalty,
		MaxTokens:        params.MaxTokens,
	}
	raw, err := json.Marshal(reqBody)
	if err != nil {
		return "", domain.NewAppError(domain.CodeInternal, "marshal chat request").Wrap(err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = g.retry.InitialDelay
	bo.MaxInterval = g.retry.MaxDelay
	bo.Multiplier = g.retry.Multiplier
	bo.MaxElapsedTime = 0
	bounded := backoff.WithMaxRetries(bo, uint64(g.retry.MaxRetries))

	var result string
	callStart := time.Now()
	g.conn.RecordRequest()
	op := func() error {
		text, status, err := g.doCall(ctx, raw)
		if err != nil {
			return err
		}
		if status != 0 {
			if retriableStatuses[status] {
				return fmt.Errorf("upstream status %d", status)
			}
			return backoff.Permanent(domain.NewAppError(domain.CodeAIServicePermanent, fmt.Sprintf("upstream status %d", status)))
		}
		extracted, ok := extractFirstJSON(text)
		if !ok {
			return backoff.Permanent(domain.NewAppError(domain.CodeInvalidAIResponse, "no JSON object or array in response"))
		}
		result = extracted
		return nil
	}

	if err := backoff.Retry(op, bounded); err != nil {
		g.conn.RecordFailure(err, time.Since(callStart))
		var ae *domain.AppError
		if appErr, ok := err.(*domain.AppError); ok {
			ae = appErr
		}
		if ae != nil {
			return "", ae
		}
		// Retries exhausted on a retriable upstream status: convert to
		// a retriable application error so the queue layer can requeue
		// or dead-letter by its own policy (§4.3 "On exhaustion").
		return "", domain.NewRetriableError(domain.CodeAIServiceTransient, "upstream retries exhausted").Wrap(err)
	}
	g.conn.RecordSuccess(time.Since(callStart))
	return result, nil
}

// doCall performs one HTTP round trip and returns (responseText,
// httpStatus, error). httpStatus is 0 with a non-nil error in two
// cases: a transport-level failure (DNS, connection refused, timeout,
// body read), and a 2xx response that is not a valid chat-completion
// envelope (an INVALID_AI_RESPONSE AppError). The caller retries both
// within its backoff budget; on exhaustion the AppError is returned
// as-is and a transport error becomes a retriable error.
func (g *Gateway) doCall(ctx context.Context, body []byte) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, g.maxRespBytes)
	data, err := io.ReadAll(limited)
	if err != nil {
		return "", 0, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", resp.StatusCode, nil
	}

	var cr chatResponse
	if err := json.Unmarshal(data, &cr); err != nil || len(cr.Choices) == 0 {
		return "", 0, domain.NewAppError(domain.CodeInvalidAIResponse, "malformed chat-completion envelope")
	}
	return cr.Choices[0].Message.Content, 0, nil
}

// extractFirstJSON scans text for the first balanced top-level JSON
// object or array and returns it verbatim (§4.3 "the gateway extracts
// the first JSON object or array").
func extractFirstJSON(text string) (string, bool) {
	start := -1
	var open, close byte
	for i := 0; i < len(text); i++ {
		if text[i] == '{' || text[i] == '[' {
			start = i
			open = text[i]
			if open == '{' {
				close = '}'
			} else {
				close = ']'
			}
			break
		}
	}
	if start == -1 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
