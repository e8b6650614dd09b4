package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/khchop/kickscore/internal/domain"
	"github.com/khchop/kickscore/internal/llm/parse"
	"github.com/khchop/kickscore/internal/observability"
	"github.com/khchop/kickscore/internal/platform/envutil"
	"github.com/khchop/kickscore/internal/platform/logger"
)

// backendConfig resolves endpoint and auth per backend family. Every backend
// in the catalog speaks the OpenAI chat completions dialect.
type backendConfig struct {
	baseURL string
	apiKey  string
}

func resolveBackend(backend string) (backendConfig, error) {
	var cfg backendConfig
	switch backend {
	case domain.BackendOpenAI:
		cfg.baseURL = envutil.String("OPENAI_BASE_URL", "https://api.openai.com/v1")
		cfg.apiKey = envutil.String("OPENAI_API_KEY", "")
	case domain.BackendOpenRouter:
		cfg.baseURL = envutil.String("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1")
		cfg.apiKey = envutil.String("OPENROUTER_API_KEY", "")
	case domain.BackendDeepSeek:
		cfg.baseURL = envutil.String("DEEPSEEK_BASE_URL", "https://api.deepseek.com/v1")
		cfg.apiKey = envutil.String("DEEPSEEK_API_KEY", "")
	case domain.BackendMistral:
		cfg.baseURL = envutil.String("MISTRAL_BASE_URL", "https://api.mistral.ai/v1")
		cfg.apiKey = envutil.String("MISTRAL_API_KEY", "")
	default:
		return cfg, fmt.Errorf("unknown backend %q", backend)
	}
	if cfg.apiKey == "" {
		return cfg, fmt.Errorf("missing API key for backend %q", backend)
	}
	cfg.baseURL = strings.TrimRight(cfg.baseURL, "/")
	return cfg, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type httpError struct {
	StatusCode int
	Body       string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("upstream http %d: %s", e.StatusCode, e.Body)
}

// ChatProvider is one catalog model bound to an OpenAI-compatible endpoint.
// It owns the model's quirk policy: timeout class, prompt variant and
// response handler all resolve here, not at call sites.
type ChatProvider struct {
	log        *logger.Logger
	name       string
	backend    string
	upstream   string
	handler    string
	timeout    time.Duration
	cfg        backendConfig
	httpClient *http.Client
	maxRetries int
}

// NewChatProvider builds a provider for one catalog model. The http client
// carries no timeout of its own; every call's deadline comes from the
// per-model context so a timed-out call frees its worker slot immediately.
func NewChatProvider(log *logger.Logger, m *domain.Model, timeout time.Duration) (*ChatProvider, error) {
	cfg, err := resolveBackend(m.Backend)
	if err != nil {
		return nil, err
	}
	return &ChatProvider{
		log:        log.With("provider", m.Name),
		name:       m.Name,
		backend:    m.Backend,
		upstream:   m.UpstreamModel,
		handler:    m.ResponseHandler,
		timeout:    timeout,
		cfg:        cfg,
		httpClient: &http.Client{},
		maxRetries: envutil.Int("LLM_MAX_RETRIES", 2),
	}, nil
}

func (p *ChatProvider) Name() string { return p.name }

func (p *ChatProvider) Predict(ctx context.Context, req PredictRequest) (*PredictResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	raw, usage, err := p.complete(ctx, req.Prompt)
	observability.ObserveLLMRequest(ctx, p.name, p.backend, time.Since(start), usage.PromptTokens, usage.CompletionTokens, err == nil)
	if err != nil {
		return nil, err
	}

	cleaned := ApplyResponseHandler(p.handler, raw)
	if parse.IsEmpty(cleaned) {
		return nil, NewCallError(FailureEmptyResponse, p.name, nil)
	}
	if p.handler != domain.ResponseHandlerStripThinking && parse.HasThinkingTags(cleaned) {
		return nil, NewCallError(FailureThinkingLeak, p.name, nil)
	}
	if parse.LooksNonLatin(cleaned) {
		return nil, NewCallError(FailureLanguage, p.name, nil)
	}

	scores, strategy, ok := parse.Predictions(cleaned, req.MatchIDs)
	if !ok {
		return nil, NewCallError(FailureParse, p.name, fmt.Errorf("no valid scores in %d bytes", len(raw)))
	}

	out := &PredictResult{
		Predictions: make(map[string]Score, len(scores)),
		RawResponse: raw,
		Model:       p.name,
		Strategy:    strategy,
	}
	for _, s := range scores {
		out.Predictions[s.MatchID] = Score{Home: s.Home, Away: s.Away}
	}
	return out, nil
}

type tokenUsage struct {
	PromptTokens     int
	CompletionTokens int
}

func (p *ChatProvider) complete(ctx context.Context, prompt string) (string, tokenUsage, error) {
	body := chatRequest{
		Model: p.upstream,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
	}

	backoff := 1 * time.Second
	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return "", tokenUsage{}, ClassifyTransport(p.name, ctx.Err())
		}

		raw, herr := p.doOnce(ctx, body)
		if herr == nil {
			var resp chatResponse
			if err := json.Unmarshal(raw, &resp); err != nil {
				return "", tokenUsage{}, NewCallError(FailureAPIError, p.name, err)
			}
			if len(resp.Choices) == 0 {
				return "", tokenUsage{}, NewCallError(FailureEmptyResponse, p.name, nil)
			}
			usage := tokenUsage{
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
			}
			return resp.Choices[0].Message.Content, usage, nil
		}

		var he *httpError
		retryable := false
		if errors.As(herr, &he) {
			retryable = he.StatusCode == 429 || he.StatusCode >= 500
			lastErr = ClassifyStatus(p.name, he.StatusCode, he)
		} else {
			lastErr = ClassifyTransport(p.name, herr)
			retryable = KindOf(lastErr) != FailureTimeout
		}
		if !retryable || attempt == p.maxRetries {
			return "", tokenUsage{}, lastErr
		}

		p.log.Warn("provider call failed, retrying",
			"attempt", attempt+1,
			"backoff", backoff.String(),
			"error", herr,
		)
		select {
		case <-ctx.Done():
			return "", tokenUsage{}, ClassifyTransport(p.name, ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return "", tokenUsage{}, lastErr
}

func (p *ChatProvider) doOnce(ctx context.Context, body any) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.baseURL+"/chat/completions", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &httpError{StatusCode: resp.StatusCode, Body: truncate(string(raw), 512)}
	}
	return raw, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
