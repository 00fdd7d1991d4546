// internal/pipeline/generation/stream-completion/handler.go
package streamcompletion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	commonerrors "github.com/sbgadvisor/WellNavigator2/internal/common/errors"
	"github.com/sbgadvisor/WellNavigator2/internal/common/logger"
	"github.com/sbgadvisor/WellNavigator2/internal/common/metrics"
	"github.com/sbgadvisor/WellNavigator2/internal/common/tokens"

	openai "github.com/sashabaranov/go-openai"
)

const (
	TaskType = "stream-completion"
)

var (
	ErrGenerationUnavailable = errors.New("GENERATION_UNAVAILABLE")
	ErrGenerationTimeout     = errors.New("GENERATION_TIMEOUT")
	ErrGenerationFailed      = errors.New("GENERATION_FAILED")
)

type Handler struct {
	config     *Config
	client     *openai.Client
	counter    *tokens.Counter
	errHandler *commonerrors.ErrorHandler
	logger     logger.Logger
}

// NewHandler builds the generation boundary. Without an API key the handler
// is unavailable and every call returns a fixed message with zero usage.
func NewHandler(config *Config, counter *tokens.Counter, log logger.Logger) *Handler {
	if config == nil {
		config = LoadConfig()
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	if counter == nil {
		counter = tokens.NewCounter()
	}

	var client *openai.Client
	if config.APIKey != "" {
		cc := openai.DefaultConfig(config.APIKey)
		if config.BaseURL != "" {
			cc.BaseURL = config.BaseURL
		}
		client = openai.NewClientWithConfig(cc)
	}

	log = log.With(map[string]interface{}{
		"taskType": TaskType,
	})
	return &Handler{
		config:     config,
		client:     client,
		counter:    counter,
		errHandler: commonerrors.NewErrorHandler(log),
		logger:     log,
	}
}

// Available reports whether an API key is configured.
func (h *Handler) Available() bool {
	return h.client != nil
}

// Stream starts a streaming generation. The returned Stream always ends with
// exactly one Result whose Usage is the whole accounting for the call.
func (h *Handler) Stream(ctx context.Context, req Request) *Stream {
	ctx, cancel := context.WithCancel(ctx)
	s := newStream(cancel)
	go h.run(ctx, s, h.withDefaults(req))
	return s
}

// Complete runs a generation to the end without consuming fragments.
func (h *Handler) Complete(ctx context.Context, req Request) Result {
	return h.Stream(ctx, req).Result()
}

func (h *Handler) withDefaults(req Request) Request {
	if req.Model == "" {
		req.Model = h.config.Model
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = h.config.MaxTokens
	}
	return req
}

func (h *Handler) run(parent context.Context, s *Stream, req Request) {
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
	}()

	if h.client == nil {
		metrics.StageFallbacks.WithLabelValues(TaskType, "unavailable").Inc()
		s.send(parent, commonerrors.MsgGenerationUnavailable)
		s.finish(Result{
			Text:  commonerrors.MsgGenerationUnavailable,
			Usage: Usage{Model: req.Model},
			Err:   ErrGenerationUnavailable,
		})
		return
	}

	ctx, cancel := context.WithTimeout(parent, h.config.Timeout)
	defer cancel()

	stream, err := h.open(ctx, req)
	if err != nil {
		if parent.Err() != nil {
			s.finish(h.cancelled(req, "", start))
			return
		}
		s.finish(h.failed(req, err, start))
		return
	}
	defer stream.Close()

	var (
		text          strings.Builder
		providerUsage *openai.Usage
	)
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if parent.Err() != nil {
				s.finish(h.cancelled(req, text.String(), start))
				return
			}
			if ctx.Err() == context.DeadlineExceeded {
				err = ErrGenerationTimeout
			} else {
				err = fmt.Errorf("%w: %v", ErrGenerationFailed, err)
			}
			s.finish(h.failed(req, err, start))
			return
		}

		if resp.Usage != nil {
			providerUsage = resp.Usage
		}
		for _, choice := range resp.Choices {
			if choice.Delta.Content == "" {
				continue
			}
			text.WriteString(choice.Delta.Content)
			if !s.send(ctx, choice.Delta.Content) {
				if parent.Err() != nil {
					s.finish(h.cancelled(req, text.String(), start))
				} else {
					s.finish(h.failed(req, ErrGenerationTimeout, start))
				}
				return
			}
		}
	}

	usage := h.account(req, text.String(), providerUsage, start)
	h.logger.Info("generation completed", map[string]interface{}{
		"model":     usage.Model,
		"tokensIn":  usage.TokensIn,
		"tokensOut": usage.TokensOut,
		"estimated": usage.Estimated,
		"latency":   usage.Latency,
	})
	s.finish(Result{Text: text.String(), Usage: usage})
}

// open starts the provider stream, retrying transient failures with
// exponential backoff. Nothing has been delivered to the caller yet.
func (h *Handler) open(ctx context.Context, req Request) (*openai.ChatCompletionStream, error) {
	apiReq := openai.ChatCompletionRequest{
		Model:         req.Model,
		Messages:      toOpenAIMessages(req),
		Temperature:   temperature(req.Temperature),
		MaxTokens:     req.MaxTokens,
		Stream:        true,
		StreamOptions: &openai.StreamOptions{IncludeUsage: true},
	}

	var lastErr error
	for attempt := 0; attempt <= h.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(100*(1<<(attempt-1))) * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ErrGenerationTimeout
			}
		}

		stream, err := h.client.CreateChatCompletionStream(ctx, apiReq)
		if err == nil {
			return stream, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ErrGenerationTimeout
		}
		if !retryable(err) {
			break
		}
		h.logger.Warn("generation request failed, retrying", map[string]interface{}{
			"attempt": attempt + 1,
			"error":   err.Error(),
		})
	}
	return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, lastErr)
}

func (h *Handler) account(req Request, text string, provider *openai.Usage, start time.Time) Usage {
	u := Usage{
		Model:   req.Model,
		Latency: time.Since(start).Seconds(),
	}
	if provider != nil {
		u.TokensIn = provider.PromptTokens
		u.TokensOut = provider.CompletionTokens
	} else {
		u.TokensIn = h.promptTokens(req)
		u.TokensOut = h.counter.Count(text)
		u.Estimated = true
	}
	u.Cost = Cost(u.TokensIn, u.TokensOut, u.Model)

	metrics.Tokens.WithLabelValues("in").Add(float64(u.TokensIn))
	metrics.Tokens.WithLabelValues("out").Add(float64(u.TokensOut))
	metrics.CostUSD.WithLabelValues(u.Model).Add(u.Cost)
	return u
}

// cancelled accounts the output received before the caller stopped the
// stream. A call cancelled before any output records no usage.
func (h *Handler) cancelled(req Request, partial string, start time.Time) Result {
	if partial == "" {
		return Result{
			Usage:     Usage{Model: req.Model, Latency: time.Since(start).Seconds()},
			Cancelled: true,
		}
	}
	usage := h.account(req, partial, nil, start)
	h.logger.Info("generation cancelled", map[string]interface{}{
		"tokensIn":  usage.TokensIn,
		"tokensOut": usage.TokensOut,
	})
	return Result{Text: partial, Usage: usage, Cancelled: true}
}

func (h *Handler) failed(req Request, err error, start time.Time) Result {
	metrics.StageFallbacks.WithLabelValues(TaskType, "error").Inc()
	h.logger.Error("generation failed", map[string]interface{}{
		"model": req.Model,
		"error": err.Error(),
	})
	return Result{
		Text:  h.errHandler.UserMessage(err),
		Usage: Usage{Model: req.Model, Latency: time.Since(start).Seconds()},
		Err:   err,
	}
}

func (h *Handler) promptTokens(req Request) int {
	contents := make([]string, 0, len(req.Messages))
	for _, m := range req.Messages {
		contents = append(contents, m.Content)
	}
	return h.counter.Messages(contents...)
}

func toOpenAIMessages(req Request) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		out = append(out, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	return out
}

// temperature maps 0 to the smallest positive value so it is not dropped
// from the request as an empty field.
func temperature(t float64) float32 {
	if t <= 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}

func retryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return true
}
