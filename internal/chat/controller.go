// Session controller: the submit state machine.
//
// Each room is either idle or awaiting one completion request. Submit
// resolves the model once, stages the user entry, calls the completion
// backend under a deadline, prices the usage figures, and records the
// finished exchange through the room store's transactional path. Every
// failure leaves the transcript and totals exactly as they were before the
// call.
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/seohwan-dev/go-chatroom-backend/internal/completion"
	"github.com/seohwan-dev/go-chatroom-backend/internal/pricing"
)

// Completer is the completion-client contract consumed by the controller.
type Completer interface {
	Complete(ctx context.Context, endpoint string, req completion.Request) (*completion.Response, error)
}

// Controller orchestrates one submit cycle per room. Safe for concurrent use;
// concurrency within a room is rejected by the in-flight guard, across rooms
// and users it proceeds in parallel.
type Controller struct {
	Sessions *Manager
	Client   Completer

	// Timeout bounds the completion call so a hung backend cannot wedge a
	// room. Values <= 0 default to 60s.
	Timeout time.Duration

	// MaxPromptRunes caps prompt length; <= 0 disables the cap.
	MaxPromptRunes int

	// Defaults applied when a submit omits the corresponding field.
	DefaultModel       string
	DefaultTemperature float64
	DefaultMaxTokens   int
}

// SubmitInput carries one user turn. Model, Temperature, and MaxTokens fall
// back to the controller defaults when unset.
type SubmitInput struct {
	Room        string
	Prompt      string
	Model       string
	Temperature *float64
	MaxTokens   *int
}

// Submit runs one full exchange cycle for the given user and room and
// returns the completed Exchange for the rendering layer.
//
// Failure semantics: validation and not-found errors mutate nothing;
// ErrRequestInFlight leaves the room untouched; ErrCompletionFailed and
// ErrPersistenceFailed roll the transcript back to its pre-submit state.
func (c *Controller) Submit(ctx context.Context, userID string, in SubmitInput) (Exchange, error) {
	tr := otel.Tracer("chat/Controller")
	ctx, span := tr.Start(ctx, "Submit",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("room", in.Room),
		),
	)
	defer span.End()

	sess, err := c.Sessions.Session(userID)
	if err != nil {
		return Exchange{}, err
	}
	rs, err := sess.room(in.Room)
	if err != nil {
		return Exchange{}, err
	}

	// Resolve the model exactly once: pricing and endpoint routing both hang
	// off the catalog entry, and an unknown model must fail before any state
	// is touched.
	modelName := in.Model
	if modelName == "" {
		modelName = c.DefaultModel
	}
	model, err := pricing.Lookup(modelName)
	if err != nil {
		return Exchange{}, err
	}

	prompt := strings.TrimSpace(in.Prompt)
	if prompt == "" {
		return Exchange{}, ErrEmptyMessage
	}
	if c.MaxPromptRunes > 0 && utf8.RuneCountInString(prompt) > c.MaxPromptRunes {
		return Exchange{}, ErrMessageTooLong
	}

	temperature := c.DefaultTemperature
	if in.Temperature != nil {
		temperature = *in.Temperature
	}
	if temperature < 0 || temperature > 2 {
		return Exchange{}, ErrInvalidTemperature
	}

	maxTokens := c.DefaultMaxTokens
	if in.MaxTokens != nil {
		maxTokens = *in.MaxTokens
	}
	if maxTokens <= 0 {
		return Exchange{}, ErrInvalidMaxTokens
	}

	// Idle -> AwaitingCompletion; a second submit for the same room is
	// rejected until this one finishes.
	if err := rs.begin(); err != nil {
		return Exchange{}, err
	}
	defer rs.end()

	entries := rs.stageUser(prompt)
	payload := make([]completion.Message, len(entries))
	for i, e := range entries {
		payload[i] = completion.Message{Role: e.Role, Content: e.Content}
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := c.Client.Complete(callCtx, model.Endpoint, completion.Request{
		Model:       model.Name,
		Message:     payload,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		rs.unstage()
		completionFailures.WithLabelValues(model.Name).Inc()
		return Exchange{}, fmt.Errorf("%w: %v", ErrCompletionFailed, err)
	}

	ex := Exchange{
		Room:             in.Room,
		UserMessage:      prompt,
		AssistantMessage: resp.Message,
		ModelName:        model.Name,
		TotalTokens:      resp.TotalTokens,
		PromptTokens:     resp.PromptTokens,
		CompletionTokens: resp.CompletionTokens,
		Cost:             model.Price(resp.PromptTokens, resp.CompletionTokens, resp.TotalTokens),
	}

	if err := sess.recordExchange(ctx, rs, &ex); err != nil {
		rs.unstage()
		return Exchange{}, err
	}

	observeExchange(model.Name, ex)
	span.SetAttributes(
		attribute.Int("tokens.total", ex.TotalTokens),
		attribute.Float64("cost", ex.Cost),
	)
	return ex, nil
}
