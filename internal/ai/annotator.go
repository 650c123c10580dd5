package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/unibox/internal/metrics"
	"github.com/nhle/unibox/internal/model"
)

// FallbackReply is returned by DraftReply when the model cannot be used.
const FallbackReply = "Thank you for your email. We have received your message and will respond shortly."

var (
	analyzeParams  = Request{Temperature: 0.3, MaxTokens: 500}
	mentionsParams = Request{Temperature: 0.2, MaxTokens: 200}
	replyParams    = Request{Temperature: 0.7, MaxTokens: 800}
)

var (
	errNoObject     = errors.New("no JSON object in completion")
	errNoArray      = errors.New("no JSON array in completion")
	errMissingField = errors.New("annotation is missing a field")
	errEmptyReply   = errors.New("completion is empty")
)

// Annotator runs the three AI operations. None of them return errors:
// failures are logged and replaced with a fixed fallback.
type Annotator struct {
	completer Completer
	logger    *zap.Logger
}

// NewAnnotator creates an Annotator. A nil completer makes every
// operation fall back immediately.
func NewAnnotator(c Completer, logger *zap.Logger) *Annotator {
	return &Annotator{
		completer: c,
		logger:    logger.With(zap.String("component", "ai")),
	}
}

// Annotate classifies a message. It returns model.DefaultAnnotation when
// the model fails or its output cannot be parsed.
func (a *Annotator) Annotate(ctx context.Context, subject, body string) model.Annotation {
	out, err := a.complete(ctx, "annotate", analyzePrompt(subject, body), analyzeParams)
	if err == nil {
		var ann model.Annotation
		if ann, err = parseAnnotation(out); err == nil {
			return ann
		}
	}

	a.fallback("annotate", err)
	return model.DefaultAnnotation()
}

// DetectMentions returns the catalog entries the model says are referenced
// in body, in catalog order. Names must match exactly.
func (a *Annotator) DetectMentions(
	ctx context.Context,
	body string,
	catalog []model.CatalogEntry,
) []model.CatalogEntry {
	if len(catalog) == 0 {
		return nil
	}

	out, err := a.complete(ctx, "mentions", mentionsPrompt(body, catalog), mentionsParams)
	if err == nil {
		var names []string
		if names, err = parseNames(out); err == nil {
			return filterByName(catalog, names)
		}
	}

	a.fallback("mentions", err)
	return nil
}

// DraftReply composes a reply grounded on the mentioned entries. It
// always returns non-empty text.
func (a *Annotator) DraftReply(
	ctx context.Context,
	subject, body string,
	mentioned []model.CatalogEntry,
) string {
	out, err := a.complete(ctx, "reply", replyPrompt(subject, body, mentioned), replyParams)
	if err == nil {
		if text := strings.TrimSpace(out); text != "" {
			return text
		}
		err = errEmptyReply
	}

	a.fallback("reply", err)
	return FallbackReply
}

func (a *Annotator) complete(ctx context.Context, op, prompt string, params Request) (string, error) {
	if a.completer == nil {
		return "", ErrNoAPIKey
	}

	params.Prompt = prompt
	start := time.Now()
	out, err := a.completer.Complete(ctx, params)

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RecordAICall(op, status, time.Since(start))
	return out, err
}

func (a *Annotator) fallback(op string, err error) {
	metrics.RecordAIFallback(op)
	a.logger.Warn("ai operation failed; using fallback",
		zap.String("operation", op),
		zap.Error(err),
	)
}

type rawAnnotation struct {
	Intent    *string `json:"intent"`
	Sentiment *string `json:"sentiment"`
	Priority  *string `json:"priority"`
	Summary   *string `json:"summary"`
}

// parseAnnotation reads the first balanced object in out. Missing or
// empty keys fail the parse; an unknown priority becomes medium.
func parseAnnotation(out string) (model.Annotation, error) {
	span, ok := firstBalanced(out, '{', '}')
	if !ok {
		return model.Annotation{}, errNoObject
	}

	var raw rawAnnotation
	if err := json.Unmarshal([]byte(span), &raw); err != nil {
		return model.Annotation{}, fmt.Errorf("parsing annotation: %w", err)
	}

	for _, field := range []*string{raw.Intent, raw.Sentiment, raw.Priority, raw.Summary} {
		if field == nil || strings.TrimSpace(*field) == "" {
			return model.Annotation{}, errMissingField
		}
	}

	priority, ok := model.ParsePriority(*raw.Priority)
	if !ok {
		priority = model.PriorityMedium
	}

	return model.Annotation{
		Intent:    strings.TrimSpace(*raw.Intent),
		Sentiment: strings.ToLower(strings.TrimSpace(*raw.Sentiment)),
		Priority:  priority,
		Summary:   strings.TrimSpace(*raw.Summary),
	}, nil
}

func parseNames(out string) ([]string, error) {
	span, ok := firstBalanced(out, '[', ']')
	if !ok {
		return nil, errNoArray
	}

	var names []string
	if err := json.Unmarshal([]byte(span), &names); err != nil {
		return nil, fmt.Errorf("parsing mentions: %w", err)
	}
	return names, nil
}

func filterByName(catalog []model.CatalogEntry, names []string) []model.CatalogEntry {
	want := make(map[string]struct{}, len(names))
	for _, n := range names {
		want[n] = struct{}{}
	}

	var matched []model.CatalogEntry
	for _, entry := range catalog {
		if _, ok := want[entry.Name]; ok {
			matched = append(matched, entry)
		}
	}
	return matched
}

// firstBalanced returns the first span of s that starts with opening and
// ends at its matching closing bracket. Brackets inside JSON strings are ignored.
func firstBalanced(s string, opening, closing byte) (string, bool) {
	start := strings.IndexByte(s, opening)
	if start < 0 {
		return "", false
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case opening:
			depth++
		case closing:
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
