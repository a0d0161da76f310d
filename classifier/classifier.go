// Package classifier guesses which of the two message languages suits a
// profile, from its free-text location, by asking a text-completion
// service.
//
// Classification fails open: any answer other than exactly "fr", including
// errors, selects English. Unexpected classifier output never blocks a send.
package classifier

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Tag is a two-letter language tag.
type Tag string

const (
	French  Tag = "fr"
	English Tag = "en"
)

// Completer is the text-completion collaborator.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, prompt string) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Classifier maps a location string to a Tag.
type Classifier struct {
	c      Completer
	policy *bluemonday.Policy
	logger *slog.Logger
}

// New creates a Classifier backed by c.
func New(c Completer, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		c:      c,
		policy: bluemonday.StrictPolicy(),
		logger: logger,
	}
}

// Prompt builds the constrained question sent to the completion service.
func Prompt(location string) string {
	return fmt.Sprintf("Ecris moi juste 'en' ou 'fr' suivant la langue la plus adapté à '%s'", location)
}

// TagFor selects the tag for a raw completion answer. Only the exact
// answer "fr" selects French.
func TagFor(answer string) Tag {
	if answer == string(French) {
		return French
	}
	return English
}

// Classify returns the language tag for location. It never fails: a
// completion error is logged and English is returned.
func (c *Classifier) Classify(ctx context.Context, location string) Tag {
	// Sanitize escapes text; the prompt wants it plain.
	clean := strings.TrimSpace(html.UnescapeString(c.policy.Sanitize(location)))

	answer, err := c.c.Complete(ctx, Prompt(clean))
	if err != nil {
		c.logger.WarnContext(ctx, "classifier: completion failed, defaulting to english",
			"location", clean, "error", err)
		return English
	}

	tag := TagFor(answer)
	c.logger.DebugContext(ctx, "classifier: classified",
		"location", clean, "answer", answer, "tag", tag)
	return tag
}
