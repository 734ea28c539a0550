// Package reputation labels a source address as clean or abusive using an
// external lookup provider.
//
// Exactly one strategy is active per process. Each strategy issues one
// outbound lookup per call and never returns an error: a provider failure
// maps to the strategy's fallback verdict.
package reputation

import (
	"context"
	"log/slog"

	"github.com/tidwall/gjson"
)

// Verdict is the outcome of a classification.
type Verdict int

const (
	Clean Verdict = iota
	Abusive
)

func (v Verdict) String() string {
	if v == Abusive {
		return "abusive"
	}
	return "clean"
}

// Classifier decides whether a source address may submit.
type Classifier interface {
	Classify(ctx context.Context, address string) Verdict
}

// rule turns a provider document into a verdict. A non-nil error marks the
// document as unusable and triggers the fallback verdict.
type rule func(doc gjson.Result) (Verdict, error)

// LookupClassifier runs one provider lookup and applies a strategy rule.
type LookupClassifier struct {
	strategy string
	lookup   *lookup
	rule     rule
	fallback Verdict
}

// Strategy returns the configured strategy name.
func (c *LookupClassifier) Strategy() string {
	return c.strategy
}

// Fallback returns the verdict used when the provider fails.
func (c *LookupClassifier) Fallback() Verdict {
	return c.fallback
}

// Classify implements Classifier.
func (c *LookupClassifier) Classify(ctx context.Context, address string) Verdict {
	doc, err := c.lookup.fetch(ctx, address)
	if err == nil {
		var verdict Verdict
		if verdict, err = c.rule(doc); err == nil {
			return verdict
		}
	}

	slog.Warn("Reputation lookup failed, using fallback verdict",
		"strategy", c.strategy,
		"address", address,
		"fallback", c.fallback.String(),
		"error", err)
	return c.fallback
}

// AllowAll classifies every address as clean without a lookup.
type AllowAll struct{}

// Classify implements Classifier.
func (AllowAll) Classify(context.Context, string) Verdict {
	return Clean
}
