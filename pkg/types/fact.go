package types

import (
	"fmt"
	"time"
)

// Fact is a discrete piece of knowledge, globally shared across entities.
// The same fact (e.g. Location:Paris) may be attached to many entities under
// different verbs.
type Fact struct {
	Name   string `json:"name" mapstructure:"name"`
	Type   string `json:"type" mapstructure:"type"`
	FactID string `json:"fact_id" mapstructure:"fact_id"`
}

// FactID computes the deterministic synthetic key for a (type, name) pair.
// It is a pure function: equal inputs always yield the same id.
func FactID(factType, name string) string {
	return factType + ":" + name
}

// NewFact creates a Fact with its id computed from (factType, name).
// The id is immutable thereafter.
func NewFact(name, factType string) Fact {
	return Fact{
		Name:   name,
		Type:   factType,
		FactID: FactID(factType, name),
	}
}

// Validate checks the fact's fields and its key invariant.
func (f *Fact) Validate() error {
	if f.Name == "" {
		return ErrEmptyFactName
	}
	if f.Type == "" {
		return ErrEmptyFactType
	}
	if f.FactID != "" && f.FactID != FactID(f.Type, f.Name) {
		return fmt.Errorf("%w: fact id %q does not match computed key %q",
			ErrIdempotencyViolation, f.FactID, FactID(f.Type, f.Name))
	}
	return nil
}

// ID returns the fact's synthetic key, computing it when unset.
func (f Fact) ID() string {
	if f.FactID != "" {
		return f.FactID
	}
	return FactID(f.Type, f.Name)
}

// Source is a provenance record backing one or more facts derived from the
// same text.
type Source struct {
	ID        string    `json:"id" mapstructure:"id"`
	Content   string    `json:"content" mapstructure:"content"`
	Timestamp time.Time `json:"timestamp" mapstructure:"timestamp"`
}

// Validate checks the source's required fields.
func (s *Source) Validate() error {
	if s.Content == "" {
		return ErrEmptyContent
	}
	return nil
}

// ExtractedFact is a candidate fact produced by a FactExtractor, before it is
// merged into the graph.
type ExtractedFact struct {
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	Verb       string  `json:"verb"`
	Confidence float64 `json:"confidence_score"`
}

// Validate checks the candidate's fields.
func (e *ExtractedFact) Validate() error {
	if e.Name == "" {
		return ErrEmptyFactName
	}
	if e.Type == "" {
		return ErrEmptyFactType
	}
	if e.Verb == "" {
		return ErrEmptyVerb
	}
	if e.Confidence < 0 || e.Confidence > 1 {
		return ErrConfidenceOutOfRange
	}
	return nil
}

// Fact converts the candidate into a keyed Fact.
func (e *ExtractedFact) Fact() Fact {
	return NewFact(e.Name, e.Type)
}
