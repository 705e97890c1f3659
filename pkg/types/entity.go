package types

import "time"

// IdentifierType enumerates the supported external key kinds.
type IdentifierType string

const (
	IdentifierEmail    IdentifierType = "email"
	IdentifierPhone    IdentifierType = "phone"
	IdentifierUsername IdentifierType = "username"
	IdentifierUUID     IdentifierType = "uuid"
	IdentifierSocialID IdentifierType = "social_id"
)

// Valid reports whether t is one of the supported identifier types.
func (t IdentifierType) Valid() bool {
	switch t {
	case IdentifierEmail, IdentifierPhone, IdentifierUsername, IdentifierUUID, IdentifierSocialID:
		return true
	}
	return false
}

// Entity is the canonical subject node. Created once per distinct external
// identifier; immutable except Metadata.
type Entity struct {
	ID        string            `json:"id" mapstructure:"id"`
	CreatedAt time.Time         `json:"created_at" mapstructure:"created_at"`
	Metadata  map[string]string `json:"metadata,omitempty" mapstructure:"metadata"`
}

// Identifier is an external key pointing at an Entity. Its global key is
// (Value, Type); the node may be owned by multiple entities simultaneously.
type Identifier struct {
	Value string         `json:"value" mapstructure:"value"`
	Type  IdentifierType `json:"type" mapstructure:"type"`
}

// Validate checks the identifier's fields.
func (i *Identifier) Validate() error {
	if i.Value == "" {
		return ErrEmptyIdentifier
	}
	if !i.Type.Valid() {
		return ErrInvalidIdentifier
	}
	return nil
}

// Key returns the identifier's global key.
func (i *Identifier) Key() string {
	return string(i.Type) + ":" + i.Value
}

// HasIdentifier is the ownership edge between an Entity and an Identifier.
type HasIdentifier struct {
	EntityID  string    `json:"entity_id" mapstructure:"entity_id"`
	IsPrimary bool      `json:"is_primary" mapstructure:"is_primary"`
	CreatedAt time.Time `json:"created_at" mapstructure:"created_at"`
}

// HasFact is the attachment edge between an Entity and a Fact. The edge is
// uniquely identified by (EntityID, FactID, Verb): the same fact may be
// attached to the same entity twice only under different verbs.
type HasFact struct {
	EntityID   string    `json:"entity_id" mapstructure:"entity_id"`
	FactID     string    `json:"fact_id" mapstructure:"fact_id"`
	Verb       string    `json:"verb" mapstructure:"verb"`
	Confidence float64   `json:"confidence" mapstructure:"confidence"`
	CreatedAt  time.Time `json:"created_at" mapstructure:"created_at"`
}

// Key returns the edge's unique key.
func (r *HasFact) Key() string {
	return r.EntityID + "|" + r.FactID + "|" + r.Verb
}

// DerivedFrom is the provenance edge between a Fact and its Source.
type DerivedFrom struct {
	FactID   string `json:"fact_id" mapstructure:"fact_id"`
	SourceID string `json:"source_id" mapstructure:"source_id"`
}

// FactWithSource pairs a fact with its attachment edge and optional provenance.
type FactWithSource struct {
	Fact         Fact    `json:"fact"`
	Source       *Source `json:"source,omitempty"`
	Relationship HasFact `json:"relationship"`
}

// FactAttachment is the result of attaching a fact to an entity.
type FactAttachment struct {
	Fact        Fact        `json:"fact"`
	Source      Source      `json:"source"`
	HasFact     HasFact     `json:"has_fact"`
	DerivedFrom DerivedFrom `json:"derived_from"`
}

// EntityView is the full read model for one entity: the node, its primary
// identifier with the ownership edge, and every attached fact with provenance.
type EntityView struct {
	Entity       Entity           `json:"entity"`
	Identifier   Identifier       `json:"identifier"`
	Relationship HasIdentifier    `json:"relationship"`
	Facts        []FactWithSource `json:"facts"`
}

// HasFactID reports whether the view contains a fact with the given id.
func (v *EntityView) HasFactID(factID string) bool {
	for i := range v.Facts {
		if v.Facts[i].Fact.ID() == factID {
			return true
		}
	}
	return false
}

// FactIDs returns the set of fact ids present in the view.
func (v *EntityView) FactIDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(v.Facts))
	for i := range v.Facts {
		ids[v.Facts[i].Fact.ID()] = struct{}{}
	}
	return ids
}
