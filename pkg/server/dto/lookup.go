package dto

// LookupRequest is the payload for POST /api/v1/lookup. MinScore is a pointer
// so an explicit zero can disable a configured default floor.
type LookupRequest struct {
	Identifier Identifier `json:"identifier" binding:"required"`
	Query      string     `json:"query,omitempty"`
	TopK       int        `json:"top_k,omitempty"`
	MinScore   *float64   `json:"min_score,omitempty"`
	Summarize  bool       `json:"summarize,omitempty"`
	Language   string     `json:"language,omitempty"`
	Debug      bool       `json:"debug,omitempty"`
}

// Validate performs validation on LookupRequest.
func (r *LookupRequest) Validate() error {
	return r.Identifier.Validate()
}

// HitDebug is the wire form of one raw vector hit.
type HitDebug struct {
	FactID   string  `json:"fact_id"`
	Verb     string  `json:"verb"`
	Score    float64 `json:"score"`
	Verified bool    `json:"verified"`
}

// LookupDebug exposes per-phase observations for one lookup. Query, TopK,
// MinScore, and Hits are present only when the request set debug.
type LookupDebug struct {
	Query          string     `json:"query,omitempty"`
	TopK           int        `json:"top_k,omitempty"`
	MinScore       float64    `json:"min_score,omitempty"`
	Hits           []HitDebug `json:"hits,omitempty"`
	GraphFacts     int        `json:"graph_facts"`
	VectorHits     int        `json:"vector_hits"`
	VerifiedHits   int        `json:"verified_hits"`
	DiscardedHits  int        `json:"discarded_hits"`
	VectorDegraded bool       `json:"vector_degraded"`
	GraphDuration  string     `json:"graph_duration"`
	VectorDuration string     `json:"vector_duration"`
	AnswerDuration string     `json:"answer_duration"`
}

// LookupResponse is the answer to one lookup.
type LookupResponse struct {
	EntityID string       `json:"entity_id"`
	Facts    []FactResult `json:"facts"`
	Answer   string       `json:"answer,omitempty"`
	Debug    LookupDebug  `json:"debug"`
}
