package models

// Persona names are fixed; the commentary vendor is asked for exactly
// these three and nothing else.
const (
	PersonaBuffett       = "buffett"
	PersonaDruckenmiller = "druckenmiller"
	PersonaCathie        = "cathie"
)

// PersonaPick is a persona's single new-buy recommendation.
type PersonaPick struct {
	Symbol string `json:"symbol"`
	Reason string `json:"reason"`
}

// PersonaAdvice is one persona's commentary on the current holdings.
type PersonaAdvice struct {
	Advice string       `json:"advice"`
	Action string       `json:"action"`
	Pick   *PersonaPick `json:"pick,omitempty"`
}

// Insight is the cached persona commentary for one scope and day.
// Failed is session-only state: it is never persisted, so a transient
// vendor failure does not poison the stored cache entry.
type Insight struct {
	Date          string         `json:"date"` // canonical YYYY-MM-DD
	Buffett       *PersonaAdvice `json:"buffett,omitempty"`
	Druckenmiller *PersonaAdvice `json:"druckenmiller,omitempty"`
	Cathie        *PersonaAdvice `json:"cathie,omitempty"`
	Failed        bool           `json:"-"`
}

// HasContent reports whether at least one persona produced advice.
func (i *Insight) HasContent() bool {
	if i == nil {
		return false
	}
	return i.Buffett != nil || i.Druckenmiller != nil || i.Cathie != nil
}
