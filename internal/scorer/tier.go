package scorer

import (
	"encoding/json"
	"fmt"

	"github.com/clawinfra/clawrouter/internal/config"
)

// Tier is the complexity tier assigned to a request. This is distinct
// from config.ProviderTier, which is a provider's pricing category.
type Tier int

const (
	TierSimple    Tier = iota // greetings, small factual questions
	TierMedium                // summarisation, light code, moderate Q&A
	TierComplex               // deep analysis, complex code, multi-step work
	TierReasoning             // proofs, logic chains, planning
)

var tierNames = [...]string{"Simple", "Medium", "Complex", "Reasoning"}
var tierWire = [...]string{"simple", "medium", "complex", "reasoning"}

func (t Tier) String() string {
	if int(t) < len(tierNames) {
		return tierNames[t]
	}
	return "Unknown"
}

// Wire returns the lowercase form used in config documents and logs.
func (t Tier) Wire() string {
	if int(t) < len(tierWire) {
		return tierWire[t]
	}
	return "unknown"
}

// MarshalJSON implements json.Marshaler using the wire form.
func (t Tier) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Wire())
}

// UnmarshalJSON implements json.Unmarshaler. Accepts wire names,
// UI names, and integers.
func (t *Tier) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var i int
		if err2 := json.Unmarshal(data, &i); err2 != nil {
			return err
		}
		*t = Tier(i)
		return nil
	}
	switch s {
	case "simple", "Simple":
		*t = TierSimple
	case "medium", "Medium":
		*t = TierMedium
	case "complex", "Complex":
		*t = TierComplex
	case "reasoning", "Reasoning":
		*t = TierReasoning
	default:
		return fmt.Errorf("scorer: unknown tier %q", s)
	}
	return nil
}

// SelectTier maps a clamped score value to its tier. Boundary values
// belong to the lower tier, so re-deriving the tier from a Score's value
// always reproduces Score.Tier (absent the force rule).
func SelectTier(value float64, b config.TierBoundaries) Tier {
	switch {
	case value <= b.SimpleUpper:
		return TierSimple
	case value <= b.MediumUpper:
		return TierMedium
	case value <= b.ComplexUpper:
		return TierComplex
	default:
		return TierReasoning
	}
}
