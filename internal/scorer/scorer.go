package scorer

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/clawinfra/clawrouter/internal/config"
)

// Dimension names — the keys of ScorerConfig.Weights and Score.Features.
const (
	DimTokenCount          = "token_count"
	DimCodePresence        = "code_presence"
	DimReasoningMarkers    = "reasoning_markers"
	DimTechnicalTerms      = "technical_terms"
	DimCreativeMarkers     = "creative_markers"
	DimSimpleIndicators    = "simple_indicators"
	DimMultiStepPatterns   = "multi_step_patterns"
	DimQuestionComplexity  = "question_complexity"
	DimImperativeVerbs     = "imperative_verbs"
	DimConstraintCount     = "constraint_count"
	DimOutputFormat        = "output_format"
	DimReferenceComplexity = "reference_complexity"
	DimNegationComplexity  = "negation_complexity"
	DimDomainSpecificity   = "domain_specificity"
	DimAgenticTask         = "agentic_task"
)

// Score is the scorer's full output for one request.
type Score struct {
	Value      float64            `json:"value"`      // clamped to [0,1]
	Tier       Tier               `json:"tier"`       // derived from Value (plus force rule)
	Confidence float64            `json:"confidence"` // [0,1], distance to nearest boundary
	Features   map[string]float64 `json:"features"`   // raw per-dimension values
}

// dimension binds a name to its feature function. The slice fixes
// evaluation order so float summation is deterministic.
type dimension struct {
	name string
	eval func(text string, words []string, cfg *config.ScorerConfig) float64
}

var dimensions = []dimension{
	{DimTokenCount, func(t string, _ []string, c *config.ScorerConfig) float64 { return scoreTokenCount(t, c.TokenThresholds) }},
	{DimCodePresence, func(t string, _ []string, _ *config.ScorerConfig) float64 { return scoreCodePresence(t) }},
	{DimReasoningMarkers, keywordDim(reasoningKeywords)},
	{DimTechnicalTerms, keywordDim(technicalKeywords)},
	{DimCreativeMarkers, keywordDim(creativeKeywords)},
	{DimSimpleIndicators, func(t string, w []string, _ *config.ScorerConfig) float64 { return scoreSimpleIndicators(t, w) }},
	{DimMultiStepPatterns, func(t string, _ []string, _ *config.ScorerConfig) float64 { return scoreMultiStep(t) }},
	{DimQuestionComplexity, func(t string, _ []string, _ *config.ScorerConfig) float64 { return scoreQuestionComplexity(t) }},
	{DimImperativeVerbs, keywordDim(imperativeKeywords)},
	{DimConstraintCount, keywordDim(constraintKeywords)},
	{DimOutputFormat, keywordDim(outputFormatKeywords)},
	{DimReferenceComplexity, keywordDim(referenceKeywords)},
	{DimNegationComplexity, keywordDim(negationKeywords)},
	{DimDomainSpecificity, keywordDim(domainKeywords)},
	{DimAgenticTask, func(t string, _ []string, _ *config.ScorerConfig) float64 { return scoreAgenticTask(t) }},
}

// Evaluate scores the request text. maxTokens is the request's
// max_tokens parameter, or 0 when absent. The function is pure: no I/O,
// no mutation, bitwise-identical output for identical input.
func Evaluate(text string, maxTokens int, cfg config.ScorerConfig) Score {
	if !cfg.Enabled {
		return Score{Tier: TierSimple, Features: map[string]float64{}}
	}

	lower := strings.ToLower(text)
	words := strings.Fields(lower)
	weights := effectiveWeights(cfg.Weights)

	features := make(map[string]float64, len(dimensions))
	var raw float64
	for _, d := range dimensions {
		v := d.eval(lower, words, &cfg)
		features[d.name] = v
		w := weights[d.name]
		if d.name == DimSimpleIndicators {
			// Stored positive, subtracted: simple indicators push the
			// score down.
			raw -= v * w
			continue
		}
		raw += v * w
	}

	value := clamp01(raw)
	tier := SelectTier(value, cfg.TierBoundaries)

	if maxTokens > 0 && cfg.MaxTokensForceComplex > 0 && maxTokens >= cfg.MaxTokensForceComplex && tier < TierComplex {
		tier = TierComplex
	}

	return Score{
		Value:      value,
		Tier:       tier,
		Confidence: confidence(value, cfg.TierBoundaries, cfg.ConfidenceSteepness),
		Features:   features,
	}
}

// effectiveWeights merges configured overrides over the stock weights,
// ignoring unknown keys.
func effectiveWeights(overrides map[string]float64) map[string]float64 {
	defaults := config.DefaultScorerConfig().Weights
	w := make(map[string]float64, len(defaults))
	for k, v := range defaults {
		w[k] = v
	}
	for k, v := range overrides {
		if _, ok := w[k]; ok {
			w[k] = v
		}
	}
	return w
}

// confidence is a logistic in the distance from value to the nearest
// tier boundary: scores far from every boundary are confident, scores at
// a boundary sit at 0.5.
func confidence(value float64, b config.TierBoundaries, steepness float64) float64 {
	minDist := math.MaxFloat64
	for _, bound := range [3]float64{b.SimpleUpper, b.MediumUpper, b.ComplexUpper} {
		if d := math.Abs(value - bound); d < minDist {
			minDist = d
		}
	}
	return clamp01(1.0 / (1.0 + math.Exp(-steepness*minDist)))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ── Feature functions ───────────────────────────────────────────────────────

// keywordDim builds the standard match ladder over a keyword list:
// 0 → 0.0, 1 → 0.3, 2 → 0.6, 3+ → 1.0.
func keywordDim(keywords []string) func(string, []string, *config.ScorerConfig) float64 {
	return func(lower string, _ []string, _ *config.ScorerConfig) float64 {
		return matchLadder(countKeywords(lower, keywords))
	}
}

func countKeywords(lower string, keywords []string) int {
	count := 0
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			count++
		}
	}
	return count
}

func matchLadder(count int) float64 {
	switch {
	case count == 0:
		return 0.0
	case count == 1:
		return 0.3
	case count == 2:
		return 0.6
	default:
		return 1.0
	}
}

// scoreTokenCount is the only signed feature: −1 below short_upper,
// +1 above long_lower, linear between. Tokens are approximated as
// runes/4.
func scoreTokenCount(text string, th config.TokenThresholds) float64 {
	tokens := float64(utf8.RuneCountInString(text)) / 4.0
	short, long := float64(th.ShortUpper), float64(th.LongLower)
	switch {
	case tokens <= short:
		return -1.0
	case tokens >= long:
		return 1.0
	default:
		return -1.0 + 2.0*(tokens-short)/(long-short)
	}
}

// scoreCodePresence weighs code fences heavily, then keyword density.
func scoreCodePresence(lower string) float64 {
	score := 0.0
	fences := strings.Count(lower, "```") / 2
	score += float64(fences) * 0.4
	score += float64(countKeywords(lower, codeKeywords)) * 0.08
	return clamp01(score)
}

// scoreSimpleIndicators combines small-talk patterns with prompt length.
func scoreSimpleIndicators(lower string, words []string) float64 {
	score := matchLadder(countKeywords(lower, simpleKeywords))
	if len(words) <= 5 {
		score += 0.5
	} else if len(words) <= 10 {
		score += 0.2
	}
	return clamp01(score)
}

// scoreMultiStep detects enumerations and sequencing connectives.
func scoreMultiStep(lower string) float64 {
	hits := 0
	if reMultiStep.MatchString(lower) {
		hits++
	}
	if len(reNumberedList.FindAllString(lower, 2)) >= 2 {
		hits++
	}
	if reConnective.MatchString(lower) {
		hits++
	}
	switch {
	case hits == 0:
		return 0.0
	case hits == 1:
		return 0.5
	default:
		return 1.0
	}
}

// scoreQuestionComplexity triggers on more than one question mark.
func scoreQuestionComplexity(lower string) float64 {
	q := strings.Count(lower, "?")
	if q <= 1 {
		return 0.0
	}
	return clamp01(float64(q-1) * 0.3)
}

// scoreAgenticTask uses a coarser ladder than the keyword dims: one or
// two cues are weak evidence, four or more are near-certain.
func scoreAgenticTask(lower string) float64 {
	count := countKeywords(lower, agenticKeywords)
	switch {
	case count == 0:
		return 0.0
	case count <= 2:
		return 0.2
	case count == 3:
		return 0.6
	default:
		return 1.0
	}
}
