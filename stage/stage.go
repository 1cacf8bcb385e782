// Package stage maps workflow stages to model tiers, model names, and
// sampling temperatures.
package stage

import (
	"github.com/randalmurphal/llmkit/model"
)

// Type identifies an LLM-backed workflow stage. Supervision and the
// human gate are pure logic and have no stage type.
type Type string

const (
	// Draft writes and revises the exercise - creative work.
	Draft Type = "draft"

	// SafetyReview screens the draft for harm - needs careful reasoning.
	SafetyReview Type = "safety_review"

	// ClinicalReview scores empathy and quality - standard judgment.
	ClinicalReview Type = "clinical_review"
)

// DefaultModelMap maps stages to default models.
var DefaultModelMap = map[Type]model.ModelName{
	Draft:          model.ModelSonnet,
	SafetyReview:   model.ModelOpus,
	ClinicalReview: model.ModelSonnet,
}

// DefaultTemperatureMap maps stages to sampling temperatures. Drafting
// wants variety; safety screening wants determinism.
var DefaultTemperatureMap = map[Type]float64{
	Draft:          0.7,
	SafetyReview:   0.0,
	ClinicalReview: 0.3,
}

// TierForStage returns the appropriate tier for a stage.
func TierForStage(t Type) model.Tier {
	switch t {
	case SafetyReview:
		return model.TierThinking
	default:
		return model.TierDefault
	}
}

// TemperatureForStage returns the sampling temperature for a stage.
func TemperatureForStage(t Type) float64 {
	if temp, ok := DefaultTemperatureMap[t]; ok {
		return temp
	}
	return 0.0
}

// NewSelector creates a model selector configured for workflow stages.
// It uses the standard stage-to-tier mapping.
func NewSelector(opts ...model.SelectorOption) *model.Selector {
	// Prepend the tier function to use Type
	allOpts := append([]model.SelectorOption{
		model.WithTierFunc(func(stage any) model.Tier {
			if t, ok := stage.(Type); ok {
				return TierForStage(t)
			}
			return model.TierDefault
		}),
	}, opts...)

	return model.NewSelector(allOpts...)
}

// SelectModel selects the appropriate model for a stage.
// Uses the default model map unless the stage is unknown.
func SelectModel(t Type) model.ModelName {
	if m, ok := DefaultModelMap[t]; ok {
		return m
	}
	switch TierForStage(t) {
	case model.TierThinking:
		return model.ModelOpus
	case model.TierFast:
		return model.ModelHaiku
	default:
		return model.ModelSonnet
	}
}
