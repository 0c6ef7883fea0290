package evaluation

import (
	"context"
	"time"

	"github.com/dotsetgreg/dotpersona/pkg/personality"
)

const minEvaluationsForTuning = 5

const (
	RecommendSensitivity = "Consider adjusting evolution sensitivity for better user alignment"
	RecommendVolatile    = "Personality evolution may be too volatile - consider reducing learning rate"
	RecommendEngagement  = "Focus on improving response engagement and interactivity"
	RecommendRelevance   = "Keep responses closer to the topics the user raises"
	RecommendRate        = "Adaptation happens too rarely or too often - revisit the dead-band and learning rate"
	RecommendMoreData    = "Collect more evaluations before tuning"
)

type QualityAverages struct {
	Engagement       float64 `json:"engagement" yaml:"engagement"`
	Relevance        float64 `json:"relevance" yaml:"relevance"`
	PersonalityMatch float64 `json:"personality_match" yaml:"personality_match"`
	TechnicalQuality float64 `json:"technical_quality" yaml:"technical_quality"`
	OverallQuality   float64 `json:"overall_quality" yaml:"overall_quality"`
}

type EvolutionReport struct {
	Effectiveness    `yaml:",inline"`
	TotalAdaptations int     `json:"total_adaptations" yaml:"total_adaptations"`
	LargestChange    float64 `json:"largest_change" yaml:"largest_change"`
}

type Report struct {
	UserID                 string                           `json:"user_id" yaml:"user_id"`
	GeneratedAt            time.Time                        `json:"report_generated" yaml:"report_generated"`
	ConversationCount      int                              `json:"total_conversations" yaml:"total_conversations"`
	EvaluationCount        int                              `json:"total_evaluations" yaml:"total_evaluations"`
	QualityAverages        QualityAverages                  `json:"quality_averages" yaml:"quality_averages"`
	EvolutionEffectiveness EvolutionReport                  `json:"evolution_effectiveness" yaml:"evolution_effectiveness"`
	Personality            map[personality.Dimension]string `json:"personality_summary" yaml:"personality_summary"`
	Recommendations        []string                         `json:"recommendations" yaml:"recommendations"`
}

// QualityReport summarizes a user's running quality metrics and evolution,
// with threshold-triggered tuning hints.
func (e *Evaluator) QualityReport(ctx context.Context, userID string) Report {
	p := e.store.GetProfile(ctx, userID)
	q := p.QualityMetrics
	eff := effectiveness(p)

	r := Report{
		UserID:            userID,
		GeneratedAt:       e.now().UTC(),
		ConversationCount: p.ConversationCount,
		EvaluationCount:   q.EvaluationCount,
		QualityAverages: QualityAverages{
			Engagement:       q.AverageEngagement,
			Relevance:        q.AverageRelevance,
			PersonalityMatch: q.AveragePersonalityMatch,
			TechnicalQuality: q.AverageTechnicalQuality,
			OverallQuality:   q.AverageOverallQuality,
		},
		EvolutionEffectiveness: EvolutionReport{
			Effectiveness:    eff,
			TotalAdaptations: p.EvolutionMetrics.TotalAdaptations,
			LargestChange:    p.EvolutionMetrics.LargestPersonalityChange,
		},
		Personality:     personality.Describe(p.PersonalityVector),
		Recommendations: recommendations(p, eff),
	}
	return r
}

func recommendations(p personality.UserProfile, eff Effectiveness) []string {
	q := p.QualityMetrics
	out := []string{}
	if q.EvaluationCount < minEvaluationsForTuning {
		out = append(out, RecommendMoreData)
	}
	if q.EvaluationCount > 0 {
		if q.AverageOverallQuality < 0.5 {
			out = append(out, RecommendSensitivity)
		}
		if q.AverageEngagement < 0.6 {
			out = append(out, RecommendEngagement)
		}
		if q.AverageRelevance < 0.5 {
			out = append(out, RecommendRelevance)
		}
	}
	if p.EvolutionMetrics.LearningProgression.Len() >= consistencyEntries && p.EvolutionMetrics.StabilityScore < 0.7 {
		out = append(out, RecommendVolatile)
	}
	if p.ConversationCount > 0 && eff.AdaptationRate == 0.4 {
		out = append(out, RecommendRate)
	}
	return out
}
