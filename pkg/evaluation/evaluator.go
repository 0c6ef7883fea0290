// Package evaluation scores each message/response pair, tracks conversation
// flow and evolution effectiveness, and folds scores into the user's running
// quality metrics.
package evaluation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dotsetgreg/dotpersona/pkg/config"
	"github.com/dotsetgreg/dotpersona/pkg/logger"
	"github.com/dotsetgreg/dotpersona/pkg/personality"
	"github.com/dotsetgreg/dotpersona/pkg/signals"
)

const (
	CategoryExcellent  = "excellent"
	CategoryGood       = "good"
	CategoryAcceptable = "acceptable"
	CategoryPoor       = "poor"
	CategoryVeryPoor   = "very_poor"
	CategoryUnknown    = "unknown"
)

type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) personality.UserProfile
	Update(ctx context.Context, userID string, fn func(*personality.UserProfile) error) (personality.UserProfile, error)
}

// Journal receives every completed evaluation.
type Journal interface {
	RecordEvaluation(ctx context.Context, r Result) error
}

type Weights struct {
	Relevance        float64
	Engagement       float64
	PersonalityMatch float64
	Technical        float64
}

type Settings struct {
	Weights         Weights
	FlowWindow      int
	HistoryCapacity int
}

func DefaultSettings() Settings {
	return Settings{
		Weights:         Weights{Relevance: 0.3, Engagement: 0.25, PersonalityMatch: 0.25, Technical: 0.2},
		FlowWindow:      6,
		HistoryCapacity: personality.DefaultStoreHistory,
	}
}

func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		Weights: Weights{
			Relevance:        cfg.Evaluation.RelevanceWeight,
			Engagement:       cfg.Evaluation.EngagementWeight,
			PersonalityMatch: cfg.Evaluation.PersonalityMatchWeight,
			Technical:        cfg.Evaluation.TechnicalWeight,
		},
		FlowWindow:      cfg.Evaluation.FlowWindow,
		HistoryCapacity: cfg.Storage.HistoryCapacity,
	}
}

type SentimentScore struct {
	Polarity     float64 `json:"polarity" yaml:"polarity"`
	Subjectivity float64 `json:"subjectivity" yaml:"subjectivity"`
}

type Detail struct {
	UserSentiment        SentimentScore `json:"user_sentiment" yaml:"user_sentiment"`
	ResponseSentiment    SentimentScore `json:"response_sentiment" yaml:"response_sentiment"`
	TopicContinuity      float64        `json:"topic_continuity" yaml:"topic_continuity"`
	LengthComplexity     float64        `json:"length_complexity" yaml:"length_complexity"`
	VocabularyComplexity float64        `json:"vocabulary_complexity" yaml:"vocabulary_complexity"`
}

// Result is one evaluation. Degraded marks the neutral fallback; Err on a
// non-degraded result reports that the quality metrics were not persisted.
type Result struct {
	ID                    string        `json:"id" yaml:"id"`
	UserID                string        `json:"user_id" yaml:"user_id"`
	Timestamp             time.Time     `json:"timestamp" yaml:"timestamp"`
	RelevanceScore        float64       `json:"relevance_score" yaml:"relevance_score"`
	EngagementScore       float64       `json:"engagement_score" yaml:"engagement_score"`
	PersonalityMatchScore float64       `json:"personality_match_score" yaml:"personality_match_score"`
	TechnicalQualityScore float64       `json:"technical_quality_score" yaml:"technical_quality_score"`
	OverallQualityScore   float64       `json:"overall_quality_score" yaml:"overall_quality_score"`
	QualityCategory       string        `json:"quality_category" yaml:"quality_category"`
	ResponseTime          float64       `json:"response_time" yaml:"response_time"`
	ResponseTimeScore     float64       `json:"response_time_score" yaml:"response_time_score"`
	Flow                  Flow          `json:"flow_metrics" yaml:"flow_metrics"`
	Evolution             Effectiveness `json:"evolution_metrics" yaml:"evolution_metrics"`
	Detail                Detail        `json:"detailed_analysis" yaml:"detailed_analysis"`
	MessageLength         int           `json:"user_message_length" yaml:"user_message_length"`
	ResponseLength        int           `json:"agent_response_length" yaml:"agent_response_length"`
	EvaluationTime        time.Duration `json:"evaluation_time_ns" yaml:"evaluation_time_ns"`
	Degraded              bool          `json:"degraded,omitempty" yaml:"degraded,omitempty"`
	Error                 string        `json:"error,omitempty" yaml:"error,omitempty"`
	Err                   error         `json:"-" yaml:"-"`
}

// Scores is the subset folded into QualityMetrics.
func (r Result) Scores() personality.Scores {
	return personality.Scores{
		Engagement:       r.EngagementScore,
		Relevance:        r.RelevanceScore,
		PersonalityMatch: r.PersonalityMatchScore,
		TechnicalQuality: r.TechnicalQualityScore,
		Overall:          r.OverallQualityScore,
	}
}

type Evaluator struct {
	store    ProfileStore
	journal  Journal
	settings Settings
	now      func() time.Time
}

// NewEvaluator builds an evaluator. journal may be nil.
func NewEvaluator(store ProfileStore, journal Journal, settings Settings) *Evaluator {
	if settings.FlowWindow < 2 {
		settings.FlowWindow = DefaultSettings().FlowWindow
	}
	if settings.HistoryCapacity <= 0 {
		settings.HistoryCapacity = personality.DefaultStoreHistory
	}
	return &Evaluator{store: store, journal: journal, settings: settings, now: time.Now}
}

// SetClock overrides the time source.
func (e *Evaluator) SetClock(now func() time.Time) { e.now = now }

// Evaluate scores one turn and records it. It never fails: an internal fault
// yields a neutral Degraded result.
func (e *Evaluator) Evaluate(ctx context.Context, userID, message, response string, latency time.Duration) (res Result) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res = e.fallback(userID, fmt.Errorf("evaluation panic: %v", r))
		}
	}()

	profile := e.store.GetProfile(ctx, userID)
	res = e.score(userID, message, response, latency, profile)

	_, err := e.store.Update(ctx, userID, func(p *personality.UserProfile) error {
		p.QualityMetrics.Observe(res.Scores())
		p.AttachResponse(message, response, res.Timestamp, e.settings.HistoryCapacity)
		p.LastUpdated = res.Timestamp
		return nil
	})
	if err != nil {
		logger.WarnCF("evaluation", "Quality metrics not persisted", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
		res.Err = err
		res.Error = err.Error()
	}
	res.EvaluationTime = time.Since(started)

	if e.journal != nil {
		if err := e.journal.RecordEvaluation(ctx, res); err != nil {
			logger.WarnCF("evaluation", "Evaluation journal write failed", map[string]interface{}{
				"user_id": userID,
				"error":   err.Error(),
			})
		}
	}

	logger.InfoCF("evaluation", "Evaluation completed", map[string]interface{}{
		"user_id":  userID,
		"category": res.QualityCategory,
		"overall":  res.OverallQualityScore,
	})
	return res
}

func (e *Evaluator) score(userID, message, response string, latency time.Duration, profile personality.UserProfile) Result {
	w := e.settings.Weights
	rel := relevance(message, response)
	eng := engagement(response)
	match := personalityMatch(response, profile.PersonalityVector)
	tech := technicalQuality(response, latency)
	overall := clamp01(rel*w.Relevance + eng*w.Engagement + match*w.PersonalityMatch + tech*w.Technical)

	userSent := signals.Score(message)
	respSent := signals.Score(response)
	lengthCx, vocabCx := complexity(response)

	return Result{
		ID:                    uuid.NewString(),
		UserID:                userID,
		Timestamp:             e.now().UTC(),
		RelevanceScore:        rel,
		EngagementScore:       eng,
		PersonalityMatchScore: match,
		TechnicalQualityScore: tech,
		OverallQualityScore:   overall,
		QualityCategory:       Category(overall),
		ResponseTime:          latency.Seconds(),
		ResponseTimeScore:     ResponseTimeScore(latency),
		Flow:                  flowMetrics(profile.ConversationHistory.Items(), message, response, e.settings.FlowWindow),
		Evolution:             effectiveness(profile),
		Detail: Detail{
			UserSentiment:        SentimentScore{Polarity: userSent.Polarity, Subjectivity: userSent.Subjectivity},
			ResponseSentiment:    SentimentScore{Polarity: respSent.Polarity, Subjectivity: respSent.Subjectivity},
			TopicContinuity:      overlapRatio(contentWords(message), contentWords(response)),
			LengthComplexity:     lengthCx,
			VocabularyComplexity: vocabCx,
		},
		MessageLength:  len([]rune(message)),
		ResponseLength: len([]rune(response)),
	}
}

func (e *Evaluator) fallback(userID string, err error) Result {
	logger.WarnCF("evaluation", "Evaluation failed, returning neutral result", map[string]interface{}{
		"user_id": userID,
		"error":   err.Error(),
	})
	return Result{
		ID:                    uuid.NewString(),
		UserID:                userID,
		Timestamp:             time.Now().UTC(),
		RelevanceScore:        neutralScore,
		EngagementScore:       neutralScore,
		PersonalityMatchScore: neutralScore,
		TechnicalQualityScore: neutralScore,
		OverallQualityScore:   neutralScore,
		QualityCategory:       CategoryUnknown,
		Flow:                  neutralFlow(),
		Evolution:             neutralEffectiveness(),
		Degraded:              true,
		Error:                 err.Error(),
		Err:                   err,
	}
}
