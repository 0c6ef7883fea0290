package personality

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/dotsetgreg/dotpersona/pkg/ring"
)

const (
	DefaultAdaptationHistory = 10
	DefaultStoreHistory      = 50
	DefaultProgression       = 100
	DefaultStabilityScore    = 0.5
)

// Capacities sizes the bounded buffers of a profile.
type Capacities struct {
	History     int
	Progression int
}

func DefaultCapacities() Capacities {
	return Capacities{History: DefaultStoreHistory, Progression: DefaultProgression}
}

// MessageAnalysis is the persisted snapshot of the signals for one message.
type MessageAnalysis struct {
	Sentiment           float64            `json:"sentiment"`
	SentimentNormalized float64            `json:"sentiment_normalized"`
	Subjectivity        float64            `json:"subjectivity"`
	Style               map[string]float64 `json:"style"`
	WordCount           int                `json:"word_count"`
	AvgWordLength       float64            `json:"avg_word_length"`
	Complexity          float64            `json:"complexity"`
}

func (m MessageAnalysis) clone() MessageAnalysis {
	out := m
	if m.Style != nil {
		out.Style = make(map[string]float64, len(m.Style))
		for k, v := range m.Style {
			out.Style[k] = v
		}
	}
	return out
}

type ConversationEntry struct {
	Timestamp         time.Time       `json:"timestamp"`
	Message           string          `json:"message"`
	Response          string          `json:"response,omitempty"`
	MessageAnalysis   MessageAnalysis `json:"message_analysis"`
	PersonalityVector Vector          `json:"personality_vector"`
}

func (e ConversationEntry) clone() ConversationEntry {
	out := e
	out.MessageAnalysis = e.MessageAnalysis.clone()
	if e.PersonalityVector != nil {
		out.PersonalityVector = e.PersonalityVector.Clone()
	}
	return out
}

type ProgressionEntry struct {
	Timestamp       time.Time `json:"timestamp"`
	ChangeMagnitude float64   `json:"change_magnitude"`
	Changes         Deltas    `json:"changes"`
}

type EvolutionMetrics struct {
	TotalAdaptations         int                         `json:"total_adaptations"`
	LargestPersonalityChange float64                     `json:"largest_personality_change"`
	StabilityScore           float64                     `json:"stability_score"`
	LearningProgression      ring.Ring[ProgressionEntry] `json:"learning_progression"`
}

// RecentMagnitudes returns up to n newest change magnitudes, oldest first.
func (m EvolutionMetrics) RecentMagnitudes(n int) []float64 {
	entries := m.LearningProgression.Last(n)
	out := make([]float64, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ChangeMagnitude)
	}
	return out
}

// Record appends one non-empty adaptation and refreshes the derived scores.
// The stability score is recomputed once window entries exist.
func (m *EvolutionMetrics) Record(at time.Time, deltas Deltas, window int) {
	if len(deltas) == 0 {
		return
	}
	magnitude := deltas.Magnitude()
	m.TotalAdaptations++
	if magnitude > m.LargestPersonalityChange {
		m.LargestPersonalityChange = magnitude
	}
	m.LearningProgression.Push(ProgressionEntry{
		Timestamp:       at,
		ChangeMagnitude: magnitude,
		Changes:         deltas.Clone(),
	})
	if window > 0 && m.LearningProgression.Len() >= window {
		recent := m.RecentMagnitudes(window)
		mean := 0.0
		for _, v := range recent {
			mean += v
		}
		mean /= float64(len(recent))
		m.StabilityScore = math.Max(0, 1-mean)
	}
}

func (m EvolutionMetrics) clone() EvolutionMetrics {
	out := m
	out.LearningProgression = ring.New[ProgressionEntry](m.LearningProgression.Cap())
	for _, e := range m.LearningProgression.Items() {
		e.Changes = e.Changes.Clone()
		out.LearningProgression.Push(e)
	}
	return out
}

// QualityMetrics holds online means of evaluation scores.
type QualityMetrics struct {
	AverageEngagement       float64 `json:"average_engagement"`
	AverageRelevance        float64 `json:"average_relevance"`
	AveragePersonalityMatch float64 `json:"average_personality_match"`
	AverageTechnicalQuality float64 `json:"average_technical_quality"`
	AverageOverallQuality   float64 `json:"average_overall_quality"`
	EvaluationCount         int     `json:"evaluation_count"`
}

// Scores is one evaluation's contribution to QualityMetrics.
type Scores struct {
	Engagement       float64
	Relevance        float64
	PersonalityMatch float64
	TechnicalQuality float64
	Overall          float64
}

// Observe folds s into the running means without revisiting history.
func (q *QualityMetrics) Observe(s Scores) {
	q.EvaluationCount++
	n := float64(q.EvaluationCount)
	q.AverageEngagement += (s.Engagement - q.AverageEngagement) / n
	q.AverageRelevance += (s.Relevance - q.AverageRelevance) / n
	q.AveragePersonalityMatch += (s.PersonalityMatch - q.AveragePersonalityMatch) / n
	q.AverageTechnicalQuality += (s.TechnicalQuality - q.AverageTechnicalQuality) / n
	q.AverageOverallQuality += (s.Overall - q.AverageOverallQuality) / n
}

// UserProfile is the aggregate root persisted per user.
type UserProfile struct {
	UserID              string                       `json:"user_id"`
	CreatedAt           time.Time                    `json:"created_at"`
	LastUpdated         time.Time                    `json:"last_updated"`
	ConversationCount   int                          `json:"conversation_count"`
	PersonalityVector   Vector                       `json:"personality_vector"`
	ConversationHistory ring.Ring[ConversationEntry] `json:"conversation_history"`
	EvolutionMetrics    EvolutionMetrics             `json:"evolution_metrics"`
	QualityMetrics      QualityMetrics               `json:"quality_metrics"`
	Preferences         map[string]string            `json:"preferences"`
}

func NewProfile(userID string, now time.Time, caps Capacities) UserProfile {
	now = now.UTC()
	return UserProfile{
		UserID:              strings.TrimSpace(userID),
		CreatedAt:           now,
		LastUpdated:         now,
		PersonalityVector:   DefaultVector(),
		ConversationHistory: ring.New[ConversationEntry](caps.History),
		EvolutionMetrics: EvolutionMetrics{
			StabilityScore:      DefaultStabilityScore,
			LearningProgression: ring.New[ProgressionEntry](caps.Progression),
		},
		Preferences: map[string]string{},
	}
}

// Normalize repairs a decoded profile so every field holds a usable value.
func (p *UserProfile) Normalize(userID string, bounds Bounds, caps Capacities, now time.Time) {
	if strings.TrimSpace(p.UserID) == "" {
		p.UserID = userID
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now.UTC()
	}
	if p.LastUpdated.IsZero() {
		p.LastUpdated = p.CreatedAt
	}
	if p.ConversationCount < 0 {
		p.ConversationCount = 0
	}
	p.PersonalityVector = p.PersonalityVector.Normalize(bounds)
	if p.ConversationHistory.Cap() < caps.History {
		p.ConversationHistory.Resize(caps.History)
	}
	if p.EvolutionMetrics.LearningProgression.Cap() != caps.Progression {
		p.EvolutionMetrics.LearningProgression.Resize(caps.Progression)
	}
	p.EvolutionMetrics.StabilityScore = Bound{Min: 0, Max: 1}.Clamp(p.EvolutionMetrics.StabilityScore)
	if p.Preferences == nil {
		p.Preferences = map[string]string{}
	}
}

// AppendHistory pushes e into the history ring sized to capacity, evicting
// the oldest entries if the ring shrinks or overflows.
func (p *UserProfile) AppendHistory(e ConversationEntry, capacity int) {
	if capacity > 0 && p.ConversationHistory.Cap() != capacity {
		p.ConversationHistory.Resize(capacity)
	}
	p.ConversationHistory.Push(e.clone())
}

// AttachResponse records response against the newest entry for message, or
// appends a new entry when no unanswered entry matches.
func (p *UserProfile) AttachResponse(message, response string, at time.Time, capacity int) {
	items := p.ConversationHistory.Items()
	if n := len(items); n > 0 && items[n-1].Message == message && items[n-1].Response == "" {
		items[n-1].Response = response
		p.ConversationHistory = ring.New[ConversationEntry](p.ConversationHistory.Cap())
		for _, e := range items {
			p.ConversationHistory.Push(e)
		}
		return
	}
	p.AppendHistory(ConversationEntry{
		Timestamp:         at.UTC(),
		Message:           message,
		Response:          response,
		PersonalityVector: p.PersonalityVector.Clone(),
	}, capacity)
}

// DaysActive is the number of whole days since the profile was created.
func (p UserProfile) DaysActive(now time.Time) int {
	d := now.Sub(p.CreatedAt)
	if d < 0 {
		return 0
	}
	return int(d / (24 * time.Hour))
}

func (p UserProfile) Clone() UserProfile {
	out := p
	out.PersonalityVector = p.PersonalityVector.Clone()
	out.ConversationHistory = ring.New[ConversationEntry](p.ConversationHistory.Cap())
	for _, e := range p.ConversationHistory.Items() {
		out.ConversationHistory.Push(e.clone())
	}
	out.EvolutionMetrics = p.EvolutionMetrics.clone()
	out.Preferences = make(map[string]string, len(p.Preferences))
	for k, v := range p.Preferences {
		out.Preferences[k] = v
	}
	return out
}

func Marshal(p UserProfile) ([]byte, error) {
	return json.MarshalIndent(p, "", "  ")
}

// Unmarshal decodes raw, filling any missing field with its default.
func Unmarshal(raw []byte, userID string, bounds Bounds, caps Capacities, now time.Time) (UserProfile, error) {
	p := NewProfile(userID, now, caps)
	p.CreatedAt = time.Time{}
	p.LastUpdated = time.Time{}
	if err := json.Unmarshal(raw, &p); err != nil {
		return UserProfile{}, err
	}
	p.Normalize(userID, bounds, caps, now)
	return p, nil
}
