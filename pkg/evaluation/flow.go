package evaluation

import (
	"strings"

	"github.com/dotsetgreg/dotpersona/pkg/personality"
)

const (
	neutralScore       = 0.5
	continuityEntries  = 3
	consistencyEntries = 5
)

// Flow describes how a turn fits the conversation so far.
type Flow struct {
	TopicContinuity         float64 `json:"topic_continuity" yaml:"topic_continuity"`
	ResponseVariety         float64 `json:"response_variety" yaml:"response_variety"`
	ConversationProgression float64 `json:"conversation_progression" yaml:"conversation_progression"`
}

func neutralFlow() Flow {
	return Flow{TopicContinuity: neutralScore, ResponseVariety: neutralScore, ConversationProgression: neutralScore}
}

// Effectiveness rates how well personality evolution is going for a user.
type Effectiveness struct {
	AdaptationRate      float64 `json:"adaptation_rate" yaml:"adaptation_rate"`
	Stability           float64 `json:"stability" yaml:"stability"`
	LearningConsistency float64 `json:"learning_consistency" yaml:"learning_consistency"`
}

func neutralEffectiveness() Effectiveness {
	return Effectiveness{AdaptationRate: neutralScore, Stability: neutralScore, LearningConsistency: neutralScore}
}

// flowMetrics scores the current turn against prior history. window bounds
// the number of responses, the current one included, used for variety.
func flowMetrics(history []personality.ConversationEntry, message, response string, window int) Flow {
	out := neutralFlow()
	if len(history) < 2 {
		return out
	}

	recent := history
	if len(recent) > continuityEntries {
		recent = recent[len(recent)-continuityEntries:]
	}
	topics := map[string]bool{}
	for _, e := range recent {
		for w := range wordSet(e.Message) {
			topics[w] = true
		}
	}
	if current := wordSet(message); len(current) > 0 && len(topics) > 0 {
		out.TopicContinuity = overlapRatio(current, topics)
	}

	out.ResponseVariety = responseVariety(history, response, window)

	last := history[len(history)-1].Message
	switch {
	case strings.Contains(message, "?") && !strings.Contains(last, "?"):
		out.ConversationProgression = 0.8
	case len(strings.Fields(message)) > len(strings.Fields(last)):
		out.ConversationProgression = 0.7
	default:
		out.ConversationProgression = 0.6
	}
	return out
}

// responseVariety is 1 minus the mean pairwise Jaccard similarity of the
// newest responses.
func responseVariety(history []personality.ConversationEntry, response string, window int) float64 {
	if window < 2 {
		window = 2
	}
	responses := []string{response}
	for i := len(history) - 1; i >= 0 && len(responses) < window; i-- {
		if r := history[i].Response; r != "" {
			responses = append(responses, r)
		}
	}

	sets := make([]map[string]bool, 0, len(responses))
	for _, r := range responses {
		if ws := wordSet(r); len(ws) > 0 {
			sets = append(sets, ws)
		}
	}
	total, pairs := 0.0, 0
	for i := 0; i < len(sets); i++ {
		for j := i + 1; j < len(sets); j++ {
			total += jaccard(sets[i], sets[j])
			pairs++
		}
	}
	if pairs == 0 {
		return 1.0
	}
	return clamp01(1 - total/float64(pairs))
}

func jaccard(a, b map[string]bool) float64 {
	inter := 0
	for w := range a {
		if b[w] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func effectiveness(p personality.UserProfile) Effectiveness {
	out := neutralEffectiveness()
	if p.ConversationCount > 0 {
		out.AdaptationRate = adaptationRateScore(float64(p.EvolutionMetrics.TotalAdaptations) / float64(p.ConversationCount))
	}
	out.Stability = p.EvolutionMetrics.StabilityScore

	if p.EvolutionMetrics.LearningProgression.Len() >= consistencyEntries {
		slope := trendSlope(p.EvolutionMetrics.RecentMagnitudes(consistencyEntries))
		switch {
		case slope < 0:
			out.LearningConsistency = 0.8
		case slope < 0.1:
			out.LearningConsistency = 0.7
		default:
			out.LearningConsistency = 0.4
		}
	}
	return out
}

func adaptationRateScore(ratio float64) float64 {
	switch {
	case ratio >= 0.3 && ratio <= 0.7:
		return 0.8
	case ratio >= 0.1 && ratio <= 0.9:
		return 0.6
	default:
		return 0.4
	}
}

// trendSlope is the least-squares slope of ys against their index.
func trendSlope(ys []float64) float64 {
	n := float64(len(ys))
	if n < 2 {
		return 0
	}
	var sx, sy, sxy, sxx float64
	for i, y := range ys {
		x := float64(i)
		sx += x
		sy += y
		sxy += x * y
		sxx += x * x
	}
	den := n*sxx - sx*sx
	if den == 0 {
		return 0
	}
	return (n*sxy - sx*sy) / den
}
