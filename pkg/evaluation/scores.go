package evaluation

import (
	"math"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/dotsetgreg/dotpersona/pkg/personality"
	"github.com/dotsetgreg/dotpersona/pkg/signals"
)

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true, "in": true, "on": true, "at": true,
	"to": true, "for": true, "of": true, "with": true, "by": true, "is": true, "are": true, "was": true, "were": true,
	"i": true, "you": true, "he": true, "she": true, "it": true, "we": true, "they": true, "that": true, "this": true,
}

var (
	affirmativeMarkers  = []string{"yes", "no", "certainly", "sure", "definitely"}
	genericPhrases      = []string{"i understand", "that's interesting", "i see", "ok", "good"}
	personalPronouns    = map[string]bool{"you": true, "your": true, "we": true, "us": true, "our": true}
	engagementMarkers   = []string{"!", "great", "wonderful", "excellent", "amazing"}
	continuationPhrases = []string{"what do you think", "tell me more", "how about", "what about"}

	formalIndicators  = []string{"please", "thank you", "certainly", "indeed", "furthermore"}
	casualIndicators  = []string{"hey", "cool", "yeah", "awesome", "gonna"}
	enthusiasticWords = []string{"great", "fantastic", "wonderful", "amazing", "excellent"}
	technicalWords    = []string{"implementation", "algorithm", "analysis", "system", "framework", "methodology", "optimization"}
)

func contentWords(text string) map[string]bool {
	out := map[string]bool{}
	for _, tok := range signals.Tokenize(text) {
		if !stopWords[tok] {
			out[tok] = true
		}
	}
	return out
}

func wordSet(text string) map[string]bool {
	out := map[string]bool{}
	for _, tok := range signals.Tokenize(text) {
		out[tok] = true
	}
	return out
}

// containsPhrase matches phrase on token boundaries.
func containsPhrase(tokens []string, phrase string) bool {
	joined := " " + strings.Join(tokens, " ") + " "
	return strings.Contains(joined, " "+phrase+" ")
}

func countContaining(lower string, markers []string) int {
	n := 0
	for _, m := range markers {
		if strings.Contains(lower, m) {
			n++
		}
	}
	return n
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

// overlapRatio is |a ∩ b| / |a|, or 0.5 when a is empty.
func overlapRatio(a, b map[string]bool) float64 {
	if len(a) == 0 {
		return 0.5
	}
	hits := 0
	for w := range a {
		if b[w] {
			hits++
		}
	}
	return math.Min(float64(hits)/float64(len(a)), 1)
}

func relevance(message, response string) float64 {
	msgWords := contentWords(message)
	if len(msgWords) == 0 {
		return 0.5
	}
	score := overlapRatio(msgWords, contentWords(response))

	respTokens := signals.Tokenize(response)
	if strings.Contains(message, "?") {
		for _, m := range affirmativeMarkers {
			if containsPhrase(respTokens, m) {
				score = math.Min(score+0.2, 1)
				break
			}
		}
	}
	if len(strings.Fields(response)) < 5 {
		for _, g := range genericPhrases {
			if containsPhrase(respTokens, g) {
				score *= 0.7
				break
			}
		}
	}
	return clamp01(score)
}

func engagement(response string) float64 {
	score := 0.5
	words := len(strings.Fields(response))
	switch {
	case words >= 5 && words <= 50:
		score += 0.2
	case words < 3:
		score -= 0.3
	case words > 100:
		score -= 0.2
	}

	if math.Abs(signals.Polarity(response)) > 0.1 {
		score += 0.1
	}
	if strings.Contains(response, "?") {
		score += 0.15
	}

	pronouns := 0
	tokens := signals.Tokenize(response)
	for _, tok := range tokens {
		if personalPronouns[tok] {
			pronouns++
		}
	}
	score += math.Min(float64(pronouns)*0.05, 0.2)

	lower := strings.ToLower(response)
	score += math.Min(float64(countContaining(lower, engagementMarkers))*0.05, 0.15)

	for _, p := range continuationPhrases {
		if strings.Contains(lower, p) {
			score += 0.1
			break
		}
	}
	return clamp01(score)
}

func personalityMatch(response string, v personality.Vector) float64 {
	score := 0.5
	lower := strings.ToLower(response)
	tokens := signals.Tokenize(response)

	formal, casual := 0, 0
	for _, w := range formalIndicators {
		if containsPhrase(tokens, w) {
			formal++
		}
	}
	for _, w := range casualIndicators {
		if containsPhrase(tokens, w) {
			casual++
		}
	}
	switch f := v.Get(personality.Formality); {
	case f > 0.7 && formal > casual:
		score += 0.2
	case f < 0.3 && casual > formal:
		score += 0.2
	case f >= 0.3 && f <= 0.7 && abs(formal-casual) <= 1:
		score += 0.1
	}

	exclaims := strings.Count(response, "!")
	enthusiastic := countContaining(lower, enthusiasticWords)
	switch e := v.Get(personality.Enthusiasm); {
	case e > 0.7 && (exclaims > 0 || enthusiastic > 0):
		score += 0.15
	case e < 0.3 && exclaims == 0 && enthusiastic == 0:
		score += 0.15
	}

	technical := countContaining(lower, technicalWords)
	switch td := v.Get(personality.TechnicalDepth); {
	case td > 0.6 && technical > 0:
		score += 0.1
	case td < 0.4 && technical == 0:
		score += 0.1
	}

	words := len(strings.Fields(response))
	switch vb := v.Get(personality.Verbosity); {
	case vb > 0.7 && words > 20:
		score += 0.1
	case vb < 0.3 && words < 10:
		score += 0.1
	case vb >= 0.3 && vb <= 0.7 && words >= 10 && words <= 20:
		score += 0.1
	}
	return clamp01(score)
}

// ResponseTimeScore rates generation latency. Very fast replies score below
// normal ones since they are likely canned.
func ResponseTimeScore(latency time.Duration) float64 {
	s := latency.Seconds()
	switch {
	case s < 0.5:
		return 0.7
	case s <= 2:
		return 1.0
	case s <= 5:
		return 0.8
	case s <= 10:
		return 0.6
	default:
		return 0.3
	}
}

func technicalQuality(response string, latency time.Duration) float64 {
	score := 0.5 + 0.3*ResponseTimeScore(latency)

	if trimmed := strings.TrimSpace(response); trimmed != "" {
		if signals.CountSentences(response) > 1 {
			score += 0.1
		}
		if r, _ := utf8.DecodeRuneInString(response); unicode.IsUpper(r) {
			score += 0.05
		}
		if strings.HasSuffix(trimmed, ".") || strings.HasSuffix(trimmed, "!") || strings.HasSuffix(trimmed, "?") {
			score += 0.1
		}
		if !strings.Contains(response, "  ") {
			score += 0.05
		}
	}

	words := strings.Fields(response)
	if len(words) > 3 {
		total := 0
		for _, w := range words {
			total += utf8.RuneCountInString(w)
		}
		if avg := float64(total) / float64(len(words)); avg >= 3 && avg <= 8 {
			score += 0.1
		}
	}

	counts := map[string]int{}
	maxRepeat := 0
	for _, w := range words {
		lw := strings.ToLower(w)
		counts[lw]++
		if counts[lw] > maxRepeat {
			maxRepeat = counts[lw]
		}
	}
	if maxRepeat <= 2 {
		score += 0.1
	}
	return clamp01(score)
}

// Category maps an overall score onto its quality band.
func Category(score float64) string {
	switch {
	case score >= 0.8:
		return CategoryExcellent
	case score >= 0.6:
		return CategoryGood
	case score >= 0.4:
		return CategoryAcceptable
	case score >= 0.2:
		return CategoryPoor
	default:
		return CategoryVeryPoor
	}
}

func complexity(response string) (length, vocabulary float64) {
	words := strings.Fields(response)
	if len(words) == 0 {
		return 0, 0
	}
	total := 0
	for _, w := range words {
		total += utf8.RuneCountInString(w)
	}
	avg := float64(total) / float64(len(words))
	return math.Min(float64(len(words))/50, 1), clamp01((avg - 3) / 7)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
