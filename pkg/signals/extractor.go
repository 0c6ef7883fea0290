// Package signals turns one raw message into sentiment and style features.
//
// Analyze never fails: on an internal fault it returns neutral signals with
// Degraded set, so callers can tell a fallback from a computed 0.5.
package signals

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/dotsetgreg/dotpersona/pkg/logger"
	"github.com/dotsetgreg/dotpersona/pkg/personality"
)

const neutral = 0.5

// Style holds per-message style features. Verbosity is not capped here.
type Style struct {
	Formality  float64 `json:"formality"`
	Enthusiasm float64 `json:"enthusiasm"`
	Humor      float64 `json:"humor"`
	Technical  float64 `json:"technical"`
	Emotional  float64 `json:"emotional"`
	Verbosity  float64 `json:"verbosity"`
}

func (s Style) Map() map[string]float64 {
	return map[string]float64{
		"formality":  s.Formality,
		"enthusiasm": s.Enthusiasm,
		"humor":      s.Humor,
		"technical":  s.Technical,
		"emotional":  s.Emotional,
		"verbosity":  s.Verbosity,
	}
}

type Signals struct {
	Sentiment           float64 `json:"sentiment"`
	SentimentNormalized float64 `json:"sentiment_normalized"`
	Subjectivity        float64 `json:"subjectivity"`
	Style               Style   `json:"style"`
	WordCount           int     `json:"word_count"`
	AvgWordLength       float64 `json:"avg_word_length"`
	Complexity          float64 `json:"complexity"`
}

// Neutral is the fallback signal set.
func Neutral() Signals {
	return Signals{
		Sentiment:           0,
		SentimentNormalized: neutral,
		Style: Style{
			Formality:  neutral,
			Enthusiasm: neutral,
			Humor:      neutral,
			Technical:  neutral,
			Emotional:  neutral,
			Verbosity:  neutral,
		},
	}
}

// Analysis converts the signals into the snapshot stored in history.
func (s Signals) Analysis() personality.MessageAnalysis {
	return personality.MessageAnalysis{
		Sentiment:           s.Sentiment,
		SentimentNormalized: s.SentimentNormalized,
		Subjectivity:        s.Subjectivity,
		Style:               s.Style.Map(),
		WordCount:           s.WordCount,
		AvgWordLength:       s.AvgWordLength,
		Complexity:          s.Complexity,
	}
}

type Result struct {
	Signals
	Degraded bool
	Err      error
}

// Analyze extracts signals from message.
func Analyze(message string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("signal extraction panic: %v", r)
			logger.WarnCF("signals", "Falling back to neutral signals", map[string]interface{}{
				"error": err.Error(),
			})
			res = Result{Signals: Neutral(), Degraded: true, Err: err}
		}
	}()
	return Result{Signals: extract(message)}
}

func extract(message string) Signals {
	tokens := tokenize(message)
	words := strings.Fields(message)
	lower := strings.ToLower(message)

	sent := scoreSentiment(message, tokens)
	avgLen := averageWordLength(tokens)

	return Signals{
		Sentiment:           sent.Polarity,
		SentimentNormalized: (sent.Polarity + 1) / 2,
		Subjectivity:        sent.Subjectivity,
		Style: Style{
			Formality:  formality(tokens),
			Enthusiasm: enthusiasm(message, tokens),
			Humor:      humor(lower, tokens),
			Technical:  technical(lower, avgLen),
			Emotional:  emotional(tokens),
			Verbosity:  float64(len(words)) / 20,
		},
		WordCount:     len(words),
		AvgWordLength: avgLen,
		Complexity:    complexity(message, len(words), avgLen),
	}
}

func formality(tokens []string) float64 {
	formal := countWordHits(tokens, formalWords)
	casual := countWordHits(tokens, casualWords)
	if formal+casual == 0 {
		return neutral
	}
	return float64(formal) / float64(formal+casual)
}

// enthusiasm weights exclamation marks (capped at 3), uppercase share of all
// characters (5x, capped) and lexicon hits (capped at 5) as 0.4/0.3/0.3.
func enthusiasm(message string, tokens []string) float64 {
	exclaim := clamp(float64(strings.Count(message, "!"))/3, 0, 1)

	chars, upper := 0, 0
	for _, r := range message {
		chars++
		if unicode.IsUpper(r) {
			upper++
		}
	}
	caps := 0.0
	if chars > 0 {
		caps = clamp(float64(upper)/float64(chars)*5, 0, 1)
	}

	hits := countWordHits(tokens, enthusiasmWords) + countSubstringHits(strings.ToLower(message), enthusiasmMarks)
	lexical := clamp(float64(hits)/5, 0, 1)

	return 0.4*exclaim + 0.3*caps + 0.3*lexical
}

func humor(lower string, tokens []string) float64 {
	hits := countWordHits(tokens, humorWords) + countSubstringHits(lower, humorMarks)
	return clamp(float64(hits)/3, 0, 1)
}

func technical(lower string, avgLen float64) float64 {
	hits := countSubstringHits(lower, technicalTerms)
	lexical := clamp(float64(hits)/5, 0, 1)
	length := 0.0
	if avgLen > 4 {
		length = clamp((avgLen-4)/6, 0, 1)
	}
	return clamp(0.7*lexical+0.3*length, 0, 1)
}

func emotional(tokens []string) float64 {
	return clamp(float64(countWordHits(tokens, emotionalWords))/3, 0, 1)
}

func averageWordLength(tokens []string) float64 {
	if len(tokens) == 0 {
		return 0
	}
	total := 0
	for _, t := range tokens {
		total += len([]rune(t))
	}
	return float64(total) / float64(len(tokens))
}

// complexity blends word length and sentence length into 0..1.
func complexity(message string, wordCount int, avgLen float64) float64 {
	if wordCount == 0 {
		return 0
	}
	sentences := countSentences(message)
	perSentence := float64(wordCount) / float64(sentences)
	return clamp(0.5*clamp(avgLen/10, 0, 1)+0.5*clamp(perSentence/25, 0, 1), 0, 1)
}

func countSentences(text string) int {
	n := 0
	for _, part := range strings.FieldsFunc(text, func(r rune) bool { return r == '.' || r == '!' || r == '?' }) {
		if strings.TrimSpace(part) != "" {
			n++
		}
	}
	if n == 0 {
		return 1
	}
	return n
}

// CountSentences is exported for the evaluation engine's structure checks.
func CountSentences(text string) int { return countSentences(text) }

// Tokenize is exported for overlap scoring.
func Tokenize(text string) []string { return tokenize(text) }

// Polarity returns the lexical polarity of text in -1..1.
func Polarity(text string) float64 {
	return scoreSentiment(text, tokenize(text)).Polarity
}

// Score runs the lexical sentiment scorer alone.
func Score(text string) Sentiment {
	return scoreSentiment(text, tokenize(text))
}
