package signals

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnalyze_FormalTechnicalQuestion(t *testing.T) {
	res := Analyze("Could you please explain the algorithm implementation?")
	if res.Degraded {
		t.Fatalf("unexpected degraded result: %v", res.Err)
	}
	if res.Style.Formality != 1 {
		t.Fatalf("formality=%v want 1", res.Style.Formality)
	}
	if res.Style.Technical <= 0.6 {
		t.Fatalf("technical=%v want > 0.6", res.Style.Technical)
	}
	if res.WordCount != 7 {
		t.Fatalf("word count=%d want 7", res.WordCount)
	}
}

func TestAnalyze_CasualExcitedMessage(t *testing.T) {
	res := Analyze("Hey! That's awesome lol 😂")

	assert.Equal(t, 0.0, res.Style.Formality)
	assert.InDelta(t, 2.0/3.0, res.Style.Humor, 1e-9)
	assert.Greater(t, res.Style.Enthusiasm, 0.35)
	assert.Greater(t, res.Sentiment, 0.5)
	assert.InDelta(t, (res.Sentiment+1)/2, res.SentimentNormalized, 1e-9)
}

func TestAnalyze_NoLexiconHitsIsNeutralFormality(t *testing.T) {
	res := Analyze("the river runs north")
	assert.Equal(t, 0.5, res.Style.Formality)
	assert.Equal(t, 0.0, res.Style.Humor)
	assert.Equal(t, 0.0, res.Sentiment)
	assert.Equal(t, 0.5, res.SentimentNormalized)
}

func TestAnalyze_VerbosityIsNotCapped(t *testing.T) {
	msg := ""
	for i := 0; i < 40; i++ {
		msg += "word "
	}
	res := Analyze(msg)
	assert.Equal(t, 40, res.WordCount)
	assert.Equal(t, 2.0, res.Style.Verbosity)
}

func TestAnalyze_EmptyMessage(t *testing.T) {
	res := Analyze("")
	assert.False(t, res.Degraded)
	assert.Equal(t, 0, res.WordCount)
	assert.Equal(t, 0.5, res.Style.Formality)
	assert.Equal(t, 0.0, res.Style.Verbosity)
}

func TestAnalyze_OverlappingListsBothCount(t *testing.T) {
	// "awesome" is both casual and enthusiastic.
	res := Analyze("awesome")
	assert.Equal(t, 0.0, res.Style.Formality)
	assert.Greater(t, res.Style.Enthusiasm, 0.0)
}

func TestEnthusiasm_Caps(t *testing.T) {
	res := Analyze("WOW!!!!!! AMAZING AWESOME GREAT FANTASTIC WONDERFUL INCREDIBLE")
	assert.InDelta(t, 1.0, res.Style.Enthusiasm, 1e-9)
}

func TestEnthusiasm_UppercaseShareOfAllCharacters(t *testing.T) {
	// 2 capitals in 25 characters; one "!"; "awesome" and the emoji hit.
	res := Analyze("Hey! That's awesome lol 😂")
	want := 0.4*(1.0/3) + 0.3*(2.0/25*5) + 0.3*(2.0/5)
	assert.InDelta(t, want, res.Style.Enthusiasm, 1e-9)
}

func TestTechnical_WordLengthSaturatesAtTen(t *testing.T) {
	tests := []struct {
		name string
		msg  string
		want float64
	}{
		{name: "short-words", msg: "the cat sat", want: 0},
		{name: "seven-letters", msg: "kitchen windows", want: 0.3 * 3.0 / 6},
		{name: "ten-letters", msg: "chocolates strawberry", want: 0.3 * 1},
		{name: "terms-and-length", msg: "database", want: 0.7*1.0/5 + 0.3*4.0/6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Analyze(tt.msg).Style.Technical, 1e-9)
		})
	}
}

func TestSentiment_Negation(t *testing.T) {
	pos := Polarity("this is good")
	neg := Polarity("this is not good")
	if !(pos > 0 && neg < 0) {
		t.Fatalf("expected negation to flip polarity: pos=%v neg=%v", pos, neg)
	}
}

func TestNeutral(t *testing.T) {
	n := Neutral()
	for name, v := range n.Style.Map() {
		if v != 0.5 {
			t.Fatalf("neutral %s=%v", name, v)
		}
	}
	if n.SentimentNormalized != 0.5 {
		t.Fatalf("neutral sentiment=%v", n.SentimentNormalized)
	}
}

func FuzzAnalyzeBounded(f *testing.F) {
	f.Add("Could you please explain the algorithm implementation?")
	f.Add("Hey! That's awesome lol 😂")
	f.Add("")
	f.Add("!!!???...")

	f.Fuzz(func(t *testing.T, msg string) {
		res := Analyze(msg)
		if res.Sentiment < -1 || res.Sentiment > 1 {
			t.Fatalf("sentiment out of range: %v", res.Sentiment)
		}
		for name, v := range res.Style.Map() {
			if math.IsNaN(v) || v < 0 {
				t.Fatalf("%s invalid: %v", name, v)
			}
			if name != "verbosity" && v > 1 {
				t.Fatalf("%s above 1: %v", name, v)
			}
		}
	})
}
