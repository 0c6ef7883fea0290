package signals

import (
	"math"
	"strings"
)

// Sentiment is a lexical polarity/subjectivity estimate for one text.
type Sentiment struct {
	Polarity     float64 // -1..1
	Subjectivity float64 // 0..1
}

type polarityEntry struct {
	polarity     float64
	subjectivity float64
}

var polarityLexicon = map[string]polarityEntry{
	"good": {0.7, 0.6}, "great": {0.8, 0.75}, "awesome": {1.0, 1.0}, "amazing": {0.6, 0.9},
	"excellent": {1.0, 1.0}, "fantastic": {0.4, 0.9}, "wonderful": {1.0, 1.0}, "love": {0.5, 0.6},
	"like": {0.2, 0.4}, "nice": {0.6, 1.0}, "happy": {0.8, 1.0}, "glad": {0.5, 1.0},
	"thanks": {0.2, 0.2}, "thank": {0.2, 0.2}, "helpful": {0.6, 0.7}, "perfect": {1.0, 1.0},
	"cool": {0.35, 0.65}, "fun": {0.3, 0.2}, "funny": {0.25, 0.75}, "best": {1.0, 0.3},
	"better": {0.5, 0.5}, "interesting": {0.5, 0.5}, "excited": {0.4, 0.75}, "yay": {0.6, 0.8},
	"lol": {0.8, 0.7}, "haha": {0.5, 0.6}, "brilliant": {0.9, 1.0}, "beautiful": {0.85, 1.0},
	"bad": {-0.7, 0.67}, "terrible": {-1.0, 1.0}, "awful": {-1.0, 1.0}, "horrible": {-1.0, 1.0},
	"hate": {-0.8, 0.9}, "sad": {-0.5, 1.0}, "angry": {-0.5, 1.0}, "annoying": {-0.8, 0.9},
	"wrong": {-0.5, 0.9}, "worse": {-0.4, 0.6}, "worst": {-1.0, 1.0}, "upset": {-0.6, 0.8},
	"frustrated": {-0.7, 0.8}, "boring": {-1.0, 1.0}, "stupid": {-0.8, 1.0}, "broken": {-0.4, 0.4},
	"sorry": {-0.5, 1.0}, "worried": {-0.4, 0.8}, "confused": {-0.4, 0.7}, "problem": {-0.2, 0.3},
	"stressed": {-0.5, 0.8}, "scared": {-0.6, 0.9}, "lonely": {-0.5, 0.8}, "fail": {-0.5, 0.4},
}

var emojiPolarity = map[string]polarityEntry{
	"😂": {0.7, 0.8}, "🤣": {0.7, 0.8}, "😄": {0.8, 0.8}, "😍": {0.9, 0.9}, "🎉": {0.8, 0.8},
	"❤️": {0.8, 0.9}, "🔥": {0.5, 0.6}, "🙌": {0.6, 0.6}, ":)": {0.5, 1.0}, ":(": {-0.75, 1.0},
	"😢": {-0.7, 0.9}, "😡": {-0.9, 1.0}, "😞": {-0.6, 0.9},
}

var negators = map[string]bool{"not": true, "never": true, "no": true, "don't": true, "isn't": true, "wasn't": true, "can't": true, "won't": true, "didn't": true, "doesn't": true}

var intensifiers = map[string]float64{"very": 1.3, "really": 1.3, "so": 1.2, "extremely": 1.5, "super": 1.3, "totally": 1.2, "incredibly": 1.5}

// scoreSentiment averages lexicon polarities over sentiment-bearing tokens.
// A preceding negator flips and halves a polarity; an intensifier scales it.
func scoreSentiment(text string, tokens []string) Sentiment {
	var polarities, subjectivities []float64

	for i, tok := range tokens {
		entry, ok := polarityLexicon[tok]
		if !ok {
			continue
		}
		p := entry.polarity
		if i > 0 {
			prev := tokens[i-1]
			if mult, ok := intensifiers[prev]; ok {
				p *= mult
			}
			if negators[prev] || (i > 1 && negators[tokens[i-2]] && intensifiers[prev] > 0) {
				p *= -0.5
			}
		}
		polarities = append(polarities, p)
		subjectivities = append(subjectivities, entry.subjectivity)
	}

	lower := strings.ToLower(text)
	for mark, entry := range emojiPolarity {
		if n := strings.Count(lower, mark); n > 0 {
			for j := 0; j < n; j++ {
				polarities = append(polarities, entry.polarity)
				subjectivities = append(subjectivities, entry.subjectivity)
			}
		}
	}

	if len(polarities) == 0 {
		return Sentiment{}
	}
	return Sentiment{
		Polarity:     clamp(mean(polarities), -1, 1),
		Subjectivity: clamp(mean(subjectivities), 0, 1),
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total / float64(len(values))
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
