package personality

type band struct {
	high, low   float64
	hi, mid, lo string
}

var descriptions = map[Dimension]band{
	Formality:      {0.7, 0.3, "Very formal and professional", "Balanced formality", "Casual and relaxed"},
	Enthusiasm:     {0.7, 0.3, "Highly enthusiastic and energetic", "Moderately enthusiastic", "Calm and measured"},
	Humor:          {0.6, 0.3, "Playful and humorous", "Occasionally playful", "Serious and focused"},
	TechnicalDepth: {0.7, 0.3, "Highly technical and detailed", "Balanced technical depth", "Simple and accessible"},
	Empathy:        {0.7, 0.3, "Very empathetic and understanding", "Caring but balanced", "Analytical and objective"},
	Verbosity:      {0.7, 0.3, "Detailed and comprehensive", "Balanced length responses", "Concise and brief"},
}

// Describe renders each dimension of v as a short human-readable band.
func Describe(v Vector) map[Dimension]string {
	out := make(map[Dimension]string, len(Dimensions))
	for _, d := range Dimensions {
		b := descriptions[d]
		switch val := v.Get(d); {
		case val > b.high:
			out[d] = b.hi
		case val < b.low:
			out[d] = b.lo
		default:
			out[d] = b.mid
		}
	}
	return out
}
