package agent

import (
	"context"
	"strings"

	"github.com/dotsetgreg/dotpersona/pkg/personality"
	"github.com/dotsetgreg/dotpersona/pkg/signals"
)

// ResponseInput is what a Responder sees for one turn.
type ResponseInput struct {
	UserID            string
	Message           string
	Vector            personality.Vector
	Signals           signals.Signals
	ConversationCount int
}

// Responder produces the reply text for a turn. Real generation lives
// outside this module; StyleResponder is the built-in stand-in.
type Responder interface {
	Respond(ctx context.Context, in ResponseInput) (string, error)
}

const fallbackResponse = "I understand and I'm adapting to your communication style."

var (
	formalAcks  = []string{"Certainly,", "Indeed,", "I understand,", "Thank you for sharing,"}
	casualAcks  = []string{"Got it!", "Cool,", "Right,", "Yeah,"}
	neutralAcks = []string{"I see,", "That's interesting,", "I understand,", "Thanks,"}

	enthusiasmLines = []string{"That's fantastic!", "How exciting!", "Amazing!", "Wonderful!"}
	empathyLines    = []string{
		"I can understand how you might feel about that.",
		"That sounds really important to you.",
		"I appreciate you sharing that with me.",
	}
	humorLines = []string{
		"And hey, at least we're having fun with this!",
		"Always good to keep things light!",
		"I do enjoy our conversations!",
	}
)

// StyleResponder phrases a reply from the adapted vector. Phrase choice
// rotates with the conversation count so output is reproducible.
type StyleResponder struct{}

func (StyleResponder) Respond(ctx context.Context, in ResponseInput) (string, error) {
	v := in.Vector
	pick := func(list []string) string { return list[in.ConversationCount%len(list)] }

	var parts []string
	if v.Get(personality.Enthusiasm) > 0.7 {
		parts = append(parts, pick(enthusiasmLines))
	}

	if strings.Contains(in.Message, "?") || strings.Contains(strings.ToLower(in.Message), "question") {
		if v.Get(personality.TechnicalDepth) > 0.6 {
			parts = append(parts, "Let me provide a comprehensive analysis of this topic.")
		} else {
			parts = append(parts, "I'd be happy to help with that.")
		}
	} else {
		switch f := v.Get(personality.Formality); {
		case f > 0.7:
			parts = append(parts, pick(formalAcks))
		case f < 0.3:
			parts = append(parts, pick(casualAcks))
		default:
			parts = append(parts, pick(neutralAcks))
		}
	}

	if v.Get(personality.Empathy) > 0.6 && in.Signals.Style.Emotional > 0.3 {
		parts = append(parts, pick(empathyLines))
	}
	if v.Get(personality.Humor) > 0.6 && in.Signals.Style.Humor > 0.2 {
		parts = append(parts, pick(humorLines))
	}

	var out string
	switch vb := v.Get(personality.Verbosity); {
	case vb < 0.3:
		out = parts[0]
	case vb > 0.7:
		parts = append(parts, "I'm continuously learning from our conversation to better match your communication style.")
		out = strings.Join(parts, " ")
	default:
		if len(parts) > 2 {
			parts = parts[:2]
		}
		out = strings.Join(parts, " ")
	}
	if strings.TrimSpace(out) == "" {
		out = fallbackResponse
	}
	return out, nil
}
