package signals

import (
	"strings"
	"unicode"
)

// Word lists are matched against lowercase tokens; entries containing a
// space are matched as phrases. A word may appear in more than one list.
var (
	formalWords = []string{
		"please", "thank you", "thanks for", "could you", "would you", "kindly",
		"regards", "sincerely", "appreciate", "furthermore", "therefore", "however",
		"moreover", "consequently", "explain", "assist", "request", "regarding",
		"would like", "may i", "certainly", "indeed",
	}
	casualWords = []string{
		"hey", "hi", "yo", "yeah", "yep", "nope", "nah", "cool", "awesome", "lol",
		"gonna", "wanna", "gotta", "dude", "omg", "btw", "haha", "sup", "kinda",
		"sorta", "stuff", "ok", "okay", "cuz", "ya",
	}
	enthusiasmWords = []string{
		"awesome", "amazing", "great", "love", "excited", "exciting", "fantastic",
		"wonderful", "incredible", "wow", "yay", "excellent", "brilliant", "super",
		"perfect", "thrilled",
	}
	// enthusiasmMarks are matched as substrings of the raw text.
	enthusiasmMarks = []string{"😂", "🎉", "😍", "🔥", "😄", "🤩", "🙌", "❤️"}

	humorWords = []string{"lol", "haha", "hahaha", "lmao", "rofl", "funny", "joke", "joking", "hilarious", "kidding"}
	// humorMarks are emoji and emoticons matched as substrings of the raw text.
	humorMarks = []string{"😂", "🤣", "😄", "😆", "😜", ":)", ":-)", ":d", "xd", ";)"}

	// technicalTerms are matched as substrings, so "implementation" also hits
	// "implement".
	technicalTerms = []string{
		"algorithm", "algo", "implement", "implementation", "function", "code",
		"api", "database", "server", "framework", "architecture", "protocol",
		"compile", "debug", "deploy", "latency", "thread", "kernel", "query",
		"variable", "syntax", "runtime", "python", "golang", "javascript",
	}
	emotionalWords = []string{
		"feel", "feeling", "sad", "happy", "worried", "worry", "sorry", "upset",
		"anxious", "frustrated", "hurt", "lonely", "scared", "grateful", "stressed",
		"angry", "afraid", "nervous", "overwhelmed", "love",
	}
)

// tokenize lowercases text and splits it into word tokens, keeping
// apostrophes inside words.
func tokenize(text string) []string {
	lower := strings.ToLower(text)
	return strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

// countWordHits counts token and phrase hits of words in tokens.
func countWordHits(tokens []string, words []string) int {
	if len(tokens) == 0 {
		return 0
	}
	joined := " " + strings.Join(tokens, " ") + " "
	set := make(map[string]int, len(tokens))
	for _, t := range tokens {
		set[t]++
	}
	hits := 0
	for _, w := range words {
		if strings.Contains(w, " ") {
			hits += strings.Count(joined, " "+w+" ")
			continue
		}
		hits += set[w]
	}
	return hits
}

// countSubstringHits counts how many entries occur anywhere in lower.
func countSubstringHits(lower string, entries []string) int {
	hits := 0
	for _, e := range entries {
		if strings.Contains(lower, e) {
			hits++
		}
	}
	return hits
}
