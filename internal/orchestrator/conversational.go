package orchestrator

import "strings"

// conversationalPhrases mark opinion or recommendation questions, including
// common abbreviations and slang.
var conversationalPhrases = []string{
	"do you think", "do u think", "what do you think", "what do u think",
	"i feel", "i think", "u think", "think abt", "think about",
	"opinion", "thoughts", "would you", "would u", "should",
	"is it overpriced", "overpriced", "pricey",
	"what about", "what abt", "do you recommend", "recommend",
	"how about", "how abt", "your thoughts", "ur thoughts",
	"abt the", "abt ur", "about the",
}

// IsConversational is the default classifier deciding whether a question
// expects an opinionated, freeform reply instead of a strict data answer. It
// matches a fixed phrase list and treats any question mark as conversational.
func IsConversational(question string) bool {
	q := strings.ToLower(strings.TrimSpace(question))
	if q == "" {
		return false
	}
	for _, phrase := range conversationalPhrases {
		if strings.Contains(q, phrase) {
			return true
		}
	}
	return strings.Contains(q, "?")
}
