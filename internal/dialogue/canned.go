package dialogue

// cannedQuestions is the per-topic fallback list used when the LLM
// times out or returns a malformed question.
var cannedQuestions = map[string][]string{
	"Technical": {
		"Tell me about a technical decision you made that you'd revisit today.",
		"Walk me through how you'd debug a service that's suddenly slower under load.",
	},
	"Behavioral": {
		"Tell me about a time you disagreed with a teammate's approach. What did you do?",
		"Describe a project that didn't go as planned. What did you learn?",
	},
	"Coding": {
		"Describe your approach to testing code you're not confident in.",
		"Tell me about the last bug that took you a long time to find.",
	},
	"SystemDesign": {
		"Describe a system you designed and the tradeoff you're least sure about.",
		"How would you approach designing a system you've never built before?",
	},
	"General": {
		"Tell me about yourself and what brought you to this role.",
		"What are you looking for in your next position?",
	},
}

var genericCanned = "Tell me more about your experience relevant to this role."

// cannedQuestionFor returns a fallback question for aiType, cycling
// through the list by index so repeated fallbacks in one session don't
// repeat the same line.
func cannedQuestionFor(aiType string, index int) string {
	list, ok := cannedQuestions[aiType]
	if !ok || len(list) == 0 {
		return genericCanned
	}
	return list[index%len(list)]
}
