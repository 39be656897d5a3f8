package session

// perMessageTokens covers the per-turn framing overhead providers charge on
// top of the content itself.
const perMessageTokens = 4

// estimateTokens approximates the token count of text. It is a budget
// heuristic (about four bytes per token), not any provider's exact
// tokenizer; compression thresholds should be set with slack.
func estimateTokens(text string) int {
	return (len(text) + 3) / 4
}
