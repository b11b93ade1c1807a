package retrieval

import "strings"

// Stop words ignored when matching query terms against passages
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "be": true, "is": true, "are": true,
	"was": true, "to": true, "of": true, "and": true, "in": true, "that": true,
	"have": true, "it": true, "for": true, "not": true, "on": true, "with": true,
	"as": true, "you": true, "do": true, "at": true, "this": true, "but": true,
	"by": true, "from": true, "what": true, "how": true, "does": true,
}

// tokenizeAndFilter splits text into words, lowercases, trims punctuation, and removes stop words
func tokenizeAndFilter(text string) []string {
	words := strings.Fields(text)
	filtered := make([]string, 0, len(words))

	for _, word := range words {
		cleaned := strings.ToLower(strings.Trim(word, ".,!?;:'\"-()[]{}%$"))
		if cleaned != "" && !stopWords[cleaned] {
			filtered = append(filtered, cleaned)
		}
	}

	return filtered
}

// MatchedTerms returns the distinct query terms that appear verbatim in content,
// in query order.
func MatchedTerms(content, query string) []string {
	contentWords := tokenizeAndFilter(content)
	present := make(map[string]bool, len(contentWords))
	for _, word := range contentWords {
		present[word] = true
	}

	var matched []string
	seen := map[string]bool{}
	for _, term := range tokenizeAndFilter(query) {
		if present[term] && !seen[term] {
			matched = append(matched, term)
			seen[term] = true
		}
	}
	return matched
}
