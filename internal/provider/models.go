package provider

import "strings"

// modelPatterns are matched against deployment names in order, so more
// specific names come before their prefixes
var modelPatterns = []string{
	"gpt-4o-mini",
	"gpt-4o",
	"gpt-4-turbo",
	"gpt-4",
	"gpt-35-turbo",
	"gpt-3.5-turbo",
	"text-embedding-ada-002",
	"text-embedding-3-large",
	"text-embedding-3-small",
	"text-embedding-ada",
	"o1-preview",
	"o1-mini",
	"o3-mini",
}

// InferModelName guesses the model behind a deployment from its name, e.g.
// "oai-search-gpt-4o-mini-01" -> "gpt-4o-mini". It returns "" when no known
// model family appears in the name.
func InferModelName(deploymentName string) string {
	lower := strings.ToLower(deploymentName)
	for _, pattern := range modelPatterns {
		if strings.Contains(lower, pattern) {
			return pattern
		}
	}
	return ""
}
