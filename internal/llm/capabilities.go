package llm

import "strings"

// visionModelTags mark model names that accept image input. Matching is
// substring-based on the lowercased model name.
var visionModelTags = []string{
	"gpt-4", "gpt-5", "o3", "o4", "claude", "gemini", "gemma", "llama",
	"pixtral", "mistral-large", "mistral-medium", "mistral-small",
	"vision", "vl",
}

// usernameProviders accept a per-message participant name field
var usernameProviders = map[string]bool{
	"openai": true,
	"x-ai":   true,
}

// ModelSupportsVision infers image support from the model name
func ModelSupportsVision(model string) bool {
	lower := strings.ToLower(model)
	for _, tag := range visionModelTags {
		if strings.Contains(lower, tag) {
			return true
		}
	}
	return false
}

// ProviderSupportsUsernames reports whether a provider accepts the
// per-message name field
func ProviderSupportsUsernames(provider string) bool {
	return usernameProviders[provider]
}
