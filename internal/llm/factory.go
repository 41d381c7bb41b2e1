package llm

import "fmt"

// New builds a provider for the named backend. Any name without a
// dedicated adapter is treated as an OpenAI-compatible endpoint, which
// covers x-ai, groq, mistral, openrouter and local servers like
// lmstudio or vllm.
func New(name, model, apiKey, baseURL string) (Provider, error) {
	switch name {
	case "anthropic":
		if apiKey == "" {
			return nil, fmt.Errorf("provider %s requires an api_key", name)
		}
		return NewAnthropicProvider(apiKey, model), nil

	case "google", "gemini":
		if apiKey == "" {
			return nil, fmt.Errorf("provider %s requires an api_key", name)
		}
		return NewGeminiProvider(apiKey, model)

	case "ollama":
		return NewOllamaProvider(baseURL, model), nil

	case "openai":
		if apiKey == "" {
			return nil, fmt.Errorf("provider %s requires an api_key", name)
		}
		return NewOpenAIProvider(apiKey, model), nil

	default:
		if baseURL == "" {
			return nil, fmt.Errorf("unknown provider %s requires a base_url", name)
		}
		return NewOpenAICompatProvider(name, baseURL, apiKey, model), nil
	}
}
