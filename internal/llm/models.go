package llm

import "strings"

// Output-length parameter names.
const (
	ParamMaxTokens           = "max_tokens"
	ParamMaxCompletionTokens = "max_completion_tokens"
)

// Capabilities are the optional request parameters a model accepts.
type Capabilities struct {
	Provider       string // default provider for the family
	Temperature    bool   // whether "temperature" may be sent
	MaxTokensParam string // name of the output-length parameter
}

type modelRule struct {
	prefix string
	caps   Capabilities
}

// modelRules is matched in order by model-name prefix; the first hit wins.
// New model families are added here, never at call sites.
var modelRules = []modelRule{
	{"o1", Capabilities{"openai", false, ParamMaxCompletionTokens}},
	{"o3", Capabilities{"openai", false, ParamMaxCompletionTokens}},
	{"o4", Capabilities{"openai", false, ParamMaxCompletionTokens}},
	{"gpt-5", Capabilities{"openai", false, ParamMaxCompletionTokens}},
	{"gpt-", Capabilities{"openai", true, ParamMaxTokens}},
	{"claude-", Capabilities{"anthropic", true, ParamMaxTokens}},
}

var defaultCapabilities = Capabilities{Provider: "", Temperature: true, MaxTokensParam: ParamMaxTokens}

// CapabilitiesFor returns the parameter rules for model.
func CapabilitiesFor(model string) Capabilities {
	m := strings.ToLower(strings.TrimSpace(model))
	for _, r := range modelRules {
		if strings.HasPrefix(m, r.prefix) {
			return r.caps
		}
	}
	return defaultCapabilities
}
