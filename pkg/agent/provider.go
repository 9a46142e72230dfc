package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/harun/quill/pkg/toolexecutor"
)

// LLMProvider is an interface for LLM API providers
type LLMProvider interface {
	// Call makes an LLM API call
	Call(ctx context.Context, request LLMRequest) (*LLMResponse, error)

	// Provider returns the provider name
	Provider() string
}

// LLMRequest contains the request parameters for LLM call
type LLMRequest struct {
	Model        string
	Messages     []AgentMessage
	Tools        []ToolSpec
	Temperature  float64
	MaxTokens    int
	SystemPrompt string
}

// LLMResponse contains the response from LLM
type LLMResponse struct {
	Content   string
	ToolCalls []ToolCall
	Usage     *TokenUsage
}

// ToolSpec describes a tool offered to the model for native tool calling.
type ToolSpec struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
}

// Properties returns the schema's properties object.
func (s ToolSpec) Properties() interface{} {
	if p, ok := s.InputSchema["properties"]; ok {
		return p
	}
	return map[string]interface{}{}
}

// Required returns the schema's required property names.
func (s ToolSpec) Required() []string {
	switch req := s.InputSchema["required"].(type) {
	case []string:
		return req
	case []interface{}:
		out := make([]string, 0, len(req))
		for _, v := range req {
			if name, ok := v.(string); ok {
				out = append(out, name)
			}
		}
		return out
	}
	return nil
}

// ToolSpecs converts dispatcher definitions into provider tool specs.
func ToolSpecs(defs []toolexecutor.ToolDefinition) []ToolSpec {
	specs := make([]ToolSpec, 0, len(defs))
	for _, def := range defs {
		specs = append(specs, ToolSpec{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.InputSchema(),
		})
	}
	return specs
}

// ProviderCreator creates LLM providers from auth profiles.
type ProviderCreator interface {
	NewProvider(profile AuthProfile) (LLMProvider, error)
}

// ProviderFactory creates LLM providers
type ProviderFactory struct{}

// NewProvider creates a new LLM provider based on auth profile
func (f *ProviderFactory) NewProvider(profile AuthProfile) (LLMProvider, error) {
	if strings.TrimSpace(profile.APIKey) == "" {
		return nil, fmt.Errorf("profile %q has no api key", profile.ID)
	}
	switch profile.Provider {
	case "anthropic":
		return NewAnthropicProvider(profile.APIKey, profile.BaseURL), nil
	case "openai":
		return NewOpenAIProvider(profile.APIKey, profile.BaseURL), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", profile.Provider)
	}
}

// SelectProvider returns the provider for the highest-priority usable
// profile (lowest Priority value). Runs never fail over between profiles.
func SelectProvider(profiles []AuthProfile, creator ProviderCreator) (LLMProvider, AuthProfile, error) {
	if creator == nil {
		creator = &ProviderFactory{}
	}

	sorted := append([]AuthProfile(nil), profiles...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })

	var errs []string
	for _, profile := range sorted {
		provider, err := creator.NewProvider(profile)
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		return provider, profile, nil
	}
	if len(errs) == 0 {
		return nil, AuthProfile{}, fmt.Errorf("at least one auth profile is required")
	}
	return nil, AuthProfile{}, fmt.Errorf("no usable auth profile: %s", strings.Join(errs, "; "))
}
