// Package modelcfg resolves the model, credential and endpoint used by a role.
package modelcfg

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

const (
	// DefaultModel is used when neither the role nor OPENAI_MODEL_NAME names a model.
	DefaultModel = "openai/gpt-4o-mini"
	// SentinelKey is what a provider receives when no credential was resolved.
	SentinelKey = "nokey"

	defaultProvider = "openai"
	genericKeyEnv   = "OPENAI_API_KEY"
	defaultModelEnv = "OPENAI_MODEL_NAME"
)

var defaultBaseURLs = map[string]string{
	"openai":     "https://api.openai.com/v1",
	"anthropic":  "https://api.anthropic.com/v1",
	"deepseek":   "https://api.deepseek.com/v1",
	"gemini":     "https://generativelanguage.googleapis.com/",
	"google":     "https://generativelanguage.googleapis.com/",
	"groq":       "https://api.groq.com/openai/v1",
	"mistral":    "https://api.mistral.ai/v1",
	"ollama":     "http://localhost:11434/v1",
	"openrouter": "https://openrouter.ai/api/v1",
	"xai":        "https://api.x.ai/v1",
	"cli":        "",
}

// CredentialSource tells where an API key came from.
type CredentialSource int

const (
	// SourceSentinel means no key was found; the zero value.
	SourceSentinel CredentialSource = iota
	SourceExplicit
	SourceProviderEnv
	SourceGenericEnv
)

func (s CredentialSource) String() string {
	switch s {
	case SourceExplicit:
		return "explicit"
	case SourceProviderEnv:
		return "provider_env"
	case SourceGenericEnv:
		return "generic_env"
	default:
		return "sentinel"
	}
}

// Credential is a resolved API key. The zero value is the sentinel.
type Credential struct {
	Source CredentialSource
	secret string
}

// IsSentinel reports whether no real key was resolved.
func (c Credential) IsSentinel() bool {
	return c.Source == SourceSentinel
}

// Value returns the secret, or SentinelKey for the sentinel.
func (c Credential) Value() string {
	if c.IsSentinel() {
		return SentinelKey
	}
	return c.secret
}

// String never reveals the secret.
func (c Credential) String() string {
	if c.IsSentinel() {
		return SentinelKey
	}
	return "<redacted:" + c.Source.String() + ">"
}

// ModelConfig is the immutable per-role model setup.
type ModelConfig struct {
	Model     string
	Provider  string
	ModelName string
	APIKeyVar string
	APIKey    Credential
	BaseURL   string
}

// MarshalZerologObject logs the config without the secret.
func (m ModelConfig) MarshalZerologObject(e *zerolog.Event) {
	e.Str("model", m.Model).
		Str("provider", m.Provider).
		Str("model_name", m.ModelName).
		Str("api_key_var", m.APIKeyVar).
		Str("api_key_source", m.APIKey.Source.String()).
		Str("base_url", m.BaseURL)
}

// Option adjusts a single resolution.
type Option func(*resolveOptions)

type resolveOptions struct {
	baseURL string
}

// WithBaseURL overrides the endpoint for one resolution.
func WithBaseURL(url string) Option {
	return func(o *resolveOptions) {
		o.baseURL = strings.TrimSpace(url)
	}
}

// Resolver resolves ModelConfigs from explicit values and the environment.
type Resolver struct {
	lookupEnv func(string) (string, bool)
}

// NewResolver returns a resolver backed by the process environment.
func NewResolver() *Resolver {
	return &Resolver{lookupEnv: os.LookupEnv}
}

// NewResolverWithEnv returns a resolver backed by the given lookup function.
func NewResolverWithEnv(lookup func(string) (string, bool)) *Resolver {
	return &Resolver{lookupEnv: lookup}
}

// Resolve never fails: a missing key yields the sentinel credential.
func (r *Resolver) Resolve(model, explicitAPIKey string, opts ...Option) ModelConfig {
	var o resolveOptions
	for _, opt := range opts {
		opt(&o)
	}

	model = strings.TrimSpace(model)
	if model == "" {
		model = r.env(defaultModelEnv)
	}
	if model == "" {
		model = DefaultModel
	}

	provider, name := SplitModel(model)
	if provider == "" {
		provider = defaultProvider
	}

	cfg := ModelConfig{
		Model:     model,
		Provider:  provider,
		ModelName: name,
		APIKeyVar: EnvName(provider, "API_KEY"),
	}

	switch {
	case strings.TrimSpace(explicitAPIKey) != "":
		cfg.APIKey = Credential{Source: SourceExplicit, secret: strings.TrimSpace(explicitAPIKey)}
	case r.env(cfg.APIKeyVar) != "":
		cfg.APIKey = Credential{Source: SourceProviderEnv, secret: r.env(cfg.APIKeyVar)}
	case r.env(genericKeyEnv) != "":
		cfg.APIKey = Credential{Source: SourceGenericEnv, secret: r.env(genericKeyEnv)}
	}

	cfg.BaseURL = o.baseURL
	if cfg.BaseURL == "" {
		cfg.BaseURL = r.env(EnvName(provider, "API_BASE"))
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL(provider)
	}

	return cfg
}

func (r *Resolver) env(name string) string {
	if r.lookupEnv == nil {
		return ""
	}
	v, ok := r.lookupEnv(name)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}

// SplitModel splits "provider/name" on the first slash.
func SplitModel(model string) (provider, name string) {
	before, after, found := strings.Cut(model, "/")
	if !found {
		return "", model
	}
	return strings.ToLower(strings.TrimSpace(before)), strings.TrimSpace(after)
}

// EnvName builds "<PROVIDER>_<SUFFIX>" with non-alphanumerics mapped to '_'.
func EnvName(provider, suffix string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(provider) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('_')
	}
	b.WriteByte('_')
	b.WriteString(suffix)
	return b.String()
}

// DefaultBaseURL returns the hardcoded endpoint for a provider, falling back to OpenAI.
func DefaultBaseURL(provider string) string {
	if url, ok := defaultBaseURLs[provider]; ok {
		return url
	}
	return defaultBaseURLs[defaultProvider]
}
