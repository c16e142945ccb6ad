package backend

import (
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
)

// FieldName names one configuration value of a backend.
type FieldName string

const (
	FieldBaseURL FieldName = "base_url"
	FieldToken   FieldName = "token"
	FieldAPIKey  FieldName = "api_key"
	FieldModel   FieldName = "model"
)

// Field describes one configuration input of a backend.
type Field struct {
	Name     FieldName
	Label    string
	Required bool
	Secret   bool
}

// Descriptor is the static, read-only description of a backend kind.
type Descriptor struct {
	Kind             Kind
	DisplayName      string
	Icon             string
	Description      string
	Fields           []Field
	SuggestedBaseURL string
	SuggestedModels  []string
	RequestTimeout   time.Duration
}

// DefaultModel is the model a fresh configuration starts with.
func (d Descriptor) DefaultModel() string {
	if len(d.SuggestedModels) == 0 {
		return ""
	}
	return d.SuggestedModels[0]
}

// Field returns the field with the given name, if the kind uses it.
func (d Descriptor) Field(name FieldName) (Field, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

const (
	chatTimeout   = 30 * time.Second
	ollamaTimeout = 120 * time.Second
)

var descriptors = map[Kind]Descriptor{
	KindNone: {
		Kind:        KindNone,
		DisplayName: "Not Configured",
		Icon:        "xmark.circle",
		Description: "No AI backend configured",
	},
	KindOpenClaw: {
		Kind:        KindOpenClaw,
		DisplayName: "OpenClaw",
		Icon:        "terminal",
		Description: "Connect to your OpenClaw gateway for AI responses",
		Fields: []Field{
			{Name: FieldBaseURL, Label: "Gateway URL", Required: true},
			{Name: FieldToken, Label: "Token", Secret: true},
			{Name: FieldModel, Label: "Model", Required: true},
		},
		SuggestedBaseURL: "http://localhost:3000",
		SuggestedModels:  []string{"default"},
		RequestTimeout:   chatTimeout,
	},
	KindOpenAI: {
		Kind:        KindOpenAI,
		DisplayName: "OpenAI",
		Icon:        "brain",
		Description: "Use OpenAI's GPT models (requires API key)",
		Fields: []Field{
			{Name: FieldAPIKey, Label: "API Key", Required: true, Secret: true},
			{Name: FieldModel, Label: "Model", Required: true},
		},
		SuggestedModels: []string{"gpt-4o-mini", "gpt-4o", "gpt-4-turbo", "gpt-3.5-turbo"},
		RequestTimeout:  chatTimeout,
	},
	KindOllama: {
		Kind:        KindOllama,
		DisplayName: "Ollama (Local)",
		Icon:        "desktopcomputer",
		Description: "Run AI locally with Ollama (free, private)",
		Fields: []Field{
			{Name: FieldBaseURL, Label: "Ollama URL", Required: true},
			{Name: FieldModel, Label: "Model", Required: true},
		},
		SuggestedBaseURL: "http://localhost:11434",
		SuggestedModels:  []string{"llama3.2", "mistral", "codellama", "phi"},
		RequestTimeout:   ollamaTimeout,
	},
	KindAnthropic: {
		Kind:        KindAnthropic,
		DisplayName: "Anthropic Claude",
		Icon:        "sparkles",
		Description: "Use Anthropic's Claude models (requires API key)",
		Fields: []Field{
			{Name: FieldAPIKey, Label: "API Key", Required: true, Secret: true},
			{Name: FieldModel, Label: "Model", Required: true},
		},
		SuggestedModels: []string{"claude-3-haiku-20240307", "claude-3-sonnet-20240229", "claude-3-opus-20240229"},
		RequestTimeout:  chatTimeout,
	},
	KindCustom: {
		Kind:        KindCustom,
		DisplayName: "Custom API",
		Icon:        "gear",
		Description: "Connect to any OpenAI-compatible API",
		Fields: []Field{
			{Name: FieldBaseURL, Label: "API URL", Required: true},
			{Name: FieldToken, Label: "Token", Secret: true},
		},
		RequestTimeout: chatTimeout,
	},
}

// selectable lists the kinds a user can pick, in menu order.
var selectable = []Kind{KindOpenClaw, KindOpenAI, KindOllama, KindAnthropic, KindCustom}

// Describe returns the descriptor of k.
func Describe(k Kind) (Descriptor, bool) {
	d, ok := descriptors[k]
	return d, ok
}

// Kinds returns the selectable backend kinds. KindNone is not included.
func Kinds() []Kind {
	out := make([]Kind, len(selectable))
	copy(out, selectable)
	return out
}

// FieldValue reads the config value backing a field.
func FieldValue(cfg Config, name FieldName) string {
	switch name {
	case FieldBaseURL:
		return cfg.BaseURL
	case FieldToken, FieldAPIKey:
		return cfg.Token
	case FieldModel:
		return cfg.Model
	default:
		return ""
	}
}

// Validate reports whether cfg is enough to talk to a backend of kind k.
// Every missing required field is listed in the returned NotConfigured error.
func Validate(k Kind, cfg Config) error {
	d, ok := descriptors[k]
	if !ok {
		return newError(NotConfigured, k, fmt.Sprintf("unknown backend kind %q", k))
	}
	if k == KindNone {
		return newError(NotConfigured, k, "no backend selected")
	}

	var result *multierror.Error
	for _, f := range d.Fields {
		if f.Required && strings.TrimSpace(FieldValue(cfg, f.Name)) == "" {
			result = multierror.Append(result, fmt.Errorf("%s is required", f.Label))
		}
	}
	if result == nil {
		return nil
	}
	result.ErrorFormat = joinErrors
	return &Error{Kind: NotConfigured, Backend: k, Err: result}
}

func joinErrors(errs []error) string {
	parts := make([]string, len(errs))
	for i, err := range errs {
		parts[i] = err.Error()
	}
	return strings.Join(parts, "; ")
}
