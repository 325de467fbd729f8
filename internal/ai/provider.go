package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrUnavailable marks a provider that is not usable at all (missing key,
// unconfigured endpoint). It is never retried.
var ErrUnavailable = errors.New("ai provider unavailable")

const (
	TaskTypeDocument = "RETRIEVAL_DOCUMENT"
	TaskTypeQuery    = "RETRIEVAL_QUERY"
)

type IEmbedProvider interface {
	Name() string
	// EmbedBatch returns one vector per input text, same order and count.
	EmbedBatch(ctx context.Context, model string, texts []string, taskType string) ([][]float32, error)
}

type IGenProvider interface {
	Name() string
	Generate(ctx context.Context, model string, prompt string) (string, error)
	// GenerateStream emits response deltas in order until the model
	// finishes or emit returns an error.
	GenerateStream(ctx context.Context, model string, prompt string, emit func(delta string) error) error
}

type EmbedFactory func(args interface{}) (IEmbedProvider, error)
type GenFactory func(args interface{}) (IGenProvider, error)

var (
	embedRegistry = map[string]EmbedFactory{}
	genRegistry   = map[string]GenFactory{}
)

func RegisterEmbed(name string, factory EmbedFactory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	embedRegistry[key] = factory
}

func RegisterGen(name string, factory GenFactory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	genRegistry[key] = factory
}

func NewEmbedProvider(name string, args interface{}) (IEmbedProvider, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, fmt.Errorf("ai.embed.provider is required")
	}
	factory := embedRegistry[key]
	if factory == nil {
		return nil, fmt.Errorf("unsupported embed provider: %s", name)
	}
	return factory(args)
}

func NewGenProvider(name string, args interface{}) (IGenProvider, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, fmt.Errorf("ai.generate.provider is required")
	}
	factory := genRegistry[key]
	if factory == nil {
		return nil, fmt.Errorf("unsupported generation provider: %s", name)
	}
	return factory(args)
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("ai provider config is required")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode ai provider config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode ai provider config: %w", err)
	}
	return nil
}
