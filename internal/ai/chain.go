package ai

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/david/funding-scout/internal/config"
)

var ErrNoProviders = errors.New("no llm providers configured")

// Completer is one LLM provider able to answer a JSON-mode prompt.
type Completer interface {
	Name() string
	Complete(ctx context.Context, prompt string) (string, error)
}

// Outcome is the tagged result of running a prompt through a Chain. Err is
// nil on success; Provider names the provider that answered, or the last one
// tried.
type Outcome struct {
	Provider string
	Text     string
	Err      error
}

func (o Outcome) OK() bool { return o.Err == nil }

// Chain tries its providers in order and stops at the first success. A failed
// provider is never called twice for the same prompt.
type Chain struct {
	providers []Completer
}

func NewChain(providers ...Completer) *Chain {
	c := &Chain{}
	for _, p := range providers {
		if p != nil {
			c.providers = append(c.providers, p)
		}
	}
	return c
}

func (c *Chain) Len() int {
	if c == nil {
		return 0
	}
	return len(c.providers)
}

func (c *Chain) Names() []string {
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(c.providers))
	for _, p := range c.providers {
		names = append(names, p.Name())
	}
	return names
}

func (c *Chain) Complete(ctx context.Context, prompt string) Outcome {
	if c.Len() == 0 {
		return Outcome{Err: ErrNoProviders}
	}

	log := zap.S().Named("llm")
	var errs []error
	var last string
	for _, p := range c.providers {
		last = p.Name()
		text, err := p.Complete(ctx, prompt)
		if err == nil {
			return Outcome{Provider: last, Text: text}
		}
		log.Warnw("provider failed, trying next", "provider", last, "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", last, err))
		if ctx.Err() != nil {
			break
		}
	}
	return Outcome{Provider: last, Err: errors.Join(errs...)}
}

// NewChainFromConfig builds the provider chain in the configured order.
// Providers without credentials are skipped. Ollama needs none and is always
// usable when listed.
func NewChainFromConfig(ctx context.Context, cfg config.LLMConfig) *Chain {
	log := zap.S().Named("llm")
	var providers []Completer

	for _, name := range cfg.Providers {
		switch name {
		case "openai", "groq":
			if cfg.OpenAIAPIKey == "" {
				log.Debugw("skipping provider without api key", "provider", name)
				continue
			}
			providers = append(providers, NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel))
		case "gemini":
			if cfg.GeminiAPIKey == "" {
				log.Debugw("skipping provider without api key", "provider", name)
				continue
			}
			gemini, err := NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
			if err != nil {
				log.Warnw("gemini unavailable", "error", err)
				continue
			}
			providers = append(providers, gemini)
		case "ollama":
			providers = append(providers, NewOllamaClient(cfg.OllamaHost, cfg.OllamaEmbedModel, cfg.OllamaModel))
		default:
			log.Warnw("unknown llm provider", "provider", name)
		}
	}

	chain := NewChain(providers...)
	log.Infow("llm chain ready", "providers", chain.Names())
	return chain
}
