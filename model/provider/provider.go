// Package provider constructs a model.Model from configuration.
package provider

import (
	"context"
	"fmt"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/agentcookbook/config"
	"github.com/hupe1980/agentcookbook/model"
	"github.com/hupe1980/agentcookbook/model/anthropic"
	"github.com/hupe1980/agentcookbook/model/gemini"
	"github.com/hupe1980/agentcookbook/model/openai"
)

// Supported provider names.
const (
	Gemini    = "gemini"
	OpenAI    = "openai"
	Anthropic = "anthropic"
	Mock      = "mock"
)

// New returns the adapter selected by cfg.Provider. An empty provider means
// gemini.
func New(ctx context.Context, cfg config.ModelConfig) (model.Model, error) {
	switch strings.ToLower(cfg.Provider) {
	case Gemini, "":
		return gemini.NewModel(ctx, func(o *gemini.Options) {
			if cfg.Name != "" {
				o.Model = cfg.Name
			}
			o.APIKey = cfg.APIKey
			o.UseVertexAI = cfg.UseVertexAI
			o.Project = cfg.Project
			if cfg.Location != "" {
				o.Location = cfg.Location
			}
			o.BaseURL = cfg.BaseURL
		})
	case OpenAI:
		return openai.NewModel(func(o *openai.Options) {
			if cfg.Name != "" {
				o.Model = cfg.Name
			}
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
		}), nil
	case Anthropic:
		return anthropic.NewModel(func(o *anthropic.Options) {
			if cfg.Name != "" {
				o.Model = anthropicsdk.Model(cfg.Name)
			}
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
		}), nil
	case Mock:
		name := cfg.Name
		if name == "" {
			name = "mock-model"
		}
		return model.NewMockModel(name, Mock), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}

// NewLive is like New but requires live (bidirectional) support.
func NewLive(ctx context.Context, cfg config.ModelConfig) (model.LiveModel, error) {
	m, err := New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	lm, ok := m.(model.LiveModel)
	if !ok {
		return nil, fmt.Errorf("model provider %q does not support live connections", cfg.Provider)
	}
	return lm, nil
}
