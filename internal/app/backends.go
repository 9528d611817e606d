package app

import (
	"github.com/ent0n29/anuva/internal/config"
	"github.com/ent0n29/anuva/internal/provider"
	"github.com/ent0n29/anuva/internal/speech"
)

// resolveProvider returns a nil Provider when no credential is configured so
// the orchestrator takes the fallback path for every turn.
func resolveProvider(cfg config.Config) (provider.Provider, string, error) {
	if !cfg.ProviderConfigured() {
		return nil, "fallback", nil
	}
	p, err := provider.NewOpenAIProvider(provider.OpenAIConfig{
		APIKey:      cfg.OpenAIAPIKey,
		BaseURL:     cfg.OpenAIBaseURL,
		Model:       cfg.OpenAIModel,
		Temperature: cfg.OpenAITemperature,
		MaxTokens:   cfg.OpenAIMaxTokens,
		MaxRetries:  cfg.ProviderMaxRetries,
	})
	if err != nil {
		return nil, "", err
	}
	return p, "openai:" + cfg.OpenAIModel, nil
}

func resolveSynthesizer(cfg config.Config) (speech.Synthesizer, string) {
	if !cfg.TTSConfigured() {
		return nil, "disabled"
	}
	return speech.NewElevenLabsSynthesizer(speech.ElevenLabsConfig{
		APIKey:    cfg.ElevenLabsAPIKey,
		WSBaseURL: cfg.ElevenLabsWSBaseURL,
		ModelID:   cfg.ElevenLabsTTSModel,
	}), "elevenlabs"
}
