// internal/providerfactory/factory.go
package providerfactory

import (
	"fmt"
	"strings"

	"github.com/mwiater/edgeprompt/internal/appconfig"
	"github.com/mwiater/edgeprompt/internal/logging"
	"github.com/mwiater/edgeprompt/internal/metrics"
	"github.com/mwiater/edgeprompt/internal/providers"
	"github.com/mwiater/edgeprompt/internal/providers/anthropic"
	"github.com/mwiater/edgeprompt/internal/providers/llamacpp"
	"github.com/mwiater/edgeprompt/internal/providers/mock"
	"github.com/mwiater/edgeprompt/internal/providers/ollama"
	"github.com/mwiater/edgeprompt/internal/providers/openai"
)

// defaultLMStudioURL is LM Studio's OpenAI-compatible endpoint.
const defaultLMStudioURL = "http://localhost:1234/v1"

// NewExecutor selects and configures the executor for model based on its
// provider, and wraps it with metrics collection when recorder is non-nil.
func NewExecutor(model appconfig.Model, cfg *appconfig.Config, recorder *metrics.Recorder) (providers.Executor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config provided to provider factory")
	}

	endpoint := providers.Endpoint{
		Name:     model.ID,
		URL:      strings.TrimSpace(model.URL),
		Model:    model.Model,
		APIKey:   model.APIKey(),
		Timeout:  cfg.RequestTimeout(),
		Defaults: model.GenerationDefaults(),
		Debug:    cfg.Debug,
	}

	var (
		exec providers.Executor
		err  error
	)
	switch provider := appconfig.NormalizeProvider(model.Provider); provider {
	case appconfig.ProviderOllama:
		exec = ollama.New(endpoint)
	case appconfig.ProviderLlamaCpp:
		exec = llamacpp.New(endpoint)
	case appconfig.ProviderOpenAI:
		exec, err = openai.New(endpoint)
	case appconfig.ProviderLMStudio:
		if endpoint.URL == "" {
			endpoint.URL = defaultLMStudioURL
		}
		exec, err = openai.New(endpoint)
	case appconfig.ProviderAnthropic:
		exec, err = anthropic.New(endpoint)
	case appconfig.ProviderMock:
		exec = mock.New(model.Model)
	default:
		return nil, fmt.Errorf("model %q: unsupported provider %q", model.ID, model.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("model %q: %w", model.ID, err)
	}
	logging.LogEvent("executor ready: id=%s provider=%s model=%s", model.ID, appconfig.NormalizeProvider(model.Provider), model.Model)

	if recorder != nil {
		exec = metrics.NewInstrumentedExecutor(exec, recorder)
	}
	return exec, nil
}

// NewDryRunExecutor returns the offline executor used in place of model
// during a dry run.
func NewDryRunExecutor(model appconfig.Model, recorder *metrics.Recorder) providers.Executor {
	name := model.Model
	if name == "" {
		name = model.ID
	}
	var exec providers.Executor = mock.New(name)
	if recorder != nil {
		exec = metrics.NewInstrumentedExecutor(exec, recorder)
	}
	return exec
}
