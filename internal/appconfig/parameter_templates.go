// internal/appconfig/parameter_templates.go
package appconfig

import (
	"strings"

	"github.com/mwiater/edgeprompt/internal/evaluation"
	"github.com/mwiater/edgeprompt/internal/providers"
)

// ProfileName identifies a parameter preset/profile.
type ProfileName string

const (
	ProfileGeneration ProfileName = "generation"
	ProfileValidation ProfileName = "validation"
	ProfilePersona    ProfileName = "persona"
	ProfileProxy      ProfileName = "proxy"
)

// ParamsForProfile selects a parameter profile by name.
// Behavior:
//   - empty string => Generation (default)
//   - unknown string => Generation (default)
func ParamsForProfile(name string) providers.GenerationParams {
	switch ProfileName(normalizeProfileName(name)) {
	case ProfileValidation:
		return evaluation.DefaultStageParams()
	case ProfilePersona:
		return DefaultPersonaParams()
	case ProfileProxy:
		return DefaultProxyParams()
	case ProfileGeneration:
		fallthrough
	default:
		return DefaultGenerationParams()
	}
}

// DefaultGenerationParams is used for question generation in every run.
func DefaultGenerationParams() providers.GenerationParams {
	return providers.GenerationParams{
		Temperature: ptrFloat(0.7),
		TopP:        ptrFloat(0.95),
		MaxTokens:   ptrInt(1024),
	}
}

// DefaultPersonaParams drive the simulated student answer. A little warmer
// than generation so answers vary between runs.
func DefaultPersonaParams() providers.GenerationParams {
	return providers.GenerationParams{
		Temperature: ptrFloat(0.8),
		TopP:        ptrFloat(0.95),
		MaxTokens:   ptrInt(768),
	}
}

// DefaultProxyParams are deterministic and JSON-constrained, like validation,
// with room for longer feedback.
func DefaultProxyParams() providers.GenerationParams {
	return providers.GenerationParams{
		Temperature: ptrFloat(0.0),
		MaxTokens:   ptrInt(768),
		Seed:        ptrInt64(42),
		JSONMode:    true,
	}
}

func normalizeProfileName(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	// allow a few friendly aliases
	switch s {
	case "", "default", "generate", "question", "question_generation":
		return string(ProfileGeneration)
	case "validate", "validator", "judge":
		return string(ProfileValidation)
	case "student", "answer":
		return string(ProfilePersona)
	case "quality", "reference":
		return string(ProfileProxy)
	default:
		return s
	}
}

// Pointer helpers (keeps structs clean + preserves unset vs explicitly set).
func ptrInt(v int) *int           { return &v }
func ptrInt64(v int64) *int64     { return &v }
func ptrFloat(v float64) *float64 { return &v }
