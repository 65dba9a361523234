// Package limits resolves the effective resource limits and code template of a
// (problem, language) pair.
package limits

import "math"

// Template is a code template split into fragments. The submission body is placed
// between Head and Tail by the judge.
type Template struct {
	Head string `json:"head"`
	Body string `json:"body"`
	Tail string `json:"tail"`
}

// LanguageConfig holds the defaults of one language.
type LanguageConfig struct {
	ID                int64    `json:"id"`
	Code              string   `json:"code" validate:"required,max=32"`
	Name              string   `json:"name" validate:"required,max=64"`
	DefaultTimeFactor float64  `json:"default_time_factor" validate:"gt=0"`
	DefaultMemoryKB   int64    `json:"default_memory_kb" validate:"gt=0"`
	Template          Template `json:"template"`
}

// TemplateOverride replaces individual fragments. A nil fragment inherits.
type TemplateOverride struct {
	Head *string `json:"head,omitempty"`
	Body *string `json:"body,omitempty"`
	Tail *string `json:"tail,omitempty"`
}

// ProblemLanguageOverride refines a LanguageConfig for one problem. Nil fields inherit.
type ProblemLanguageOverride struct {
	ProblemID  int64            `json:"problem_id" validate:"gt=0"`
	LanguageID int64            `json:"language_id" validate:"gt=0"`
	TimeFactor *float64         `json:"time_factor,omitempty" validate:"omitempty,gt=0"`
	MemoryKB   *int64           `json:"memory_kb,omitempty" validate:"omitempty,gt=0"`
	Template   TemplateOverride `json:"template"`
}

// ProblemLimits are the base limits declared by a problem.
type ProblemLimits struct {
	TimeLimitMs   int64 `json:"time_limit_ms"`
	MemoryLimitKB int64 `json:"memory_limit_kb"`
}

// Effective is the resolved configuration a submission runs with.
type Effective struct {
	LanguageCode  string   `json:"language_code"`
	BaseTimeMs    int64    `json:"base_time_ms"`
	TimeFactor    float64  `json:"time_factor"`
	TimeLimitMs   int64    `json:"time_limit_ms"`
	MemoryLimitKB int64    `json:"memory_limit_kb"`
	Template      Template `json:"template"`
}

// Resolve combines base, lang and an optional override. Inputs are assumed to have
// passed ValidateLanguage and ValidateOverride when they were saved.
func Resolve(base ProblemLimits, lang LanguageConfig, override *ProblemLanguageOverride) Effective {
	factor := lang.DefaultTimeFactor
	memory := lang.DefaultMemoryKB
	tmpl := lang.Template

	if override != nil {
		if override.TimeFactor != nil {
			factor = *override.TimeFactor
		}
		if override.MemoryKB != nil {
			memory = *override.MemoryKB
		}
		tmpl = ResolveTemplate(lang.Template, override.Template)
	}

	return Effective{
		LanguageCode:  lang.Code,
		BaseTimeMs:    base.TimeLimitMs,
		TimeFactor:    factor,
		TimeLimitMs:   scaleTime(base.TimeLimitMs, factor),
		MemoryLimitKB: memory,
		Template:      tmpl,
	}
}

// ResolveTemplate resolves each fragment independently.
func ResolveTemplate(defaults Template, override TemplateOverride) Template {
	out := defaults
	if override.Head != nil {
		out.Head = *override.Head
	}
	if override.Body != nil {
		out.Body = *override.Body
	}
	if override.Tail != nil {
		out.Tail = *override.Tail
	}
	return out
}

func scaleTime(ms int64, factor float64) int64 {
	return int64(math.Round(float64(ms) * factor))
}
