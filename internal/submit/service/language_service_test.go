package service

import (
	"context"
	"testing"

	"ucode/internal/judge/limits"
	appErr "ucode/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(v float64) *float64 { return &v }

func TestSaveLanguage(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	lang, err := h.languages.SaveLanguage(ctx, SaveLanguageInput{
		Code:              " py ",
		Name:              "Python 3",
		DefaultTimeFactor: 3,
		DefaultMemoryKB:   524288,
	})
	require.NoError(t, err)
	assert.Equal(t, "py", lang.Code)
	assert.Equal(t, int64(2), lang.ID)

	// Updating keeps the id.
	lang, err = h.languages.SaveLanguage(ctx, SaveLanguageInput{Code: "py", Name: "Python 3.12", DefaultTimeFactor: 2.5, DefaultMemoryKB: 524288})
	require.NoError(t, err)
	assert.Equal(t, int64(2), lang.ID)
	assert.Equal(t, 2.5, h.langRepo.langs["py"].DefaultTimeFactor)
}

func TestSaveLanguage_Invalid(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	cases := []SaveLanguageInput{
		{Code: "", Name: "blank", DefaultTimeFactor: 1, DefaultMemoryKB: 1024},
		{Code: "go", Name: "Go", DefaultTimeFactor: 0, DefaultMemoryKB: 1024},
		{Code: "go", Name: "Go", DefaultTimeFactor: -1, DefaultMemoryKB: 1024},
		{Code: "go", Name: "Go", DefaultTimeFactor: 1, DefaultMemoryKB: 0},
	}
	for _, in := range cases {
		_, err := h.languages.SaveLanguage(ctx, in)
		require.Error(t, err)
		assert.Equal(t, appErr.LanguageConfigInvalid, appErr.GetCode(err))
	}
	_, ok := h.langRepo.langs["go"]
	assert.False(t, ok)
}

func TestResolve(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	resolved, err := h.languages.Resolve(ctx, 42, "cpp")
	require.NoError(t, err)
	assert.False(t, resolved.Overridden)
	assert.Equal(t, int64(1000), resolved.Effective.TimeLimitMs)
	assert.Equal(t, int64(262144), resolved.Effective.MemoryLimitKB)
	assert.Equal(t, int64(65536), resolved.ProblemBase.MemoryLimitKB)

	head := "#include <bits/stdc++.h>"
	_, err = h.languages.SaveOverride(ctx, SaveOverrideInput{
		ProblemID:    42,
		LanguageCode: "cpp",
		TimeFactor:   floatPtr(2.0),
		Template:     limits.TemplateOverride{Head: &head},
	})
	require.NoError(t, err)

	resolved, err = h.languages.Resolve(ctx, 42, "cpp")
	require.NoError(t, err)
	assert.True(t, resolved.Overridden)
	assert.Equal(t, int64(2000), resolved.Effective.TimeLimitMs)
	assert.Equal(t, int64(262144), resolved.Effective.MemoryLimitKB)
	assert.Equal(t, head, resolved.Effective.Template.Head)
	assert.Equal(t, "int main() {}", resolved.Effective.Template.Body)
}

func TestResolve_Errors(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.languages.Resolve(ctx, 42, "rust")
	assert.Equal(t, appErr.LanguageNotFound, appErr.GetCode(err))
	_, err = h.languages.Resolve(ctx, 7, "cpp")
	assert.Equal(t, appErr.ProblemNotSubmittable, appErr.GetCode(err))
	_, err = h.languages.Resolve(ctx, 0, "cpp")
	assert.Equal(t, appErr.ValidationFailed, appErr.GetCode(err))
}

func TestSaveOverride_Errors(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.languages.SaveOverride(ctx, SaveOverrideInput{ProblemID: 42, LanguageCode: "rust", TimeFactor: floatPtr(2)})
	assert.Equal(t, appErr.LanguageNotFound, appErr.GetCode(err))

	_, err = h.languages.SaveOverride(ctx, SaveOverrideInput{ProblemID: 99, LanguageCode: "cpp", TimeFactor: floatPtr(2)})
	assert.Equal(t, appErr.ProblemNotSubmittable, appErr.GetCode(err))

	_, err = h.languages.SaveOverride(ctx, SaveOverrideInput{ProblemID: 42, LanguageCode: "cpp", TimeFactor: floatPtr(0)})
	assert.Equal(t, appErr.LanguageConfigInvalid, appErr.GetCode(err))

	_, err = h.languages.SaveOverride(ctx, SaveOverrideInput{ProblemID: 42, LanguageCode: "cpp", MemoryKB: int64Ptr(-5)})
	assert.Equal(t, appErr.LanguageConfigInvalid, appErr.GetCode(err))

	assert.Empty(t, h.langRepo.overrides)
}
