package result_test

import (
	"math/rand"
	"testing"

	"ucode/internal/judge/result"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusTableComplete(t *testing.T) {
	seen := make(map[byte]result.StatusCode)
	for _, code := range result.All() {
		require.True(t, code.Known())
		assert.NotEmpty(t, code.Label(), "code %d has no label", code)
		assert.NotEqual(t, result.SeverityUnknown, code.Severity())
		if prev, ok := seen[code.Char()]; ok {
			t.Fatalf("char %q used by %v and %v", code.Char(), prev, code)
		}
		seen[code.Char()] = code
	}
	assert.Len(t, seen, 8)
}

func TestDigitTable(t *testing.T) {
	tests := []struct {
		char byte
		want result.StatusCode
	}{
		{'0', result.Passed},
		{'1', result.TimeLimitExceeded},
		{'2', result.MemoryLimitExceeded},
		{'3', result.RuntimeError},
		{'4', result.InternalError},
		{'5', result.WrongAnswer},
		{'6', result.CompilationError},
		{'7', result.Skipped},
	}
	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			assert.Equal(t, tt.char, tt.want.Char())
			assert.Equal(t, []result.StatusCode{tt.want}, result.Decode(string(tt.char)))
		})
	}
}

func TestEncode(t *testing.T) {
	got, err := result.Encode([]result.StatusCode{result.Passed, result.WrongAnswer, result.TimeLimitExceeded, result.Passed})
	require.NoError(t, err)
	assert.Equal(t, "0510", got)
}

func TestEncodeEmpty(t *testing.T) {
	_, err := result.Encode(nil)
	assert.ErrorIs(t, err, result.ErrEmptyOutcomes)

	_, err = result.Encode([]result.StatusCode{})
	assert.ErrorIs(t, err, result.ErrEmptyOutcomes)
}

func TestEncodeRejectsUnknown(t *testing.T) {
	_, err := result.Encode([]result.StatusCode{result.Passed, result.Unknown})
	assert.ErrorIs(t, err, result.ErrUnknownStatus)

	_, err = result.Encode([]result.StatusCode{result.StatusCode(42)})
	assert.ErrorIs(t, err, result.ErrUnknownStatus)
}

func TestDecodeIsPermissive(t *testing.T) {
	got := result.Decode("0x9\x005")
	want := []result.StatusCode{result.Passed, result.Unknown, result.Unknown, result.Unknown, result.WrongAnswer}
	assert.Equal(t, want, got)
	assert.Equal(t, "Unknown", result.Unknown.Label())
	assert.Equal(t, result.SeverityUnknown, result.Unknown.Severity())
}

func TestDecodeEmpty(t *testing.T) {
	assert.Empty(t, result.Decode(""))
}

func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	all := result.All()
	for n := 1; n <= 64; n++ {
		xs := make([]result.StatusCode, n)
		for i := range xs {
			xs[i] = all[rng.Intn(len(all))]
		}
		encoded, err := result.Encode(xs)
		require.NoError(t, err)
		require.Len(t, encoded, n)
		require.Equal(t, xs, result.Decode(encoded))
	}
}

func TestDecodeOutcomes(t *testing.T) {
	got := result.DecodeOutcomes("03")
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Index)
	assert.Equal(t, result.Passed, got[0].Status)
	assert.Equal(t, result.SeveritySuccess, got[0].Severity)
	assert.Equal(t, 2, got[1].Index)
	assert.Equal(t, "Runtime Error", got[1].Label)
	assert.Nil(t, got[1].Input)
}

func TestCountPassed(t *testing.T) {
	assert.Equal(t, 0, result.CountPassed(""))
	assert.Equal(t, 4, result.CountPassed("0050?0"))
}
