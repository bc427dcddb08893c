package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScripted(t *testing.T) {
	input := NewScripted("first", "second")

	answer, err := input.ReadSecret("one: ")
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), answer)

	// Wiping the returned slice must not affect later reads.
	for i := range answer {
		answer[i] = 0
	}

	answer, err = input.ReadSecret("two: ")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), answer)
	assert.Equal(t, 0, input.Remaining())

	_, err = input.ReadSecret("three: ")
	assert.ErrorIs(t, err, ErrScriptExhausted)

	assert.Equal(t, []string{"one: ", "two: ", "three: "}, input.Prompts())
}

func TestEnv(t *testing.T) {
	fallback := NewScripted("from prompt")

	t.Setenv("KEY_CUSTODY_TEST_PASSWORD", "from env")
	input := NewEnv("KEY_CUSTODY_TEST_PASSWORD", fallback)

	answer, err := input.ReadSecret("Password: ")
	require.NoError(t, err)
	assert.Equal(t, []byte("from env"), answer)
	assert.Empty(t, fallback.Prompts(), "Fallback should not be asked when the variable is set")

	t.Setenv("KEY_CUSTODY_TEST_PASSWORD", "")
	answer, err = input.ReadSecret("Password: ")
	require.NoError(t, err)
	assert.Equal(t, []byte("from prompt"), answer, "Empty variable should defer to the fallback")
}
