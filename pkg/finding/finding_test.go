package finding

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusText(t *testing.T) {
	for _, s := range []Status{NotVulnerable, Vulnerable, Potential, ConfirmationFailed} {
		b, err := s.MarshalText()
		require.NoError(t, err)

		var got Status
		require.NoError(t, got.UnmarshalText(b))
		assert.Equal(t, s, got)
	}

	var s Status
	assert.Error(t, s.UnmarshalText([]byte("maybe")))
	assert.Equal(t, "status(42)", Status(42).String())
}

func TestVerdictConstructors(t *testing.T) {
	assert.True(t, Clean().Terminal())
	assert.False(t, Suspect("reflected").Terminal())

	f := Failed(errors.New("connection refused"))
	assert.Equal(t, NotVulnerable, f.Status)
	assert.Equal(t, "not_vulnerable (connection refused)", f.String())

	assert.Equal(t, "vulnerable: root:x:0:", Confirmed("root:x:0:").String())
	assert.Equal(t, ConfirmationFailed, Unconfirmable("browser crashed").Status)
}
