package sha256

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHex_Deterministic(t *testing.T) {
	t.Parallel()

	a := Hex([]byte("moltpulse"))
	b := Hex([]byte("moltpulse"))
	require.Equal(t, a, b)
	require.Len(t, a, 64)
}

func TestShort_StablePrefix(t *testing.T) {
	t.Parallel()

	full := Hex([]byte("Ad Age|https://adage.com/article"))
	short := Short([]byte("Ad Age|https://adage.com/article"))
	require.Len(t, short, 16)
	require.Equal(t, full[:16], short)
}

func TestShort_DistinctInputs(t *testing.T) {
	t.Parallel()

	require.NotEqual(t, Short([]byte("a")), Short([]byte("b")))
}
