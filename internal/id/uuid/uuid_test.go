package uuid

import (
	"testing"

	goUUID "github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestGeneratorNewID(t *testing.T) {
	t.Parallel()

	gen := New()
	id1, err := gen.NewID()
	require.NoError(t, err)
	id2, err := gen.NewID()
	require.NoError(t, err)
	require.NotEqual(t, id1, id2)

	parsed, err := goUUID.Parse(id1)
	require.NoError(t, err)
	require.Equal(t, goUUID.Version(7), parsed.Version())
	require.Less(t, id1, id2, "v7 ids sort by creation time")
}

func TestNewRequestID(t *testing.T) {
	t.Parallel()

	_, err := goUUID.Parse(New().NewRequestID())
	require.NoError(t, err)
}

func TestCanonical(t *testing.T) {
	t.Parallel()

	got, err := Canonical("0191E7A0-0000-7000-8000-000000000001")
	require.NoError(t, err)
	require.Equal(t, "0191e7a0-0000-7000-8000-000000000001", got)

	_, err = Canonical("not-a-uuid")
	require.ErrorIs(t, err, ErrInvalidID)
}
