package user

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bng-src/spring-cloud-netflix-demo/internal/config"
)

func TestInfoString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		info Info
		want string
	}{
		{"name and email", Info{UID: "42", Name: "Ada", Email: "ada@example.com"}, "Ada <ada@example.com>"},
		{"name only", Info{UID: "42", Name: "Ada"}, "Ada"},
		{"email only", Info{UID: "42", Email: "ada@example.com"}, "<ada@example.com>"},
		{"empty record falls back to uid", Info{UID: "42"}, "42"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, tc.info.String())
		})
	}
}

func TestParseInfo(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Info{UID: "1", Name: "Ada Lovelace", Email: "ada@example.com"},
		ParseInfo("1", "  Ada Lovelace <ada@example.com> "))
	assert.Equal(t, Info{UID: "2", Name: "Grace"}, ParseInfo("2", "Grace"))
	assert.Equal(t, Info{UID: "3", Email: "x@y"}, ParseInfo("3", "<x@y>"))
	assert.Equal(t, Info{UID: "4"}, ParseInfo("4", ""))
}

func TestMemoryDirectory(t *testing.T) {
	t.Parallel()

	d := NewMemoryDirectory(ParseInfo("42", "Ada <ada@example.com>"))
	assert.Equal(t, 1, d.Len())

	info, err := d.Lookup(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "Ada <ada@example.com>", info.String())

	_, err = d.Lookup(context.Background(), "43")
	assert.True(t, errors.Is(err, ErrNotFound))

	d.Put(Info{UID: "43", Name: "Grace"})
	info, err = d.Lookup(context.Background(), "43")
	require.NoError(t, err)
	assert.Equal(t, "Grace", info.Name)
	assert.Equal(t, 2, d.Len())
}

func TestParseSeed_KeepsUIDCase(t *testing.T) {
	t.Parallel()

	d := NewMemoryDirectory(ParseSeed([]config.SeedUser{
		{UID: "User-ABC", Info: "Grace Hopper <grace@example.com>"},
		{UID: "user-abc", Info: "lower"},
	})...)
	assert.Equal(t, 2, d.Len())

	info, err := d.Lookup(context.Background(), "User-ABC")
	require.NoError(t, err)
	assert.Equal(t, "Grace Hopper <grace@example.com>", info.String())

	info, err = d.Lookup(context.Background(), "user-abc")
	require.NoError(t, err)
	assert.Equal(t, "lower", info.String())
}
