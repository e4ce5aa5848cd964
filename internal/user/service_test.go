package user

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bng-src/spring-cloud-netflix-demo/internal/metrics"
)

type errDirectory struct{ err error }

func (e errDirectory) Lookup(context.Context, string) (Info, error) { return Info{}, e.err }

func TestService_GetUserInfo(t *testing.T) {
	t.Parallel()

	dir := NewMemoryDirectory(
		ParseInfo("42", "Ada Lovelace <ada@example.com>"),
		ParseInfo("a/b", "Slash User"),
		ParseInfo(" ", "Blank"),
	)

	tests := []struct {
		name    string
		dir     Directory
		uid     string
		want    string
		wantErr error
	}{
		{name: "found", dir: dir, uid: "42", want: "Ada Lovelace <ada@example.com>"},
		{name: "uid passed through unchanged", dir: dir, uid: "a/b", want: "Slash User"},
		{name: "whitespace uid is not trimmed", dir: dir, uid: " ", want: "Blank"},
		{name: "not found", dir: dir, uid: "43", wantErr: ErrNotFound},
		{name: "empty uid", dir: dir, uid: "", wantErr: ErrInvalidUID},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			svc := NewService(tc.dir, nil, nil)
			got, err := svc.GetUserInfo(context.Background(), tc.uid)
			if tc.wantErr != nil {
				assert.True(t, errors.Is(err, tc.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestService_BackendErrorIsWrapped(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	svc := NewService(errDirectory{err: boom}, nil, nil)

	_, err := svc.GetUserInfo(context.Background(), "42")
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestService_RecordsLookupOutcomes(t *testing.T) {
	t.Parallel()

	m := metrics.New("test")
	svc := NewService(NewMemoryDirectory(ParseInfo("1", "One")), m, nil)
	ctx := context.Background()

	_, _ = svc.GetUserInfo(ctx, "1")
	_, _ = svc.GetUserInfo(ctx, "1")
	_, _ = svc.GetUserInfo(ctx, "2")
	_, _ = svc.GetUserInfo(ctx, "")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Lookups().WithLabelValues(metrics.OutcomeFound)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Lookups().WithLabelValues(metrics.OutcomeNotFound)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Lookups().WithLabelValues(metrics.OutcomeInvalid)))
}
