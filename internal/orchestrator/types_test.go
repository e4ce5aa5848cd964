package orchestrator

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBootstrapResult_Failed(t *testing.T) {
	t.Parallel()

	r := BootstrapResult{
		Status: StatusError,
		Phases: map[string]PhaseResult{
			"postgres": {Name: "postgres", Status: StatusError, Error: "down"},
			"nats":     {Name: "nats", Status: StatusOK},
		},
	}
	assert.Equal(t, []string{"postgres"}, r.Failed())

	var empty BootstrapResult
	assert.Empty(t, empty.Failed())
}

func TestPhaseResult_OmitsEmptyError(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(PhaseResult{Name: "nats", Status: StatusOK})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"nats","status":"ok"}`, string(data))
}
