package orchestrator

import "sync"

// Status values used across BootstrapResult and PhaseResult.
const (
	StatusOK         = "ok"
	StatusError      = "error"
	StatusInProgress = "in-progress"
)

// BootstrapResult is the aggregate result of a bootstrap run. The embedded
// mutex guards Phases while phases write concurrently.
type BootstrapResult struct {
	sync.Mutex
	Status string                 `json:"status"`
	Phases map[string]PhaseResult `json:"phases"`
}

// PhaseResult is the outcome of a single phase.
type PhaseResult struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Failed lists the names of phases that did not succeed.
func (r *BootstrapResult) Failed() []string {
	r.Lock()
	defer r.Unlock()

	var names []string
	for name, p := range r.Phases {
		if p.Status != StatusOK {
			names = append(names, name)
		}
	}
	return names
}
