package jobcore

import (
	"github.com/rs/zerolog"

	"reconctl/internal/repository"
)

// EventBus is the publish side of the event transport. internal/eventbus.Hub
// satisfies this.
type EventBus interface {
	Publish(msg string)
}

// State aggregates the control plane's shared collaborators: built once
// in main, then passed around by pointer. No package-level singletons.
type State struct {
	Repo repository.Repository
	Bus  EventBus
	Sem  *Semaphore
	Log  zerolog.Logger

	// MaxDiscoverThreads bounds concurrent liveness probes within a
	// single discovery job.
	MaxDiscoverThreads int
}

// NewState builds a State with the given collaborators.
func NewState(repo repository.Repository, bus EventBus, maxThreads, maxDiscoverThreads int, log zerolog.Logger) *State {
	return &State{
		Repo:               repo,
		Bus:                bus,
		Sem:                NewSemaphore(maxThreads),
		Log:                log,
		MaxDiscoverThreads: maxDiscoverThreads,
	}
}
