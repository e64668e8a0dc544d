// Package jobs holds the long-running services of the API process and
// the suture supervisor that restarts them.
package jobs

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"
)

// NewSupervisor returns a supervisor that logs restarts and backoffs.
func NewSupervisor(name string, log zerolog.Logger) *suture.Supervisor {
	log = log.With().Str("supervisor", name).Logger()
	return suture.New(name, suture.Spec{
		EventHook: func(ev suture.Event) {
			log.Warn().Int("event_type", int(ev.Type())).Fields(ev.Map()).Msg(ev.String())
		},
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		Timeout:          10 * time.Second,
	})
}
