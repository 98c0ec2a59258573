package events

import (
	"time"

	"github.com/kilianp07/ess/core/battery"
	"github.com/kilianp07/ess/core/model"
)

// PhaseEvent is published for each phase change of the live battery.
type PhaseEvent struct {
	Location string
	From     model.Phase
	To       model.Phase
	Reason   string
	At       time.Time
}

// StateEvent carries the snapshot committed by a command or tick.
type StateEvent struct {
	Location string
	Snapshot battery.Snapshot
	At       time.Time
}
