package auction

import (
	"time"

	"gavel-auction-engine/internal/domain/shared"
)

// Cause identifies who or what asked for a transition
type Cause string

const (
	// CauseSchedule is the clock reaching start or end time
	CauseSchedule Cause = "schedule"
	// CauseActivation is an explicit request to open ahead of start time
	CauseActivation Cause = "activation"
	// CauseModeration is an external moderation action
	CauseModeration Cause = "moderation"
)

type edge struct {
	from Status
	to   Status
}

// legalEdges maps every allowed edge to the causes that may trigger it.
var legalEdges = map[edge][]Cause{
	{StatusScheduled, StatusOpen}:      {CauseSchedule, CauseActivation},
	{StatusScheduled, StatusCancelled}: {CauseModeration},
	{StatusOpen, StatusCancelled}:      {CauseModeration},
	{StatusOpen, StatusClosing}:        {CauseSchedule},
	{StatusClosing, StatusClosed}:      {CauseSchedule},
}

// CanTransition checks an edge against the lifecycle table.
func CanTransition(from, to Status, cause Cause) error {
	if from == StatusClosed && to == StatusClosed {
		return shared.ErrAlreadyClosed
	}
	causes, ok := legalEdges[edge{from, to}]
	if !ok {
		return shared.ErrInvalidTransition
	}
	for _, c := range causes {
		if c == cause {
			return nil
		}
	}
	return shared.ErrInvalidTransition
}

// Transition moves the auction to target and bumps the version. Clock-driven
// edges are refused until their instant has passed.
func (a *Auction) Transition(target Status, cause Cause, now time.Time) error {
	if err := CanTransition(a.Status, target, cause); err != nil {
		return err
	}

	if cause == CauseSchedule {
		switch target {
		case StatusOpen:
			if now.Before(a.StartTime) {
				return shared.ErrNotYetDue
			}
		case StatusClosing:
			if now.Before(a.EndTime) {
				return shared.ErrNotYetDue
			}
		}
	}

	a.Status = target
	a.touch(now)
	return nil
}
