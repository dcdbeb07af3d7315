// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package firmware

import "fmt"

// State is a step of the transfer state machine
type State int

const (
	StateIdle State = iota
	StateSendingStart
	StateWaitingReset
	StateTransferring
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateSendingStart:
		return "SENDING_START"
	case StateWaitingReset:
		return "WAITING_RESET"
	case StateTransferring:
		return "TRANSFERRING"
	case StateCompleted:
		return "COMPLETED"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// Terminal reports whether no event follows this state
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Event is one record of a transfer's event stream. A stream holds progress
// records followed by exactly one Completed or Failed record.
type Event struct {
	State   State
	Percent int

	// Message is non-empty only until the first chunk is acknowledged
	Message string

	// Chunk is the last acknowledged chunk (1-based), Total the chunk count
	Chunk int
	Total int

	// Err is set on the Failed record
	Err error
}

// Terminal reports whether this is the final record of the stream
func (e Event) Terminal() bool {
	return e.State.Terminal()
}

func (e Event) String() string {
	switch {
	case e.State == StateFailed:
		return fmt.Sprintf("%s: %v", e.State, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s %3d%% %s", e.State, e.Percent, e.Message)
	default:
		return fmt.Sprintf("%s %3d%% chunk %d/%d", e.State, e.Percent, e.Chunk, e.Total)
	}
}
