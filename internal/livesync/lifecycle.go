package livesync

import (
	"fmt"
	"time"
)

// State is the coarse connection health exposed to the UI.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateError        State = "error"
)

// Status is a channel status signal reported by a Stream.
type Status string

const (
	StatusSubscribed   Status = "SUBSCRIBED"
	StatusChannelError Status = "CHANNEL_ERROR"
	StatusTimedOut     Status = "TIMED_OUT"
	StatusClosed       Status = "CLOSED"
)

const DefaultMaxReconnectAttempts = 5

type InputKind int

const (
	// InputConnect is a mount or a scheduled retry.
	InputConnect InputKind = iota
	InputStatus
)

type Input struct {
	Kind   InputKind
	Status Status
	Err    error
}

func ConnectInput() Input {
	return Input{Kind: InputConnect}
}

func StatusInput(status Status, err error) Input {
	return Input{Kind: InputStatus, Status: status, Err: err}
}

type EffectKind int

const (
	EffectNone EffectKind = iota
	EffectOpen
	EffectRetry
	EffectGiveUp
)

type Effect struct {
	Kind  EffectKind
	Delay time.Duration
}

// Machine is the connection lifecycle. It holds no timers; Step only
// describes what the caller should schedule.
type Machine struct {
	State       State
	Attempts    int
	MaxAttempts int
	Err         string
	GaveUp      bool
}

func NewMachine(maxAttempts int) Machine {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxReconnectAttempts
	}
	return Machine{State: StateDisconnected, MaxAttempts: maxAttempts}
}

// Backoff returns 2^attempt seconds.
func Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 30 {
		attempt = 30
	}
	return time.Duration(1<<attempt) * time.Second
}

// Step applies one input and returns the next machine and the effect to run.
func Step(m Machine, in Input) (Machine, Effect) {
	switch in.Kind {
	case InputConnect:
		m.State = StateConnecting
		return m, Effect{Kind: EffectOpen}
	case InputStatus:
		switch in.Status {
		case StatusSubscribed:
			m.State = StateConnected
			m.Attempts = 0
			m.Err = ""
			m.GaveUp = false
			return m, Effect{}
		case StatusChannelError, StatusTimedOut:
			m.State = StateError
			if m.GaveUp {
				return m, Effect{}
			}
			m.Attempts++
			if m.Attempts >= m.MaxAttempts {
				m.GaveUp = true
				m.Err = fmt.Sprintf("connection lost after %d attempts", m.Attempts)
				return m, Effect{Kind: EffectGiveUp}
			}
			m.Err = describeFailure(in)
			return m, Effect{Kind: EffectRetry, Delay: Backoff(m.Attempts - 1)}
		case StatusClosed:
			m.State = StateDisconnected
			return m, Effect{}
		}
	}
	return m, Effect{}
}

// Reset restores the full reconnect budget after a manual recovery.
func Reset(m Machine) Machine {
	m.Attempts = 0
	m.GaveUp = false
	m.Err = ""
	return m
}

func describeFailure(in Input) string {
	if in.Err != nil {
		return fmt.Sprintf("%s: %v", in.Status, in.Err)
	}
	return string(in.Status)
}
