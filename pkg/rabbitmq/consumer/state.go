package consumer

import "fmt"

// State is the position of the setup state machine. Transitions are strictly
// sequential; a failed stage leaves the machine in the last reached state.
type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateChannelOpen
	StateExchangeAsserted
	StateQueueAsserted
	StateBound
	StateConsuming
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateChannelOpen:
		return "channel-open"
	case StateExchangeAsserted:
		return "exchange-asserted"
	case StateQueueAsserted:
		return "queue-asserted"
	case StateBound:
		return "bound"
	case StateConsuming:
		return "consuming"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Stage names the setup transition that produced a SetupError.
type Stage string

const (
	StageChannel  Stage = "open channel"
	StageExchange Stage = "assert exchange"
	StageQueue    Stage = "assert queue"
	StageBind     Stage = "bind queue"
	StageConsume  Stage = "start consume"
)

// SetupError carries the failed stage so callers never have to guess which
// transition broke.
type SetupError struct {
	Stage Stage
	Err   error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("rabbitmq consumer - %s: %v", e.Stage, e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}
