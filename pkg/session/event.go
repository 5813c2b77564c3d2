package session

// Event is emitted by Session.Turn. A turn emits any number of
// EventFragment followed by exactly one EventDone or EventError.
type Event interface {
	isEvent()
}

// EventFragment carries one streamed delta of the answer.
type EventFragment struct {
	Text string
}

// EventDone carries the final answer.
type EventDone struct {
	Answer string
}

// EventError ends a turn that could not run or whose answer was not
// persisted.
type EventError struct {
	Err error
}

func (EventFragment) isEvent() {}
func (EventDone) isEvent()     {}
func (EventError) isEvent()    {}
