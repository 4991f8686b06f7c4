package circuitbreaker

type Event string

const (
	EventOpen     Event = "open"
	EventHalfOpen Event = "half-open"
	EventClosed   Event = "closed"
	EventSuccess  Event = "success"
	EventFailure  Event = "failure"
)

// Listener observes a breaker. It is called synchronously, outside the
// breaker's lock, with the state the breaker was in right after the event.
type Listener interface {
	OnEvent(event Event, state State)
}

// ListenerFunc adapts a plain function to the Listener interface.
type ListenerFunc func(event Event, state State)

func (f ListenerFunc) OnEvent(event Event, state State) {
	f(event, state)
}

type notification struct {
	event Event
	state State
}

func notify(listeners []Listener, events []notification) {
	for _, n := range events {
		for _, l := range listeners {
			l.OnEvent(n.event, n.state)
		}
	}
}
