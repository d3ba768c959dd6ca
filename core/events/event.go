package events

// Event is a structured record of a committed state change. Every mutating
// ledger or rebalancer operation emits exactly one event after its effects
// are persisted, forming the externally observable history of the system.
type Event interface {
	EventType() string
	Attributes() map[string]string
}

// Emitter forwards events to downstream subscribers such as indexers.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter satisfies the Emitter interface while discarding all events.
// Engines fall back to it when no emitter has been wired.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Recorder collects emitted events in order. It is intended for tests and
// for the simulator, which inspects the log after each round.
type Recorder struct {
	Events []Event
}

// Emit implements the Emitter interface.
func (r *Recorder) Emit(evt Event) {
	if r == nil || evt == nil {
		return
	}
	r.Events = append(r.Events, evt)
}
