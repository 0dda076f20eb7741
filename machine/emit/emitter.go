package emit

// Emitter receives observability events from machine executions.
//
// Implementations must be safe for concurrent use and must not panic:
// a misbehaving backend should drop or buffer events, never crash the
// execution that emitted them. Emit is called synchronously on the
// execution's step path, so slow backends should hand off asynchronously.
type Emitter interface {
	Emit(event Event)
}

// MultiEmitter fans every event out to several backends in order.
type MultiEmitter []Emitter

// Emit forwards the event to each wrapped emitter.
func (m MultiEmitter) Emit(event Event) {
	for _, e := range m {
		if e != nil {
			e.Emit(event)
		}
	}
}
