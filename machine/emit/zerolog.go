package emit

import "github.com/rs/zerolog"

// ZerologEmitter writes events as structured zerolog entries. Failures and
// stalls log at error level, everything else at debug, so a production
// logger at info level stays quiet unless something goes wrong.
type ZerologEmitter struct {
	log zerolog.Logger
}

// NewZerologEmitter creates an emitter writing through the given logger.
func NewZerologEmitter(log zerolog.Logger) *ZerologEmitter {
	return &ZerologEmitter{log: log}
}

// Emit logs the event.
func (z *ZerologEmitter) Emit(event Event) {
	var ev *zerolog.Event
	switch event.Msg {
	case "path_failed", "execution_failed", "checkpoint_failed":
		ev = z.log.Error()
	case "execution_completed", "barrier_merged":
		ev = z.log.Info()
	default:
		ev = z.log.Debug()
	}
	ev = ev.Str("execution", event.ExecutionID).Int("step", event.Step)
	if event.PathID != "" {
		ev = ev.Str("path", event.PathID)
	}
	if event.NodeID != "" {
		ev = ev.Str("node", event.NodeID)
	}
	for k, v := range event.Meta {
		ev = ev.Interface(k, v)
	}
	ev.Msg(event.Msg)
}
