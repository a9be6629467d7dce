package apiclient

import "github.com/rs/zerolog"

// Monitor observes every finalized Response. Monitors are read-only
// fan-out: they must not be relied upon to alter anything the caller can
// observe, and a panicking monitor can never fail the request.
type Monitor func(resp *Response)

// notifyMonitors invokes each monitor with the same finalized response.
// Every invocation runs in its own failure boundary: a panic is recovered
// and logged, and the remaining monitors still run.
func notifyMonitors(resp *Response, monitors []Monitor, logger zerolog.Logger) {
	for i, monitor := range monitors {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error().Int("monitor_index", i).Interface("panic", r).Msg("Monitor panicked; continuing with remaining monitors.")
				}
			}()
			monitor(resp)
		}()
	}
}
