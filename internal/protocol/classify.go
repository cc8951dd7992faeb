package protocol

import "strings"

// Classify maps a raw inbound message to an Event. It never panics; a
// malformed RESULTS frame becomes a failure event carrying a *ProtocolError.
func Classify(raw string) Event {
	switch {
	case raw == msgReady:
		return Ready()
	case raw == msgRunning:
		return Running()
	case strings.HasPrefix(raw, resultsPrefix):
		p, err := ParsePayload([]byte(raw[len(resultsPrefix):]))
		if err != nil {
			return Failed(&ProtocolError{Raw: raw, Err: err})
		}
		return Results(p)
	default:
		return Unknown(raw)
	}
}
