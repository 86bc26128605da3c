package sim

import "errors"

// Error kinds shared across the control plane. Callers classify with
// errors.Is; the HTTP layer maps them onto status codes.
var (
	ErrBadRequest  = errors.New("bad request")
	ErrNotFound    = errors.New("not found")
	ErrOutOfBounds = errors.New("mw outside asset limits")

	ErrAtMinSoc       = errors.New("asset at minimum soc")
	ErrAtMaxSoc       = errors.New("asset at maximum soc")
	ErrNoOnlineAssets = errors.New("no online assets at site")

	ErrAgentNotConnected = errors.New("agent not connected")
	ErrMailboxFull       = errors.New("agent mailbox full")

	ErrJournalUnavailable = errors.New("journal unavailable")
)
