package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrProtoVersion    = "E_PROTO_VERSION"

	// Session state.
	ErrUnknownRef = "E_UNKNOWN_REF"
	ErrBusy       = "E_BUSY"

	// Posting layer.
	ErrBadRequest     = "E_BAD_REQUEST"
	ErrEmptySelection = "E_EMPTY_SELECTION"
	ErrNoDestination  = "E_NO_DESTINATION"
	ErrNotFound       = "E_NOT_FOUND"
	ErrOutOfRange     = "E_OUT_OF_RANGE"
	ErrInternal       = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrProtoVersion:    {},
	ErrUnknownRef:      {},
	ErrBusy:            {},
	ErrBadRequest:      {},
	ErrEmptySelection:  {},
	ErrNoDestination:   {},
	ErrNotFound:        {},
	ErrOutOfRange:      {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
