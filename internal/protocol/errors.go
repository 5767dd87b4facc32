package protocol

// Codes carried in the X-Genoa-Error response header and the audit trail. Rejected player
// requests still answer with an empty 400 body, which is what clients act on.
const (
	// Request decoding/validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Authentication.
	ErrUnauthorized = "E_UNAUTHORIZED"
	ErrSessionTaken = "E_SESSION_TAKEN"

	// Workshop/inventory rule layer.
	ErrBadRequest   = "E_BAD_REQUEST"
	ErrNoResource   = "E_NO_RESOURCE"
	ErrSlotLocked   = "E_SLOT_LOCKED"
	ErrSlotBusy     = "E_SLOT_BUSY"
	ErrPriceChanged = "E_PRICE_CHANGED"
	ErrConflict     = "E_CONFLICT"
	ErrInternal     = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrUnauthorized:    {},
	ErrSessionTaken:    {},
	ErrBadRequest:      {},
	ErrNoResource:      {},
	ErrSlotLocked:      {},
	ErrSlotBusy:        {},
	ErrPriceChanged:    {},
	ErrConflict:        {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
