package protocol

// Status codes carried on responses. StatusOK is the only success code;
// everything else maps onto the runtime's failure taxonomy.
const (
	StatusOK = "OK"

	ErrBadRequest       = "E_BAD_REQUEST"
	ErrNotFound         = "E_NOT_FOUND"
	ErrAuthority        = "E_AUTHORITY"
	ErrTimeout          = "E_TIMEOUT"
	ErrApplicationError = "E_APPLICATION"
	ErrInternal         = "E_INTERNAL"
)

var knownCodes = map[string]bool{
	StatusOK:            true,
	ErrBadRequest:       true,
	ErrNotFound:         true,
	ErrAuthority:        true,
	ErrTimeout:          true,
	ErrApplicationError: true,
	ErrInternal:         true,
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	return knownCodes[code]
}

// Retryable reports whether a failed command should be resent by the
// reliable-RPC path. Authority flaps and timeouts are transient; the rest
// indicate a request that will never succeed as-is.
func Retryable(code string) bool {
	return code == ErrAuthority || code == ErrTimeout
}
