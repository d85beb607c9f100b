package common

const (
	// AuthorizationHeaderName carries "Bearer <token>" on outbound requests.
	AuthorizationHeaderName = "Authorization"

	// BearerPrefix precedes the session token or, before a session exists,
	// the auth fingerprint.
	BearerPrefix = "Bearer "

	// BatchChunkSize is the number of ids or records sent per batch request.
	BatchChunkSize = 10

	// MaxItemSize is the largest serialized record the store accepts, in bytes.
	MaxItemSize = 50000

	// KeyDerivationIterations is the PBKDF2 iteration count for account keys.
	KeyDerivationIterations = 100000
)
