package rpc

// UnknownKey is returned by key extractors when the transport did not
// provide the needed metadata.
const UnknownKey = "unknown"

// KeyFunc maps a request to the identity used to partition admission
// accounting. A KeyFunc must be pure and must not block.
type KeyFunc func(req *Request) string

// ByRemoteAddress keys requests by the caller's remote host.
func ByRemoteAddress() KeyFunc {
	return func(req *Request) string {
		if req.Connection.RemoteHost == "" {
			return UnknownKey
		}
		return req.Connection.RemoteHost
	}
}

// ByRemotePublicKey keys requests by the caller's public key.
func ByRemotePublicKey() KeyFunc {
	return func(req *Request) string {
		if k := req.Connection.PublicKeyString(); k != "" {
			return k
		}
		return UnknownKey
	}
}

// KeyStrategy names a built-in key extractor.
type KeyStrategy string

const (
	// KeyByAddress selects ByRemoteAddress.
	KeyByAddress KeyStrategy = "ip"

	// KeyByPublicKey selects ByRemotePublicKey.
	KeyByPublicKey KeyStrategy = "public_key"
)

// KeyFuncFor returns the extractor for a named strategy, or false if the
// strategy is unknown.
func KeyFuncFor(strategy KeyStrategy) (KeyFunc, bool) {
	switch strategy {
	case KeyByAddress:
		return ByRemoteAddress(), true
	case KeyByPublicKey:
		return ByRemotePublicKey(), true
	default:
		return nil, false
	}
}
