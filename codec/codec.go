package codec

// Codec encodes/decodes values V to []byte for storage and transport.
// Encode/Decode must round-trip: Decode(Encode(v)) == v for every valid v.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
