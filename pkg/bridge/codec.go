package bridge

// Codec translates canonical messages to and from the MeshCore serial wire
// format. Implementations live in the wire subpackage; one is selected by
// name at startup and used for the lifetime of the bridge.
type Codec interface {
	// Encode renders a message as one complete wire unit, including any
	// framing. An error means the message is not expressible in this
	// protocol; the caller logs and discards it.
	Encode(msg Message) ([]byte, error)
	// NewDecoder returns a fresh stateful decoder for one connection.
	NewDecoder() Decoder
}

// Decoder incrementally extracts messages from a raw byte stream. Malformed
// units are absorbed internally: the decoder discards them and
// resynchronizes at the next unit boundary rather than surfacing an error.
type Decoder interface {
	// Feed appends raw bytes read from the link.
	Feed(p []byte)
	// Next returns the next complete message, or ok=false when no
	// complete unit is buffered yet.
	Next() (Message, bool)
}
