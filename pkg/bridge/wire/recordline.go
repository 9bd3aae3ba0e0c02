package wire

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/akitamesh/meshbridge/pkg/bridge"
)

// RecordLine is the record_newline protocol: one CBOR record per line,
// base64-armored so binary payloads cannot collide with the newline
// delimiter. The record schema is fixed; a line whose record does not
// deserialize against it is discarded and decoding continues with the next
// line.
type RecordLine struct{}

var _ bridge.Codec = RecordLine{}

// wireRecord is the fixed CBOR schema shared by both directions.
type wireRecord struct {
	Origin      string `cbor:"origin,omitempty"`
	Destination string `cbor:"destination,omitempty"`
	Payload     []byte `cbor:"payload"`
	Category    uint8  `cbor:"category,omitempty"`
	Timestamp   int64  `cbor:"timestamp,omitempty"`
}

func (RecordLine) Encode(msg bridge.Message) ([]byte, error) {
	data, err := cbor.Marshal(wireRecord{
		Origin:      msg.OriginID,
		Destination: msg.DestinationID,
		Payload:     msg.Payload(),
		Category:    uint8(msg.Category),
		Timestamp:   msg.Timestamp.Unix(),
	})
	if err != nil {
		return nil, fmt.Errorf("cbor encode: %w", err)
	}

	out := make([]byte, base64.StdEncoding.EncodedLen(len(data))+1)
	base64.StdEncoding.Encode(out, data)
	out[len(out)-1] = '\n'
	return out, nil
}

func (RecordLine) NewDecoder() bridge.Decoder {
	return &recordLineDecoder{}
}

type recordLineDecoder struct {
	lines lineBuffer
}

func (d *recordLineDecoder) Feed(p []byte) {
	d.lines.feed(p)
}

func (d *recordLineDecoder) Next() (bridge.Message, bool) {
	for {
		line, ok := d.lines.nextLine()
		if !ok {
			return bridge.Message{}, false
		}
		if len(line) == 0 {
			continue
		}

		raw := make([]byte, base64.StdEncoding.DecodedLen(len(line)))
		n, err := base64.StdEncoding.Decode(raw, line)
		if err != nil {
			continue
		}

		var rec wireRecord
		if err := cbor.Unmarshal(raw[:n], &rec); err != nil {
			continue
		}
		if len(rec.Payload) == 0 || rec.Category > uint8(bridge.CategoryPriority) {
			continue
		}

		return bridge.Message{
			OriginID:      rec.Origin,
			DestinationID: rec.Destination,
			Binary:        rec.Payload,
			Category:      bridge.Category(rec.Category),
			Timestamp:     time.Now(),
		}, true
	}
}
