package wire

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/akitamesh/meshbridge/pkg/bridge"
)

// CompanionFrame is the MeshCore companion radio framing: a one-byte
// direction marker ('>' for frames emitted by the device, '<' for frames
// sent to it), a two-byte little-endian payload length, then the payload.
// The frame embeds no checksum; validity is enforced by the length bound
// and the payload shape, and a bad frame only costs itself — the decoder
// resynchronizes on the next marker byte.
type CompanionFrame struct{}

var _ bridge.Codec = CompanionFrame{}

const (
	frameFromDevice = 0x3E // '>'
	frameToDevice   = 0x3C // '<'

	respCodeContactMsgRecv = 7
	cmdSendTxtMsg          = 2

	// maxCompanionLen bounds the payload length field. Companion frames
	// carry short text messages; a larger length means we latched onto a
	// marker byte inside other data.
	maxCompanionLen = 1024

	pubKeyPrefixLen = 6
)

// Encode renders the message as a send-text command frame addressed by the
// destination's public key prefix. An empty destination encodes an all-zero
// prefix, which the device treats as unaddressed.
func (CompanionFrame) Encode(msg bridge.Message) ([]byte, error) {
	prefix := make([]byte, pubKeyPrefixLen)
	if msg.DestinationID != "" {
		decoded, err := hex.DecodeString(msg.DestinationID)
		if err != nil || len(decoded) != pubKeyPrefixLen {
			return nil, fmt.Errorf("destination %q is not a public key prefix", msg.DestinationID)
		}
		copy(prefix, decoded)
	}

	text := msg.PayloadText()
	payload := make([]byte, 0, 13+len(text))
	payload = append(payload, cmdSendTxtMsg, 0, 0) // code, txt_type, attempt
	payload = binary.LittleEndian.AppendUint32(payload, uint32(msg.Timestamp.Unix()))
	payload = append(payload, prefix...)
	payload = append(payload, text...)

	if len(payload) > maxCompanionLen {
		return nil, fmt.Errorf("payload too long for companion frame: %d bytes", len(payload))
	}

	frame := make([]byte, 0, 3+len(payload))
	frame = append(frame, frameToDevice)
	frame = binary.LittleEndian.AppendUint16(frame, uint16(len(payload)))
	frame = append(frame, payload...)
	return frame, nil
}

func (CompanionFrame) NewDecoder() bridge.Decoder {
	return &companionDecoder{}
}

type companionDecoder struct {
	buf []byte
}

func (d *companionDecoder) Feed(p []byte) {
	d.buf = append(d.buf, p...)
}

func (d *companionDecoder) Next() (bridge.Message, bool) {
	for {
		// Scan for the next marker byte, discarding garbage before it.
		start := -1
		for i, b := range d.buf {
			if b == frameFromDevice || b == frameToDevice {
				start = i
				break
			}
		}
		if start < 0 {
			d.buf = d.buf[:0]
			return bridge.Message{}, false
		}
		d.buf = d.buf[start:]

		if len(d.buf) < 3 {
			return bridge.Message{}, false
		}

		length := int(binary.LittleEndian.Uint16(d.buf[1:3]))
		if length > maxCompanionLen {
			// False marker. Step past it and rescan.
			d.buf = d.buf[1:]
			continue
		}
		if len(d.buf) < 3+length {
			return bridge.Message{}, false
		}

		direction := d.buf[0]
		payload := d.buf[3 : 3+length]
		msg, ok := parseCompanionPayload(direction, payload)
		d.buf = d.buf[3+length:]
		if ok {
			return msg, true
		}
	}
}

// parseCompanionPayload translates the frame payload of the message codes the
// bridge relays. Other codes (acks, advertisements, status) are not
// relayable and are skipped.
func parseCompanionPayload(direction byte, payload []byte) (bridge.Message, bool) {
	if len(payload) < 13 {
		return bridge.Message{}, false
	}

	switch payload[0] {
	case respCodeContactMsgRecv:
		// code, pubkey_prefix(6), path_len, txt_type, sender_timestamp(4), text
		prefix := payload[1 : 1+pubKeyPrefixLen]
		pathLen := payload[7]
		txtType := payload[8]
		senderTS := binary.LittleEndian.Uint32(payload[9:13])
		text := payload[13:]
		if !utf8.Valid(text) {
			return bridge.Message{}, false
		}
		return bridge.Message{
			OriginID:  hex.EncodeToString(prefix),
			Text:      string(text),
			Timestamp: time.Now(),
			Meta: map[string]string{
				"direction":        directionName(direction),
				"path_len":         strconv.Itoa(int(pathLen)),
				"txt_type":         strconv.Itoa(int(txtType)),
				"sender_timestamp": strconv.FormatUint(uint64(senderTS), 10),
			},
		}, true

	case cmdSendTxtMsg:
		// code, txt_type, attempt, sender_timestamp(4), pubkey_prefix(6), text
		txtType := payload[1]
		senderTS := binary.LittleEndian.Uint32(payload[3:7])
		prefix := payload[7 : 7+pubKeyPrefixLen]
		text := payload[13:]
		if !utf8.Valid(text) {
			return bridge.Message{}, false
		}
		dest := hex.EncodeToString(prefix)
		if dest == "000000000000" {
			dest = "" // unaddressed
		}
		return bridge.Message{
			DestinationID: dest,
			Text:          string(text),
			Timestamp:     time.Now(),
			Meta: map[string]string{
				"direction":        directionName(direction),
				"txt_type":         strconv.Itoa(int(txtType)),
				"sender_timestamp": strconv.FormatUint(uint64(senderTS), 10),
			},
		}, true

	default:
		return bridge.Message{}, false
	}
}

func directionName(marker byte) string {
	if marker == frameFromDevice {
		return "outbound"
	}
	return "inbound"
}
