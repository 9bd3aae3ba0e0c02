package wire

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akitamesh/meshbridge/pkg/bridge"
)

func TestForName(t *testing.T) {
	cases := []struct {
		name  string
		codec any
	}{
		{"json_newline", JSONLine{}},
		{"JSON_NEWLINE", JSONLine{}},
		{"companion_frame", CompanionFrame{}},
		{"record_newline", RecordLine{}},
	}
	for _, tc := range cases {
		codec, err := ForName(tc.name)
		require.NoError(t, err)
		assert.IsType(t, tc.codec, codec)
	}

	_, err := ForName("unknown_protocol")
	assert.Error(t, err)
}

func decodeAll(codec bridge.Codec, data []byte) []bridge.Message {
	decoder := codec.NewDecoder()
	decoder.Feed(data)
	var out []bridge.Message
	for {
		msg, ok := decoder.Next()
		if !ok {
			return out
		}
		out = append(out, msg)
	}
}

func TestJSONLineRoundTrip(t *testing.T) {
	codec := JSONLine{}
	original := bridge.Message{
		Origin:        bridge.NetMeshtastic,
		OriginID:      "!000000aa",
		DestinationID: "!000000bb",
		Text:          "hello mesh",
		Category:      bridge.CategorySensorData,
		Timestamp:     time.Now(),
	}

	data, err := codec.Encode(original)
	require.NoError(t, err)
	assert.Equal(t, byte('\n'), data[len(data)-1])

	msgs := decodeAll(codec, data)
	require.Len(t, msgs, 1)
	assert.Equal(t, original.OriginID, msgs[0].OriginID)
	assert.Equal(t, original.DestinationID, msgs[0].DestinationID)
	assert.Equal(t, original.Text, msgs[0].PayloadText())
	assert.Equal(t, original.Category, msgs[0].Category)
}

func TestJSONLineDecode(t *testing.T) {
	msgs := decodeAll(JSONLine{}, []byte(`{"destination_meshtastic_id": "!000000bb", "payload": "temp=21C", "channel_index": 2, "want_ack": true}`+"\n"))
	require.Len(t, msgs, 1)
	assert.Equal(t, "!000000bb", msgs[0].DestinationID)
	assert.Equal(t, "temp=21C", msgs[0].Text)
	assert.Equal(t, bridge.CategoryNormal, msgs[0].Category)
	assert.Equal(t, "2", msgs[0].Meta["channel_index"])
	assert.Equal(t, "true", msgs[0].Meta["want_ack"])
}

func TestJSONLineDecodeStructuredPayload(t *testing.T) {
	msgs := decodeAll(JSONLine{}, []byte(`{"destination_meshtastic_id": "!000000bb", "payload_json": {"lat": 52.5, "lon": 13.4}}`+"\n"))
	require.Len(t, msgs, 1)
	assert.JSONEq(t, `{"lat": 52.5, "lon": 13.4}`, msgs[0].Text)
}

func TestJSONLineDecodeRejectsInvalidLines(t *testing.T) {
	invalid := [][]byte{
		[]byte("this is not json\n"),
		[]byte("{\"key\": \"value\",\n"),
		[]byte("\x80\x81\x82\n"),
		[]byte("   \n"),
		[]byte("[\"list\", \"not_object\"]\n"),
		[]byte("{\"payload\": \"no destination\"}\n"),
	}
	for _, line := range invalid {
		assert.Empty(t, decodeAll(JSONLine{}, line), "line %q should not decode", line)
	}
}

func TestJSONLineCorruptedUnitDoesNotBlockStream(t *testing.T) {
	stream := []byte("garbage not json\n" +
		`{"destination_meshtastic_id": "!000000b1", "payload": "one"}` + "\n" +
		`{"destination_meshtastic_id": "!000000b2", "payload": "two"}` + "\n")

	msgs := decodeAll(JSONLine{}, stream)
	require.Len(t, msgs, 2)
	assert.Equal(t, "one", msgs[0].Text)
	assert.Equal(t, "two", msgs[1].Text)
}

func TestJSONLineDecodeAcrossChunks(t *testing.T) {
	decoder := JSONLine{}.NewDecoder()
	line := []byte(`{"destination_meshtastic_id": "!000000bb", "payload": "split"}` + "\n")

	decoder.Feed(line[:10])
	_, ok := decoder.Next()
	assert.False(t, ok)

	decoder.Feed(line[10:])
	msg, ok := decoder.Next()
	require.True(t, ok)
	assert.Equal(t, "split", msg.Text)
}

// companionTextFrame builds a device-emitted contact message frame.
func companionTextFrame(prefix []byte, pathLen, txtType byte, ts uint32, text string) []byte {
	payload := []byte{respCodeContactMsgRecv}
	payload = append(payload, prefix...)
	payload = append(payload, pathLen, txtType)
	payload = binary.LittleEndian.AppendUint32(payload, ts)
	payload = append(payload, text...)

	frame := []byte{frameFromDevice}
	frame = binary.LittleEndian.AppendUint16(frame, uint16(len(payload)))
	return append(frame, payload...)
}

func TestCompanionFrameDecode(t *testing.T) {
	frame := companionTextFrame([]byte{1, 2, 3, 4, 5, 6}, 0xFF, 0, 0x12345678, "hello")

	msgs := decodeAll(CompanionFrame{}, frame)
	require.Len(t, msgs, 1)
	msg := msgs[0]
	assert.Equal(t, "010203040506", msg.OriginID)
	assert.Equal(t, "hello", msg.Text)
	assert.Equal(t, "outbound", msg.Meta["direction"])
	assert.Equal(t, "255", msg.Meta["path_len"])
	assert.Equal(t, "0", msg.Meta["txt_type"])
	assert.Equal(t, "305419896", msg.Meta["sender_timestamp"])
}

func TestCompanionFrameRoundTrip(t *testing.T) {
	codec := CompanionFrame{}
	original := bridge.Message{
		Origin:        bridge.NetMeshtastic,
		DestinationID: "a1b2c3d4e5f6",
		Text:          "over the bridge",
		Timestamp:     time.Unix(1700000000, 0),
	}

	data, err := codec.Encode(original)
	require.NoError(t, err)
	assert.Equal(t, byte(frameToDevice), data[0])

	msgs := decodeAll(codec, data)
	require.Len(t, msgs, 1)
	assert.Equal(t, original.DestinationID, msgs[0].DestinationID)
	assert.Equal(t, original.Text, msgs[0].Text)
	assert.Equal(t, "1700000000", msgs[0].Meta["sender_timestamp"])
}

func TestCompanionFrameEncodeRejectsBadDestination(t *testing.T) {
	_, err := CompanionFrame{}.Encode(bridge.Message{DestinationID: "!000000bb", Text: "hi"})
	assert.Error(t, err)
}

func TestCompanionFrameResynchronizes(t *testing.T) {
	good := companionTextFrame([]byte{9, 9, 9, 9, 9, 9}, 0, 0, 42, "survivor")

	// A truncated frame claiming more payload than the stream carries,
	// followed by garbage and then a valid frame. The decoder must skip
	// the junk and still produce the valid message.
	var stream []byte
	stream = append(stream, frameFromDevice, 0xFF, 0xFF) // oversized length
	stream = append(stream, []byte{0x00, 0x01, 0x02, 0x03}...)
	stream = append(stream, good...)

	msgs := decodeAll(CompanionFrame{}, stream)
	require.Len(t, msgs, 1)
	assert.Equal(t, "survivor", msgs[0].Text)
}

func TestCompanionFrameSkipsUnknownCodes(t *testing.T) {
	payload := make([]byte, 16)
	payload[0] = 0x01 // some other response code
	frame := []byte{frameFromDevice}
	frame = binary.LittleEndian.AppendUint16(frame, uint16(len(payload)))
	frame = append(frame, payload...)

	assert.Empty(t, decodeAll(CompanionFrame{}, frame))
}

func TestRecordLineRoundTrip(t *testing.T) {
	codec := RecordLine{}
	original := bridge.Message{
		Origin:        bridge.NetMeshCore,
		OriginID:      "node-7",
		DestinationID: "!000000bb",
		Binary:        []byte{0x00, 0x0A, 0xFF, 0x0A, 0x94}, // embedded newlines
		Category:      bridge.CategoryPriority,
		Timestamp:     time.Unix(1700000000, 0),
	}

	data, err := codec.Encode(original)
	require.NoError(t, err)

	msgs := decodeAll(codec, data)
	require.Len(t, msgs, 1)
	assert.Equal(t, original.OriginID, msgs[0].OriginID)
	assert.Equal(t, original.DestinationID, msgs[0].DestinationID)
	assert.Equal(t, original.Binary, msgs[0].Payload())
	assert.Equal(t, original.Category, msgs[0].Category)
}

func TestRecordLineCorruptedUnitDoesNotBlockStream(t *testing.T) {
	codec := RecordLine{}
	good, err := codec.Encode(bridge.Message{OriginID: "a", Text: "kept", Timestamp: time.Now()})
	require.NoError(t, err)

	stream := append([]byte("!!!! not base64 !!!!\n"), good...)
	stream = append(stream, []byte("aGVsbG8=\n")...) // valid base64, not a record
	stream = append(stream, good...)

	msgs := decodeAll(codec, stream)
	require.Len(t, msgs, 2)
	assert.Equal(t, "kept", msgs[0].PayloadText())
	assert.Equal(t, "kept", msgs[1].PayloadText())
}
