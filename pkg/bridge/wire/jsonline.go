package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/akitamesh/meshbridge/pkg/bridge"
)

// JSONLine is the json_newline protocol: one UTF-8 JSON object per line.
// A decoded object must carry at least a destination identifier and a
// payload (or payload_json) to produce a message; anything else is
// discarded, not buffered.
type JSONLine struct{}

var _ bridge.Codec = JSONLine{}

// jsonFrame is the wire shape shared by both directions.
type jsonFrame struct {
	Type                    string          `json:"type,omitempty"`
	OriginID                string          `json:"origin_id,omitempty"`
	SenderMeshtasticID      string          `json:"sender_meshtastic_id,omitempty"`
	DestinationMeshtasticID string          `json:"destination_meshtastic_id,omitempty"`
	Portnum                 string          `json:"portnum,omitempty"`
	Payload                 string          `json:"payload,omitempty"`
	PayloadJSON             json.RawMessage `json:"payload_json,omitempty"`
	ChannelIndex            int             `json:"channel_index,omitempty"`
	WantAck                 bool            `json:"want_ack,omitempty"`
	TimestampRx             float64         `json:"timestamp_rx,omitempty"`
}

func (JSONLine) Encode(msg bridge.Message) ([]byte, error) {
	frame := jsonFrame{
		Type:                    "meshtastic_message",
		SenderMeshtasticID:      msg.OriginID,
		DestinationMeshtasticID: msg.DestinationID,
		Portnum:                 msg.Meta["portnum"],
		Payload:                 msg.PayloadText(),
		TimestampRx:             float64(msg.Timestamp.UnixNano()) / float64(time.Second),
	}
	switch msg.Category {
	case bridge.CategorySensorData:
		frame.Type = "sensor_data"
	case bridge.CategoryPriority:
		frame.Type = "priority"
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("json encode: %w", err)
	}
	return append(data, '\n'), nil
}

func (JSONLine) NewDecoder() bridge.Decoder {
	return &jsonLineDecoder{}
}

type jsonLineDecoder struct {
	lines lineBuffer
}

func (d *jsonLineDecoder) Feed(p []byte) {
	d.lines.feed(p)
}

func (d *jsonLineDecoder) Next() (bridge.Message, bool) {
	for {
		line, ok := d.lines.nextLine()
		if !ok {
			return bridge.Message{}, false
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 || !utf8.Valid(line) {
			continue
		}

		var frame jsonFrame
		if err := json.Unmarshal(line, &frame); err != nil {
			continue
		}

		msg, ok := frame.toMessage()
		if !ok {
			continue
		}
		return msg, true
	}
}

// toMessage validates the decoded frame and translates it. Frames without a
// destination or payload are not relayable and are rejected.
func (f jsonFrame) toMessage() (bridge.Message, bool) {
	text := f.Payload
	if text == "" && len(f.PayloadJSON) > 0 {
		text = string(f.PayloadJSON)
	}
	if f.DestinationMeshtasticID == "" || text == "" {
		return bridge.Message{}, false
	}

	origin := f.OriginID
	if origin == "" {
		origin = f.SenderMeshtasticID
	}

	category := bridge.CategoryNormal
	switch f.Type {
	case "sensor_data":
		category = bridge.CategorySensorData
	case "priority":
		category = bridge.CategoryPriority
	}

	meta := map[string]string{}
	if f.Portnum != "" {
		meta["portnum"] = f.Portnum
	}
	if f.ChannelIndex != 0 {
		meta["channel_index"] = strconv.Itoa(f.ChannelIndex)
	}
	if f.WantAck {
		meta["want_ack"] = "true"
	}

	return bridge.Message{
		OriginID:      origin,
		DestinationID: f.DestinationMeshtasticID,
		Text:          text,
		Category:      category,
		Timestamp:     time.Now(),
		Meta:          meta,
	}, true
}
