package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	words := []string{"emergency", "alert"}

	assert.Equal(t, CategoryPriority, Classify("EMERGENCY at the lake", words))
	assert.Equal(t, CategoryPriority, Classify("storm Alert issued", words))
	assert.Equal(t, CategoryNormal, Classify("all quiet here", words))
	assert.Equal(t, CategoryNormal, Classify("emergency", nil))
	assert.Equal(t, CategoryNormal, Classify("", words))
}

func TestMessagePayloadViews(t *testing.T) {
	text := Message{Text: "hello"}
	assert.Equal(t, []byte("hello"), text.Payload())
	assert.Equal(t, "hello", text.PayloadText())

	binary := Message{Binary: []byte{0x01, 0x02}}
	assert.Equal(t, []byte{0x01, 0x02}, binary.Payload())
	assert.Equal(t, string([]byte{0x01, 0x02}), binary.PayloadText())

	both := Message{Text: "text view", Binary: []byte("binary view")}
	assert.Equal(t, []byte("binary view"), both.Payload())
	assert.Equal(t, "text view", both.PayloadText())
}

func TestEnumStrings(t *testing.T) {
	assert.Equal(t, "meshtastic", NetMeshtastic.String())
	assert.Equal(t, "meshcore", NetMeshCore.String())
	assert.Equal(t, "normal", CategoryNormal.String())
	assert.Equal(t, "sensor_data", CategorySensorData.String())
	assert.Equal(t, "priority", CategoryPriority.String())
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "closing", StateClosing.String())
}
