package bridge

import "time"

// Config is the already-parsed, immutable bridge configuration. It is loaded
// once at startup (see internal/config) and passed explicitly to every
// component's constructor.
type Config struct {
	// MeshtasticConn selects how the Meshtastic device is reached:
	// "serial", "tcp" or "mqtt".
	MeshtasticConn string
	// MeshtasticSerialPort is the device path for serial connections.
	MeshtasticSerialPort string
	// MeshtasticHost and MeshtasticTCPPort locate the device's network
	// stream API for tcp connections.
	MeshtasticHost    string
	MeshtasticTCPPort int
	// MQTT broker settings, used when MeshtasticConn is "mqtt".
	MQTTBroker    string
	MQTTUsername  string
	MQTTPassword  string
	MQTTRootTopic string
	MQTTChannel   string
	// ChannelKey is an optional base64 PSK for decrypting mesh packets
	// that arrive encrypted.
	ChannelKey string

	// MeshCorePort and MeshCoreBaud configure the MeshCore serial link.
	MeshCorePort string
	MeshCoreBaud int
	// MeshCoreProtocol names the wire codec: "json_newline",
	// "companion_frame" or "record_newline".
	MeshCoreProtocol string

	// BridgeNodeID is this bridge's own node identifier; inbound messages
	// carrying it as origin are loop-filtered and never relayed.
	BridgeNodeID string
	// QueueSize is the capacity of each relay queue.
	QueueSize int
	// RetryCount is the reconnect attempt ceiling per outage; zero or
	// negative means retry forever. RetryDelay is the pause between
	// attempts.
	RetryCount int
	RetryDelay time.Duration
	// SensorForwarding gates relaying of sensor_data messages toward the
	// Meshtastic network.
	SensorForwarding bool
	// PriorityWords marks messages containing any of these keywords as
	// CategoryPriority.
	PriorityWords []string
	// LogLevel is the textual slog level for the process logger.
	LogLevel string
}
