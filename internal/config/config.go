// Package config loads the bridge's config.ini into an immutable
// bridge.Config. All settings live in the top-level [DEFAULT] section with
// upper-case keys; missing keys fall back to documented defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/ini.v1"

	"github.com/akitamesh/meshbridge/pkg/bridge"
)

var validConnModes = map[string]bool{
	"serial": true,
	"tcp":    true,
	"mqtt":   true,
}

var validLogLevels = map[string]bool{
	"DEBUG": true,
	"INFO":  true,
	"WARN":  true,
	"ERROR": true,
}

// Load reads and validates the configuration file at path.
func Load(path string) (bridge.Config, error) {
	file, err := ini.Load(path)
	if err != nil {
		return bridge.Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	sec := file.Section(ini.DefaultSection)

	cfg := bridge.Config{
		MeshtasticConn:       strings.ToLower(sec.Key("MESHTASTIC_CONNECTION").MustString("serial")),
		MeshtasticSerialPort: sec.Key("MESHTASTIC_SERIAL_PORT").MustString("/dev/ttyUSB0"),
		MeshtasticHost:       sec.Key("MESHTASTIC_TCP_HOST").MustString("127.0.0.1"),
		MeshtasticTCPPort:    sec.Key("MESHTASTIC_TCP_PORT").MustInt(4403),
		MQTTBroker:           sec.Key("MQTT_BROKER_URL").String(),
		MQTTUsername:         sec.Key("MQTT_USERNAME").String(),
		MQTTPassword:         sec.Key("MQTT_PASSWORD").String(),
		MQTTRootTopic:        sec.Key("MQTT_ROOT_TOPIC").MustString("msh/US"),
		MQTTChannel:          sec.Key("MQTT_CHANNEL").MustString("LongFast"),
		ChannelKey:           sec.Key("CHANNEL_KEY").String(),
		MeshCorePort:         sec.Key("MESHCORE_SERIAL_PORT").MustString("/dev/ttyS0"),
		MeshCoreBaud:         sec.Key("MESHCORE_BAUD_RATE").MustInt(9600),
		MeshCoreProtocol:     strings.ToLower(sec.Key("MESHCORE_PROTOCOL").MustString("json_newline")),
		BridgeNodeID:         sec.Key("BRIDGE_NODE_ID").String(),
		QueueSize:            sec.Key("MESSAGE_QUEUE_SIZE").MustInt(100),
		RetryCount:           sec.Key("RETRY_COUNT").MustInt(0),
		RetryDelay:           time.Duration(sec.Key("RETRY_DELAY").MustInt(10)) * time.Second,
		SensorForwarding:     sec.Key("SENSOR_DATA_FORWARDING").MustBool(true),
		LogLevel:             strings.ToUpper(sec.Key("LOG_LEVEL").MustString("INFO")),
	}

	for _, word := range strings.Split(sec.Key("PRIORITY_MESSAGES").MustString("emergency,alert"), ",") {
		if word = strings.TrimSpace(word); word != "" {
			cfg.PriorityWords = append(cfg.PriorityWords, word)
		}
	}

	if err := validate(cfg); err != nil {
		return bridge.Config{}, err
	}
	return cfg, nil
}

func validate(cfg bridge.Config) error {
	if !validConnModes[cfg.MeshtasticConn] {
		return fmt.Errorf("invalid MESHTASTIC_CONNECTION %q: must be serial, tcp or mqtt", cfg.MeshtasticConn)
	}
	if cfg.MeshtasticConn == "mqtt" && cfg.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER_URL is required when MESHTASTIC_CONNECTION is mqtt")
	}
	if cfg.MeshtasticTCPPort <= 0 || cfg.MeshtasticTCPPort > 65535 {
		return fmt.Errorf("MESHTASTIC_TCP_PORT must be between 1 and 65535, got %d", cfg.MeshtasticTCPPort)
	}
	if cfg.MeshCoreBaud <= 0 {
		return fmt.Errorf("MESHCORE_BAUD_RATE must be positive, got %d", cfg.MeshCoreBaud)
	}
	if cfg.QueueSize <= 0 {
		return fmt.Errorf("MESSAGE_QUEUE_SIZE must be positive, got %d", cfg.QueueSize)
	}
	if cfg.RetryDelay <= 0 {
		return fmt.Errorf("RETRY_DELAY must be positive, got %s", cfg.RetryDelay)
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("invalid LOG_LEVEL %q: must be one of DEBUG, INFO, WARN, ERROR", cfg.LogLevel)
	}
	return nil
}
