package main

import (
	"context"
	"crypto/cipher"
	"flag"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"go.bug.st/serial"

	"github.com/akitamesh/meshbridge/internal/config"
	"github.com/akitamesh/meshbridge/pkg/bridge"
	"github.com/akitamesh/meshbridge/pkg/bridge/wire"
	"github.com/akitamesh/meshbridge/pkg/meshtastic"
	"github.com/akitamesh/meshbridge/pkg/meshtastic/mqtt"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	configPath := flag.String("config", "config.ini", "Path to the bridge configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalln("Failed to load configuration:", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	codec, err := wire.ForName(cfg.MeshCoreProtocol)
	if err != nil {
		log.Fatalln("Failed to select MeshCore protocol:", err)
	}

	radioDial, err := radioDialer(cfg)
	if err != nil {
		log.Fatalln("Failed to configure Meshtastic connection:", err)
	}
	portDial := func() (io.ReadWriteCloser, error) {
		return serial.Open(cfg.MeshCorePort, &serial.Mode{BaudRate: cfg.MeshCoreBaud})
	}

	b := bridge.New(cfg, radioDial, portDial, codec, logger)
	if err := b.Run(ctx); err != nil {
		logger.Error("Bridge exited with error", "error", err)
		os.Exit(1)
	}
}

// radioDialer builds the connection factory for the configured Meshtastic
// connection mode. The factory is invoked on every reconnect attempt.
func radioDialer(cfg bridge.Config) (bridge.RadioDialFunc, error) {
	key, err := channelKey(cfg)
	if err != nil {
		return nil, err
	}

	switch cfg.MeshtasticConn {
	case "serial":
		return func(ctx context.Context) (*meshtastic.Client, error) {
			transport, err := meshtastic.NewSerialTransport(cfg.MeshtasticSerialPort)
			if err != nil {
				return nil, err
			}
			client := meshtastic.NewStreamClient(transport)
			client.ChannelKey = key
			return client, nil
		}, nil

	case "tcp":
		return func(ctx context.Context) (*meshtastic.Client, error) {
			transport, err := meshtastic.NewTCPTransport(cfg.MeshtasticHost, cfg.MeshtasticTCPPort)
			if err != nil {
				return nil, err
			}
			client := meshtastic.NewStreamClient(transport)
			client.ChannelKey = key
			return client, nil
		}, nil

	case "mqtt":
		self, err := meshtastic.ParseNodeID(cfg.BridgeNodeID)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) (*meshtastic.Client, error) {
			transport := &mqtt.Transport{
				BrokerURL: cfg.MQTTBroker,
				Username:  cfg.MQTTUsername,
				Password:  cfg.MQTTPassword,
				AppName:   "meshbridge",
				RootTopic: cfg.MQTTRootTopic,
				ChannelID: cfg.MQTTChannel,
				GatewayID: cfg.BridgeNodeID,
			}
			if err := transport.Connect(cfg.QueueSize); err != nil {
				return nil, err
			}
			client := meshtastic.NewMeshClient(transport, self)
			client.ChannelKey = key
			return client, nil
		}, nil
	}
	return nil, nil // unreachable: config validation rejects other modes
}

func channelKey(cfg bridge.Config) (cipher.Block, error) {
	if cfg.ChannelKey == "" {
		return nil, nil
	}
	return meshtastic.DecodeCipherKeyBase64(cfg.ChannelKey)
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
