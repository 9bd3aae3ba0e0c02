// Package bridge relays application messages between a Meshtastic LoRa mesh
// and a MeshCore mesh reached over a serial link. Each side is owned by a
// link handler with its own reconnect state machine; the two handlers never
// reference each other and communicate only through a pair of bounded relay
// queues, so an outage on one link never stalls the other.
package bridge

import (
	"context"
	"log/slog"
	"sync"
)

// Bridge wires the two link handlers to each other's relay queues, applies
// the forwarding policy between them, and owns start-up and graceful
// shutdown of all workers.
type Bridge struct {
	cfg    Config
	logger *slog.Logger

	toMeshtastic *Queue
	toMeshCore   *Queue
	meshtastic   *meshtasticHandler
	meshcore     *meshcoreHandler
}

// New assembles a bridge from the parsed configuration, the two connection
// factories and the selected wire codec. A nil logger selects slog.Default().
func New(cfg Config, radioDial RadioDialFunc, portDial PortDialFunc, codec Codec, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}

	b := &Bridge{
		cfg:          cfg,
		logger:       logger,
		toMeshtastic: NewQueue(cfg.QueueSize),
		toMeshCore:   NewQueue(cfg.QueueSize),
	}
	b.meshtastic = &meshtasticHandler{
		cfg:     cfg,
		dial:    radioDial,
		sendq:   b.toMeshtastic,
		forward: b.forwardToMeshCore,
		logger:  logger.With("link", "meshtastic"),
	}
	b.meshcore = &meshcoreHandler{
		cfg:     cfg,
		dial:    portDial,
		codec:   codec,
		sendq:   b.toMeshCore,
		forward: b.forwardToMeshtastic,
		logger:  logger.With("link", "meshcore"),
	}
	return b
}

// Run starts both link handlers and blocks until the context is cancelled
// and every worker has stopped and released its connection. A handler that
// exhausts its retry ceiling halts alone; the bridge keeps running degraded
// on the other side.
func (b *Bridge) Run(ctx context.Context) error {
	b.logger.Info("Bridge starting",
		"nodeID", b.cfg.BridgeNodeID,
		"protocol", b.cfg.MeshCoreProtocol,
		"queueCapacity", b.cfg.QueueSize)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := b.meshtastic.run(ctx); err != nil {
			b.logger.Error("Meshtastic side halted", "error", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := b.meshcore.run(ctx); err != nil {
			b.logger.Error("MeshCore side halted", "error", err)
		}
	}()
	wg.Wait()

	b.logger.Info("Bridge stopped",
		"droppedToMeshtastic", b.toMeshtastic.Dropped(),
		"droppedToMeshCore", b.toMeshCore.Dropped())
	return nil
}

// MeshtasticState reports the Meshtastic link's connection state.
func (b *Bridge) MeshtasticState() LinkState {
	return b.meshtastic.state.get()
}

// MeshCoreState reports the MeshCore link's connection state.
func (b *Bridge) MeshCoreState() LinkState {
	return b.meshcore.state.get()
}

// forwardToMeshCore enqueues a message from the Meshtastic side toward the
// MeshCore link. Overflow drops the message and is surfaced only as a
// counter and a log line, never as a failure to the receive path.
func (b *Bridge) forwardToMeshCore(msg Message) {
	if !b.toMeshCore.Enqueue(msg) {
		b.logger.Warn("MeshCore relay queue full, dropping message",
			"origin", msg.OriginID, "dropped", b.toMeshCore.Dropped())
	}
}

// forwardToMeshtastic enqueues a message from the MeshCore side toward the
// Meshtastic link, refusing sensor data when forwarding is disabled.
func (b *Bridge) forwardToMeshtastic(msg Message) {
	if msg.Category == CategorySensorData && !b.cfg.SensorForwarding {
		b.logger.Debug("Sensor forwarding disabled, dropping message",
			"origin", msg.OriginID)
		return
	}
	if !b.toMeshtastic.Enqueue(msg) {
		b.logger.Warn("Meshtastic relay queue full, dropping message",
			"origin", msg.OriginID, "dropped", b.toMeshtastic.Dropped())
	}
}
