package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	pb "github.com/meshnet-gophers/meshtastic-go/meshtastic"

	"github.com/akitamesh/meshbridge/pkg/meshtastic"
)

// RadioDialFunc opens a fresh connection to the Meshtastic device. The
// handler calls it on every reconnect attempt, so it must build a new
// transport each time.
type RadioDialFunc func(ctx context.Context) (*meshtastic.Client, error)

// meshtasticHandler owns the Meshtastic side of the bridge: the client
// connection, its reconnect state machine, the callback-driven receive path
// and the queue-draining send loop.
type meshtasticHandler struct {
	cfg     Config
	dial    RadioDialFunc
	sendq   *Queue
	forward func(Message)
	logger  *slog.Logger
	state   linkState
}

func (h *meshtasticHandler) run(ctx context.Context) error {
	defer h.state.set(StateClosing)

	attempts := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		h.state.set(StateConnecting)
		client, err := h.connect(ctx)
		if err != nil {
			attempts++
			if h.cfg.RetryCount > 0 && attempts >= h.cfg.RetryCount {
				h.state.set(StateDisconnected)
				return fmt.Errorf("meshtastic connection retries exhausted after %d attempts: %w", attempts, err)
			}
			h.logger.Warn("Meshtastic connection failed, retrying",
				"error", err, "attempt", attempts, "retryDelay", h.cfg.RetryDelay)
			if !sleepCtx(ctx, h.cfg.RetryDelay) {
				return nil
			}
			continue
		}
		attempts = 0

		h.state.set(StateConnected)
		h.logger.Info("Meshtastic link up", "nodeID", client.NodeID())

		err = h.serve(ctx, client)
		if ctx.Err() != nil {
			return nil
		}
		h.state.set(StateDisconnected)
		h.logger.Warn("Meshtastic link lost, reconnecting", "error", err)
	}
}

func (h *meshtasticHandler) connect(ctx context.Context) (*meshtastic.Client, error) {
	client, err := h.dial(ctx)
	if err != nil {
		return nil, err
	}
	if err := client.Connect(ctx); err != nil {
		client.Close()
		return nil, err
	}
	client.SetPacketHandler(h.onPacket(client.NodeID()))
	return client, nil
}

// serve runs the receive and send loops until either fails or the context
// is cancelled. Closing the client is the only way to unblock a pending
// transport read, so cancellation closes it.
func (h *meshtasticHandler) serve(ctx context.Context, client *meshtastic.Client) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-ctx.Done()
		client.Close()
	}()

	errCh := make(chan error, 2)
	go func() { errCh <- client.Listen(ctx) }()
	go func() { errCh <- h.sendLoop(ctx, client) }()

	err := <-errCh
	cancel()
	<-errCh
	return err
}

// sendLoop drains the handler's relay queue and transmits each message onto
// the mesh. A transmit failure tears the connection down; the failed
// message is not re-queued (at-most-once delivery).
func (h *meshtasticHandler) sendLoop(ctx context.Context, client *meshtastic.Client) error {
	for {
		msg, ok := h.sendq.Dequeue(ctx, time.Second)
		if !ok {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}

		dest, err := meshtastic.ParseNodeID(msg.DestinationID)
		if err != nil {
			h.logger.Warn("Discarding message with unusable destination",
				"destination", msg.DestinationID, "error", err)
			continue
		}

		if err := client.SendText(ctx, dest, msg.PayloadText()); err != nil {
			h.logger.Error("Meshtastic send failed", "destination", dest, "error", err)
			return err
		}
		h.logger.Info("Relayed message to Meshtastic",
			"destination", dest, "category", msg.Category)
	}
}

// onPacket builds the receive callback for one connection. It translates
// relayable packets to canonical messages, applies loop prevention against
// both the configured bridge id and the device's own id, and hands off to
// the orchestrator. It runs on the client's listen goroutine and only does
// a non-blocking enqueue.
func (h *meshtasticHandler) onPacket(deviceID meshtastic.NodeID) meshtastic.PacketHandler {
	return func(packet *pb.MeshPacket) {
		data := packet.GetDecoded()
		if data == nil {
			return
		}

		origin := meshtastic.NodeID(packet.GetFrom())
		originID := origin.String()
		if originID == h.cfg.BridgeNodeID || origin == deviceID {
			h.logger.Debug("Ignoring loopback packet", "origin", originID)
			return
		}

		msg := Message{
			Origin:    NetMeshtastic,
			OriginID:  originID,
			Timestamp: time.Now(),
			Meta:      map[string]string{"portnum": data.GetPortnum().String()},
		}
		switch data.GetPortnum() {
		case pb.PortNum_TEXT_MESSAGE_APP:
			msg.Text = string(data.GetPayload())
			msg.Category = Classify(msg.Text, h.cfg.PriorityWords)
		case pb.PortNum_TELEMETRY_APP:
			msg.Binary = data.GetPayload()
			msg.Category = CategorySensorData
		default:
			return
		}
		if dest := meshtastic.NodeID(packet.GetTo()); !dest.IsBroadcast() {
			msg.DestinationID = dest.String()
		}

		h.forward(msg)
	}
}

// sleepCtx pauses for d, returning false if the context was cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
