package bridge

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// PortDialFunc opens the MeshCore serial port. The handler calls it on
// every reconnect attempt.
type PortDialFunc func() (io.ReadWriteCloser, error)

// meshcoreHandler owns the MeshCore side of the bridge: the serial port,
// its reconnect state machine, the codec-driven receive loop and the
// queue-draining send loop.
type meshcoreHandler struct {
	cfg     Config
	dial    PortDialFunc
	codec   Codec
	sendq   *Queue
	forward func(Message)
	logger  *slog.Logger
	state   linkState
}

func (h *meshcoreHandler) run(ctx context.Context) error {
	defer h.state.set(StateClosing)

	attempts := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		h.state.set(StateConnecting)
		port, err := h.dial()
		if err != nil {
			attempts++
			if h.cfg.RetryCount > 0 && attempts >= h.cfg.RetryCount {
				h.state.set(StateDisconnected)
				return fmt.Errorf("meshcore connection retries exhausted after %d attempts: %w", attempts, err)
			}
			h.logger.Warn("MeshCore connection failed, retrying",
				"error", err, "attempt", attempts, "retryDelay", h.cfg.RetryDelay)
			if !sleepCtx(ctx, h.cfg.RetryDelay) {
				return nil
			}
			continue
		}
		attempts = 0

		h.state.set(StateConnected)
		h.logger.Info("MeshCore link up", "port", h.cfg.MeshCorePort)

		err = h.serve(ctx, port)
		if ctx.Err() != nil {
			return nil
		}
		h.state.set(StateDisconnected)
		h.logger.Warn("MeshCore link lost, reconnecting", "error", err)
	}
}

// serve runs the receive and send loops until either fails or the context
// is cancelled. Closing the port is the only way to unblock a pending
// read, so cancellation closes it.
func (h *meshcoreHandler) serve(ctx context.Context, port io.ReadWriteCloser) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-ctx.Done()
		port.Close()
	}()

	errCh := make(chan error, 2)
	go func() { errCh <- h.readLoop(ctx, port) }()
	go func() { errCh <- h.sendLoop(ctx, port) }()

	err := <-errCh
	cancel()
	<-errCh
	return err
}

// readLoop feeds raw serial bytes to the codec's decoder and forwards every
// decoded message. Malformed units are absorbed inside the decoder; only a
// port-level I/O error ends the loop.
func (h *meshcoreHandler) readLoop(ctx context.Context, port io.Reader) error {
	decoder := h.codec.NewDecoder()
	buf := make([]byte, 4096)
	for {
		n, err := port.Read(buf)
		if err != nil {
			return fmt.Errorf("meshcore read: %w", err)
		}
		if n == 0 {
			continue
		}

		decoder.Feed(buf[:n])
		for {
			msg, ok := decoder.Next()
			if !ok {
				break
			}
			h.receive(msg)
		}
	}
}

// receive finalizes a decoded message and hands it to the orchestrator,
// applying loop prevention against the bridge's own node id.
func (h *meshcoreHandler) receive(msg Message) {
	if msg.OriginID != "" && msg.OriginID == h.cfg.BridgeNodeID {
		h.logger.Debug("Ignoring loopback message", "origin", msg.OriginID)
		return
	}

	msg.Origin = NetMeshCore
	if msg.Category == CategoryNormal {
		msg.Category = Classify(msg.Text, h.cfg.PriorityWords)
	}

	h.forward(msg)
}

// sendLoop drains the handler's relay queue, encodes each message with the
// active codec and writes it to the port. An unencodable message is logged
// and discarded; a write failure tears the connection down without
// re-queueing the message (at-most-once delivery).
func (h *meshcoreHandler) sendLoop(ctx context.Context, port io.Writer) error {
	for {
		msg, ok := h.sendq.Dequeue(ctx, time.Second)
		if !ok {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}

		data, err := h.codec.Encode(msg)
		if err != nil {
			h.logger.Warn("Discarding message the protocol cannot express",
				"origin", msg.OriginID, "error", err)
			continue
		}

		if _, err := port.Write(data); err != nil {
			h.logger.Error("MeshCore send failed", "error", err)
			return fmt.Errorf("meshcore write: %w", err)
		}
		h.logger.Info("Relayed message to MeshCore",
			"origin", msg.OriginID, "category", msg.Category, "bytes", len(data))
	}
}
