package meshtastic

import (
	"context"
	"crypto/cipher"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"

	pb "github.com/meshnet-gophers/meshtastic-go/meshtastic"
	"google.golang.org/protobuf/proto"
)

// PacketHandler is called for every mesh packet received from the device.
// It runs on the client's listen goroutine and must not block on I/O.
type PacketHandler func(packet *pb.MeshPacket)

// Client provides a high-level connection to one Meshtastic device: identity
// discovery, a packet subscription, and text message sending.
type Client struct {
	// Transport carries mesh packets to and from the network.
	Transport MeshTransport
	// Radio is the raw radio link, when the transport is a directly
	// attached device. It enables the want_config identity exchange.
	// Leave nil for transports without a radio API (e.g. MQTT).
	Radio Transport
	// Logger receives structured log output. If nil, slog.Default() is used.
	Logger *slog.Logger
	// ChannelKey optionally decrypts PSK-encrypted packets. Packets that
	// arrive encrypted and cannot be decrypted are delivered as-is.
	ChannelKey cipher.Block

	mu      sync.Mutex
	nodeID  NodeID
	handler PacketHandler
}

// NewStreamClient wraps a hardware transport (serial or TCP stream) in a Client.
func NewStreamClient(transport Transport) *Client {
	return &Client{
		Transport: &Device{Transport: transport},
		Radio:     transport,
	}
}

// NewMeshClient wraps a mesh-level transport (e.g. MQTT) in a Client. The
// node id to stamp on outgoing packets must be supplied, since there is no
// radio to ask for one.
func NewMeshClient(transport MeshTransport, self NodeID) *Client {
	return &Client{
		Transport: transport,
		nodeID:    self,
	}
}

func (c *Client) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// SetPacketHandler sets the callback for incoming mesh packets. It must be
// called before Listen.
func (c *Client) SetPacketHandler(fn PacketHandler) {
	c.mu.Lock()
	c.handler = fn
	c.mu.Unlock()
}

// NodeID returns the device's own node id, known after Connect succeeds on
// a radio-backed transport.
func (c *Client) NodeID() NodeID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nodeID
}

// Connect performs the initial handshake with the device. On radio-backed
// transports it runs the want_config exchange to learn the device's own
// node id; on others it is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	if c.Radio == nil {
		return nil
	}

	state, err := c.GetState(ctx)
	if err != nil {
		return fmt.Errorf("failed to query device state: %w", err)
	}
	if state.MyInfo == nil {
		return fmt.Errorf("device did not report node info")
	}

	c.mu.Lock()
	c.nodeID = NodeID(state.MyInfo.GetMyNodeNum())
	c.mu.Unlock()

	if node, ok := state.CurrentNodeInfo(); ok {
		c.logger().Info("Connected to Meshtastic device",
			"nodeID", c.nodeID,
			"longName", node.GetUser().GetLongName())
	} else {
		c.logger().Info("Connected to Meshtastic device", "nodeID", c.nodeID)
	}
	return nil
}

// Listen reads packets from the transport and dispatches them to the packet
// handler until the context is cancelled or the transport fails. It returns
// the transport error, or ctx.Err() on cancellation.
func (c *Client) Listen(ctx context.Context) error {
	for {
		packet, err := c.Transport.ReceiveFromMesh(ctx)
		if err != nil {
			return err
		}
		if packet == nil {
			continue
		}

		packet = c.maybeDecrypt(packet)

		c.mu.Lock()
		handler := c.handler
		c.mu.Unlock()
		if handler != nil {
			handler(packet)
		}
	}
}

// maybeDecrypt replaces an encrypted payload with its decrypted form when a
// channel key is configured. Failures leave the packet untouched; the
// consumer sees it without a decoded payload and skips it.
func (c *Client) maybeDecrypt(packet *pb.MeshPacket) *pb.MeshPacket {
	if c.ChannelKey == nil || packet.GetDecoded() != nil || len(packet.GetEncrypted()) == 0 {
		return packet
	}

	data, err := DecryptPSK(packet, c.ChannelKey)
	if err != nil {
		c.logger().Debug("Cannot decrypt mesh packet",
			"meshFrom", NodeID(packet.GetFrom()), "error", err)
		return packet
	}

	decrypted := proto.Clone(packet).(*pb.MeshPacket)
	decrypted.PayloadVariant = &pb.MeshPacket_Decoded{Decoded: data}
	return decrypted
}

// SendText sends a text message to the given destination over the primary
// channel. Use Broadcast to address every node.
func (c *Client) SendText(ctx context.Context, dest NodeID, text string) error {
	return c.Transport.SendToMesh(ctx, &pb.MeshPacket{
		From: uint32(c.NodeID()),
		To:   uint32(dest),
		Id:   rand.Uint32(),
		PayloadVariant: &pb.MeshPacket_Decoded{
			Decoded: &pb.Data{
				Portnum: pb.PortNum_TEXT_MESSAGE_APP,
				Payload: []byte(text),
			},
		},
	})
}

// Close releases the transport.
func (c *Client) Close() error {
	return c.Transport.Close()
}

// GetState sends a request for the current configuration to the radio and retrieves the state of the device.
func (c *Client) GetState(ctx context.Context) (DeviceState, error) {
	configId := uint32(rand.Int())
	err := c.Radio.SendToRadio(ctx, &pb.ToRadio{
		PayloadVariant: &pb.ToRadio_WantConfigId{
			WantConfigId: configId,
		},
	})
	if err != nil {
		return DeviceState{}, fmt.Errorf("failed to request configuration: %w", err)
	}

	c.logger().Debug("Configuration request is sent")

	var state DeviceState
	for {
		packet, err := c.Radio.ReceiveFromRadio(ctx)
		if err != nil {
			return state, fmt.Errorf("failed to read response: %w", err)
		}

		switch payload := packet.PayloadVariant.(type) {
		case *pb.FromRadio_MyInfo:
			state.MyInfo = payload.MyInfo
		case *pb.FromRadio_NodeInfo:
			state.Nodes = append(state.Nodes, payload.NodeInfo)
		case *pb.FromRadio_Channel:
			state.Channels = append(state.Channels, payload.Channel)
		case *pb.FromRadio_Metadata:
			state.Device = payload.Metadata
		case *pb.FromRadio_ConfigCompleteId:
			if payload.ConfigCompleteId == configId {
				return state, nil
			}
		default:
			continue // unexpected payload. ignore it
		}
	}
}

// DeviceState represents the current state of a device.
type DeviceState struct {
	MyInfo   *pb.MyNodeInfo
	Nodes    []*pb.NodeInfo
	Channels []*pb.Channel
	Device   *pb.DeviceMetadata
}

// CurrentNodeInfo returns the current node info if available.
func (s DeviceState) CurrentNodeInfo() (*pb.NodeInfo, bool) {
	if s.MyInfo == nil {
		return nil, false
	}
	for _, node := range s.Nodes {
		if node.GetNum() == s.MyInfo.GetMyNodeNum() {
			return node, true
		}
	}
	return nil, false
}
