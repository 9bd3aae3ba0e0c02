package meshtastic

import (
	"context"

	pb "github.com/meshnet-gophers/meshtastic-go/meshtastic"
)

// Transport defines methods for sending and receiving packets directly to and from the radio hardware.
type Transport interface {
	// SendToRadio sends a packet to the radio hardware.
	SendToRadio(ctx context.Context, packet *pb.ToRadio) error
	// ReceiveFromRadio receives a packet from the radio hardware.
	ReceiveFromRadio(ctx context.Context) (*pb.FromRadio, error)
	// Close releases the underlying connection.
	Close() error
}

// MeshTransport defines methods for sending and receiving mesh packets over the network,
// abstracting the underlying radio communication.
type MeshTransport interface {
	// SendToMesh sends a mesh packet to the network.
	SendToMesh(ctx context.Context, packet *pb.MeshPacket) error
	// ReceiveFromMesh receives a mesh packet from the network.
	ReceiveFromMesh(ctx context.Context) (*pb.MeshPacket, error)
	// Close releases the underlying connection.
	Close() error
}

// Device adapts a hardware Transport into a MeshTransport by wrapping and
// unwrapping the radio framing around mesh packets.
type Device struct {
	Transport Transport
}

var _ MeshTransport = &Device{}

// SendToMesh sends a mesh packet over the device's transport.
// It converts the provided MeshPacket into a ToRadio message with the appropriate payload variant.
func (d *Device) SendToMesh(ctx context.Context, packet *pb.MeshPacket) error {
	return d.Transport.SendToRadio(ctx, &pb.ToRadio{
		PayloadVariant: &pb.ToRadio_Packet{
			Packet: packet,
		},
	})
}

// ReceiveFromMesh blocks until a mesh packet is received from the device's transport.
// It continuously listens for incoming frames and returns the first MeshPacket found.
// Other packets will be ignored.
func (d *Device) ReceiveFromMesh(ctx context.Context) (*pb.MeshPacket, error) {
	for {
		frame, err := d.Transport.ReceiveFromRadio(ctx)
		if err != nil {
			return nil, err
		}

		if packet := frame.GetPacket(); packet != nil {
			return packet, nil
		}
	}
}

func (d *Device) Close() error {
	return d.Transport.Close()
}
