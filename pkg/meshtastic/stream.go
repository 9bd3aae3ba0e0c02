package meshtastic

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	pb "github.com/meshnet-gophers/meshtastic-go/meshtastic"
	protobuf "google.golang.org/protobuf/proto"
)

// maxFrameLen is the largest PDU the firmware will emit on the serial link.
// Anything longer means we latched onto a false frame marker.
const maxFrameLen = 512

var _ Transport = &StreamTransport{}

// StreamTransport represents a transport layer using a Stream (e.g., TCP connection or serial port).
type StreamTransport struct {
	Stream io.ReadWriteCloser
	lock   sync.Mutex
}

// ReceiveFromRadio reads a single packet from the stream and returns it.
func (st *StreamTransport) ReceiveFromRadio(ctx context.Context) (*pb.FromRadio, error) {
	st.lock.Lock()
	buf, err := st.readBytes()
	st.lock.Unlock()
	if err != nil {
		return nil, err
	}

	packet := new(pb.FromRadio)
	err = protobuf.Unmarshal(buf, packet)
	if err != nil {
		return nil, ErrInvalidPacketFormat
	}
	return packet, nil
}

// readBytes scans the stream for the 0x94 0xC3 frame marker, then reads the
// big-endian length header and exactly that many payload bytes. Marker bytes
// appearing inside garbage restart the scan, so the reader resynchronizes
// after any corruption.
func (st *StreamTransport) readBytes() ([]byte, error) {
	header := make([]byte, 4)

	for {
		_, err := io.ReadFull(st.Stream, header[:1])
		if err != nil {
			return nil, err
		}
		if header[0] != 0x94 {
			continue
		}

		_, err = io.ReadFull(st.Stream, header[1:2])
		if err != nil {
			return nil, err
		}
		if header[1] != 0xc3 {
			continue
		}

		_, err = io.ReadFull(st.Stream, header[2:])
		if err != nil {
			return nil, err
		}

		pduLen := int(binary.BigEndian.Uint16(header[2:4]))
		if pduLen > maxFrameLen {
			continue
		}

		data := make([]byte, pduLen)
		_, err = io.ReadFull(st.Stream, data)
		return data, err
	}
}

// SendToRadio sends a protobuf message to the radio.
func (st *StreamTransport) SendToRadio(ctx context.Context, packet *pb.ToRadio) error {
	buf, err := protobuf.Marshal(packet)
	if err != nil {
		return fmt.Errorf("marshalling error: %w", err)
	}

	st.lock.Lock()
	defer st.lock.Unlock()
	return st.sendBytes(buf)
}

func (st *StreamTransport) sendBytes(data []byte) error {
	if len(data) > maxFrameLen {
		return errors.New("packet too long")
	}

	header := []byte{0x94, 0xc3, 0, 0}
	binary.BigEndian.PutUint16(header[2:4], uint16(len(data)))

	_, err := st.Stream.Write(header)
	if err != nil {
		return err
	}

	_, err = st.Stream.Write(data)
	return err
}

func (st *StreamTransport) Close() error {
	return st.Stream.Close()
}
