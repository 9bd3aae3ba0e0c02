package meshtastic

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"testing"

	pb "github.com/meshnet-gophers/meshtastic-go/meshtastic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	protobuf "google.golang.org/protobuf/proto"
)

type fakeStream struct {
	in  *bytes.Buffer
	out bytes.Buffer
}

func (s *fakeStream) Read(p []byte) (int, error)  { return s.in.Read(p) }
func (s *fakeStream) Write(p []byte) (int, error) { return s.out.Write(p) }
func (s *fakeStream) Close() error                { return nil }

func frame(t *testing.T, packet *pb.FromRadio) []byte {
	t.Helper()
	payload, err := protobuf.Marshal(packet)
	require.NoError(t, err)

	buf := []byte{0x94, 0xc3, 0, 0}
	binary.BigEndian.PutUint16(buf[2:4], uint16(len(payload)))
	return append(buf, payload...)
}

func TestStreamReceive(t *testing.T) {
	packet := &pb.FromRadio{PayloadVariant: &pb.FromRadio_MyInfo{
		MyInfo: &pb.MyNodeInfo{MyNodeNum: 0xdeadbeef},
	}}
	stream := &fakeStream{in: bytes.NewBuffer(frame(t, packet))}
	transport := &StreamTransport{Stream: stream}

	got, err := transport.ReceiveFromRadio(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint32(0xdeadbeef), got.GetMyInfo().GetMyNodeNum())
}

func TestStreamReceiveResyncsAfterGarbage(t *testing.T) {
	packet := &pb.FromRadio{PayloadVariant: &pb.FromRadio_MyInfo{
		MyInfo: &pb.MyNodeInfo{MyNodeNum: 42},
	}}

	var in bytes.Buffer
	// Line noise, a stray first marker byte, and a false frame whose length
	// field exceeds the protocol maximum. The reader must skip all of it.
	in.Write([]byte{0x00, 0x13, 0x94, 0x00, 0x37})
	in.Write([]byte{0x94, 0xc3, 0xff, 0xff})
	in.Write(frame(t, packet))

	transport := &StreamTransport{Stream: &fakeStream{in: &in}}
	got, err := transport.ReceiveFromRadio(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint32(42), got.GetMyInfo().GetMyNodeNum())
}

func TestStreamReceiveEOF(t *testing.T) {
	transport := &StreamTransport{Stream: &fakeStream{in: bytes.NewBuffer(nil)}}
	_, err := transport.ReceiveFromRadio(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestStreamSend(t *testing.T) {
	stream := &fakeStream{in: bytes.NewBuffer(nil)}
	transport := &StreamTransport{Stream: stream}

	sent := &pb.ToRadio{PayloadVariant: &pb.ToRadio_WantConfigId{WantConfigId: 7}}
	require.NoError(t, transport.SendToRadio(context.Background(), sent))

	written := stream.out.Bytes()
	require.GreaterOrEqual(t, len(written), 4)
	assert.Equal(t, byte(0x94), written[0])
	assert.Equal(t, byte(0xc3), written[1])
	assert.Equal(t, int(binary.BigEndian.Uint16(written[2:4])), len(written)-4)

	var got pb.ToRadio
	require.NoError(t, protobuf.Unmarshal(written[4:], &got))
	assert.Equal(t, uint32(7), got.GetWantConfigId())
}

func TestStreamSendRejectsOversizedPacket(t *testing.T) {
	stream := &fakeStream{in: bytes.NewBuffer(nil)}
	transport := &StreamTransport{Stream: stream}

	huge := &pb.ToRadio{PayloadVariant: &pb.ToRadio_Packet{Packet: &pb.MeshPacket{
		PayloadVariant: &pb.MeshPacket_Decoded{Decoded: &pb.Data{
			Payload: bytes.Repeat([]byte{0x55}, maxFrameLen+1),
		}},
	}}}
	err := transport.SendToRadio(context.Background(), huge)
	assert.Error(t, err)
	assert.Zero(t, stream.out.Len())
}
