package mqtt

import (
	"context"
	"crypto/rand"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	pb "github.com/meshnet-gophers/meshtastic-go/meshtastic"
	protobuf "google.golang.org/protobuf/proto"

	"github.com/akitamesh/meshbridge/pkg/meshtastic"
)

var _ meshtastic.MeshTransport = &Transport{}

// Transport is an MQTT-based transport for Meshtastic communication. Mesh
// packets travel wrapped in ServiceEnvelope messages on the standard
// Meshtastic topic layout under RootTopic.
type Transport struct {
	// BrokerURL is the URL of the MQTT broker to connect to.
	BrokerURL string
	// Username is the username for MQTT authentication.
	Username string
	// Password is the password for MQTT authentication.
	Password string
	// AppName is a unique identifier for the application, used in the MQTT client ID.
	AppName string
	// RootTopic is the base topic for all messages.
	RootTopic string
	// ChannelID is the channel name placed in outgoing envelopes.
	ChannelID string
	// GatewayID identifies this bridge in outgoing envelopes.
	GatewayID string

	client     mqtt.Client
	messagesCh chan mqtt.Message
}

// SendToMesh publishes a mesh packet to the broker wrapped in a ServiceEnvelope.
func (mt *Transport) SendToMesh(ctx context.Context, packet *pb.MeshPacket) error {
	if mt.client == nil || !mt.client.IsConnected() {
		return ErrNotConnected
	}

	envelope := &pb.ServiceEnvelope{
		Packet:    packet,
		ChannelId: mt.ChannelID,
		GatewayId: mt.GatewayID,
	}
	msgData, err := protobuf.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshalling error: %w", err)
	}

	topic := fmt.Sprintf("%s/2/e/%s/%s", mt.RootTopic, mt.ChannelID, mt.GatewayID)
	token := mt.client.Publish(topic, 0, false, msgData)
	<-token.Done()
	return token.Error()
}

// ReceiveFromMesh receives a mesh packet from the network via MQTT.
func (mt *Transport) ReceiveFromMesh(ctx context.Context) (*pb.MeshPacket, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case msg := <-mt.messagesCh:
		if msg == nil {
			return nil, ErrNotConnected
		}

		envelope := new(pb.ServiceEnvelope)
		if err := protobuf.Unmarshal(msg.Payload(), envelope); err != nil {
			return nil, meshtastic.ErrInvalidPacketFormat
		}

		return envelope.GetPacket(), nil
	}
}

// Connect establishes an MQTT connection to the broker.
// It generates a random client ID, connects to the broker, and subscribes
// to all subtopics under the RootTopic.
func (mt *Transport) Connect(buffer int) error {
	if mt.client != nil && mt.client.IsConnected() {
		return nil
	}

	randomId := make([]byte, 4)
	_, _ = rand.Read(randomId)
	mt.messagesCh = make(chan mqtt.Message, buffer)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(mt.BrokerURL)
	opts.SetUsername(mt.Username)
	opts.SetPassword(mt.Password)
	opts.SetClientID(fmt.Sprintf("%s-%x", mt.AppName, randomId))
	opts.SetOrderMatters(false)

	mt.client = mqtt.NewClient(opts)

	token := mt.client.Connect()
	<-token.Done()
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect MQTT: %w", err)
	}

	token = mt.client.Subscribe(mt.RootTopic+"/#", 0, mt.handleMessage)
	<-token.Done()
	if err := token.Error(); err != nil {
		mt.Disconnect()
		return fmt.Errorf("failed to subscribe to topic: %w", err)
	}

	return nil
}

// Disconnect closes the MQTT connection and the message channel.
// It ensures that the client is disconnected and the channel is closed
// to prevent further message processing.
func (mt *Transport) Disconnect() {
	if mt.client != nil && mt.client.IsConnected() {
		mt.client.Disconnect(1000)
		close(mt.messagesCh)
	}
}

// Close implements meshtastic.MeshTransport.
func (mt *Transport) Close() error {
	mt.Disconnect()
	return nil
}

func (mt *Transport) handleMessage(_ mqtt.Client, message mqtt.Message) {
	mt.messagesCh <- message
}
