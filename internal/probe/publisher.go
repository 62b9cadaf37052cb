package probe

import (
	"Go2NetGuard/internal/config"
	"Go2NetGuard/internal/model"
	"encoding/base64"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// TimestampHeader carries the capture time of the frame in a message.
const TimestampHeader = "Ts"

// Publisher publishes raw captured frames to a NATS subject.
type Publisher struct {
	nc      *nats.Conn
	subject string
}

// NewPublisher creates a new NATS publisher.
func NewPublisher(cfg config.ProbeConfig) (*Publisher, error) {
	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		return nil, err
	}
	log.Printf("Connected to NATS server at %s", cfg.NATSURL)
	return &Publisher{nc: nc, subject: cfg.Subject}, nil
}

// EncodeMessage builds the message for a captured frame. The body is the
// frame itself; the capture time travels as a protobuf Timestamp in a header.
func EncodeMessage(subject string, frame []byte, ts time.Time) (*nats.Msg, error) {
	data, err := proto.Marshal(timestamppb.New(ts))
	if err != nil {
		return nil, err
	}
	msg := nats.NewMsg(subject)
	msg.Data = frame
	msg.Header.Set(TimestampHeader, base64.StdEncoding.EncodeToString(data))
	return msg, nil
}

// DecodeTimestamp reads the capture time of msg. Messages without the
// header are stamped with the receive time.
func DecodeTimestamp(msg *nats.Msg) (time.Time, error) {
	value := msg.Header.Get(TimestampHeader)
	if value == "" {
		return time.Now(), nil
	}
	data, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s header: %w", TimestampHeader, err)
	}
	var ts timestamppb.Timestamp
	if err := proto.Unmarshal(data, &ts); err != nil {
		return time.Time{}, fmt.Errorf("invalid %s header: %w", TimestampHeader, err)
	}
	return ts.AsTime(), nil
}

// Publish sends the raw frame of pkt.
func (p *Publisher) Publish(pkt *model.PacketInfo) error {
	msg, err := EncodeMessage(p.subject, pkt.Raw, pkt.Timestamp)
	if err != nil {
		return err
	}
	return p.nc.PublishMsg(msg)
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		log.Println("NATS connection drained and closed.")
	}
}
