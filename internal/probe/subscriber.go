package probe

import (
	"Go2NetGuard/internal/config"
	"Go2NetGuard/internal/engine/protocol"
	"Go2NetGuard/internal/metrics"
	"Go2NetGuard/internal/model"
	"log"

	"github.com/nats-io/nats.go"
)

// Subscriber consumes frames published by a probe and feeds them into the
// pipeline.
type Subscriber struct {
	nc         *nats.Conn
	subject    string
	bufferSize int
}

// NewSubscriber creates a new NATS subscriber.
func NewSubscriber(cfg config.ProbeConfig) (*Subscriber, error) {
	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		return nil, err
	}
	log.Printf("Connected to NATS server at %s", cfg.NATSURL)
	return &Subscriber{nc: nc, subject: cfg.Subject, bufferSize: 4096}, nil
}

// Decode turns a probe message into packet metadata.
func Decode(msg *nats.Msg) (*model.PacketInfo, error) {
	ts, err := DecodeTimestamp(msg)
	if err != nil {
		return nil, err
	}
	return protocol.ParseFrame(msg.Data, ts)
}

// Run implements model.PacketSource. It returns when stop is closed.
func (s *Subscriber) Run(stop <-chan struct{}, offer func(*model.PacketInfo) bool) error {
	msgs := make(chan *nats.Msg, s.bufferSize)
	sub, err := s.nc.ChanSubscribe(s.subject, msgs)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()
	log.Printf("Subscribed to '%s'. Waiting for messages...", s.subject)

	m := metrics.Get()
	for {
		select {
		case <-stop:
			return nil
		case msg := <-msgs:
			info, err := Decode(msg)
			if err != nil {
				m.PacketsCaptured.WithLabelValues("rejected").Inc()
				continue
			}
			m.PacketsCaptured.WithLabelValues("parsed").Inc()
			offer(info)
		}
	}
}

// Close closes the NATS connection.
func (s *Subscriber) Close() {
	if s.nc != nil {
		s.nc.Close()
		log.Println("NATS connection closed.")
	}
}
