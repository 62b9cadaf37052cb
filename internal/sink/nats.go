package sink

import (
	"Go2NetGuard/internal/model"
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/nats-io/nats.go"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	EncodingJSON     = "json"
	EncodingProtobuf = "protobuf"
)

// EncodeAlert serializes alert as JSON or as a protobuf Struct carrying the
// same fields.
func EncodeAlert(alert *model.Alert, encoding string) ([]byte, error) {
	data, err := json.Marshal(alert)
	if err != nil {
		return nil, err
	}
	switch encoding {
	case "", EncodingJSON:
		return data, nil
	case EncodingProtobuf:
		var fields map[string]any
		if err := json.Unmarshal(data, &fields); err != nil {
			return nil, err
		}
		st, err := structpb.NewStruct(fields)
		if err != nil {
			return nil, fmt.Errorf("failed to build protobuf struct: %w", err)
		}
		return proto.Marshal(st)
	}
	return nil, fmt.Errorf("unknown alert encoding %q", encoding)
}

// DecodeAlert reverses EncodeAlert.
func DecodeAlert(data []byte, encoding string) (*model.Alert, error) {
	if encoding == EncodingProtobuf {
		var st structpb.Struct
		if err := proto.Unmarshal(data, &st); err != nil {
			return nil, err
		}
		var err error
		if data, err = protojson.Marshal(&st); err != nil {
			return nil, err
		}
	}
	var alert model.Alert
	if err := json.Unmarshal(data, &alert); err != nil {
		return nil, err
	}
	return &alert, nil
}

// NATSPublisher publishes alerts to a NATS subject.
type NATSPublisher struct {
	nc       *nats.Conn
	subject  string
	encoding string
}

// NewNATSPublisher connects to url.
func NewNATSPublisher(url, subject, encoding string) (*NATSPublisher, error) {
	if subject == "" {
		return nil, fmt.Errorf("nats sink requires a subject")
	}
	if encoding != "" && encoding != EncodingJSON && encoding != EncodingProtobuf {
		return nil, fmt.Errorf("unknown alert encoding %q", encoding)
	}
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, err
	}
	log.Printf("Connected to NATS server at %s for alerts", url)
	return &NATSPublisher{nc: nc, subject: subject, encoding: encoding}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, alert *model.Alert) error {
	data, err := EncodeAlert(alert, p.encoding)
	if err != nil {
		return err
	}
	msg := nats.NewMsg(p.subject)
	msg.Data = data
	msg.Header.Set("Severity", alert.Severity.String())
	msg.Header.Set("Alert-Type", string(alert.AlertType))
	return p.nc.PublishMsg(msg)
}

// Close drains and closes the NATS connection.
func (p *NATSPublisher) Close() error {
	if p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}
