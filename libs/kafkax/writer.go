package kafkax

import (
	"time"

	"github.com/segmentio/kafka-go"
)

// NewWriter returns a producer that routes by message key, so every event of one
// aggregate lands on the same partition in order.
func NewWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
}
