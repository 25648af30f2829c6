package kafkax

import (
	"slices"
	"strings"

	"github.com/segmentio/kafka-go"
)

// HeaderValue returns the last value stored under key, or "".
func HeaderValue(headers []kafka.Header, key string) string {
	for i := len(headers) - 1; i >= 0; i-- {
		if headers[i].Key == key {
			return string(headers[i].Value)
		}
	}
	return ""
}

// SplitBrokers parses a comma separated broker list, dropping blanks and repeats.
func SplitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		b = strings.TrimSpace(b)
		if b != "" && !slices.Contains(brokers, b) {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
