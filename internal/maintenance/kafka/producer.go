package kafka

import (
	"log"
	"os"
	"strings"

	"github.com/segmentio/kafka-go"
)

const (
	DefaultKafkaBrokers           = "localhost:9092"
	DefaultMaintenanceAlertsTopic = "maintenance_alerts"
)

// NewAlertForwarder builds the writer used for best-effort forwarding of
// maintenance notifications to the external channel topic.
func NewAlertForwarder() *kafka.Writer {
	kafkaBrokers := os.Getenv("KAFKA_BROKERS")
	if kafkaBrokers == "" {
		kafkaBrokers = DefaultKafkaBrokers
	}
	alertsTopic := os.Getenv("MAINTENANCE_ALERTS_TOPIC")
	if alertsTopic == "" {
		alertsTopic = DefaultMaintenanceAlertsTopic
	}
	brokerList := strings.Split(kafkaBrokers, ",")
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      brokerList,
		Topic:        alertsTopic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: int(kafka.RequireOne),
		Async:        false,
	})
	log.Printf("Maintenance alert forwarder configured for topic: %s", alertsTopic)
	return writer
}
