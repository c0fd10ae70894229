package kafkaconsumer

import (
	"os"
	"strings"
	"time"
)

type Config struct {
	Brokers             []string
	Topic               string
	GroupID             string
	SessionTimeout      time.Duration
	Heartbeat           time.Duration
	RebalanceTimeout    time.Duration
	InitialOffsetOldest bool
	DedupeSize          int
}

func FromEnv() Config {
	brokers := os.Getenv("GEOMET_CLIMATE_KAFKA_BROKERS")
	if brokers == "" {
		brokers = "localhost:9092"
	}
	topic := os.Getenv("GEOMET_CLIMATE_KAFKA_TOPIC")
	if topic == "" {
		topic = "geomet-climate-recompile"
	}
	group := os.Getenv("GEOMET_CLIMATE_KAFKA_GROUP_ID")
	if group == "" {
		group = "geomet-climate-ows"
	}

	return Config{
		Brokers:          SplitCSV(brokers),
		Topic:            topic,
		GroupID:          group,
		SessionTimeout:   30 * time.Second,
		Heartbeat:        3 * time.Second,
		RebalanceTimeout: 30 * time.Second,
		// only events after startup matter: older ones predate the
		// artifacts this node loaded
		InitialOffsetOldest: false,
		DedupeSize:          1024,
	}
}

func SplitCSV(s string) []string {
	parts := strings.Split(s, ",")
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
