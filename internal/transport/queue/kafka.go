package queue

import (
	"crypto/tls"
	"crypto/x509"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"
)

type KafkaConfig struct {
	Brokers  []string
	Topic    string
	DLQTopic string
	GroupID  string

	Username string
	Password string
	CACert   string
}

// NewDialer enables SASL/PLAIN when credentials are set, and TLS whenever
// SASL or a CA certificate is configured.
func NewDialer(cfg KafkaConfig) *kafka.Dialer {
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	if cfg.Username != "" && cfg.Password != "" {
		dialer.SASLMechanism = plain.Mechanism{
			Username: cfg.Username,
			Password: cfg.Password,
		}
	}

	if dialer.SASLMechanism != nil || cfg.CACert != "" {
		tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
		if cfg.CACert != "" {
			pool := x509.NewCertPool()
			if pool.AppendCertsFromPEM([]byte(cfg.CACert)) {
				tlsConfig.RootCAs = pool
			}
		}
		dialer.TLS = tlsConfig
	}

	return dialer
}

func NewReader(cfg KafkaConfig, dialer *kafka.Dialer) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.GroupID,
		StartOffset: kafka.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     time.Second,
		Dialer:      dialer,
	})
}

func NewDLQWriter(cfg KafkaConfig, dialer *kafka.Dialer) *kafka.Writer {
	transport := &kafka.Transport{
		TLS: dialer.TLS,
	}
	if dialer.SASLMechanism != nil {
		transport.SASL = dialer.SASLMechanism
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.DLQTopic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
		Transport:    transport,
	}
}

// ParseBrokers splits a comma separated broker list.
func ParseBrokers(brokers string) []string {
	var out []string
	for _, b := range strings.Split(strings.ReplaceAll(brokers, " ", ""), ",") {
		if b != "" {
			out = append(out, b)
		}
	}
	return out
}
