package config

import "time"

// BrokerConfig holds the RabbitMQ settings for complaint lifecycle events.
type BrokerConfig struct {
	URL            string
	Exchange       string
	AuditQueue     string
	AuditLogPath   string
	ConsumeAudit   bool          // run the audit consumer inside the server process
	PublishTimeout time.Duration // budget for a single publish
}

// LoadBrokerConfig reads RABBITMQ_* variables.  An empty URL disables event
// publishing; the complaint workflow never depends on the broker.
func LoadBrokerConfig() BrokerConfig {
	return BrokerConfig{
		URL:            envStr("RABBITMQ_URL", ""),
		Exchange:       envStr("RABBITMQ_EXCHANGE", "complaints"),
		AuditQueue:     envStr("RABBITMQ_AUDIT_QUEUE", "complaints.audit"),
		AuditLogPath:   envStr("AUDIT_LOG_PATH", "logs/audit.log"),
		ConsumeAudit:   envBool("RABBITMQ_CONSUME_AUDIT", true),
		PublishTimeout: envDur("RABBITMQ_PUBLISH_TIMEOUT", 3*time.Second),
	}
}

// Enabled reports whether a broker URL is configured.
func (b BrokerConfig) Enabled() bool { return b.URL != "" }
