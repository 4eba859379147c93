// Package queue defines the complaint lifecycle events exchanged over
// RabbitMQ and the consumer that turns them into an audit trail.
package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

// Routing keys on the complaints topic exchange.
const (
	RoutingSubmitted = "complaint.submitted"
	RoutingResolved  = "complaint.resolved"
)

// ComplaintSubmittedEvent is published after a complaint and its detail
// were committed.
type ComplaintSubmittedEvent struct {
	EventID     string    `json:"event_id"`
	ComplaintID uint64    `json:"complaint_id"`
	Folio       string    `json:"folio"`
	Type        string    `json:"type"`
	Company     string    `json:"company"`
	OriginIP    string    `json:"origin_ip"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// ComplaintResolvedEvent is published after a resolution was committed.
type ComplaintResolvedEvent struct {
	EventID     string    `json:"event_id"`
	ComplaintID uint64    `json:"complaint_id"`
	Folio       string    `json:"folio"`
	Status      string    `json:"status"`
	Outcome     string    `json:"outcome"`
	ResolvedBy  uint64    `json:"resolved_by"`
	ResolvedAt  time.Time `json:"resolved_at"`
}

// AuditLine renders one event as a single log line.  Unknown routing keys
// and undecodable bodies are errors so the consumer can reject them.
func AuditLine(routingKey string, body []byte) (string, error) {
	switch routingKey {
	case RoutingSubmitted:
		var ev ComplaintSubmittedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return "", fmt.Errorf("unmarshal %s: %w", routingKey, err)
		}
		return fmt.Sprintf("[%s] Complaint submitted | event=%s | folio=%s | complaint_id=%d | type=%s | company=%q | origin=%s\n",
			ev.SubmittedAt.UTC().Format(time.RFC3339), ev.EventID, ev.Folio, ev.ComplaintID, ev.Type, ev.Company, ev.OriginIP), nil
	case RoutingResolved:
		var ev ComplaintResolvedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return "", fmt.Errorf("unmarshal %s: %w", routingKey, err)
		}
		return fmt.Sprintf("[%s] Complaint resolved | event=%s | folio=%s | complaint_id=%d | status=%s | outcome=%s | resolved_by=%d\n",
			ev.ResolvedAt.UTC().Format(time.RFC3339), ev.EventID, ev.Folio, ev.ComplaintID, ev.Status, ev.Outcome, ev.ResolvedBy), nil
	}
	return "", fmt.Errorf("unknown routing key %q", routingKey)
}
