package queue

import (
	"context"
	"time"
)

// Message kinds.
const (
	KindConnectorExecution = "connector_execution"
	KindDedupe             = "dedupe"
)

// Message is one unit of work. Delivery is at least once; Key identifies
// the work so consumers can recognise redeliveries.
type Message struct {
	Kind        string
	RunID       string
	ConnectorID string
	RecordID    string
	Attempt     int
	EnqueuedAt  time.Time
}

// ConnectorExecution builds the message that runs one connector in a run.
func ConnectorExecution(runID, connectorID string) Message {
	return Message{Kind: KindConnectorExecution, RunID: runID, ConnectorID: connectorID, Attempt: 1}
}

// Dedupe builds the message that resolves one candidate record.
func Dedupe(runID, recordID string) Message {
	return Message{Kind: KindDedupe, RunID: runID, RecordID: recordID, Attempt: 1}
}

// Key is the idempotency key of the message.
func (m Message) Key() string {
	if m.Kind == KindDedupe {
		return "record:" + m.RecordID
	}
	return "run:" + m.RunID + "/" + m.ConnectorID
}

// Retry returns the message for the next delivery attempt.
func (m Message) Retry() Message {
	m.Attempt++
	m.EnqueuedAt = time.Time{}
	return m
}

// Publisher is the producer side of a queue.
type Publisher interface {
	Enqueue(ctx context.Context, m Message) error
}
