// Package stats collects build statistics and the user facing message log.
package stats

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/achilleasa/lightmass/log"
	"github.com/olekukonko/tablewriter"
)

type Severity uint8

const (
	Info Severity = iota
	Warning
	Error
	CriticalError
)

func (s Severity) String() string {
	switch s {
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	}
	return "critical"
}

func (s Severity) logLevel() log.Level {
	switch s {
	case Info:
		return log.Info
	case Warning:
		return log.Warning
	case Error:
		return log.Error
	}
	return log.Critical
}

// A build message.
type Message struct {
	Severity Severity
	Text     string
	Time     time.Time
}

// MessageLog accumulates the messages shown to the user at the end of a
// build. It is only accessed by the build goroutine.
type MessageLog struct {
	logger   log.Logger
	messages []Message
}

// Create a new message log. Added messages are also forwarded to logger.
func NewMessageLog(logger log.Logger) *MessageLog {
	return &MessageLog{logger: logger}
}

func (l *MessageLog) Add(msg Message) {
	if msg.Time.IsZero() {
		msg.Time = time.Now()
	}
	l.messages = append(l.messages, msg)
	if l.logger != nil {
		log.AtLevel(l.logger, msg.Severity.logLevel(), "%s", msg.Text)
	}
}

func (l *MessageLog) Addf(severity Severity, format string, v ...interface{}) {
	l.Add(Message{Severity: severity, Text: fmt.Sprintf(format, v...)})
}

func (l *MessageLog) Messages() []Message {
	return l.messages
}

// Count messages with at least the given severity.
func (l *MessageLog) Count(min Severity) int {
	var n int
	for _, msg := range l.messages {
		if msg.Severity >= min {
			n++
		}
	}
	return n
}

// Render the message log as a table.
func (l *MessageLog) Table() string {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeader([]string{"Time", "Severity", "Message"})
	for _, msg := range l.messages {
		table.Append([]string{msg.Time.Format("15:04:05.000"), msg.Severity.String(), msg.Text})
	}
	table.Render()
	return buf.String()
}

// AlertQueue buffers messages produced by worker callbacks until the build
// goroutine drains them.
type AlertQueue struct {
	mu      sync.Mutex
	pending []Message
}

// Queue a message. Safe for concurrent use.
func (q *AlertQueue) Push(msg Message) {
	if msg.Time.IsZero() {
		msg.Time = time.Now()
	}
	q.mu.Lock()
	q.pending = append(q.pending, msg)
	q.mu.Unlock()
}

// Remove and return all queued messages in the order they were pushed.
func (q *AlertQueue) Drain() []Message {
	q.mu.Lock()
	out := q.pending
	q.pending = nil
	q.mu.Unlock()
	return out
}

// Drain queued messages into a message log.
func (q *AlertQueue) DrainTo(sink *MessageLog) int {
	msgs := q.Drain()
	for _, msg := range msgs {
		sink.Add(msg)
	}
	return len(msgs)
}
