// Package telemetry implements the gateway's structured event emitter
// (component C8): decision and error events serialized as one JSON object
// per line, forwarded to a Sink. Emission is best-effort and must never
// block or panic the request path — grounded on the OCX backend's
// internal/escrow event-logging idiom of a small interface plus a
// default io.Writer-backed implementation, generalized here to the
// event shapes this gateway needs.
package telemetry

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ocx/trustgate/internal/gateway/models"
)

// schemaVersion is bumped whenever a field is added, removed, or
// reinterpreted in either event shape.
const schemaVersion = 1

// Sink receives already-serialized telemetry lines. Implementations must
// not block the caller for long; the default Writer-backed Sink is a
// thin, non-buffering wrapper and relies on the underlying io.Writer for
// any buffering it needs.
type Sink interface {
	Write(line []byte) error
}

// WriterSink adapts any io.Writer (a file, os.Stdout, a log-shipping
// pipe) into a Sink.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink wraps w. Writes are serialized with a mutex since
// io.Writer itself makes no concurrency guarantee.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

func (s *WriterSink) Write(line []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.w.Write(append(line, '\n'))
	return err
}

type decisionRecord struct {
	Version       int            `json:"version"`
	EventType     string         `json:"event_type"`
	RequestID     string         `json:"request_id"`
	Timestamp     time.Time      `json:"timestamp"`
	Verdict       models.Verdict `json:"verdict"`
	Reason        string         `json:"reason,omitempty"`
	Score         *int           `json:"score,omitempty"`
	PrincipalHash string         `json:"principal_hash,omitempty"`
	LatencyMS     float64        `json:"latency_ms"`
}

type errorRecord struct {
	Version      int       `json:"version"`
	EventType    string    `json:"event_type"`
	RequestID    string    `json:"request_id"`
	Timestamp    time.Time `json:"timestamp"`
	ErrorKind    string    `json:"error_kind"`
	ErrorMessage string    `json:"error_message"`
}

// DecisionEvent describes one completed verdict, for Emitter.EmitDecision.
type DecisionEvent struct {
	RequestID     string
	Verdict       models.Verdict
	Reason        models.DenyReason
	HasReason     bool
	Score         int
	HasScore      bool
	PrincipalHash string
	LatencyMS     float64
}

// ErrorEvent describes an internal failure, for Emitter.EmitError.
type ErrorEvent struct {
	RequestID    string
	ErrorKind    string
	ErrorMessage string
}

// Emitter publishes structured events to a Sink. A nil or disabled
// Emitter silently drops every event — constructed via Disabled() or by
// setting Config.Enabled = false, so a disabled flag silences all events.
type Emitter struct {
	sink    Sink
	enabled bool
	logger  *slog.Logger
	now     func() time.Time
}

// Config controls Emitter construction.
type Config struct {
	Enabled bool
}

// New constructs an Emitter writing to sink. If cfg.Enabled is false, the
// returned Emitter drops every event without touching sink at all.
func New(cfg Config, sink Sink, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{sink: sink, enabled: cfg.Enabled, logger: logger, now: time.Now}
}

// Disabled returns an Emitter that drops every event. Useful as a
// zero-configuration default and in tests that don't care about
// telemetry output.
func Disabled() *Emitter {
	return &Emitter{enabled: false, logger: slog.Default(), now: time.Now}
}

// EmitDecision serializes and forwards a decision event. Never blocks the
// caller beyond the cost of one Sink.Write call and never panics; a
// marshal or sink failure is logged and swallowed.
func (e *Emitter) EmitDecision(ev DecisionEvent) {
	if e == nil || !e.enabled || e.sink == nil {
		return
	}
	rec := decisionRecord{
		Version:       schemaVersion,
		EventType:     "gateway.decision.made",
		RequestID:     ev.RequestID,
		Timestamp:     e.now().UTC(),
		Verdict:       ev.Verdict,
		PrincipalHash: ev.PrincipalHash,
		LatencyMS:     ev.LatencyMS,
	}
	if ev.HasReason {
		rec.Reason = string(ev.Reason)
	}
	if ev.HasScore {
		s := ev.Score
		rec.Score = &s
	}
	e.write(rec)
}

// EmitError serializes and forwards an error event.
func (e *Emitter) EmitError(ev ErrorEvent) {
	if e == nil || !e.enabled || e.sink == nil {
		return
	}
	rec := errorRecord{
		Version:      schemaVersion,
		EventType:    "gateway.error",
		RequestID:    ev.RequestID,
		Timestamp:    e.now().UTC(),
		ErrorKind:    ev.ErrorKind,
		ErrorMessage: ev.ErrorMessage,
	}
	e.write(rec)
}

func (e *Emitter) write(rec any) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("telemetry emission panicked, dropping event", "recover", r)
		}
	}()
	line, err := json.Marshal(rec)
	if err != nil {
		e.logger.Warn("telemetry event marshal failed, dropping", "error", err)
		return
	}
	if err := e.sink.Write(line); err != nil {
		e.logger.Warn("telemetry sink write failed, dropping", "error", err)
	}
}
