package quartz

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// CloudEvents types published by CloudEventSignaler.
const (
	EventTypeTriggerMisfired   = "io.quartz.trigger.misfired"
	EventTypeTriggerFinalized  = "io.quartz.trigger.finalized"
	EventTypeSchedulingChanged = "io.quartz.scheduling.changed"
)

// DefaultCloudEventBuffer is the queue length of a CloudEventSignaler.
const DefaultCloudEventBuffer = 256

// EventSender is the part of cloudevents.Client a CloudEventSignaler needs.
type EventSender interface {
	Send(ctx context.Context, event cloudevents.Event) cloudevents.Result
}

// TriggerEventData is the JSON payload of trigger events.
type TriggerEventData struct {
	Trigger          string    `json:"trigger"`
	Job              string    `json:"job"`
	NextFireTime     time.Time `json:"nextFireTime,omitzero"`
	PreviousFireTime time.Time `json:"previousFireTime,omitzero"`
}

// SchedulingChangedData is the JSON payload of scheduling change events.
type SchedulingChangedData struct {
	Candidate time.Time `json:"candidate,omitzero"`
}

// CloudEventSignaler publishes store notifications as CloudEvents. Events
// are queued and sent from a single goroutine, so the store never waits on
// the transport; when the queue is full the event is dropped and counted.
type CloudEventSignaler struct {
	sender  EventSender
	source  string
	logger  Logger
	timeout time.Duration

	queue   chan cloudevents.Event
	done    chan struct{}
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

// CloudEventOption configures a CloudEventSignaler.
type CloudEventOption func(*CloudEventSignaler)

// WithEventBuffer sets the queue length.
func WithEventBuffer(n int) CloudEventOption {
	return func(s *CloudEventSignaler) {
		if n > 0 {
			s.queue = make(chan cloudevents.Event, n)
		}
	}
}

// WithEventLogger sets the logger used for send failures.
func WithEventLogger(l Logger) CloudEventOption {
	return func(s *CloudEventSignaler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSendTimeout bounds each Send call.
func WithSendTimeout(d time.Duration) CloudEventOption {
	return func(s *CloudEventSignaler) {
		s.timeout = d
	}
}

// NewCloudEventSignaler starts a signaler publishing to sender with the
// given CloudEvents source. Close must be called to stop it.
func NewCloudEventSignaler(sender EventSender, source string, opts ...CloudEventOption) *CloudEventSignaler {
	s := &CloudEventSignaler{
		sender:  sender,
		source:  source,
		logger:  DiscardLogger,
		timeout: 5 * time.Second,
		queue:   make(chan cloudevents.Event, DefaultCloudEventBuffer),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.run()
	return s
}

func (s *CloudEventSignaler) TriggerMisfired(trigger Trigger) {
	s.enqueue(EventTypeTriggerMisfired, trigger.Key().String(), triggerEventData(trigger))
}

func (s *CloudEventSignaler) TriggerFinalized(trigger Trigger) {
	s.enqueue(EventTypeTriggerFinalized, trigger.Key().String(), triggerEventData(trigger))
}

func (s *CloudEventSignaler) SchedulingChanged(candidate time.Time) {
	s.enqueue(EventTypeSchedulingChanged, "", SchedulingChangedData{Candidate: candidate})
}

// Dropped returns the number of events discarded because the queue was full
// or the signaler was closed.
func (s *CloudEventSignaler) Dropped() int64 { return s.dropped.Load() }

// Close stops accepting events and waits until the queued ones were sent or
// ctx is done.
func (s *CloudEventSignaler) Close(ctx context.Context) error {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.queue)
		s.mu.Unlock()
	})
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "closing cloudevent signaler")
	}
}

func triggerEventData(t Trigger) TriggerEventData {
	return TriggerEventData{
		Trigger:          t.Key().String(),
		Job:              t.JobKey().String(),
		NextFireTime:     t.NextFireTime(),
		PreviousFireTime: t.PreviousFireTime(),
	}
}

func (s *CloudEventSignaler) enqueue(eventType, subject string, data any) {
	event := cloudevents.NewEvent()
	event.SetID(uuid.Must(uuid.NewV7()).String())
	event.SetSource(s.source)
	event.SetType(eventType)
	event.SetTime(time.Now())
	if subject != "" {
		event.SetSubject(subject)
	}
	if err := event.SetData(cloudevents.ApplicationJSON, data); err != nil {
		s.logger.Error(err, "encode event", "type", eventType)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.dropped.Add(1)
		return
	}
	select {
	case s.queue <- event:
	default:
		s.dropped.Add(1)
	}
}

func (s *CloudEventSignaler) run() {
	defer close(s.done)
	for event := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		result := s.sender.Send(ctx, event)
		cancel()
		if !cloudevents.IsACK(result) {
			s.logger.Error(result, "publish event", "type", event.Type(), "id", event.ID())
		}
	}
}
