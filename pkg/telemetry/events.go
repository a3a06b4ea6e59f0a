package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event represents a telemetry event in the fleetform system.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// Source identifies where the event originated.
	Source string `json:"source"`

	// RunID is the associated run ID, if applicable.
	RunID string `json:"run_id,omitempty"`

	// Host is the associated host name, if applicable.
	Host string `json:"host,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// EventType constants for common event types.
const (
	EventTypeHostConnected    = "host.connected"
	EventTypeHostConnectError = "host.connect_error"
	EventTypeHostDisconnected = "host.disconnected"
	EventTypeCommandExecuted  = "host.command_executed"
	EventTypeFactResolved     = "fact.resolved"
	EventTypeFactInvalidated  = "fact.invalidated"
	EventTypeError            = "error"
)

// EventLevel constants for event severity.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber is a function that handles events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be processed.
type EventFilter func(event Event) bool

// EventPublisher fans events out to registered subscribers through a
// buffered channel, so emitting never blocks the host state machine.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())

	ep := &EventPublisher{
		config: cfg,
		buffer: make(chan Event, cfg.BufferSize),
		ctx:    ctx,
		cancel: cancel,
	}

	ep.wg.Add(1)
	go ep.processEvents()

	return ep, nil
}

// Publish publishes an event to all subscribers.
func (ep *EventPublisher) Publish(event Event) error {
	if ep == nil || !ep.config.Enabled {
		return nil
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case ep.buffer <- event:
		return nil
	case <-ep.ctx.Done():
		return fmt.Errorf("event publisher stopped")
	default:
		return fmt.Errorf("event buffer full, event dropped")
	}
}

// PublishHostConnected publishes a host connected event.
func (ep *EventPublisher) PublishHostConnected(runID, host, connector string) error {
	return ep.Publish(Event{
		Type:    EventTypeHostConnected,
		Source:  "engine",
		RunID:   runID,
		Host:    host,
		Message: fmt.Sprintf("Host %s connected via %s", host, connector),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"connector": connector,
		},
	})
}

// PublishHostConnectError publishes a connection failure event.
func (ep *EventPublisher) PublishHostConnectError(runID, host, reason string) error {
	return ep.Publish(Event{
		Type:    EventTypeHostConnectError,
		Source:  "engine",
		RunID:   runID,
		Host:    host,
		Message: fmt.Sprintf("Host %s connection failed: %s", host, reason),
		Level:   EventLevelError,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishHostDisconnected publishes a host disconnected event.
func (ep *EventPublisher) PublishHostDisconnected(runID, host string) error {
	return ep.Publish(Event{
		Type:    EventTypeHostDisconnected,
		Source:  "engine",
		RunID:   runID,
		Host:    host,
		Message: fmt.Sprintf("Host %s disconnected", host),
		Level:   EventLevelInfo,
	})
}

// PublishFactResolved publishes a fact resolution event.
func (ep *EventPublisher) PublishFactResolved(runID, host, fact string, cached bool) error {
	return ep.Publish(Event{
		Type:    EventTypeFactResolved,
		Source:  "facts",
		RunID:   runID,
		Host:    host,
		Message: fmt.Sprintf("Fact %s resolved for host %s", fact, host),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"fact":   fact,
			"cached": cached,
		},
	})
}

// Subscribe adds a new event subscriber. A nil filter receives all events.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// processEvents delivers events from the buffer.
func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	for {
		select {
		case event := <-ep.buffer:
			ep.deliverEvent(event)
		case <-ep.ctx.Done():
			// Drain whatever is left.
			for {
				select {
				case event := <-ep.buffer:
					ep.deliverEvent(event)
				default:
					return
				}
			}
		}
	}
}

// deliverEvent delivers an event to all subscribers.
func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	for _, entry := range ep.subscribers {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		entry.subscriber(event)
	}
}

// Shutdown gracefully shuts down the event publisher.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if !ep.config.Enabled {
		return nil
	}

	ep.cancel()

	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// FilterByLevel creates a filter that only allows events of a specific level or higher.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:    0,
		EventLevelWarning: 1,
		EventLevelError:   2,
	}

	minLevelValue := levels[minLevel]

	return func(event Event) bool {
		return levels[event.Level] >= minLevelValue
	}
}

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event Event) bool {
		return typeSet[event.Type]
	}
}

// FilterByHost creates a filter that only allows events for a specific host.
func FilterByHost(host string) EventFilter {
	return func(event Event) bool {
		return event.Host == host
	}
}
