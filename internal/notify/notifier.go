package notify

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"
)

// Sink delivers events somewhere.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
}

// publishTimeout bounds a single Emit so a slow sink cannot hold up the caller.
const publishTimeout = 5 * time.Second

// Notifier is the fire-and-forget front of a Sink. A nil *Notifier drops everything.
type Notifier struct {
	sink Sink
}

// NewNotifier wraps sink. It is created once at process start and closed on shutdown.
func NewNotifier(sink Sink) *Notifier {
	return &Notifier{sink: sink}
}

// Emit publishes events in order. Failures are logged and swallowed. Cancellation of ctx does
// not stop delivery, since the mutation being reported already committed.
func (n *Notifier) Emit(ctx context.Context, events ...Event) {
	if n == nil || n.sink == nil || len(events) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	for _, ev := range events {
		if err := n.sink.Publish(ctx, ev); err != nil {
			log.Printf("notify: failed to publish %s (%s): %v", ev.Kind, ev.ID, err)
		}
	}
}

// Close releases the sink if it holds resources.
func (n *Notifier) Close() error {
	if n == nil {
		return nil
	}
	if c, ok := n.sink.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// CompositeSink fans events out to several sinks.
type CompositeSink struct {
	sinks []Sink
}

// NewCompositeSink returns the concrete type so AddSink can be called on it.
func NewCompositeSink(sinks ...Sink) *CompositeSink {
	return &CompositeSink{sinks: sinks}
}

// AddSink appends a sink; nil is ignored.
func (cs *CompositeSink) AddSink(sink Sink) {
	if sink != nil {
		cs.sinks = append(cs.sinks, sink)
	}
}

// Publish delivers to every sink and joins their errors.
func (cs *CompositeSink) Publish(ctx context.Context, ev Event) error {
	if len(cs.sinks) == 0 {
		return fmt.Errorf("no sinks configured in CompositeSink")
	}

	var allErrors []string
	for _, sink := range cs.sinks {
		if err := sink.Publish(ctx, ev); err != nil {
			allErrors = append(allErrors, err.Error())
		}
	}
	if len(allErrors) > 0 {
		return fmt.Errorf("composite publish failed: [ %s ]", strings.Join(allErrors, "; "))
	}
	return nil
}

// Close closes every sink that holds resources.
func (cs *CompositeSink) Close() error {
	var allErrors []string
	for _, sink := range cs.sinks {
		if c, ok := sink.(io.Closer); ok {
			if err := c.Close(); err != nil {
				allErrors = append(allErrors, err.Error())
			}
		}
	}
	if len(allErrors) > 0 {
		return fmt.Errorf("composite close failed: [ %s ]", strings.Join(allErrors, "; "))
	}
	return nil
}

// LoggingSink writes events to the process log. Useful in development and when no broker is
// configured.
type LoggingSink struct{}

func (LoggingSink) Publish(_ context.Context, ev Event) error {
	log.Printf("notify: %s -> %v (id %s, payload %+v)", ev.Kind, ev.Rooms(), ev.ID, ev.Payload)
	return nil
}
