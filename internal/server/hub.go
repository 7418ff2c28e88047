// Package server coordinates connection registration, message broadcast, and
// connection cleanup for the relay via the Hub type.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/Tyrowin/relay/internal/protocol"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/Tyrowin/relay/internal/server"

// Report summarizes one broadcast. Failed lists the recipients that could
// not accept the message and were dropped from the registry.
type Report struct {
	Recipients int
	Delivered  int
	Failed     []string
}

// Hub fans messages out to the sinks held by its Registry. Delivery to each
// recipient is independent: a closed or backed-up peer is disconnected and
// never blocks the others.
type Hub struct {
	registry *Registry
	tracer   trace.Tracer
}

// HubOption configures a Hub.
type HubOption func(h *Hub)

// WithTracer sets the tracer used for broadcast and unicast spans.
func WithTracer(tracer trace.Tracer) HubOption {
	return func(h *Hub) {
		if tracer != nil {
			h.tracer = tracer
		}
	}
}

// WithRegistry makes the hub deliver through an existing registry.
func WithRegistry(registry *Registry) HubOption {
	return func(h *Hub) {
		if registry != nil {
			h.registry = registry
		}
	}
}

// NewHub creates a Hub with an empty registry.
func NewHub(options ...HubOption) *Hub {
	h := &Hub{
		registry: NewRegistry(),
		tracer:   otel.Tracer(tracerName),
	}
	for _, option := range options {
		if option != nil {
			option(h)
		}
	}
	return h
}

// Registry returns the hub's connection registry.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// ClientCount returns the number of registered connections.
func (h *Hub) ClientCount() int {
	return h.registry.Len()
}

// Join queues hello on sink and then registers it under id. The sink is not
// visible to other senders until registration, so hello is always the first
// frame the new connection receives.
func (h *Hub) Join(ctx context.Context, id string, sink Sink, hello protocol.Message) error {
	_, span := h.tracer.Start(ctx, "hub.join", trace.WithAttributes(
		attribute.String("relay.connection.id", id),
	))
	defer span.End()

	payload, err := protocol.Encode(hello)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if err := sink.Send(payload); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("queue hello for %s: %w", id, err)
	}
	if err := h.registry.Register(id, sink); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("register %s: %w", id, err)
	}
	log.Printf("Client %s registered. Total clients: %d", id, h.registry.Len())
	return nil
}

// Deregister removes id from the registry. It is safe to call repeatedly.
func (h *Hub) Deregister(id string) bool {
	if _, ok := h.registry.Deregister(id); !ok {
		return false
	}
	log.Printf("Client %s unregistered. Total clients: %d", id, h.registry.Len())
	return true
}

// Broadcast delivers msg to every registered connection except excluded.
// Failures are logged and reported, never returned.
func (h *Hub) Broadcast(ctx context.Context, msg protocol.Message, excluded string) Report {
	_, span := h.tracer.Start(ctx, "hub.broadcast", trace.WithAttributes(
		attribute.String("relay.message.type", msg.Type.String()),
		attribute.String("relay.excluded", excluded),
	))
	defer span.End()

	payload, err := protocol.Encode(msg)
	if err != nil {
		log.Printf("Error encoding %s broadcast: %v", msg.Type, err)
		span.SetStatus(codes.Error, err.Error())
		return Report{}
	}

	recipients := h.registry.SnapshotExcept(excluded)
	report := Report{Recipients: len(recipients)}
	for _, rc := range recipients {
		if err := rc.Sink.Send(payload); err != nil {
			report.Failed = append(report.Failed, rc.ID)
			span.AddEvent("delivery failed", trace.WithAttributes(
				attribute.String("relay.recipient", rc.ID),
				attribute.String("error", err.Error()),
			))
			h.drop(rc, err)
			continue
		}
		report.Delivered++
	}

	span.SetAttributes(
		attribute.Int("relay.recipients", report.Recipients),
		attribute.Int("relay.failed", len(report.Failed)),
	)
	log.Printf("Broadcast %s to %d of %d clients", msg.Type, report.Delivered, report.Recipients)
	return report
}

// Unicast delivers msg to the connection registered under id. ErrNotFound
// means the peer has already gone. Join does not use it: hello is queued
// before the sink is registered, so Unicast serves point-to-point sends to
// connections that are already live.
func (h *Hub) Unicast(ctx context.Context, msg protocol.Message, id string) error {
	_, span := h.tracer.Start(ctx, "hub.unicast", trace.WithAttributes(
		attribute.String("relay.message.type", msg.Type.String()),
		attribute.String("relay.recipient", id),
	))
	defer span.End()

	sink, err := h.registry.Get(id)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	payload, err := protocol.Encode(msg)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if err := sink.Send(payload); err != nil {
		span.SetStatus(codes.Error, err.Error())
		h.drop(Recipient{ID: id, Sink: sink}, err)
		return fmt.Errorf("unicast to %s: %w", id, err)
	}
	return nil
}

// drop disconnects a recipient that failed to accept a frame.
func (h *Hub) drop(rc Recipient, cause error) {
	if !h.registry.removeIf(rc.ID, rc.Sink) {
		return
	}
	rc.Sink.Close()
	if errors.Is(cause, ErrSinkFull) {
		log.Printf("Client %s removed due to full send buffer", rc.ID)
		return
	}
	log.Printf("Client %s removed after failed delivery: %v", rc.ID, cause)
}

// CloseAll deregisters every connection and closes its sink. Sessions notice
// the closed outbox, send a close frame and finish on their own. Joins after
// CloseAll fail with ErrHubClosed.
func (h *Hub) CloseAll() int {
	recipients := h.registry.Close()
	for _, rc := range recipients {
		rc.Sink.Close()
	}
	log.Printf("Closed %d client connections", len(recipients))
	return len(recipients)
}
