package kafkax

import (
	"context"
	"net"
	"reflect"
	"testing"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestExtractEventMetaFallsBack(t *testing.T) {
	msg := kafka.Message{Topic: "clinic.appointment.booked.v1", Key: []byte("evt-1")}
	meta := ExtractEventMeta(msg)
	if meta.EventID != "evt-1" || meta.EventType != "clinic.appointment.booked.v1" {
		t.Fatalf("unexpected meta %+v", meta)
	}

	msg.Headers = MetaHeaders(EventMeta{EventID: "evt-2", EventType: "custom"})
	meta = ExtractEventMeta(msg)
	if meta.EventID != "evt-2" || meta.EventType != "custom" {
		t.Fatalf("headers should win, got %+v", meta)
	}
}

func TestSplitBrokers(t *testing.T) {
	got := SplitBrokers(" kafka-1:9092, ,kafka-2:9092 ")
	if !reflect.DeepEqual(got, []string{"kafka-1:9092", "kafka-2:9092"}) {
		t.Fatalf("unexpected brokers %v", got)
	}
	if SplitBrokers("") != nil {
		t.Fatal("expected nil for empty input")
	}
}

func TestTraceHeadersRoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	headers := InjectTraceHeaders(ctx, MetaHeaders(EventMeta{EventID: "e", EventType: "t"}))
	if HeaderValue(headers, "traceparent") == "" {
		t.Fatalf("traceparent header missing: %v", headers)
	}

	out := trace.SpanContextFromContext(ExtractTraceContext(context.Background(), kafka.Message{Headers: headers}))
	if out.TraceID() != traceID {
		t.Fatalf("trace id not propagated: %s", out.TraceID())
	}
}

func TestReadyCheckTriesEveryBroker(t *testing.T) {
	ctx := context.Background()
	if err := ReadyCheck(" , ")(ctx); err == nil {
		t.Fatal("expected error without brokers")
	}

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go func() {
		for {
			conn, err := lis.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()
	live := lis.Addr().String()

	dead, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	deadAddr := dead.Addr().String()
	_ = dead.Close()

	if err := ReadyCheck(deadAddr + "," + live)(ctx); err != nil {
		t.Fatalf("expected the live broker to pass, got %v", err)
	}
	_ = lis.Close()
	if err := ReadyCheck(deadAddr)(ctx); err == nil {
		t.Fatal("expected error when no broker is reachable")
	}
}
