package hubproto_test

import (
	"bytes"
	"testing"

	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/hubproto"
)

func TestEncodeTerminatesRecord(t *testing.T) {
	b, err := hubproto.Encode(hubproto.HandshakeRequest{Protocol: "json", Version: 1})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if b[len(b)-1] != hubproto.RecordSeparator {
		t.Fatalf("expected trailing record separator")
	}
	if bytes.Count(b, []byte{hubproto.RecordSeparator}) != 1 {
		t.Fatalf("expected exactly one separator in %q", b)
	}
}

func TestSplitKeepsPartialRecord(t *testing.T) {
	data := []byte("{\"type\":6}\x1e{\"type\":1}\x1e\x1e{\"type\":")

	records, rest := hubproto.Split(data)
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if string(rest) != "{\"type\":" {
		t.Fatalf("unexpected rest %q", rest)
	}

	records, rest = hubproto.Split(append(rest, []byte("7}\x1e")...))
	if len(records) != 1 || len(rest) != 0 {
		t.Fatalf("expected the partial record to complete, got %d records, rest %q", len(records), rest)
	}

	m, err := hubproto.Decode(records[0])
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if m.Type != hubproto.TypeClose {
		t.Fatalf("expected close frame, got type %d", m.Type)
	}
}

func TestInvocationArguments(t *testing.T) {
	var media *string
	m, err := hubproto.NewInvocation("7", "SendMessage", "chat-1", "u1", "hi", media, 2.5, 0)
	if err != nil {
		t.Fatalf("NewInvocation failed: %v", err)
	}
	if len(m.Arguments) != 6 {
		t.Fatalf("expected 6 arguments, got %d", len(m.Arguments))
	}
	if string(m.Arguments[3]) != "null" {
		t.Fatalf("expected nil media url to encode as null, got %s", m.Arguments[3])
	}
	if string(m.Arguments[0]) != `"chat-1"` {
		t.Fatalf("unexpected chat id argument %s", m.Arguments[0])
	}
}
