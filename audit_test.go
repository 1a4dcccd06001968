package mailotp

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestDispatcherDeliversToSink(t *testing.T) {
	sink := NewChannelSink(8)
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 8, DropIfFull: true}, sink)

	d.Emit(context.Background(), AuditEvent{EventType: auditEventChallengeCreate, Email: "a@example.com"})
	d.Close()

	select {
	case event := <-sink.Events():
		if event.EventType != auditEventChallengeCreate {
			t.Errorf("event type = %q", event.EventType)
		}
	case <-time.After(time.Second):
		t.Fatal("event never delivered")
	}
}

func TestDispatcherDisabledIsNil(t *testing.T) {
	d := newAuditDispatcher(AuditConfig{Enabled: false}, NewChannelSink(1))
	if d != nil {
		t.Fatal("expected nil dispatcher when disabled")
	}

	// Nil dispatcher methods are safe.
	d.Emit(context.Background(), AuditEvent{})
	if d.Dropped() != 0 {
		t.Error("nil dispatcher reported drops")
	}
	d.Close()
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	// A sink that blocks forever forces the buffer to fill.
	blocked := make(chan struct{})
	sink := blockingSink{release: blocked}

	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)
	defer func() {
		close(blocked)
		d.Close()
	}()

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), AuditEvent{EventType: auditEventChallengeVerify})
	}

	if d.Dropped() == 0 {
		t.Error("expected drops under backpressure")
	}
}

type blockingSink struct {
	release chan struct{}
}

func (s blockingSink) Emit(_ context.Context, _ AuditEvent) {
	<-s.release
}

func TestDispatcherEmitAfterCloseIsNoOp(t *testing.T) {
	sink := NewChannelSink(1)
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 1}, sink)
	d.Close()

	d.Emit(context.Background(), AuditEvent{EventType: "late"})

	select {
	case event := <-sink.Events():
		if event.EventType == "late" {
			t.Error("event accepted after close")
		}
	default:
	}
}

func TestJSONWriterSinkWritesOneObjectPerLine(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), AuditEvent{
		Timestamp: time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC),
		EventType: auditEventChallengeVerify,
		Email:     "a@example.com",
		Success:   true,
		Metadata:  map[string]string{"outcome": "ACCEPTED"},
	})
	sink.Emit(context.Background(), AuditEvent{EventType: auditEventRateLimitTrigger})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}

	var decoded AuditEvent
	if err := json.Unmarshal([]byte(lines[0]), &decoded); err != nil {
		t.Fatalf("line is not valid JSON: %v", err)
	}
	if decoded.EventType != auditEventChallengeVerify || !decoded.Success {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestAuditErrorCodeMapping(t *testing.T) {
	cases := []struct {
		err  error
		want AuditErrorCode
	}{
		{nil, ""},
		{ErrInvalidEmail, auditErrInvalidEmail},
		{ErrInvalidCodeFormat, auditErrInvalidFormat},
		{&RateLimitedError{RetryAfter: time.Minute}, auditErrRateLimited},
		{ErrNoChallengePending, auditErrNoChallenge},
		{ErrChallengeExpired, auditErrExpired},
		{ErrCodeMismatch, auditErrCodeMismatch},
		{ErrUserNotFound, auditErrUserNotFound},
		{ErrStoreUnavailable, auditErrStoreDown},
		{ErrDispatchFailed, auditErrDispatchFailed},
		{errChallengeNotFound, auditErrInternal},
	}

	for _, tc := range cases {
		if got := auditErrorCode(tc.err); got != tc.want {
			t.Errorf("auditErrorCode(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestAuditEventsNeverCarryCodes(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	sink := NewChannelSink(64)
	mailer := &mockMailer{}

	engine, err := New().
		WithRedis(rdb).
		WithUserProvider(newMockUserProvider()).
		WithMailer(mailer).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	ctx := context.Background()
	if _, err := engine.CreateChallenge(ctx, CreateRequest{Email: "a@example.com"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	code := mailer.lastCode(t)
	if _, err := engine.VerifyChallenge(ctx, VerifyRequest{Email: "a@example.com", Answer: code}); err != nil {
		t.Fatalf("verify: %v", err)
	}
	engine.Close()

	for {
		select {
		case event := <-sink.Events():
			raw, _ := json.Marshal(event)
			if strings.Contains(string(raw), code) {
				t.Fatalf("audit event leaked the code: %s", raw)
			}
			continue
		default:
		}
		break
	}
}
