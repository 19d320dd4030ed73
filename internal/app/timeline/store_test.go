package timeline_test

import (
	"testing"
	"time"

	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/app/timeline"
	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/domain"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func outbound(id, sender, content string, at time.Time) domain.OutboundMessage {
	return domain.OutboundMessage{
		ClientTempID: domain.ClientTempID(id),
		ChatID:       "chat-1",
		SenderID:     domain.UserID(sender),
		Content:      content,
		MessageType:  domain.MessageText,
		CreatedAt:    at,
	}
}

func echo(sender, content string, at time.Time) domain.InboundEvent {
	return domain.InboundEvent{
		ChatID:      "chat-1",
		SenderID:    domain.UserID(sender),
		Content:     content,
		MessageType: domain.MessageText,
		CreatedDate: at,
	}
}

func TestReconcileReplacesPendingWithinWindow(t *testing.T) {
	s := timeline.New()

	if err := s.AppendOptimistic(outbound("tmp-1", "u1", "hello", t0)); err != nil {
		t.Fatalf("AppendOptimistic failed: %v", err)
	}

	if got := s.Reconcile(echo("u1", "hello", t0.Add(400*time.Millisecond))); got != timeline.Replaced {
		t.Fatalf("expected replaced, got %s", got)
	}

	msgs := s.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 row, got %d", len(msgs))
	}
	if !msgs[0].IsConfirmed() {
		t.Fatalf("expected row to be confirmed")
	}
	if msgs[0].DeliveryState() != domain.DeliverySent {
		t.Fatalf("expected sent, got %s", msgs[0].DeliveryState())
	}
}

func TestReconcileAppendsOutsideWindow(t *testing.T) {
	s := timeline.New()

	_ = s.AppendOptimistic(outbound("tmp-1", "u1", "hello", t0))

	if got := s.Reconcile(echo("u1", "hello", t0.Add(time.Second))); got != timeline.Appended {
		t.Fatalf("expected appended at exactly the window, got %s", got)
	}
	if s.Len() != 2 {
		t.Fatalf("expected 2 rows, got %d", s.Len())
	}
}

func TestReconcileMatchesEchoStampedBeforeLocalClock(t *testing.T) {
	s := timeline.New()

	_ = s.AppendOptimistic(outbound("tmp-1", "u1", "hello", t0))

	if got := s.Reconcile(echo("u1", "hello", t0.Add(-300*time.Millisecond))); got != timeline.Replaced {
		t.Fatalf("expected replaced, got %s", got)
	}
}

func TestReconcileRequiresSameSenderAndContent(t *testing.T) {
	s := timeline.New()

	_ = s.AppendOptimistic(outbound("tmp-1", "u1", "hello", t0))

	s.Reconcile(echo("u2", "hello", t0.Add(100*time.Millisecond)))
	s.Reconcile(echo("u1", "hello!", t0.Add(100*time.Millisecond)))

	msgs := s.Messages()
	if len(msgs) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(msgs))
	}
	if msgs[0].IsConfirmed() {
		t.Fatalf("expected first row to stay optimistic")
	}
}

func TestReconcileKeepsPosition(t *testing.T) {
	s := timeline.New()

	_ = s.AppendOptimistic(outbound("tmp-1", "u1", "first", t0))
	s.Reconcile(echo("u2", "reply", t0.Add(200*time.Millisecond)))

	s.Reconcile(echo("u1", "first", t0.Add(300*time.Millisecond)))

	msgs := s.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(msgs))
	}
	if !msgs[0].IsConfirmed() || msgs[0].Content() != "first" {
		t.Fatalf("expected confirmed 'first' at index 0, got %+v", msgs[0])
	}
	if msgs[1].Content() != "reply" {
		t.Fatalf("expected 'reply' at index 1, got %q", msgs[1].Content())
	}
}

func TestReconcileMatchesRowAlreadyMarkedSent(t *testing.T) {
	s := timeline.New()

	_ = s.AppendOptimistic(outbound("tmp-1", "u1", "hello", t0))
	if !s.MarkSent("tmp-1") {
		t.Fatalf("MarkSent returned false")
	}

	if got := s.Reconcile(echo("u1", "hello", t0.Add(50*time.Millisecond))); got != timeline.Replaced {
		t.Fatalf("expected replaced, got %s", got)
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 row, got %d", s.Len())
	}
}

func TestDuplicateTapsMatchOneRowPerEcho(t *testing.T) {
	s := timeline.New()

	_ = s.AppendOptimistic(outbound("tmp-1", "u1", "ok", t0))
	_ = s.AppendOptimistic(outbound("tmp-2", "u1", "ok", t0.Add(100*time.Millisecond)))

	s.Reconcile(echo("u1", "ok", t0.Add(300*time.Millisecond)))

	msgs := s.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(msgs))
	}
	if !msgs[0].IsConfirmed() {
		t.Fatalf("expected first tap to be confirmed")
	}
	if msgs[1].IsConfirmed() || msgs[1].DeliveryState() != domain.DeliveryPending {
		t.Fatalf("expected second tap to stay pending")
	}

	s.Reconcile(echo("u1", "ok", t0.Add(450*time.Millisecond)))

	msgs = s.Messages()
	if len(msgs) != 2 || !msgs[1].IsConfirmed() {
		t.Fatalf("expected second echo to confirm the second tap, got %+v", msgs)
	}
}

func TestReconcileDropsReplayedServerID(t *testing.T) {
	s := timeline.New()

	evt := echo("u2", "hi", t0)
	evt.ID = "m-1"

	if got := s.Reconcile(evt); got != timeline.Appended {
		t.Fatalf("expected appended, got %s", got)
	}
	if got := s.Reconcile(evt); got != timeline.Duplicate {
		t.Fatalf("expected duplicate, got %s", got)
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 row, got %d", s.Len())
	}
}

func TestMarkFailedRollsBack(t *testing.T) {
	s := timeline.New()
	s.Reconcile(echo("u2", "hi", t0))
	before := s.Len()

	_ = s.AppendOptimistic(outbound("tmp-1", "u1", "hello", t0))

	content, ok := s.MarkFailed("tmp-1")
	if !ok {
		t.Fatalf("MarkFailed returned false")
	}
	if content != "hello" {
		t.Fatalf("expected content 'hello', got %q", content)
	}
	if s.Len() != before {
		t.Fatalf("expected length %d after rollback, got %d", before, s.Len())
	}

	if _, ok := s.MarkFailed("tmp-1"); ok {
		t.Fatalf("expected second MarkFailed to report missing row")
	}
}

func TestMarkFailedIgnoresConfirmedRows(t *testing.T) {
	s := timeline.New()

	_ = s.AppendOptimistic(outbound("tmp-1", "u1", "hello", t0))
	s.Reconcile(echo("u1", "hello", t0.Add(10*time.Millisecond)))

	if _, ok := s.MarkFailed("tmp-1"); ok {
		t.Fatalf("expected confirmed row to be out of reach")
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 row, got %d", s.Len())
	}
}

func TestAppendOptimisticRejectsDuplicateTempID(t *testing.T) {
	s := timeline.New()

	if err := s.AppendOptimistic(outbound("tmp-1", "u1", "a", t0)); err != nil {
		t.Fatalf("first append failed: %v", err)
	}
	if err := s.AppendOptimistic(outbound("tmp-1", "u1", "b", t0)); err == nil {
		t.Fatalf("expected error for duplicate temp id")
	}
	if err := s.AppendOptimistic(outbound("", "u1", "c", t0)); err == nil {
		t.Fatalf("expected error for empty temp id")
	}
}

func TestAppendOptimisticForcesPending(t *testing.T) {
	s := timeline.New()

	msg := outbound("tmp-1", "u1", "a", t0)
	msg.DeliveryState = domain.DeliverySent
	_ = s.AppendOptimistic(msg)

	if got := s.Messages()[0].DeliveryState(); got != domain.DeliveryPending {
		t.Fatalf("expected pending, got %s", got)
	}
}

func TestPendingBeforeLeavesRowsInPlace(t *testing.T) {
	s := timeline.New()

	_ = s.AppendOptimistic(outbound("old", "u1", "a", t0))
	_ = s.AppendOptimistic(outbound("sent", "u1", "b", t0))
	s.MarkSent("sent")
	_ = s.AppendOptimistic(outbound("new", "u1", "c", t0.Add(time.Minute)))

	stale := s.PendingBefore(t0.Add(30 * time.Second))
	if len(stale) != 1 || stale[0].ClientTempID != "old" {
		t.Fatalf("expected only 'old' to be stale, got %+v", stale)
	}
	if s.Len() != 3 {
		t.Fatalf("expected rows to stay until their send is rolled back, got %d", s.Len())
	}

	if _, ok := s.MarkFailed("old"); !ok {
		t.Fatalf("MarkFailed returned false")
	}
	msgs := s.Messages()
	if len(msgs) != 2 || msgs[0].Content() != "b" || msgs[1].Content() != "c" {
		t.Fatalf("unexpected rows after rollback: %+v", msgs)
	}
}

func TestSeedSkipsKnownIDs(t *testing.T) {
	s := timeline.New()

	a := echo("u2", "a", t0)
	a.ID = "m-1"
	b := echo("u1", "b", t0.Add(time.Second))
	b.ID = "m-2"

	if n := s.Seed([]domain.InboundEvent{a, b}); n != 2 {
		t.Fatalf("expected 2 seeded rows, got %d", n)
	}
	if n := s.Seed([]domain.InboundEvent{b}); n != 0 {
		t.Fatalf("expected 0 seeded rows, got %d", n)
	}
}

func TestZeroWindowDisablesMatching(t *testing.T) {
	s := timeline.New(timeline.WithDedupWindow(0))

	_ = s.AppendOptimistic(outbound("tmp-1", "u1", "hello", t0))
	if got := s.Reconcile(echo("u1", "hello", t0)); got != timeline.Appended {
		t.Fatalf("expected appended, got %s", got)
	}
}

func TestMessagesReturnsCopies(t *testing.T) {
	s := timeline.New()
	_ = s.AppendOptimistic(outbound("tmp-1", "u1", "hello", t0))

	msgs := s.Messages()
	msgs[0].Optimistic.Content = "changed"

	if got := s.Messages()[0].Content(); got != "hello" {
		t.Fatalf("expected store to be unaffected, got %q", got)
	}
}
