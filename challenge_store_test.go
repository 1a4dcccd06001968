package mailotp

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestChallengeStore(t *testing.T) *challengeStore {
	t.Helper()

	mr, rdb := newTestRedis(t)
	t.Cleanup(mr.Close)
	return newChallengeStore(rdb, "moc")
}

func liveRecord(code string) *challengeRecord {
	now := time.Now()
	return &challengeRecord{
		ChallengeID: "ch-1",
		CodeHash:    hashOf(code),
		CreatedAt:   now.Unix(),
		ExpiresAt:   now.Add(5 * time.Minute).Unix(),
	}
}

func TestChallengeRecordCodecRoundTrip(t *testing.T) {
	record := &challengeRecord{
		ChallengeID: "f0b7a6de-7cbe-4a76-a9a4-0a54c0a2e911",
		CodeHash:    hashOf("042137"),
		CreatedAt:   1700000000,
		ExpiresAt:   1700000300,
		Attempts:    2,
	}

	encoded, err := encodeChallengeRecord(record)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, err := decodeChallengeRecord(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if *decoded != *record {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", decoded, record)
	}
}

func TestDecodeRejectsUnknownVersionAndTruncation(t *testing.T) {
	encoded, err := encodeChallengeRecord(liveRecord("123456"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	bad := append([]byte{}, encoded...)
	bad[0] = 9
	if _, err := decodeChallengeRecord(bad); err == nil {
		t.Error("expected error for unknown version")
	}

	if _, err := decodeChallengeRecord(encoded[:len(encoded)-5]); err == nil {
		t.Error("expected error for truncated payload")
	}
	if _, err := decodeChallengeRecord(nil); err == nil {
		t.Error("expected error for empty payload")
	}
}

func TestConsumeMatchDeletesRecord(t *testing.T) {
	store := newTestChallengeStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, "a@example.com", liveRecord("123456"), time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}

	record, err := store.Consume(ctx, "a@example.com", hashOf("123456"))
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if record.ChallengeID != "ch-1" {
		t.Errorf("ChallengeID = %q", record.ChallengeID)
	}

	if _, err := store.Peek(ctx, "a@example.com"); !errors.Is(err, errChallengeNotFound) {
		t.Fatalf("record survived a match: %v", err)
	}
}

func TestConsumeMismatchIncrementsAndKeeps(t *testing.T) {
	store := newTestChallengeStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, "a@example.com", liveRecord("123456"), time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}

	record, err := store.Consume(ctx, "a@example.com", hashOf("654321"))
	if !errors.Is(err, errCodeHashMismatch) {
		t.Fatalf("err = %v, want mismatch", err)
	}
	if record == nil || record.Attempts != 1 {
		t.Fatalf("record = %+v, want attempts 1", record)
	}

	// The increment is persisted.
	kept, err := store.Peek(ctx, "a@example.com")
	if err != nil {
		t.Fatalf("peek: %v", err)
	}
	if kept.Attempts != 1 {
		t.Errorf("persisted attempts = %d, want 1", kept.Attempts)
	}
}

func TestConsumeMissingRecord(t *testing.T) {
	store := newTestChallengeStore(t)

	_, err := store.Consume(context.Background(), "nobody@example.com", hashOf("123456"))
	if !errors.Is(err, errChallengeNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestConsumeExpiredDeletes(t *testing.T) {
	store := newTestChallengeStore(t)
	ctx := context.Background()

	record := liveRecord("123456")
	record.ExpiresAt = time.Now().Add(-time.Minute).Unix()
	if err := store.Save(ctx, "a@example.com", record, time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}

	if _, err := store.Consume(ctx, "a@example.com", hashOf("123456")); !errors.Is(err, errChallengeExpired) {
		t.Fatalf("err = %v, want expired", err)
	}
	if _, err := store.Peek(ctx, "a@example.com"); !errors.Is(err, errChallengeNotFound) {
		t.Fatalf("expired record not deleted: %v", err)
	}
}

func TestSaveRejectsAlreadyReapedRecord(t *testing.T) {
	store := newTestChallengeStore(t)

	record := liveRecord("123456")
	record.ExpiresAt = time.Now().Add(-2 * time.Hour).Unix()
	if err := store.Save(context.Background(), "a@example.com", record, time.Hour); err == nil {
		t.Fatal("expected error saving a record past expiry plus grace")
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	store := newTestChallengeStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, "a@example.com", liveRecord("123456"), time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Delete(ctx, "a@example.com"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(ctx, "a@example.com"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}

func TestStoreKeysAreNamespaced(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	store := newChallengeStore(rdb, "moc")
	ctx := context.Background()

	if err := store.Save(ctx, "a@example.com", liveRecord("123456"), time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}

	if !mr.Exists("moc:a@example.com") {
		t.Error("expected prefixed key in store")
	}
}
