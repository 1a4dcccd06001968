package mailotp

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const challengeRecordVersionV1 = 1

var (
	errChallengeNotFound         = errors.New("challenge record not found")
	errChallengeExpired          = errors.New("challenge record expired")
	errCodeHashMismatch          = errors.New("challenge code mismatch")
	errChallengeRedisUnavailable = errors.New("challenge redis unavailable")
)

// challengeRecord is the persisted form of an outstanding one-time code.
// At most one live record exists per email: Save overwrites uncondi-
// tionally, so a race between concurrent issuances resolves to the most
// recently written code being the only valid one.
type challengeRecord struct {
	ChallengeID string
	CodeHash    [32]byte
	CreatedAt   int64
	ExpiresAt   int64
	Attempts    uint16
}

type challengeStore struct {
	redis  *redis.Client
	prefix string
}

func newChallengeStore(redisClient *redis.Client, prefix string) *challengeStore {
	return &challengeStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *challengeStore) key(email string) string {
	return s.prefix + ":" + email
}

// Save persists a fresh record, replacing any outstanding one for the
// address. The Redis TTL extends past the logical expiry by the cleanup
// grace so Consume can still distinguish Expired from NotFound.
func (s *challengeStore) Save(ctx context.Context, email string, record *challengeRecord, grace time.Duration) error {
	encoded, err := encodeChallengeRecord(record)
	if err != nil {
		return err
	}

	ttl := time.Until(time.Unix(record.ExpiresAt, 0)) + grace
	if ttl <= 0 {
		return errors.New("challenge record already expired")
	}

	if err := s.redis.Set(ctx, s.key(email), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", errChallengeRedisUnavailable, err)
	}

	return nil
}

// Peek returns the live record without mutating it, or errChallengeNotFound.
// Expiry is not evaluated here; callers that care use Consume.
func (s *challengeStore) Peek(ctx context.Context, email string) (*challengeRecord, error) {
	data, err := s.redis.Get(ctx, s.key(email)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errChallengeNotFound
		}
		return nil, fmt.Errorf("%w: %v", errChallengeRedisUnavailable, err)
	}

	return decodeChallengeRecord(data)
}

// Delete removes the record for the address. Deleting a missing key is not
// an error.
func (s *challengeStore) Delete(ctx context.Context, email string) error {
	if err := s.redis.Del(ctx, s.key(email)).Err(); err != nil {
		return fmt.Errorf("%w: %v", errChallengeRedisUnavailable, err)
	}
	return nil
}

// Consume evaluates a submitted code hash against the outstanding record
// under a WATCH transaction:
//
//   - missing record → errChallengeNotFound
//   - past expiry → record deleted, errChallengeExpired
//   - hash mismatch (constant-time) → attempt counter incremented and
//     persisted, record kept, errCodeHashMismatch
//   - match → record deleted (single-use), returned to the caller
//
// The returned record carries the post-increment attempt count on
// mismatch. Unlike stores that hard-delete at an attempt ceiling, the
// record survives every mismatch until expiry or success; round
// termination is owned by the decision function.
func (s *challengeStore) Consume(ctx context.Context, email string, providedHash [32]byte) (*challengeRecord, error) {
	const maxRetries = 4
	key := s.key(email)

	for i := 0; i < maxRetries; i++ {
		var (
			matched  *challengeRecord
			outcome  error
			attempts uint16
		)

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeChallengeRecord(data)
			if err != nil {
				return err
			}

			now := time.Now()
			if now.Unix() > record.ExpiresAt {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				outcome = errChallengeExpired
				return nil
			}

			if subtle.ConstantTimeCompare(record.CodeHash[:], providedHash[:]) != 1 {
				record.Attempts++
				attempts = record.Attempts

				ttl, err := tx.PTTL(ctx, key).Result()
				if err != nil {
					return err
				}
				if ttl <= 0 {
					outcome = errChallengeExpired
					return nil
				}

				updated, err := encodeChallengeRecord(record)
				if err != nil {
					return err
				}

				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Set(ctx, key, updated, ttl)
					return nil
				})
				if err != nil {
					return err
				}
				outcome = errCodeHashMismatch
				return nil
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			if err != nil {
				return err
			}

			matched = record
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil, errChallengeNotFound
			}
			return nil, fmt.Errorf("%w: %v", errChallengeRedisUnavailable, err)
		}

		if outcome != nil {
			if errors.Is(outcome, errCodeHashMismatch) {
				return &challengeRecord{Attempts: attempts}, outcome
			}
			return nil, outcome
		}

		return matched, nil
	}

	return nil, errChallengeNotFound
}

func encodeChallengeRecord(record *challengeRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(challengeRecordVersionV1)

	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}

	if len(record.ChallengeID) > 65535 {
		return nil, errors.New("challenge id too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.ChallengeID))); err != nil {
		return nil, err
	}
	buf.WriteString(record.ChallengeID)
	buf.Write(record.CodeHash[:])

	return buf.Bytes(), nil
}

func decodeChallengeRecord(data []byte) (*challengeRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != challengeRecordVersionV1 {
		return nil, errors.New("invalid challenge record version")
	}

	record := &challengeRecord{}

	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	var idLen uint16
	if err := binary.Read(reader, binary.BigEndian, &idLen); err != nil {
		return nil, err
	}

	id := make([]byte, idLen)
	if _, err := io.ReadFull(reader, id); err != nil {
		return nil, err
	}
	record.ChallengeID = string(id)

	if _, err := io.ReadFull(reader, record.CodeHash[:]); err != nil {
		return nil, err
	}

	return record, nil
}
