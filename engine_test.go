package mailotp

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/mailotp/mailotp/internal"
)

func hashOf(code string) [32]byte {
	return internal.HashCode(code)
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

type mockUserProvider struct {
	mu    sync.Mutex
	users map[string]UserRecord // keyed by email
	byID  map[string]string     // userID -> email

	failLookup       error
	failCreate       error
	failMarkVerified error
	failLastLogin    error
}

func newMockUserProvider() *mockUserProvider {
	return &mockUserProvider{
		users: map[string]UserRecord{},
		byID:  map[string]string{},
	}
}

func (m *mockUserProvider) add(user UserRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.Email] = user
	m.byID[user.UserID] = user.Email
}

func (m *mockUserProvider) get(userID string) (UserRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email, ok := m.byID[userID]
	if !ok {
		return UserRecord{}, false
	}
	user, ok := m.users[email]
	return user, ok
}

func (m *mockUserProvider) GetUserByEmail(_ context.Context, email string) (UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failLookup != nil {
		return UserRecord{}, m.failLookup
	}
	user, ok := m.users[email]
	if !ok {
		return UserRecord{}, fmt.Errorf("%w: %s", ErrUserNotFound, email)
	}
	return user, nil
}

func (m *mockUserProvider) CreateUser(_ context.Context, input CreateUserInput) (UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failCreate != nil {
		return UserRecord{}, m.failCreate
	}

	user := UserRecord{
		UserID:    input.UserID,
		Email:     input.Email,
		Status:    StatusPendingVerification,
		CreatedAt: input.CreatedAt,
	}
	m.users[input.Email] = user
	m.byID[input.UserID] = input.Email
	return user, nil
}

func (m *mockUserProvider) MarkVerified(_ context.Context, userID string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failMarkVerified != nil {
		return m.failMarkVerified
	}

	email, ok := m.byID[userID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}
	user := m.users[email]
	user.Status = StatusVerified
	m.users[email] = user
	return nil
}

func (m *mockUserProvider) UpdateLastLogin(_ context.Context, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failLastLogin != nil {
		return m.failLastLogin
	}

	email, ok := m.byID[userID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}
	user := m.users[email]
	user.LastLogin = at
	m.users[email] = user
	return nil
}

type sentMail struct {
	Template  string
	Recipient string
	Data      map[string]string
}

type mockMailer struct {
	mu   sync.Mutex
	sent []sentMail
	fail error
}

func (m *mockMailer) Send(_ context.Context, template string, recipient string, data map[string]string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail != nil {
		return "", m.fail
	}

	copied := make(map[string]string, len(data))
	for k, v := range data {
		copied[k] = v
	}
	m.sent = append(m.sent, sentMail{Template: template, Recipient: recipient, Data: copied})
	return fmt.Sprintf("msg-%d", len(m.sent)), nil
}

func (m *mockMailer) last(t *testing.T) sentMail {
	t.Helper()

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		t.Fatal("no mail was sent")
	}
	return m.sent[len(m.sent)-1]
}

func (m *mockMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// lastCode extracts the one-time code from the most recent dispatch; tests
// play the role of the email recipient.
func (m *mockMailer) lastCode(t *testing.T) string {
	t.Helper()

	code := m.last(t).Data["otp"]
	if code == "" {
		t.Fatal("dispatched mail carried no code")
	}
	return code
}

func newTestEngine(t *testing.T, rdb *redis.Client, up UserProvider, m Mailer, mutate func(*Config)) *Engine {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Metrics.Enabled = true
	if mutate != nil {
		mutate(&cfg)
	}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserProvider(up).
		WithMailer(m).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return engine
}
