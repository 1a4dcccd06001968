// Command mailotp-loadtest measures challenge issuance and verification
// throughput against a real or embedded Redis. Codes are captured in memory
// instead of being mailed, so the verify phase can answer its own
// challenges.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/mailotp/mailotp"
)

func main() {
	var (
		accounts    = flag.Int("accounts", 10000, "number of distinct email addresses")
		concurrency = flag.Int("concurrency", 128, "number of concurrent workers")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *accounts <= 0 || *concurrency <= 0 {
		fmt.Fprintln(os.Stderr, "accounts and concurrency must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var cleanup func()
	var client *redis.Client
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		client = redis.NewClient(&redis.Options{Addr: mr.Addr()})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", mr.Addr())
	} else {
		client = redis.NewClient(&redis.Options{Addr: addr})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := mailotp.DefaultConfig()
	// The limiter is not what is being measured here.
	cfg.RateLimit.MaxRequests = 1 << 30
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true

	capture := newCaptureMailer(*accounts)
	engine, err := mailotp.New().
		WithConfig(cfg).
		WithRedis(client).
		WithUserProvider(newMemoryProvider()).
		WithMailer(capture).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	emails := make([]string, *accounts)
	for i := range emails {
		emails[i] = fmt.Sprintf("load-%d@example.com", i)
	}

	createStats := runPhase(*accounts, *concurrency, func(i int) error {
		_, err := engine.CreateChallenge(ctx, mailotp.CreateRequest{Email: emails[i]})
		return err
	})

	verifyStats := runPhase(*accounts, *concurrency, func(i int) error {
		resp, err := engine.VerifyChallenge(ctx, mailotp.VerifyRequest{
			Email:  emails[i],
			Answer: capture.code(emails[i]),
		})
		if err != nil {
			return err
		}
		if !resp.Accepted {
			return fmt.Errorf("code rejected for %s: %s", emails[i], resp.Outcome)
		}
		return nil
	})

	fmt.Println("---- results ----")
	printStats("create", createStats)
	printStats("verify", verifyStats)

	snap := engine.MetricsSnapshot()
	fmt.Printf("engine counters: created=%d accepted=%d rejected=%d\n",
		snap.Counters[mailotp.MetricChallengeCreated],
		snap.Counters[mailotp.MetricVerifyAccepted],
		snap.Counters[mailotp.MetricVerifyRejected],
	)
}

func runPhase(ops, concurrency int, op func(i int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(i)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

// captureMailer records the last code per recipient instead of sending.
type captureMailer struct {
	mu    sync.RWMutex
	codes map[string]string
}

func newCaptureMailer(capacity int) *captureMailer {
	return &captureMailer{
		codes: make(map[string]string, capacity),
	}
}

func (m *captureMailer) Send(_ context.Context, _ string, recipient string, data map[string]string) (string, error) {
	m.mu.Lock()
	m.codes[recipient] = data["otp"]
	m.mu.Unlock()
	return fmt.Sprintf("capture-%d", rand.Int63()), nil
}

func (m *captureMailer) code(recipient string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.codes[recipient]
}

// memoryProvider is an in-memory UserProvider for load testing.
type memoryProvider struct {
	mu    sync.Mutex
	users map[string]mailotp.UserRecord
	byID  map[string]string
}

func newMemoryProvider() *memoryProvider {
	return &memoryProvider{
		users: make(map[string]mailotp.UserRecord),
		byID:  make(map[string]string),
	}
}

func (p *memoryProvider) GetUserByEmail(_ context.Context, email string) (mailotp.UserRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	user, ok := p.users[email]
	if !ok {
		return mailotp.UserRecord{}, mailotp.ErrUserNotFound
	}
	return user, nil
}

func (p *memoryProvider) CreateUser(_ context.Context, input mailotp.CreateUserInput) (mailotp.UserRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	user := mailotp.UserRecord{
		UserID:    input.UserID,
		Email:     input.Email,
		Status:    mailotp.StatusPendingVerification,
		CreatedAt: input.CreatedAt,
	}
	p.users[input.Email] = user
	p.byID[input.UserID] = input.Email
	return user, nil
}

func (p *memoryProvider) MarkVerified(_ context.Context, userID string, _ time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	email, ok := p.byID[userID]
	if !ok {
		return mailotp.ErrUserNotFound
	}
	user := p.users[email]
	user.Status = mailotp.StatusVerified
	p.users[email] = user
	return nil
}

func (p *memoryProvider) UpdateLastLogin(_ context.Context, userID string, at time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	email, ok := p.byID[userID]
	if !ok {
		return mailotp.ErrUserNotFound
	}
	user := p.users[email]
	user.LastLogin = at
	p.users[email] = user
	return nil
}
