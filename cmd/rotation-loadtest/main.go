package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/alicebob/miniredis/v2"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

type sessionState struct {
	mu   sync.Mutex
	pair goSession.TokenPair
}

// users is a read-only provider; the load test never bumps versions.
type users map[string]goSession.UserRecord

func (u users) GetUserByIdentifier(_ context.Context, id string) (goSession.UserRecord, error) {
	return u.GetUserByID(context.Background(), id)
}

func (u users) GetUserByID(_ context.Context, id string) (goSession.UserRecord, error) {
	rec, ok := u[id]
	if !ok {
		return goSession.UserRecord{}, goSession.ErrUserNotFound
	}
	return rec, nil
}

func (u users) BumpSessionVersion(context.Context, string) (uint64, error) {
	return 0, errors.New("read-only provider")
}

func main() {
	// A missing .env is fine; flags and the environment still apply.
	_ = godotenv.Load()

	var (
		sessions    = flag.Int("sessions", 10000, "number of sessions to seed")
		concurrency = flag.Int("concurrency", 128, "number of concurrent workers")
		ops         = flag.Int("ops", 50000, "operations per phase (resolve, refresh)")
		racers      = flag.Int("racers", 32, "goroutines presenting the same refresh token in the race phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", envOr("GOSESSION_PREFIX", "gs"), "redis key prefix")
	)
	flag.Parse()

	if *sessions <= 0 || *concurrency <= 0 || *ops <= 0 || *racers <= 1 {
		fmt.Fprintln(os.Stderr, "sessions, concurrency and ops must be > 0; racers must be > 1")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := goSession.DefaultConfig()
	cfg.JWT.AccessSecret = secretFromEnv("GOSESSION_ACCESS_SECRET", 'a')
	cfg.JWT.RefreshSecret = secretFromEnv("GOSESSION_REFRESH_SECRET", 'r')
	cfg.Refresh.HashKey = secretFromEnv("GOSESSION_HASH_KEY", 'k')
	cfg.Session.RedisPrefix = *prefix
	cfg.RateLimit.EnableLoginThrottle = false
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true

	provider := make(users, *sessions)
	for i := 0; i < *sessions; i++ {
		id := "u" + strconv.Itoa(i)
		provider[id] = goSession.UserRecord{UserID: id, Email: id + "@load.test", SessionVersion: 1}
	}

	engine, err := goSession.New().
		WithConfig(cfg).
		WithRedis(client).
		WithUserProvider(provider).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	states := make([]sessionState, *sessions)
	fmt.Printf("seeding %d sessions...\n", *sessions)
	startSeed := time.Now()
	for i := range states {
		pair, err := engine.BeginSession(ctx, provider["u"+strconv.Itoa(i)])
		if err != nil {
			fmt.Fprintf(os.Stderr, "begin session failed: %v\n", err)
			os.Exit(1)
		}
		states[i].pair = pair
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	resolveStats := runPhase(states, *ops, *concurrency, func(s *sessionState) error {
		s.mu.Lock()
		access := s.pair.AccessToken
		s.mu.Unlock()
		if res := engine.Resolve(ctx, access, ""); !res.OK() {
			return res.Err
		}
		return nil
	})

	refreshStats := runPhase(states, *ops, *concurrency, func(s *sessionState) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		pair, _, err := engine.Refresh(ctx, s.pair.RefreshToken)
		if err != nil {
			return err
		}
		s.pair = pair
		return nil
	})

	winners, reused := runRace(ctx, engine, &states[0], *racers)

	fmt.Println("---- results ----")
	printStats("resolve", resolveStats)
	printStats("refresh", refreshStats)
	fmt.Printf("race: racers=%d winners=%d reuse_detected=%d\n", *racers, winners, reused)

	snap := engine.MetricsSnapshot()
	fmt.Printf("engine: refresh_success=%d reuse_detected=%d family_revoked=%d\n",
		snap.Counters[goSession.MetricRefreshSuccess],
		snap.Counters[goSession.MetricRefreshReuseDetected],
		snap.Counters[goSession.MetricFamilyRevoked],
	)

	if winners != 1 {
		fmt.Fprintf(os.Stderr, "expected exactly one race winner, got %d\n", winners)
		os.Exit(1)
	}
}

func runPhase(states []sessionState, ops, concurrency int, op func(*sessionState) error) phaseStats {
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
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(&states[r.Intn(len(states))])
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

// runRace presents one refresh token from n goroutines at once.
func runRace(ctx context.Context, engine *goSession.Engine, s *sessionState, n int) (winners, reused int64) {
	s.mu.Lock()
	token := s.pair.RefreshToken
	s.mu.Unlock()

	var wg sync.WaitGroup
	gate := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-gate
			_, _, err := engine.Refresh(ctx, token)
			switch {
			case err == nil:
				atomic.AddInt64(&winners, 1)
			case errors.Is(err, goSession.ErrReuseDetected):
				atomic.AddInt64(&reused, 1)
			}
		}()
	}
	close(gate)
	wg.Wait()
	return winners, reused
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
	return samples[(len(samples)-1)*p/100]
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

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func secretFromEnv(key string, fill byte) []byte {
	if v := os.Getenv(key); v != "" {
		return []byte(v)
	}
	return bytes.Repeat([]byte{fill}, 32)
}
