package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/store"
)

type loadtestOptions struct {
	lineages    int
	concurrency int
	ops         int
	contests    int
	redisAddr   string
}

type lineageState struct {
	userID string
	raw    string
	access string
	mu     sync.Mutex
}

func loadtestCmd() *cobra.Command {
	o := loadtestOptions{}
	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Benchmark verify and rotate against an in-memory store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if o.lineages <= 0 || o.concurrency <= 0 || o.ops <= 0 {
				return fmt.Errorf("lineages, concurrency, and ops must be > 0")
			}
			if o.redisAddr == "" {
				o.redisAddr = os.Getenv("REDIS_ADDR")
			}
			return runLoadtest(cmd.Context(), cmd.OutOrStdout(), o)
		},
	}
	cmd.Flags().IntVar(&o.lineages, "lineages", 10000, "number of lineages to seed")
	cmd.Flags().IntVar(&o.concurrency, "concurrency", 128, "number of concurrent workers")
	cmd.Flags().IntVar(&o.ops, "ops", 100000, "operations per phase")
	cmd.Flags().IntVar(&o.contests, "contests", 200, "concurrent replay contests in the race phase")
	cmd.Flags().StringVar(&o.redisAddr, "redis-addr", "", "redis address; REDIS_ADDR or miniredis when empty")
	return cmd
}

func runLoadtest(ctx context.Context, out io.Writer, o loadtestOptions) error {
	var client redis.UniversalClient
	if o.redisAddr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("start miniredis: %w", err)
		}
		defer mr.Close()
		o.redisAddr = mr.Addr()
		fmt.Fprintf(out, "using miniredis at %s\n", o.redisAddr)
	} else {
		fmt.Fprintf(out, "using redis at %s\n", o.redisAddr)
	}
	client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{o.redisAddr}})
	defer client.Close()

	cfg := authcore.DefaultConfig()
	cfg.JWT.Secret = []byte("loadtest-secret-0123456789abcdef")
	cfg.JWT.Issuer = "authd-loadtest"
	cfg.JWT.Audience = "authd-loadtest"
	cfg.Audit.Enabled = false
	cfg.Security.EnableRefreshThrottle = false

	engine, err := authcore.New().
		WithConfig(cfg).
		WithStore(store.NewMemoryStore()).
		WithRedis(client).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	states := make([]lineageState, o.lineages)
	fmt.Fprintf(out, "seeding %d lineages...\n", o.lineages)
	startSeed := time.Now()
	for i := range states {
		userID := fmt.Sprintf("u-%d", i%1000)
		raw, err := engine.Issue(ctx, userID)
		if err != nil {
			return fmt.Errorf("issue: %w", err)
		}
		access, err := engine.MintAccessToken(jwt.Claims{Subject: userID, Tier: "free", Role: "user"})
		if err != nil {
			return fmt.Errorf("mint: %w", err)
		}
		states[i] = lineageState{userID: userID, raw: raw, access: access}
	}
	fmt.Fprintf(out, "seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	verify := runPhase(o.ops, o.concurrency, func(r *rand.Rand) bool {
		s := &states[r.Intn(len(states))]
		return engine.VerifyAccessToken(ctx, s.access) != nil
	})
	rotate := runPhase(o.ops, o.concurrency, func(r *rand.Rand) bool {
		s := &states[r.Intn(len(states))]
		s.mu.Lock()
		defer s.mu.Unlock()
		res := engine.Rotate(ctx, s.raw)
		if !res.Success {
			return false
		}
		s.raw = res.NewRawToken
		return true
	})
	won, lost := runRace(ctx, engine, o.contests)

	fmt.Fprintln(out, "---- results ----")
	printStats(out, "verify", verify)
	printStats(out, "rotate", rotate)
	fmt.Fprintf(out, "race: contests=%d winners=%d reuse=%d\n", o.contests, won, lost)
	if won != int64(o.contests) {
		return fmt.Errorf("race phase: %d contests produced %d winners", o.contests, won)
	}
	return nil
}

// runRace presents the same fresh token from two goroutines per contest.
// Exactly one rotation per contest may win.
func runRace(ctx context.Context, engine *authcore.Engine, contests int) (won, lost int64) {
	for i := 0; i < contests; i++ {
		raw, err := engine.Issue(ctx, fmt.Sprintf("race-%d", i))
		if err != nil {
			lost++
			continue
		}
		var wg sync.WaitGroup
		for j := 0; j < 2; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if engine.Rotate(ctx, raw).Success {
					atomic.AddInt64(&won, 1)
				} else {
					atomic.AddInt64(&lost, 1)
				}
			}()
		}
		wg.Wait()
	}
	return won, lost
}

func runPhase(ops, concurrency int, op func(r *rand.Rand) bool) phaseStats {
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
				if int(atomic.AddInt64(&cursor, 1)) > ops {
					return
				}
				t0 := time.Now()
				ok := op(r)
				d := time.Since(t0)
				if !ok {
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

func printStats(out io.Writer, name string, s phaseStats) {
	fmt.Fprintf(out, "%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
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
