package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/punchamoorthee/acidbank/internal/auth"
	"github.com/punchamoorthee/acidbank/internal/seed"
)

// Config holds the benchmark settings
var (
	targetURL     string
	concurrency   int
	duration      time.Duration
	workload      string
	totalAccounts int
	jwtSecret     string
	replayRate    float64
)

// Metrics
var (
	totalRequests uint64
	success200    uint64 // Idempotent replays
	success201    uint64 // Created
	fail400       uint64 // Business rejections (insufficient balance etc.)
	fail409       uint64 // Reference conflicts
	fail503       uint64 // Lock timeouts, retryable
	failOther     uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "uniform", "Workload type: uniform | hotspot")
	flag.IntVar(&totalAccounts, "accounts", 1000, "Number of seeded accounts")
	flag.StringVar(&jwtSecret, "secret", os.Getenv("JWT_SECRET"), "HMAC secret used to mint tokens")
	flag.Float64Var(&replayRate, "replay", 0.05, "Fraction of requests that resend the previous reference")
}

func main() {
	flag.Parse()
	if jwtSecret == "" {
		log.Fatal("a JWT secret is required (-secret or JWT_SECRET)")
	}
	log.Printf("Starting Benchmark: %s | Workers: %d | Duration: %s", workload, concurrency, duration)

	tokens := make([]string, totalAccounts+1)
	for i := 1; i <= totalAccounts; i++ {
		token, err := auth.Sign(jwtSecret, seed.UserID(i), duration+time.Hour)
		if err != nil {
			log.Fatalf("token mint failed: %v", err)
		}
		tokens[i] = token
	}

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(&wg, start, i, tokens)
	}

	wg.Wait()
	printResults(time.Since(start))
}

type lastRequest struct {
	from, to int
	key      string
}

func worker(wg *sync.WaitGroup, start time.Time, id int, tokens []string) {
	defer wg.Done()
	client := &http.Client{Timeout: 10 * time.Second}
	var last *lastRequest

	for seq := 0; time.Since(start) < duration; seq++ {
		var cur lastRequest
		if last != nil && rand.Float64() < replayRate {
			cur = *last
		} else {
			cur.from, cur.to = generateAccounts()
			cur.key = fmt.Sprintf("bench-%d-%d-%d", id, seq, time.Now().UnixNano())
		}
		last = &cur

		payload := map[string]any{
			"receiver_account_number": seed.AccountNumber(cur.to),
			"amount":                  "1.00",
		}
		body, _ := json.Marshal(payload)

		req, _ := http.NewRequest("POST", targetURL+"/api/v1/transfers", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+tokens[cur.from])
		req.Header.Set("Idempotency-Key", cur.key)

		resp, err := client.Do(req)
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}

		atomic.AddUint64(&totalRequests, 1)
		switch resp.StatusCode {
		case 201:
			atomic.AddUint64(&success201, 1)
		case 200:
			atomic.AddUint64(&success200, 1)
		case 400:
			atomic.AddUint64(&fail400, 1)
		case 409:
			atomic.AddUint64(&fail409, 1)
		case 503:
			atomic.AddUint64(&fail503, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
		resp.Body.Close()
	}
}

// generateAccounts returns seed indices for sender and receiver.
func generateAccounts() (int, int) {
	if workload == "hotspot" {
		// Hotspot: 90% of traffic goes between accounts 1 and 2
		if rand.Float32() < 0.90 {
			if rand.Float32() < 0.5 {
				return 1, 2
			}
			return 2, 1
		}
	}

	a := rand.Intn(totalAccounts) + 1
	b := rand.Intn(totalAccounts) + 1
	for a == b {
		b = rand.Intn(totalAccounts) + 1
	}
	return a, b
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	s201 := atomic.LoadUint64(&success201)
	s200 := atomic.LoadUint64(&success200)
	f400 := atomic.LoadUint64(&fail400)
	f409 := atomic.LoadUint64(&fail409)
	f503 := atomic.LoadUint64(&fail503)
	fErr := atomic.LoadUint64(&failOther)

	tps := float64(total) / d.Seconds()
	var timeoutRate float64
	if total > 0 {
		timeoutRate = float64(f503) / float64(total) * 100
	}

	results := map[string]any{
		"workload":           workload,
		"duration_sec":       d.Seconds(),
		"total_requests":     total,
		"throughput_tps":     tps,
		"success_created":    s201,
		"success_replay":     s200,
		"rejected":           f400,
		"reference_conflict": f409,
		"lock_timeouts":      f503,
		"lock_timeout_pct":   timeoutRate,
		"errors":             fErr,
	}

	// Print JSON for the python plotter to consume
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	filename := fmt.Sprintf("results_%s.json", workload)
	file, err := os.Create(filename)
	if err != nil {
		log.Printf("could not write %s: %v", filename, err)
		return
	}
	defer file.Close()
	json.NewEncoder(file).Encode(results)
}
