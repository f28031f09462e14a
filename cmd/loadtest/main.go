package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	Terms       []string
	WriteRatio  float64
}

type opStats struct {
	requests  atomic.Int64
	errors    atomic.Int64
	latencies []time.Duration
	mu        sync.Mutex
}

func (o *opStats) record(d time.Duration, ok bool) {
	o.requests.Add(1)
	if !ok {
		o.errors.Add(1)
	}
	o.mu.Lock()
	o.latencies = append(o.latencies, d)
	o.mu.Unlock()
}

type Stats struct {
	ops         map[string]*opStats
	statusCodes map[int]*atomic.Int64
	statusMu    sync.Mutex
	cacheHits   atomic.Int64
}

func NewStats() *Stats {
	return &Stats{
		ops: map[string]*opStats{
			"prefix": {},
			"get":    {},
			"add":    {},
		},
		statusCodes: make(map[int]*atomic.Int64),
	}
}

func (s *Stats) RecordRequest(op string, d time.Duration, status int, err error) {
	s.ops[op].record(d, err == nil && status >= 200 && status < 300)
	if err != nil {
		return
	}
	s.statusMu.Lock()
	if _, ok := s.statusCodes[status]; !ok {
		s.statusCodes[status] = &atomic.Int64{}
	}
	s.statusCodes[status].Add(1)
	s.statusMu.Unlock()
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the term index service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	writeRatio := flag.Float64("writes", 0.1, "fraction of requests that add pages")
	flag.Parse()

	cfg := Config{
		BaseURL:     *baseURL,
		Concurrency: *concurrency,
		Duration:    *duration,
		WriteRatio:  *writeRatio,
		Terms: []string{
			"algorithm", "array", "avl tree", "binary search", "binary tree",
			"breadth first search", "cache", "collision", "depth first search", "graph",
			"hash table", "heap", "linked list", "merge sort", "priority queue",
			"queue", "quicksort", "recursion", "red black tree", "stack",
			"trie", "vertex",
		},
	}

	fmt.Println("=== Term Index Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Terms:       %d seeded\n", len(cfg.Terms))
	fmt.Printf("Writes:      %.0f%%\n", cfg.WriteRatio*100)
	fmt.Println()

	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	if err := seed(client, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "seeding failed: %v\n", err)
		os.Exit(1)
	}

	stats := runLoadTest(client, cfg)
	printReport(stats, cfg.Duration)
}

func seed(client *http.Client, cfg Config) error {
	for i, name := range cfg.Terms {
		status, _, err := addPages(context.Background(), client, cfg.BaseURL, name, []int{i + 1})
		if err != nil {
			return err
		}
		if status != http.StatusCreated {
			return fmt.Errorf("adding %q: unexpected status %d", name, status)
		}
	}
	return nil
}

func runLoadTest(client *http.Client, cfg Config) *Stats {
	stats := NewStats()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	fmt.Print("Running")

	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(uint64(workerID), uint64(time.Now().UnixNano())))

			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				name := cfg.Terms[rng.IntN(len(cfg.Terms))]
				start := time.Now()
				var (
					op     string
					status int
					err    error
				)
				switch r := rng.Float64(); {
				case r < cfg.WriteRatio:
					op = "add"
					status, _, err = addPages(ctx, client, cfg.BaseURL, name, []int{rng.IntN(500) + 1})
				case r < cfg.WriteRatio+(1-cfg.WriteRatio)/4:
					op = "get"
					status, _, err = get(ctx, client, cfg.BaseURL+"/api/v1/terms/"+url.PathEscape(name))
				default:
					op = "prefix"
					prefix := name[:1+rng.IntN(min(3, len(name)))]
					var body []byte
					status, body, err = get(ctx, client, cfg.BaseURL+"/api/v1/prefix?q="+url.QueryEscape(prefix))
					if err == nil && cacheHit(body) {
						stats.cacheHits.Add(1)
					}
				}
				if ctx.Err() != nil {
					return
				}
				stats.RecordRequest(op, time.Since(start), status, err)
			}
		}(w)
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	wg.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return stats
}

func addPages(ctx context.Context, client *http.Client, baseURL, name string, pages []int) (int, []byte, error) {
	payload, err := json.Marshal(map[string]any{"name": name, "pages": pages})
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/v1/terms", bytes.NewReader(payload))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return do(client, req)
}

func get(ctx context.Context, client *http.Client, rawURL string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, nil, err
	}
	return do(client, req)
}

func do(client *http.Client, req *http.Request) (int, []byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	return resp.StatusCode, body, err
}

func cacheHit(body []byte) bool {
	var resp struct {
		CacheHit bool `json:"cache_hit"`
	}
	return json.Unmarshal(body, &resp) == nil && resp.CacheHit
}

func printReport(stats *Stats, duration time.Duration) {
	var total, failed int64
	for _, o := range stats.ops {
		total += o.requests.Load()
		failed += o.errors.Load()
	}

	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Errors:          %d\n", failed)
	if total > 0 {
		fmt.Printf("Error Rate:      %.2f%%\n", float64(failed)/float64(total)*100)
		fmt.Printf("Requests/sec:    %.2f\n", float64(total)/duration.Seconds())
	}
	if prefixes := stats.ops["prefix"].requests.Load(); prefixes > 0 {
		fmt.Printf("Prefix Cache:    %.2f%% hits\n", float64(stats.cacheHits.Load())/float64(prefixes)*100)
	}

	for _, op := range []string{"prefix", "get", "add"} {
		o := stats.ops[op]
		o.mu.Lock()
		latencies := append([]time.Duration(nil), o.latencies...)
		o.mu.Unlock()
		if len(latencies) == 0 {
			continue
		}
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		fmt.Println()
		fmt.Printf("=== Latency: %s (%d requests) ===\n", op, len(latencies))
		fmt.Printf("Min:    %s\n", latencies[0])
		fmt.Printf("Avg:    %s\n", sum/time.Duration(len(latencies)))
		fmt.Printf("P50:    %s\n", percentile(latencies, 50))
		fmt.Printf("P95:    %s\n", percentile(latencies, 95))
		fmt.Printf("P99:    %s\n", percentile(latencies, 99))
		fmt.Printf("Max:    %s\n", latencies[len(latencies)-1])
	}

	fmt.Println()
	fmt.Println("=== Status Codes ===")
	stats.statusMu.Lock()
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Printf("  %d: %d\n", code, stats.statusCodes[code].Load())
	}
	stats.statusMu.Unlock()

	if total == 0 {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the service running?")
		os.Exit(1)
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}
