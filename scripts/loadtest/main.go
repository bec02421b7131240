// Loadtest sends concurrent GET requests through the proxy with a fixed Host
// header and reports status codes, per-backend distribution and latency
// percentiles.
//
// Usage:
//
//	go run ./scripts/loadtest -url http://127.0.0.1:8080/ -host my-service.test -requests 1000
//	go run ./scripts/loadtest -host my-service.test -paths /a,/b,/c -out summary.json
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

type result struct {
	status   int
	backend  string
	duration time.Duration
	err      error
}

type summary struct {
	Total       int            `json:"total"`
	Failures    int            `json:"failures"`
	Elapsed     string         `json:"elapsed"`
	RPS         float64        `json:"rps"`
	StatusCodes map[int]int    `json:"status_codes"`
	Backends    map[string]int `json:"backends"`
	P50         string         `json:"p50"`
	P90         string         `json:"p90"`
	P95         string         `json:"p95"`
	P99         string         `json:"p99"`
	Max         string         `json:"max"`
}

func main() {
	var (
		target      = flag.String("url", "http://127.0.0.1:8080", "proxy base URL")
		host        = flag.String("host", "", "Host header sent with every request")
		paths       = flag.String("paths", "/", "comma separated paths, used in rotation")
		concurrency = flag.Int("concurrency", 10, "number of concurrent workers")
		requests    = flag.Int("requests", 100, "total number of requests")
		timeout     = flag.Duration("timeout", 15*time.Second, "per-request timeout")
		outJSON     = flag.String("out", "", "write the JSON summary to this file")
	)
	flag.Parse()

	pathList := strings.Split(*paths, ",")
	base := strings.TrimRight(*target, "/")

	client := &http.Client{Timeout: *timeout}
	jobs := make(chan int)
	results := make(chan result, *requests)

	var wg sync.WaitGroup
	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				results <- send(client, base+pathList[idx%len(pathList)], *host)
			}
		}()
	}

	start := time.Now()
	for i := 0; i < *requests; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	close(results)
	elapsed := time.Since(start)

	s := summarize(results, elapsed)

	out, _ := json.MarshalIndent(s, "", "  ")
	fmt.Println(string(out))

	if *outJSON != "" {
		if err := os.WriteFile(*outJSON, out, 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "write summary: %v\n", err)
			os.Exit(1)
		}
	}
}

func send(client *http.Client, url, host string) result {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return result{err: err}
	}
	if host != "" {
		req.Host = host
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return result{err: err, duration: time.Since(start)}
	}
	defer resp.Body.Close()

	backend := "(unknown)"
	line, _ := bufio.NewReader(resp.Body).ReadString('\n')
	if name, ok := strings.CutPrefix(line, "backend="); ok {
		backend, _, _ = strings.Cut(strings.TrimSpace(name), " ")
	}
	io.Copy(io.Discard, resp.Body)

	return result{status: resp.StatusCode, backend: backend, duration: time.Since(start)}
}

func summarize(results <-chan result, elapsed time.Duration) summary {
	s := summary{
		StatusCodes: map[int]int{},
		Backends:    map[string]int{},
		Elapsed:     elapsed.String(),
	}

	var durations []time.Duration
	for r := range results {
		s.Total++
		durations = append(durations, r.duration)
		if r.err != nil {
			s.Failures++
			continue
		}
		s.StatusCodes[r.status]++
		s.Backends[r.backend]++
		if r.status >= 400 {
			s.Failures++
		}
	}

	if elapsed > 0 {
		s.RPS = float64(s.Total) / elapsed.Seconds()
	}

	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
	s.P50 = percentile(durations, 0.50).String()
	s.P90 = percentile(durations, 0.90).String()
	s.P95 = percentile(durations, 0.95).String()
	s.P99 = percentile(durations, 0.99).String()
	if len(durations) > 0 {
		s.Max = durations[len(durations)-1].String()
	}

	return s
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}
