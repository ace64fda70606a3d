package main

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Configuration
var (
	targetURL = flag.String("url", "http://localhost:8080/v1/stream", "Target SSE URL")
	totalVUs  = flag.Int("c", 2000, "Total Virtual Users (Concurrency)")
	rampUp    = flag.Duration("ramp", 60*time.Second, "Ramp up duration")
	tables    = flag.String("tables", "", "Comma-separated table filter")
)

// Metrics
var (
	activeClients int64
	totalconnects int64
	connectErrors int64
	changesRx     int64
	latencySum    int64 // milliseconds
	latencyCount  int64
)

type changeEvent struct {
	AuditID   int64     `json:"audit_id"`
	TableName string    `json:"table_name"`
	Operation string    `json:"operation"`
	CreatedAt time.Time `json:"created_at"`
}

func main() {
	flag.Parse()

	url := *targetURL
	if *tables != "" {
		url = fmt.Sprintf("%s?tables=%s", url, *tables)
	}

	fmt.Printf("🚀 Starting Feed Load Test\n")
	fmt.Printf("   Target: %s\n", url)
	fmt.Printf("   VUs: %d\n", *totalVUs)
	fmt.Printf("   Ramp: %v\n", *rampUp)

	// Disable HTTP/2 for simpler SSE handling in this load test if needed,
	// but standard client usually negotiates fine.
	http.DefaultTransport.(*http.Transport).TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	http.DefaultTransport.(*http.Transport).MaxIdleConns = *totalVUs
	http.DefaultTransport.(*http.Transport).MaxConnsPerHost = *totalVUs

	var wg sync.WaitGroup
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Metric Reporter
	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				currentActive := atomic.LoadInt64(&activeClients)
				total := atomic.LoadInt64(&totalconnects)
				errs := atomic.LoadInt64(&connectErrors)
				changes := atomic.SwapInt64(&changesRx, 0)
				latSum := atomic.SwapInt64(&latencySum, 0)
				latCnt := atomic.SwapInt64(&latencyCount, 0)

				avgLat := float64(0)
				if latCnt > 0 {
					avgLat = float64(latSum) / float64(latCnt)
				}

				fmt.Printf("[%s] Active: %d | Total: %d | Errors: %d | Changes/s: %d | Avg Capture Lag: %.2f ms\n",
					time.Now().Format("15:04:05"), currentActive, total, errs, changes, avgLat)
			}
		}
	}()

	// Ramp-up Logic
	interval := *rampUp / time.Duration(*totalVUs)
	for i := 0; i < *totalVUs; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			runClient(ctx, id, url)
		}(i)
		time.Sleep(interval)
	}

	// Keep alive
	fmt.Println("✅ All VUs launched. Waiting...")
	wg.Wait()
}

func runClient(ctx context.Context, id int, url string) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		fmt.Printf("Client %d error: %v\n", id, err)
		return
	}

	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Connection", "keep-alive")

	client := &http.Client{
		Timeout: 0, // Infinite timeout for SSE
	}

	resp, err := client.Do(req)
	if err != nil {
		if atomic.AddInt64(&connectErrors, 1) == 1 {
			fmt.Printf("Error connecting: %v\n", err)
		}
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		if atomic.AddInt64(&connectErrors, 1) == 1 {
			fmt.Printf("Error status code: %d\n", resp.StatusCode)
		}
		return
	}

	atomic.AddInt64(&activeClients, 1)
	atomic.AddInt64(&totalconnects, 1)
	defer atomic.AddInt64(&activeClients, -1)

	reader := bufio.NewReader(resp.Body)

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			// server closed or network error
			return
		}

		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "data:") {
			data := strings.TrimPrefix(line, "data:")
			var ev changeEvent
			if err := json.Unmarshal([]byte(data), &ev); err == nil && ev.AuditID > 0 {
				atomic.AddInt64(&changesRx, 1)

				// Capture lag from row commit to feed delivery
				lag := time.Since(ev.CreatedAt).Milliseconds()
				// Filter reasonable range to avoid clock skew weirdness
				if lag >= 0 && lag < 60000 {
					atomic.AddInt64(&latencySum, lag)
					atomic.AddInt64(&latencyCount, 1)
				}
			}
		}
	}
}
