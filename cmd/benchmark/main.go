package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Config holds the benchmark settings
var (
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
)

// Metrics
var (
	totalRequests uint64
	success2xx    uint64
	fail4xx       uint64
	failOther     uint64
)

var senders = []string{"alice", "bob", "carol"}

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "pay", "Workload type: pay | quote")
}

func main() {
	flag.Parse()
	log.Printf("Starting Benchmark: %s | Workers: %d | Duration: %s", workload, concurrency, duration)

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(&wg, start)
	}

	wg.Wait()
	printResults(time.Since(start))
}

func worker(wg *sync.WaitGroup, start time.Time) {
	defer wg.Done()
	client := &http.Client{Timeout: 10 * time.Second}

	for time.Since(start) < duration {
		atomic.AddUint64(&totalRequests, 1)

		var status int
		var err error
		if workload == "quote" {
			status, err = doQuote(client)
		} else {
			status, err = doPayment(client)
		}

		switch {
		case err != nil:
			atomic.AddUint64(&failOther, 1)
		case status >= 200 && status < 300:
			atomic.AddUint64(&success2xx, 1)
		case status >= 400 && status < 500:
			atomic.AddUint64(&fail4xx, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
	}
}

func doQuote(client *http.Client) (int, error) {
	body, _ := json.Marshal(map[string]string{
		"destination":   pick(senders),
		"source_amount": fmt.Sprintf("%d", 1+rand.Intn(100)),
	})
	resp, err := client.Post(targetURL+"/api/v1/payments/quote", "application/json", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

func doPayment(client *http.Client) (int, error) {
	source := pick(senders)
	destination := pick(senders)

	body, _ := json.Marshal(map[string]string{
		"destination_account": destination,
		"source_amount":       fmt.Sprintf("%d", 1+rand.Intn(100)),
	})
	req, err := http.NewRequest(http.MethodPut,
		fmt.Sprintf("%s/api/v1/payments/%s", targetURL, uuid.New()), bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Wallet-User", source)

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

func pick(options []string) string {
	return options[rand.Intn(len(options))]
}

func printResults(elapsed time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	log.Println("--- Benchmark Results ---")
	log.Printf("Elapsed:       %s", elapsed.Round(time.Millisecond))
	log.Printf("Total:         %d (%.1f req/s)", total, float64(total)/elapsed.Seconds())
	log.Printf("Success (2xx): %d", atomic.LoadUint64(&success2xx))
	log.Printf("Client (4xx):  %d", atomic.LoadUint64(&fail4xx))
	log.Printf("Other/Errors:  %d", atomic.LoadUint64(&failOther))
}
