package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
)

// simulate exercises the booking engine's core correctness property:
// when many writers race for one exact slot, exactly one booking must
// succeed and everyone else must get a slot conflict. A second phase
// mixes availability reads with scattered bookings for a feel of
// sustained load.

type simConfig struct {
	baseURL   string
	workers   int
	dentistID string
	serviceID string
	date      string
	start     string
	duration  time.Duration
}

type counters struct {
	created   int64
	conflicts int64
	rejected  int64
	errors    int64
}

func main() {
	log.SetFlags(log.LstdFlags)

	cfg := simConfig{}
	flag.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8080", "api server base URL")
	flag.IntVar(&cfg.workers, "workers", 16, "concurrent workers racing for the slot")
	flag.StringVar(&cfg.dentistID, "dentist", "", "dentist UUID (required)")
	flag.StringVar(&cfg.serviceID, "service", "", "service UUID (required)")
	flag.StringVar(&cfg.date, "date", "", "date YYYY-MM-DD (required)")
	flag.StringVar(&cfg.start, "start", "10:00", "slot start HH:MM")
	flag.DurationVar(&cfg.duration, "load-duration", 10*time.Second, "mixed load phase duration, 0 to skip")
	flag.Parse()

	if cfg.dentistID == "" || cfg.serviceID == "" || cfg.date == "" {
		log.Fatal("-dentist, -service and -date are required")
	}

	gofakeit.Seed(time.Now().UnixNano())
	client := &http.Client{Timeout: 10 * time.Second}

	log.Printf("phase 1: %d workers racing for %s %s (dentist %s)",
		cfg.workers, cfg.date, cfg.start, cfg.dentistID)

	var c counters
	var wg sync.WaitGroup
	startGun := make(chan struct{})

	for i := 0; i < cfg.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-startGun
			bookSlot(client, cfg, cfg.start, &c)
		}()
	}
	close(startGun)
	wg.Wait()

	log.Printf("phase 1 result: created=%d conflicts=%d rejected=%d errors=%d",
		c.created, c.conflicts, c.rejected, c.errors)
	if c.created != 1 {
		log.Printf("WARNING: expected exactly 1 created, got %d", c.created)
	}
	if c.conflicts != int64(cfg.workers)-1 {
		log.Printf("WARNING: expected %d conflicts, got %d", cfg.workers-1, c.conflicts)
	}

	if cfg.duration <= 0 {
		return
	}

	log.Printf("phase 2: mixed read/write load for %s", cfg.duration)
	var load counters
	var reads int64
	deadline := time.Now().Add(cfg.duration)

	for i := 0; i < cfg.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(deadline) {
				if rand.Float64() < 0.7 {
					readAvailability(client, cfg)
					atomic.AddInt64(&reads, 1)
					continue
				}
				slot := fmt.Sprintf("%02d:%02d", 10+rand.Intn(4), 30*rand.Intn(2))
				bookSlot(client, cfg, slot, &load)
			}
		}()
	}
	wg.Wait()

	log.Printf("phase 2 result: reads=%d created=%d conflicts=%d rejected=%d errors=%d",
		reads, load.created, load.conflicts, load.rejected, load.errors)
}

func bookSlot(client *http.Client, cfg simConfig, start string, c *counters) {
	payload := map[string]string{
		"patient_name":  gofakeit.Name(),
		"patient_email": gofakeit.Email(),
		"patient_phone": gofakeit.Phone(),
		"dentist_id":    cfg.dentistID,
		"service_id":    cfg.serviceID,
		"date":          cfg.date,
		"start_time":    start,
	}
	body, _ := json.Marshal(payload)

	resp, err := client.Post(cfg.baseURL+"/api/appointments", "application/json", bytes.NewReader(body))
	if err != nil {
		atomic.AddInt64(&c.errors, 1)
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusCreated:
		atomic.AddInt64(&c.created, 1)
	case http.StatusConflict:
		atomic.AddInt64(&c.conflicts, 1)
	case http.StatusUnprocessableEntity:
		atomic.AddInt64(&c.rejected, 1)
	default:
		atomic.AddInt64(&c.errors, 1)
	}
}

func readAvailability(client *http.Client, cfg simConfig) {
	url := fmt.Sprintf("%s/api/availability/slots?date=%s&service_id=%s&dentist_id=%s",
		cfg.baseURL, cfg.date, cfg.serviceID, cfg.dentistID)
	resp, err := client.Get(url)
	if err != nil {
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
}
