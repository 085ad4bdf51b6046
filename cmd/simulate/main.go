package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/hackgods/wellness-scheduling/internal/api"
	"github.com/hackgods/wellness-scheduling/internal/config"
	"github.com/hackgods/wellness-scheduling/internal/logging"
	"github.com/hackgods/wellness-scheduling/internal/seed"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	CancelRatio  float64
	Seed         uint64
	JWTSecret    string
	MaxRetries   uint
}

// target is one bookable (centre, service, staff) combination.
type target struct {
	centreID  uuid.UUID
	serviceID uuid.UUID
	staffID   uuid.UUID
}

type booked struct {
	id     uuid.UUID
	client int
}

type DataPool struct {
	clients      []string // bearer tokens
	targets      []target
	day          time.Time
	mu           sync.Mutex
	appointments []booked
	winners      map[string]int // staff|start -> successful bookings
}

func (dp *DataPool) AddAppointment(b booked, staffID uuid.UUID, start time.Time) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, b)
	dp.winners[staffID.String()+"|"+start.UTC().Format(time.RFC3339)]++
}

func (dp *DataPool) TakeAppointment(rng *rand.Rand) (booked, bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if len(dp.appointments) == 0 {
		return booked{}, false
	}
	i := rng.Intn(len(dp.appointments))
	b := dp.appointments[i]
	dp.appointments = append(dp.appointments[:i], dp.appointments[i+1:]...)
	return b, true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Retried   int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95, max time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0
	}
	latencies := append([]time.Duration(nil), om.Latencies...)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	pick := func(pct int) time.Duration {
		return latencies[min(len(latencies)*pct/100, len(latencies)-1)]
	}
	return sum / time.Duration(len(latencies)), pick(50), pick(95), latencies[len(latencies)-1]
}

type Metrics struct {
	Booking OperationMetrics
	Cancel  OperationMetrics
	Slots   OperationMetrics
	List    OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	logger  *slog.Logger
	metrics Metrics
}

// statusError is a non-retryable HTTP outcome.
type statusError struct {
	code int
}

func (e *statusError) Error() string { return "unexpected status " + strconv.Itoa(e.code) }

var errUnavailable = errors.New("service unavailable")

func main() {
	logger := logging.Default()

	cfg, err := loadConfig()
	if err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}
	logger.Info("simulator starting",
		"duration", cfg.Duration,
		"workers", cfg.Workers,
		"booking_ratio", cfg.BookingRatio,
		"cancel_ratio", cfg.CancelRatio,
		"seed", cfg.Seed,
	)

	sim := &Simulator{
		config: cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	pool, err := sim.loadDataPool(ctx)
	cancel()
	if err != nil {
		logger.Error("load data pool", "error", err)
		os.Exit(1)
	}
	sim.pool = pool
	logger.Info("data pool ready", "clients", len(pool.clients), "targets", len(pool.targets), "day", pool.day.Format(time.DateOnly))

	sim.Run()
	if violations := sim.PrintReport(); violations > 0 {
		os.Exit(2)
	}
}

func loadConfig() (SimConfig, error) {
	base, err := config.Load()
	if err != nil {
		return SimConfig{}, fmt.Errorf("load base config: %w", err)
	}
	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.6),
		CancelRatio:  getFloat("SIM_CANCEL_RATIO", 0.1),
		Seed:         base.MemorySeed,
		JWTSecret:    base.JWTSecret,
		MaxRetries:   uint(getInt("SIM_MAX_RETRIES", 4)),
	}
	switch {
	case cfg.JWTSecret == "":
		return cfg, errors.New("JWT_SECRET is required to mint tokens")
	case cfg.Workers <= 0:
		return cfg, errors.New("SIM_WORKERS must be positive")
	case cfg.BookingRatio+cfg.CancelRatio > 1:
		return cfg, errors.New("booking and cancel ratios exceed 1")
	}
	return cfg, nil
}

// loadDataPool rebuilds the seeded directory and asks the API which staff
// can deliver each service.
func (s *Simulator) loadDataPool(ctx context.Context) (*DataPool, error) {
	ds := seed.Generate(s.config.Seed, seed.DefaultCounts())
	pool := &DataPool{winners: make(map[string]int), day: nextWeekday(time.Now().UTC().AddDate(0, 0, 2))}

	for _, c := range ds.Clients {
		token, err := api.IssueToken(s.config.JWTSecret, seed.ClientActor(c), s.config.Duration+time.Hour)
		if err != nil {
			return nil, err
		}
		pool.clients = append(pool.clients, token)
	}

	for _, centre := range ds.Centres {
		admin, err := api.IssueToken(s.config.JWTSecret, seed.AdminFor(centre), time.Hour)
		if err != nil {
			return nil, err
		}
		for _, serviceID := range centre.ServiceIDs {
			var staff []api.StaffResponse
			path := fmt.Sprintf("/centres/%s/services/%s/staff", centre.ID, serviceID)
			if err := s.getJSON(ctx, admin, path, &staff); err != nil {
				return nil, fmt.Errorf("eligible staff for %s: %w", centre.Name, err)
			}
			for _, m := range staff {
				pool.targets = append(pool.targets, target{centreID: centre.ID, serviceID: serviceID, staffID: m.ID})
			}
		}
	}
	if len(pool.targets) == 0 {
		return nil, errors.New("no bookable staff; is the server seeded with the same MEMORY_SEED?")
	}
	return pool, nil
}

func nextWeekday(t time.Time) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	for day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
		day = day.AddDate(0, 0, 1)
	}
	return day
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}
	wg.Wait()
	s.logger.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < s.config.BookingRatio:
			s.doBooking(ctx, rng)
		case r < s.config.BookingRatio+s.config.CancelRatio:
			s.doCancel(ctx, rng)
		case rng.Intn(2) == 0:
			s.doSlots(ctx, rng)
		default:
			s.doList(ctx, rng)
		}
	}
}

// contendedHours keeps many workers racing for the same few starts.
var contendedHours = []int{9, 10, 11, 14, 15}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	t := s.pool.targets[rng.Intn(len(s.pool.targets))]
	client := rng.Intn(len(s.pool.clients))
	start := s.pool.day.Add(time.Duration(contendedHours[rng.Intn(len(contendedHours))]) * time.Hour)

	body, _ := json.Marshal(api.CreateAppointmentRequest{
		CentreID:  t.centreID.String(),
		ServiceID: t.serviceID.String(),
		StaffID:   t.staffID.String(),
		StartTime: start,
	})

	began := time.Now()
	attempts := 0
	id, err := backoff.Retry(ctx, func() (uuid.UUID, error) {
		attempts++
		resp, err := s.do(ctx, http.MethodPost, "/appointments", s.pool.clients[client], body)
		if err != nil {
			return uuid.Nil, backoff.Permanent(err)
		}
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusCreated:
			var out struct {
				ID uuid.UUID `json:"id"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				return uuid.Nil, backoff.Permanent(err)
			}
			return out.ID, nil
		case http.StatusServiceUnavailable:
			if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
				return uuid.Nil, backoff.RetryAfter(secs)
			}
			return uuid.Nil, errUnavailable
		default:
			return uuid.Nil, backoff.Permanent(&statusError{code: resp.StatusCode})
		}
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(s.config.MaxRetries),
	)
	if attempts > 1 {
		atomic.AddInt64(&s.metrics.Booking.Retried, 1)
	}

	var se *statusError
	conflict := errors.As(err, &se) && se.code == http.StatusConflict
	if err == nil {
		s.pool.AddAppointment(booked{id: id, client: client}, t.staffID, start)
	}
	s.metrics.Booking.Record(time.Since(began), err == nil, conflict)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.TakeAppointment(rng)
	if !ok {
		return
	}
	body, _ := json.Marshal(api.CancelRequest{Reason: "simulated change of plans"})

	began := time.Now()
	resp, err := s.do(ctx, http.MethodPost, "/appointments/"+b.id.String()+"/cancel", s.pool.clients[b.client], body)
	success, conflict := false, false
	if err == nil {
		success = resp.StatusCode == http.StatusOK
		conflict = resp.StatusCode == http.StatusConflict
		resp.Body.Close()
	}
	s.metrics.Cancel.Record(time.Since(began), success, conflict)
}

func (s *Simulator) doSlots(ctx context.Context, rng *rand.Rand) {
	t := s.pool.targets[rng.Intn(len(s.pool.targets))]
	path := fmt.Sprintf("/staff/%s/slots?service=%s&centre=%s&date=%s",
		t.staffID, t.serviceID, t.centreID, s.pool.day.Format(time.DateOnly))

	began := time.Now()
	resp, err := s.do(ctx, http.MethodGet, path, s.pool.clients[rng.Intn(len(s.pool.clients))], nil)
	success := false
	if err == nil {
		success = resp.StatusCode == http.StatusOK
		resp.Body.Close()
	}
	s.metrics.Slots.Record(time.Since(began), success, false)
}

func (s *Simulator) doList(ctx context.Context, rng *rand.Rand) {
	began := time.Now()
	resp, err := s.do(ctx, http.MethodGet, "/appointments", s.pool.clients[rng.Intn(len(s.pool.clients))], nil)
	success := false
	if err == nil {
		success = resp.StatusCode == http.StatusOK
		resp.Body.Close()
	}
	s.metrics.List.Record(time.Since(began), success, false)
}

func (s *Simulator) do(ctx context.Context, method, path, token string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	return s.client.Do(req)
}

func (s *Simulator) getJSON(ctx context.Context, token, path string, out any) error {
	resp, err := s.do(ctx, http.MethodGet, path, token, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &statusError{code: resp.StatusCode}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// PrintReport writes the summary and returns how many (staff, start) pairs
// were booked more than once.
func (s *Simulator) PrintReport() int {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n\n", s.config.Workers)

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Slot listing", &s.metrics.Slots)
	printOperationReport("Appointment list", &s.metrics.List)

	violations := 0
	s.pool.mu.Lock()
	for key, n := range s.pool.winners {
		if n > 1 {
			violations++
			fmt.Printf("DOUBLE BOOKING: %s booked %d times\n", key, n)
		}
	}
	s.pool.mu.Unlock()
	if violations == 0 {
		fmt.Println("No slot was booked twice.")
	}
	return violations
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}
	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)
	retried := atomic.LoadInt64(&om.Retried)
	avg, p50, p95, max := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if retried > 0 {
		fmt.Printf("  Retried after 503: %d\n", retried)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s p50=%s p95=%s max=%s\n\n",
		avg.Round(time.Millisecond), p50.Round(time.Millisecond), p95.Round(time.Millisecond), max.Round(time.Millisecond))
}

// Helper functions

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
