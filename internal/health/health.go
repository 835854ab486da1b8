package health

import (
	"context"
	"time"
)

// Status is the overall or per-component health.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

const checkTimeout = 3 * time.Second

// Pinger is implemented by dependencies that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ComponentReport is the result of checking one dependency.
type ComponentReport struct {
	Status    Status `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// Report is the JSON body served by the health endpoints.
type Report struct {
	Status     Status                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Uptime     string                     `json:"uptime"`
	Components map[string]ComponentReport `json:"components,omitempty"`
}

// Checker checks the service dependencies.
type Checker struct {
	components map[string]Pinger
	started    time.Time
	now        func() time.Time
}

// NewChecker creates a checker. The database is the only dependency today.
func NewChecker(database Pinger) *Checker {
	c := &Checker{
		components: make(map[string]Pinger),
		started:    time.Now(),
		now:        time.Now,
	}
	if database != nil {
		c.components["database"] = database
	}
	return c
}

// Check pings every dependency. Any failure makes the report unhealthy.
func (c *Checker) Check(ctx context.Context) Report {
	report := c.Liveness()
	report.Components = make(map[string]ComponentReport, len(c.components))

	for name, p := range c.components {
		checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		start := c.now()
		err := p.Ping(checkCtx)
		cancel()

		comp := ComponentReport{
			Status:    StatusHealthy,
			LatencyMS: c.now().Sub(start).Milliseconds(),
		}
		if err != nil {
			comp.Status = StatusUnhealthy
			comp.Error = err.Error()
			report.Status = StatusUnhealthy
		}
		report.Components[name] = comp
	}

	return report
}

// Liveness reports that the process is up without touching dependencies.
func (c *Checker) Liveness() Report {
	now := c.now()
	return Report{
		Status:    StatusHealthy,
		Timestamp: now.UTC(),
		Uptime:    now.Sub(c.started).Round(time.Second).String(),
	}
}
