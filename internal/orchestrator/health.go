package orchestrator

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/kpm34/college-football-fantasy-app-sub000/internal/model"
	"github.com/kpm34/college-football-fantasy-app-sub000/internal/resilience"
	"github.com/kpm34/college-football-fantasy-app-sub000/internal/store"
)

// HealthStatus is the overall system health.
type HealthStatus string

const (
	Healthy   HealthStatus = "healthy"
	Degraded  HealthStatus = "degraded"
	Unhealthy HealthStatus = "unhealthy"
)

// ComponentStatus is one component's health.
type ComponentStatus string

const (
	ComponentUp       ComponentStatus = "up"
	ComponentDown     ComponentStatus = "down"
	ComponentDegraded ComponentStatus = "degraded"
)

// ComponentHealth is the probe result for one component.
type ComponentHealth struct {
	Status  ComponentStatus `json:"status"`
	Message string          `json:"message,omitempty"`
}

// HealthReport is the result of HealthCheck.
type HealthReport struct {
	Status                  HealthStatus               `json:"status"`
	Components              map[string]ComponentHealth `json:"components"`
	Breakers                []resilience.BreakerStatus `json:"breakers"`
	Issues                  []string                   `json:"issues"`
	LastSuccessfulExecution *time.Time                 `json:"last_successful_execution,omitempty"`
	CheckedAt               time.Time                  `json:"checked_at"`
}

const pingTimeout = 5 * time.Second

// HealthCheck probes the execution log and every registered adapter.
func (o *Orchestrator) HealthCheck(ctx context.Context) *HealthReport {
	rep := &HealthReport{
		Components: make(map[string]ComponentHealth),
		Issues:     []string{},
		CheckedAt:  o.now().UTC(),
	}

	if o.deps.ExecutionLog == nil {
		rep.Components["database"] = ComponentHealth{Status: ComponentDown, Message: "no execution log configured"}
	} else {
		pctx, cancel := context.WithTimeout(ctx, pingTimeout)
		err := o.deps.ExecutionLog.Ping(pctx)
		cancel()
		if err != nil {
			rep.Components["database"] = ComponentHealth{Status: ComponentDown, Message: err.Error()}
		} else {
			rep.Components["database"] = ComponentHealth{Status: ComponentUp}
			rep.LastSuccessfulExecution = o.lastSuccess(ctx)
		}
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, name := range o.deps.Adapters.Names() {
		a, _ := o.deps.Adapters.Get(name)
		key := "adapter:" + name
		switch o.breakers.Get(name).State() {
		case resilience.StateOpen:
			rep.Components[key] = ComponentHealth{Status: ComponentDown, Message: "circuit breaker open"}
			continue
		case resilience.StateHalfOpen:
			rep.Components[key] = ComponentHealth{Status: ComponentDegraded, Message: "circuit breaker half-open"}
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, pingTimeout)
			defer cancel()
			h := ComponentHealth{Status: ComponentUp}
			if err := a.Ping(pctx); err != nil {
				h = ComponentHealth{Status: ComponentDown, Message: err.Error()}
			}
			mu.Lock()
			rep.Components[key] = h
			mu.Unlock()
		}()
	}
	wg.Wait()
	rep.Breakers = o.breakers.Snapshot()

	up := 0
	for _, name := range slices.Sorted(maps.Keys(rep.Components)) {
		h := rep.Components[name]
		switch h.Status {
		case ComponentUp:
			up++
		default:
			rep.Issues = append(rep.Issues, name+" "+string(h.Status)+": "+h.Message)
		}
	}
	switch {
	case len(rep.Issues) == 0:
		rep.Status = Healthy
	case up > 0:
		rep.Status = Degraded
	default:
		rep.Status = Unhealthy
	}
	return rep
}

func (o *Orchestrator) lastSuccess(ctx context.Context) *time.Time {
	execs, err := o.deps.ExecutionLog.ListExecutions(ctx, store.ExecutionFilter{Status: model.ExecutionSucceeded, Limit: 1})
	if err != nil || len(execs) == 0 {
		return nil
	}
	if c := execs[0].CompletedAt; c != nil {
		return c
	}
	t := execs[0].StartedAt
	return &t
}
