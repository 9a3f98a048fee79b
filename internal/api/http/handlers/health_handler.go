package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/spec-kit/auth-service/pkg/util/errorutil"
)

const readinessTimeout = 2 * time.Second

// ErrDependencyUnavailable is returned by Ready when any enabled dependency fails its ping.
var ErrDependencyUnavailable = apperrors.NewDomainError("DEPENDENCY_UNAVAILABLE", "one or more dependencies unavailable", http.StatusServiceUnavailable, nil)

// Pinger is a dependency that can report reachability.
type Pinger interface {
	Enabled() bool
	Ping(ctx context.Context) error
}

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	serviceName string
	version     string
	deps        map[string]Pinger
}

// NewHealthHandler builds the probes. Dependencies that are not enabled are reported as
// "disabled" and never fail readiness: the service then runs on its in-process fallbacks.
func NewHealthHandler(serviceName, version string, deps map[string]Pinger) *HealthHandler {
	return &HealthHandler{serviceName: serviceName, version: version, deps: deps}
}

func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "alive",
		"service": h.serviceName,
		"version": h.version,
	})
}

// Ready pings every enabled dependency concurrently under one deadline.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), readinessTimeout)
	defer cancel()

	statuses, ready := h.check(ctx)
	if !ready {
		return ErrDependencyUnavailable.WithDetails(statuses)
	}
	return c.JSON(fiber.Map{
		"status":       "ready",
		"service":      h.serviceName,
		"dependencies": statuses,
	})
}

func (h *HealthHandler) check(ctx context.Context) (map[string]any, bool) {
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		statuses = make(map[string]any, len(h.deps))
		ready    = true
	)
	for name, dep := range h.deps {
		if dep == nil || !dep.Enabled() {
			statuses[name] = "disabled"
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			status := "ok"
			if err := dep.Ping(ctx); err != nil {
				// ping errors stay server side
				status = "unavailable"
			}
			mu.Lock()
			defer mu.Unlock()
			statuses[name] = status
			if status != "ok" {
				ready = false
			}
		}()
	}
	wg.Wait()
	return statuses, ready
}
