package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// HealthCheck probes one dependency.  A failing critical check turns the
// response into 503; a failing non-critical one only marks it degraded.
type HealthCheck struct {
	Name     string
	Critical bool
	Ping     func(ctx context.Context) error
}

// Health reports liveness plus the state of each dependency.
func Health(checks ...HealthCheck) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()

		status, code := "ok", http.StatusOK
		results := make(map[string]string, len(checks))
		for _, chk := range checks {
			if err := chk.Ping(ctx); err != nil {
				results[chk.Name] = "unavailable"
				if chk.Critical {
					status, code = "down", http.StatusServiceUnavailable
				} else if code == http.StatusOK {
					status = "degraded"
				}
				continue
			}
			results[chk.Name] = "ok"
		}
		return c.JSON(code, echo.Map{
			"status":    status,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"checks":    results,
		})
	}
}
