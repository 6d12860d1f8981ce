package v1

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog/log"
)

const healthTimeout = 2 * time.Second

type HealthStatus struct {
	Status string            `json:"status" enum:"ok,degraded"`
	Checks map[string]string `json:"checks"`
}

type HealthOutput struct {
	Status int
	Body   *HealthStatus
}

// RegisterHealthRoutes mounts the unauthenticated liveness probe. Each named
// dependency is pinged; any failure turns the response into a 503.
func RegisterHealthRoutes(api huma.API, deps map[string]Pinger) {
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)

	huma.Register(api, huma.Operation{
		OperationID: "healthz",
		Method:      http.MethodGet,
		Path:        "/healthz",
		Summary:     "Health check",
		Tags:        []string{"Health"},
	}, func(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
		ctx, cancel := context.WithTimeout(ctx, healthTimeout)
		defer cancel()

		out := &HealthOutput{Status: http.StatusOK, Body: &HealthStatus{Status: "ok", Checks: make(map[string]string, len(names))}}
		for _, name := range names {
			if err := deps[name].Ping(ctx); err != nil {
				log.Warn().Err(err).Str("dependency", name).Msg("healthz: dependency unavailable")
				out.Body.Checks[name] = "unavailable"
				out.Body.Status = "degraded"
				out.Status = http.StatusServiceUnavailable
				continue
			}
			out.Body.Checks[name] = "ok"
		}
		return out, nil
	})
}
