package http

import (
	"context"
	"net/http"
	"time"

	"github.com/alexliesenfeld/health"
)

// Pinger is a dependency whose reachability gates readiness.
type Pinger func(ctx context.Context) error

// NewReadinessChecker checks every named dependency periodically in the
// background. onChange, when set, is called whenever the aggregated status
// flips between up and down.
func NewReadinessChecker(deps map[string]Pinger, interval time.Duration, onChange func(up bool)) health.Checker {
	opts := []health.CheckerOption{
		health.WithTimeout(5 * time.Second),
	}
	for name, ping := range deps {
		opts = append(opts, health.WithPeriodicCheck(interval, 0, health.Check{
			Name:  name,
			Check: ping,
		}))
	}
	if onChange != nil {
		opts = append(opts, health.WithStatusListener(func(_ context.Context, state health.CheckerState) {
			onChange(state.Status == health.StatusUp)
		}))
	}
	return health.NewChecker(opts...)
}

// ReadinessHandler serves checker results: 200 when every dependency is up,
// 503 otherwise.
func ReadinessHandler(checker health.Checker) http.Handler {
	return health.NewHandler(checker)
}
