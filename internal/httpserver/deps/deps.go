package deps

import (
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/emoradar/emoradar/internal/logger"
	"github.com/emoradar/emoradar/internal/moods"
	"github.com/emoradar/emoradar/internal/notify"
	"github.com/emoradar/emoradar/internal/policy"
	"github.com/emoradar/emoradar/internal/rules"
	"github.com/emoradar/emoradar/internal/scheduler"
	"github.com/emoradar/emoradar/internal/session"
	"github.com/emoradar/emoradar/internal/version"
)

type Deps struct {
	Logger           logger.Logger
	StartTime        time.Time
	Build            version.Info
	TimeNow          func() time.Time          // for testing, defaults to time.Now
	AllowedHosts     []string                  // Host headers allowed on admin endpoints
	AllowedCIDRS     []string                  // IPs allowed on healthz/readyz/infra and reload
	TrustProxy       bool                      // true behind a trusted reverse proxy (cloudflared, nginx)
	SubmitRateBurst  int                       // token bucket size for mood submissions
	SubmitRatePerMin int                       // refill rate for mood submissions
	Moods            *moods.Service            // mood history
	Session          *session.Controller       // block session state machine
	Engine           rules.Engine              // active rule set
	Policy           *policy.Provider          // current mood policy
	Reloader         *scheduler.PolicyReloader // nil disables reload status on /infra
	ReloadTrigger    chan struct{}             // manual policy reload
	Events           *notify.Hub               // SSE fan-out
	RedisClient      *redis.Client             // nil unless a redis backend is configured
	StoreKind        string                    // memory, redis or bolt
	RulesBackend     string                    // memory or redis
}

// Now returns d.TimeNow() or the wall clock.
func (d Deps) Now() time.Time {
	if d.TimeNow != nil {
		return d.TimeNow()
	}
	return time.Now()
}
