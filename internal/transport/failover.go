package transport

import (
	"context"
	"net/http"
	"time"

	"wayfare.org/internal/notify"
	"wayfare.org/internal/obs"
)

// probeTimeout bounds the standby health probe so a dead standby cannot hang
// the request that triggered the failover.
const probeTimeout = 5 * time.Second

// Failover switches the active endpoint to the standby once the standby
// proves reachable.
type Failover struct {
	endpoints *Endpoints
	http      Doer
	notices   *notify.Hub
}

// NewFailover wires a failover controller over the endpoint pair.
func NewFailover(endpoints *Endpoints, client Doer, notices *notify.Hub) *Failover {
	if client == nil {
		client = &http.Client{}
	}
	return &Failover{endpoints: endpoints, http: client, notices: notices}
}

// TryFailover probes the standby endpoint and, if it answers, rebinds the
// active endpoint to it. It reports whether the caller should retry against
// the new endpoint. A failed probe publishes a connectivity notice instead.
func (f *Failover) TryFailover(ctx context.Context) bool {
	standby := f.endpoints.Standby()
	if f.probe(ctx, standby+"/health") || f.probe(ctx, standby+"/api/health") {
		active := f.endpoints.Rebind()
		obs.FailoverSucceeded()
		obs.LogEvent(map[string]any{
			"event":  "endpoint_failover",
			"active": active,
		})
		return true
	}
	if f.notices != nil {
		f.notices.Publish(notify.Notice{
			Kind:     notify.KindConnectivity,
			Severity: notify.SeverityError,
			Message:  "could not reach the server, please check your connection",
		})
	}
	return false
}

// probe treats any HTTP answer below 500 as proof of life. A degraded but
// reachable standby is still better than a dead primary.
func (f *Failover) probe(ctx context.Context, target string) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return false
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < 500
}
