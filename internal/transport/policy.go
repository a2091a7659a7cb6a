package transport

import (
	"wayfare.org/internal/notify"
	"wayfare.org/internal/obs"
)

// responsePolicy is the side effect a non-2xx status triggers: purging the
// session, surfacing a notice, scheduling a redirect. The response itself is
// still returned to the caller as a classified error.
type responsePolicy func(c *Client, status int)

// statusPolicies maps exact statuses to their side effects. Statuses without
// an entry fall through to rangePolicy.
var statusPolicies = map[int]responsePolicy{
	401: func(c *Client, status int) {
		if err := c.store.Clear(); err != nil {
			obs.LogEvent(map[string]any{"event": "session_purge_failed", "error": err.Error()})
		}
		route := c.route()
		n := notify.Notice{
			Kind:     notify.KindSessionExpired,
			Severity: notify.SeverityWarning,
			Message:  messageFor(KindAuth),
		}
		if to := notify.LoginRedirect(route); to != "" {
			n.RedirectTo = to
		}
		c.notices.Publish(n)
	},
	403: func(c *Client, status int) {
		c.notices.Publish(notify.Notice{
			Kind:     notify.KindForbidden,
			Severity: notify.SeverityWarning,
			Message:  messageFor(KindForbidden),
		})
	},
	404: func(c *Client, status int) {
		c.notices.Publish(notify.Notice{
			Kind:     notify.KindNotFound,
			Severity: notify.SeverityInfo,
			Message:  messageFor(KindNotFound),
		})
	},
}

// rangePolicy covers statuses without an exact entry.
func rangePolicy(c *Client, status int) {
	if status >= 500 {
		c.notices.Publish(notify.Notice{
			Kind:     notify.KindServerError,
			Severity: notify.SeverityError,
			Message:  messageFor(KindServer),
		})
	}
}

// applyPolicy dispatches the side effect for a non-2xx status.
func applyPolicy(c *Client, status int) {
	if p, ok := statusPolicies[status]; ok {
		p(c, status)
		return
	}
	rangePolicy(c, status)
}
