package feed

import (
	"context"
	"strings"

	"github.com/yanun0323/logs"

	"marketfeed/internal/bus"
	"marketfeed/internal/model/enum"
)

const (
	ReasonDisabled           = "disabled"
	ReasonMissingCredentials = "missing_credentials"
	ReasonReady              = "ready"
)

// runStub reports paper/live readiness once, then idles in running with heartbeats
// until the run is stopped. It never fails the run.
func (c *Controller) runStub(ctx context.Context, mode enum.Mode) bool {
	kind, message, detail := c.readiness(mode)
	if detail[bus.DetailReason] != ReasonReady {
		logs.Infof("feed %s not ready, reason: %s", mode, detail[bus.DetailReason])
	}
	c.publishOps(kind, message, detail)

	<-ctx.Done()
	return true
}

func (c *Controller) readiness(mode enum.Mode) (enum.OpsKind, string, map[string]string) {
	live := c.settings.Live
	detail := map[string]string{
		DetailMode:     mode.String(),
		DetailProvider: live.Provider,
	}
	if !live.Enabled {
		detail[bus.DetailReason] = ReasonDisabled
		return enum.OpsKindConfigError, "live provider disabled", detail
	}
	if missing := c.settings.MissingCredentials(c.lookup); len(missing) > 0 {
		detail[bus.DetailReason] = ReasonMissingCredentials
		detail[DetailMissing] = strings.Join(missing, ",")
		return enum.OpsKindConfigError, "live provider credentials missing", detail
	}
	detail[bus.DetailReason] = ReasonReady
	return enum.OpsKindStateChange, "live provider ready", detail
}
