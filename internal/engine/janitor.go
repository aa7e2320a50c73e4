package engine

import (
	"github.com/loykin/pausr/internal/host"
	"github.com/loykin/pausr/internal/metrics"
)

// onLifetime handles app start and exit. A start is announced at once; an
// exit is given the grace delay so the host's running list catches up
// before the store is reconciled against it.
func (e *Engine) onLifetime(ev host.Lifetime) {
	if ev.Running {
		e.emitRunningApps()
		return
	}
	e.clock.AfterFunc(e.cfg.GraceDelay, func() {
		e.reconcile("lifetime")
		e.emitRunningApps()
	})
}

// reconcile drops records of apps that are no longer running.
func (e *Engine) reconcile(trigger string) {
	removed := e.store.Reconcile(host.IDs(e.apps.List()))
	if len(removed) > 0 {
		e.log.Info("dropped state of exited apps", "trigger", trigger, "app_ids", removed)
	}
	e.reconcileGauges()
}

func (e *Engine) reconcileGauges() {
	recs := e.store.List()
	sticky := 0
	for _, r := range recs {
		if r.Sticky {
			sticky++
		}
	}
	metrics.SetTracked(len(recs))
	metrics.SetSticky(sticky)
}
