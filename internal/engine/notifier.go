package engine

import (
	"slices"
	"sync"

	"github.com/loykin/pausr/internal/appstate"
	"github.com/loykin/pausr/internal/host"
)

type runningSub struct {
	id uint64
	fn func([]host.App)
}

type runningSubs struct {
	mu   sync.Mutex
	next uint64
	subs []runningSub
}

// SubscribeRunningApps registers fn to receive the running list whenever a
// launch completes or an app starts or exits. Subscribers are called in
// registration order.
func (e *Engine) SubscribeRunningApps(fn func([]host.App)) appstate.Unsubscribe {
	r := &e.runSubs
	r.mu.Lock()
	r.next++
	id := r.next
	r.subs = append(r.subs, runningSub{id: id, fn: fn})
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.subs = slices.DeleteFunc(r.subs, func(s runningSub) bool { return s.id == id })
	}
}

func (e *Engine) emitRunningApps() {
	r := &e.runSubs
	r.mu.Lock()
	subs := slices.Clone(r.subs)
	r.mu.Unlock()
	if len(subs) == 0 {
		return
	}
	apps := e.apps.List()
	for _, s := range subs {
		s.fn(slices.Clone(apps))
	}
}
