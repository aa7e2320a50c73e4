package host

import (
	"slices"
	"sync"
)

// App is one entry of the host's running list.
type App struct {
	AppID       uint32 `json:"app_id"`
	DisplayName string `json:"display_name,omitempty"`
	GameID      string `json:"game_id,omitempty"`
}

// RunningApps enumerates the apps the host currently runs.
type RunningApps interface {
	List() []App
}

// Registry is a RunningApps fed by RunningAppsUpdate events.
type Registry struct {
	mu   sync.RWMutex
	apps []App
}

func NewRegistry() *Registry { return &Registry{} }

// Set replaces the running list.
func (r *Registry) Set(apps []App) {
	cp := slices.Clone(apps)
	r.mu.Lock()
	r.apps = cp
	r.mu.Unlock()
}

// List returns a copy of the running list in host order.
func (r *Registry) List() []App {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.apps)
}

func (r *Registry) Contains(appID uint32) bool {
	_, ok := r.Lookup(appID)
	return ok
}

func (r *Registry) Lookup(appID uint32) (App, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.apps {
		if a.AppID == appID {
			return a, true
		}
	}
	return App{}, false
}

// IDs returns the set of running app ids.
func IDs(apps []App) map[uint32]bool {
	out := make(map[uint32]bool, len(apps))
	for _, a := range apps {
		out[a.AppID] = true
	}
	return out
}
