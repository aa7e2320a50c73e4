package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/loykin/pausr/internal/appstate"
	"github.com/loykin/pausr/internal/engine"
	"github.com/loykin/pausr/internal/host"
	"github.com/loykin/pausr/internal/settings"
)

// AppView is a running app together with its pause state.
type AppView struct {
	AppID    uint32 `json:"app_id"`
	Name     string `json:"name"`
	GameID   string `json:"game_id,omitempty"`
	PID      int    `json:"pid"`
	Paused   bool   `json:"paused"`
	Sticky   bool   `json:"sticky"`
	Excluded bool   `json:"excluded"`
}

func (r *Router) view(a host.App, rec appstate.Record, s settings.Settings) AppView {
	return AppView{
		AppID:    a.AppID,
		Name:     a.DisplayName,
		GameID:   a.GameID,
		PID:      rec.PID,
		Paused:   rec.Paused,
		Sticky:   rec.Sticky,
		Excluded: s.Excluded(a.AppID),
	}
}

func (r *Router) handleApps(c *gin.Context) {
	s := r.eng.Settings().Snapshot()
	apps := r.eng.Apps()
	out := make([]AppView, 0, len(apps))
	for _, a := range apps {
		rec, err := r.eng.Store().GetOrCreate(c.Request.Context(), a.AppID)
		if err != nil {
			writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
			return
		}
		out = append(out, r.view(a, rec, s))
	}
	writeJSON(c, http.StatusOK, out)
}

// runningApp resolves :appid to a running app, writing 400/404 on failure.
func (r *Router) runningApp(c *gin.Context) (host.App, bool) {
	id, err := parseAppID(c.Param("appid"))
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return host.App{}, false
	}
	for _, a := range r.eng.Apps() {
		if a.AppID == id {
			return a, true
		}
	}
	writeJSON(c, http.StatusNotFound, errorResp{Error: "app " + strconv.FormatUint(uint64(id), 10) + " is not running"})
	return host.App{}, false
}

func (r *Router) handleApp(c *gin.Context) {
	a, ok := r.runningApp(c)
	if !ok {
		return
	}
	rec, err := r.eng.Store().GetOrCreate(c.Request.Context(), a.AppID)
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, r.view(a, rec, r.eng.Settings().Snapshot()))
}

type manualOp func(*engine.Engine, *gin.Context, uint32) (appstate.Record, error)

func (r *Router) manual(c *gin.Context, op manualOp) {
	a, ok := r.runningApp(c)
	if !ok {
		return
	}
	rec, err := op(r.eng, c, a.AppID)
	if err != nil {
		writeManualErr(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r.view(a, rec, r.eng.Settings().Snapshot()))
}

func (r *Router) handleToggle(c *gin.Context) {
	r.manual(c, func(e *engine.Engine, c *gin.Context, id uint32) (appstate.Record, error) {
		return e.Toggle(c.Request.Context(), id)
	})
}

func (r *Router) handlePause(c *gin.Context) {
	r.manual(c, func(e *engine.Engine, c *gin.Context, id uint32) (appstate.Record, error) {
		return e.Pause(c.Request.Context(), id)
	})
}

func (r *Router) handleResumeApp(c *gin.Context) {
	r.manual(c, func(e *engine.Engine, c *gin.Context, id uint32) (appstate.Record, error) {
		return e.Resume(c.Request.Context(), id)
	})
}

func (r *Router) handleTerminate(c *gin.Context) {
	a, ok := r.runningApp(c)
	if !ok {
		return
	}
	force := c.Query("force") == "1" || c.Query("force") == "true"
	if err := r.eng.Terminate(c.Request.Context(), a.AppID, force); err != nil {
		writeManualErr(c, err)
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

// Exclusions are accepted for any id so apps can be configured before launch.
func (r *Router) handleExclude(c *gin.Context) {
	id, err := parseAppID(c.Param("appid"))
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	r.eng.AddExclusion(c.Request.Context(), id)
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleInclude(c *gin.Context) {
	id, err := parseAppID(c.Param("appid"))
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	r.eng.RemoveExclusion(c.Request.Context(), id)
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleGetSettings(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.eng.Settings().Snapshot())
}

func (r *Router) handlePutSettings(c *gin.Context) {
	var p settings.Patch
	if err := c.ShouldBindJSON(&p); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if err := r.eng.ApplySettings(c.Request.Context(), p); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, r.eng.Settings().Snapshot())
}

func (r *Router) handleStatus(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.eng.Status())
}

func writeManualErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, engine.ErrNoChange):
		writeJSON(c, http.StatusConflict, errorResp{Error: err.Error()})
	case errors.Is(err, appstate.ErrUnknownApp):
		writeJSON(c, http.StatusNotFound, errorResp{Error: err.Error()})
	default:
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
	}
}
