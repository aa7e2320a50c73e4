package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/loykin/pausr/internal/engine"
	"github.com/loykin/pausr/internal/host"
)

func (r *Router) handleFocus(c *gin.Context) {
	var ev host.FocusChange
	r.bindAndSubmit(c, &ev, func() any { return ev })
}

func (r *Router) handleKey(c *gin.Context) {
	var ev host.KeyEvent
	r.bindAndSubmit(c, &ev, func() any { return ev })
}

func (r *Router) handleGameAction(c *gin.Context) {
	var ev host.GameAction
	r.bindAndSubmit(c, &ev, func() any { return ev })
}

func (r *Router) handleLifetime(c *gin.Context) {
	var ev host.Lifetime
	r.bindAndSubmit(c, &ev, func() any { return ev })
}

func (r *Router) handleRunningApps(c *gin.Context) {
	var ev host.RunningAppsUpdate
	if err := c.ShouldBindJSON(&ev); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	// applied synchronously so a following GET /apps sees the new list
	r.submitWait(c, ev)
}

// handleSuspend returns once every app has been paused.
func (r *Router) handleSuspend(c *gin.Context) { r.submitWait(c, host.SuspendRequest{}) }

func (r *Router) handleResume(c *gin.Context) { r.submitWait(c, host.ResumeFromSuspend{}) }

type terminatingReq struct {
	AppID json.Number `json:"app_id"`
}

// handleTerminating resumes an app the host is about to terminate. app_id
// may be a composite 64-bit id, given as a number or a decimal string.
func (r *Router) handleTerminating(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	var req terminatingReq
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil || req.AppID == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "app_id required"})
		return
	}
	if err := r.eng.ResumeForTermination(c.Request.Context(), req.AppID); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) bindAndSubmit(c *gin.Context, dst any, ev func() any) {
	if err := c.ShouldBindJSON(dst); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if err := r.eng.Submit(ev()); err != nil {
		writeSubmitErr(c, err)
		return
	}
	writeJSON(c, http.StatusAccepted, okResp{OK: true})
}

func (r *Router) submitWait(c *gin.Context, ev any) {
	if err := r.eng.SubmitWait(c.Request.Context(), ev); err != nil {
		writeSubmitErr(c, err)
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func writeSubmitErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, host.ErrInvalidEvent):
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
	case errors.Is(err, engine.ErrStopped):
		writeJSON(c, http.StatusServiceUnavailable, errorResp{Error: err.Error()})
	default:
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
	}
}
