package client

import "time"

// App is a running app with its pause state, as returned by GET /apps.
type App struct {
	AppID    uint32 `json:"app_id"`
	Name     string `json:"name"`
	GameID   string `json:"game_id,omitempty"`
	PID      int    `json:"pid"`
	Paused   bool   `json:"paused"`
	Sticky   bool   `json:"sticky"`
	Excluded bool   `json:"excluded"`
}

// RunningApp is one entry of the host's running list.
type RunningApp struct {
	AppID       uint32 `json:"app_id"`
	DisplayName string `json:"display_name"`
	GameID      string `json:"game_id,omitempty"`
}

// Status mirrors GET /status.
type Status struct {
	SuspendPending bool `json:"suspend_pending"`
	Starting       bool `json:"starting"`
	KeyPending     bool `json:"key_pending"`
	Tracked        int  `json:"tracked"`
	Running        int  `json:"running"`
}

// Settings mirrors GET /settings.
type Settings struct {
	PauseBeforeSuspend bool     `json:"pauseBeforeSuspend"`
	AutoPause          bool     `json:"autoPause"`
	OverlayPause       bool     `json:"overlayPause"`
	NoAutoPause        []uint32 `json:"noAutoPauseSet"`
}

// SettingsPatch is a partial settings update; nil fields are unchanged.
type SettingsPatch struct {
	PauseBeforeSuspend *bool     `json:"pauseBeforeSuspend,omitempty"`
	AutoPause          *bool     `json:"autoPause,omitempty"`
	OverlayPause       *bool     `json:"overlayPause,omitempty"`
	NoAutoPause        *[]uint32 `json:"noAutoPauseSet,omitempty"`
}

// FocusEvent is the body of POST /events/focus.
type FocusEvent struct {
	AppID    uint32 `json:"app_id"`
	PID      int    `json:"pid"`
	ExeName  string `json:"exe_name,omitempty"`
	WindowID uint64 `json:"window_id,omitempty"`
}

// Token is the response of POST /auth/login.
type Token struct {
	Type      string    `json:"type"`
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ErrorResponse is the JSON error body of the API.
type ErrorResponse struct {
	Error string `json:"error"`
}

type okResponse struct {
	OK bool `json:"ok"`
}
