package main

import "time"

// GlobalFlags are the persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
	// Remote daemon connection
	APIUrl     string
	APITimeout time.Duration
	CACert     string
	Insecure   bool
	Token      string
}

type ServeFlags struct {
	ConfigPath string
	Daemonize  bool
	PidFile    string
	LogFile    string
}

type TerminateFlags struct {
	Force bool
}

// SettingsFlags hold the optional values of "settings set"; only flags that
// were given on the command line are sent.
type SettingsFlags struct {
	AutoPause          bool
	OverlayPause       bool
	PauseBeforeSuspend bool
}

type LoginFlags struct {
	Password string
}

type AppsFlags struct {
	JSON bool
}
