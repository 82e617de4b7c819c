package services

import "errors"

var (
	// ErrNoSelection is returned by Start when no source is selected.
	ErrNoSelection = errors.New("station: no camera selected")
	// ErrDiscoveryRunning is returned by Discover while a pass is in flight.
	ErrDiscoveryRunning = errors.New("station: discovery already running")
	// ErrClosed is returned once the station loop has stopped.
	ErrClosed = errors.New("station: closed")
)
