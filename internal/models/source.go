package models

import (
	"fmt"
	"strconv"
)

// SourceKind tells a local capture device apart from a network endpoint.
type SourceKind string

const (
	SourceLocal SourceKind = "local"
	SourceIP    SourceKind = "ip"
)

// CameraSource describes a discovered video source. It is immutable once built;
// use NewLocalSource or NewIPSource.
type CameraSource struct {
	Kind        SourceKind `json:"kind"`
	DeviceIndex int        `json:"device_index,omitempty"`
	URL         string     `json:"url,omitempty"`
	Host        string     `json:"host,omitempty"`
	DisplayName string     `json:"name"`
}

// NewLocalSource describes capture device number index.
func NewLocalSource(index int) CameraSource {
	return CameraSource{
		Kind:        SourceLocal,
		DeviceIndex: index,
		DisplayName: fmt.Sprintf("Local Camera %d", index),
	}
}

// NewIPSource describes a network camera reachable at host through url.
func NewIPSource(host, url string) CameraSource {
	return CameraSource{
		Kind:        SourceIP,
		URL:         url,
		Host:        host,
		DisplayName: fmt.Sprintf("IP Camera %s", host),
	}
}

// Identifier returns the device index or the endpoint URL.
func (s CameraSource) Identifier() string {
	if s.Kind == SourceLocal {
		return strconv.Itoa(s.DeviceIndex)
	}
	return s.URL
}

func (s CameraSource) String() string {
	return s.DisplayName
}
