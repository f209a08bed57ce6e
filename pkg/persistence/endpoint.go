package persistence

import (
	"fmt"
	"net"
	"strconv"
)

// Storage keys for user-added device lists.
const (
	KeyWebSocketEndpoints = "ws-backend-list"
	KeyTCPEndpoints       = "tcp-backend-list"
)

// Endpoint is a user-added device address.
// WebSocket endpoints carry a URL in Address and no port; TCP endpoints
// carry a host and a port.
type Endpoint struct {
	Address string `json:"address"`
	Port    int    `json:"port,omitempty"`
}

// HostPort returns "address:port" for TCP endpoints and the bare
// address otherwise.
func (e Endpoint) HostPort() string {
	if e.Port == 0 {
		return e.Address
	}
	return net.JoinHostPort(e.Address, strconv.Itoa(e.Port))
}

// Validate checks the endpoint fields.
func (e Endpoint) Validate() error {
	if e.Address == "" {
		return fmt.Errorf("endpoint address is empty")
	}
	if e.Port < 0 || e.Port > 65535 {
		return fmt.Errorf("endpoint port %d out of range", e.Port)
	}
	return nil
}

// LoadEndpoints reads the endpoint list stored under key.
// A missing key yields an empty list.
func LoadEndpoints(s Store, key string) ([]Endpoint, error) {
	var list []Endpoint
	if _, err := GetJSON(s, key, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// SaveEndpoints replaces the endpoint list stored under key.
func SaveEndpoints(s Store, key string, list []Endpoint) error {
	if list == nil {
		list = []Endpoint{}
	}
	return SetJSON(s, key, list)
}
