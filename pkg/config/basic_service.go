package config

import "net"

// BasicService is the base config for auxiliary HTTP services like Pprof
// and Prometheus monitoring.
type BasicService struct {
	Enabled bool   `yaml:"Enabled"`
	Address string `yaml:"Address"`
	Port    string `yaml:"Port"`
}

// Addr returns the bind address of the service.
func (s BasicService) Addr() string {
	return net.JoinHostPort(s.Address, s.Port)
}
