// Package config holds the yaml-backed configuration for the rendez
// directory server and peer client, with the defaults matching the
// original wire contract (port 5566, 5-minute server heartbeats,
// 5-second control and 60-second peer heartbeats).
package config
