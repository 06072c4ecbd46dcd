// Package events publishes job lifecycle transitions to NATS so other tools
// can react to uploads finishing without polling the pipeline themselves.
//
// Transitions are JSON documents published on "<subject>.<status>". Without a
// configured server URL the package hands out a no-op publisher.
package events
