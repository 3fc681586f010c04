// Package tempcontrol defines the types used by the active temperature
// control sequence. It contains:
//
//   - Phase: the discrete steps of the ramp/stabilize/measure state machine
//   - State: the persisted runtime state managed by the daemon
//
// These types are shared across daemon and client code to keep the JSON
// contracts in one place.
package tempcontrol
