// Package controller is the client for the external home-automation
// controller that owns live device state.
//
// It exposes the snapshot side of the external interface: FetchAllStates
// returns the complete entity list the Sync Orchestrator reconciles against
// the local registry. The real-time event side arrives over MQTT and is
// handled by the sync package's event bridge.
//
// Connectivity and auth failures wrap ErrUnreachable and are fatal for a
// sync run; this package never retries on its own.
package controller
