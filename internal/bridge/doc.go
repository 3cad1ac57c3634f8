// Package bridge connects committed mutations to the realtime layer.
// REST handlers call it after their database write succeeds; it builds
// the matching events, fans them out through the dispatcher, mirrors
// them onto the relay when one is configured, and records view
// telemetry. Nothing in this package can fail the mutation that
// triggered it.
package bridge
