// Package mirror runs the remote-control session on top of a connected
// device session: it deploys the companion server, streams video into a
// decoder and forwards input.
//
// # Lifecycle
//
//	Stopped -> Deploying(Downloading) -> Deploying(Pushing)
//	        -> Deploying(Starting) -> Running -> Stopped
//
// Start blocks through the deployment stages. Every stage reports byte
// progress through OnProgress; Starting reports a single step. A failure
// in any stage releases whatever was acquired, is reported once and
// leaves the orchestrator Stopped. Nothing is ever left half running.
//
// When the underlying connection session ends, an in-flight deployment
// is canceled and a running mirror is stopped. Input capture, when
// enabled, is requested at the start of Start and released exactly once
// when the run ends, whichever way it ends.
//
// # Input
//
// Key events pass through a Keyboard that drops repeated downs for a held
// key. Blur releases every held key so nothing stays pressed on the
// device after focus moves away.
package mirror
