// Package common implements the frame-tree/navigation state machine, the
// Progress cancellation runtime, the signal-barrier auto-wait mechanism,
// and the AI ARIA-snapshot composer that together drive a browser tab from
// an out-of-page controller. It is transport-agnostic: everything it needs
// from the ambient browser runtime is expressed as the RuntimeAdapter
// interface, implemented elsewhere against a concrete wire protocol.
package common
