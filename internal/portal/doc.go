// Package portal multiplexes logical packet channels over one byte stream.
//
// Ownership boundary:
// - Channel: per-conversation outbound/inbound queues and their waits
// - Portal: the stream, its codec and a fixed array of channels
// - Selector: the single worker moving packets between channels and the wire
// - Direct: the singleplex variant, the codec applied straight to a stream
//
// Once a portal is open, all stream I/O happens on the selector worker so
// that the two frames of one logical send stay adjacent on the wire.
package portal
