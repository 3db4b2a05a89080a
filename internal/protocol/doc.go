// Package protocol owns the TTP wire contract primitives.
//
// Ownership boundary:
// - header catalog (tag mask <-> symbolic name)
// - Packet value type, ordering and string form
// - string form parsing for traces and tooling
//
// Frame encoding over a byte stream lives in the frame subpackage.
package protocol
