package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrBadTraceForm = errors.New("protocol: malformed packet trace form")

// Parse reconstructs a packet from its String trace form. The body may
// itself contain ':' characters, so the header is taken before the first
// separator and the footer after the last.
func Parse(s string) (Packet, error) {
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return Packet{}, fmt.Errorf("%w: missing brackets", ErrBadTraceForm)
	}
	inner := s[1 : len(s)-1]

	first := strings.IndexByte(inner, ':')
	last := strings.LastIndexByte(inner, ':')
	if first < 0 || first == last {
		return Packet{}, fmt.Errorf("%w: missing separators", ErrBadTraceForm)
	}

	header, err := strconv.ParseInt(inner[:first], 10, 32)
	if err != nil {
		return Packet{}, fmt.Errorf("%w: header: %v", ErrBadTraceForm, err)
	}
	footer, err := strconv.ParseUint(inner[last+1:], 10, 16)
	if err != nil {
		return Packet{}, fmt.Errorf("%w: footer: %v", ErrBadTraceForm, err)
	}

	return Raw(int32(header), []byte(inner[first+1:last]), uint16(footer)), nil
}
