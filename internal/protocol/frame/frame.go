package frame

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"

	"github.com/danmuck/ttp/internal/protocol"
)

// Overhead is the framed size of a packet beyond its body: header(4) +
// body_length(4) + footer(2), all big-endian.
const Overhead = 10

var (
	ErrTruncated      = errors.New("frame: truncated frame")
	ErrNegativeLength = errors.New("frame: negative body length")
)

// Writer encodes packets onto a buffered byte stream. Frames collect in the
// buffer until Flush, except that a write larger than the buffer goes to the
// stream at once; a single writer per stream keeps frames adjacent.
type Writer struct {
	w *bufio.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// WritePacket buffers one encoded frame: header, body length, body, footer.
func (w *Writer) WritePacket(p protocol.Packet) error {
	var head [8]byte
	binary.BigEndian.PutUint32(head[0:4], uint32(p.Header))
	binary.BigEndian.PutUint32(head[4:8], uint32(len(p.Body)))
	if _, err := w.w.Write(head[:]); err != nil {
		return err
	}
	if _, err := w.w.Write(p.Body); err != nil {
		return err
	}
	var foot [2]byte
	binary.BigEndian.PutUint16(foot[:], p.Footer)
	if _, err := w.w.Write(foot[:]); err != nil {
		return err
	}
	return nil
}

// Flush pushes buffered frames to the underlying stream.
func (w *Writer) Flush() error {
	return w.w.Flush()
}

// Reader decodes packets from a buffered byte stream.
type Reader struct {
	r *bufio.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Peek exposes the next n bytes without consuming them. It lets a polling
// caller probe for frame data under a read deadline before committing to a
// blocking ReadPacket.
func (r *Reader) Peek(n int) ([]byte, error) {
	return r.r.Peek(n)
}

// ReadPacket decodes one frame. A clean end of stream before the first byte
// returns io.EOF; end of stream anywhere inside a frame returns
// ErrTruncated. The header mask is not validated and the body is not
// interpreted.
func (r *Reader) ReadPacket() (protocol.Packet, error) {
	var head [8]byte
	if _, err := io.ReadFull(r.r, head[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return protocol.Packet{}, ErrTruncated
		}
		return protocol.Packet{}, err
	}

	header := int32(binary.BigEndian.Uint32(head[0:4]))
	length := int32(binary.BigEndian.Uint32(head[4:8]))
	if length < 0 {
		return protocol.Packet{}, ErrNegativeLength
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r.r, body); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return protocol.Packet{}, ErrTruncated
		}
		return protocol.Packet{}, err
	}

	var foot [2]byte
	if _, err := io.ReadFull(r.r, foot[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return protocol.Packet{}, ErrTruncated
		}
		return protocol.Packet{}, err
	}

	return protocol.Raw(header, body, binary.BigEndian.Uint16(foot[:])), nil
}
