package portal

import (
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/danmuck/ttp/internal/protocol"
	"github.com/danmuck/ttp/internal/protocol/frame"
	"github.com/danmuck/ttp/internal/testutil/testlog"
)

func waitState(t *testing.T, sel *Selector, want int32) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sel.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("selector state=%s want=%s", StateName(sel.State()), StateName(want))
}

// peer owns the raw end of the pipe and speaks frames directly.
type peer struct {
	conn net.Conn
	r    *frame.Reader
	w    *frame.Writer
}

func newPeer(conn net.Conn) *peer {
	return &peer{conn: conn, r: frame.NewReader(conn), w: frame.NewWriter(conn)}
}

func (pr *peer) send(t *testing.T, id int, p protocol.Packet) {
	t.Helper()
	if err := pr.w.WritePacket(protocol.NewInt(id)); err != nil {
		t.Errorf("peer write routing: %v", err)
		return
	}
	if err := pr.w.WritePacket(p); err != nil {
		t.Errorf("peer write payload: %v", err)
		return
	}
	if err := pr.w.Flush(); err != nil {
		t.Errorf("peer flush: %v", err)
	}
}

func (pr *peer) read(t *testing.T) protocol.Packet {
	t.Helper()
	p, err := pr.r.ReadPacket()
	if err != nil {
		t.Errorf("peer read: %v", err)
		return protocol.Packet{}
	}
	return p
}

func TestSelectorStartStop(t *testing.T) {
	testlog.Start(t)
	local, remote := net.Pipe()
	defer remote.Close()

	p, err := Open(local, "sel-test", 3)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	waitState(t, p.Selector(), StateRunning)
	deadline := time.Now().Add(2 * time.Second)
	for p.Selector().Cycles() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if p.Selector().Cycles() == 0 {
		t.Fatalf("selector never cycled")
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	waitState(t, p.Selector(), StateStopped)
}

func TestStopBeforeStartIsTerminal(t *testing.T) {
	testlog.Start(t)
	local, remote := net.Pipe()
	defer local.Close()
	defer remote.Close()

	p := &Portal{conn: local, channels: []*Channel{newChannel(0)}, pollWindow: DefaultPollWindow}
	sel := newSelector(p)
	sel.Stop()
	if sel.State() != StateStopped {
		t.Fatalf("state=%s want=STOPPED", StateName(sel.State()))
	}
	sel.Start()
	if sel.State() != StateStopped {
		t.Fatalf("start after stop revived selector: %s", StateName(sel.State()))
	}
}

func TestOutboundFramePairAdjacency(t *testing.T) {
	testlog.Start(t)
	local, remote := net.Pipe()
	pr := newPeer(remote)
	defer remote.Close()

	p, err := Open(local, "adjacency", 4)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer p.Close()

	p.Channel(2).Send(protocol.NewString("hello"))
	p.Channel(0).Send(protocol.NewBool(true))

	type pair struct{ routing, payload protocol.Packet }
	got := make(chan pair, 2)
	go func() {
		for i := 0; i < 2; i++ {
			r := pr.read(t)
			pl := pr.read(t)
			got <- pair{r, pl}
		}
	}()

	want := map[string]protocol.Packet{
		protocol.NewInt(0).Format(): protocol.NewBool(true),
		protocol.NewInt(2).Format(): protocol.NewString("hello"),
	}
	for i := 0; i < len(want); i++ {
		select {
		case g := <-got:
			w, ok := want[g.routing.Format()]
			if !ok {
				t.Fatalf("pair %d: unexpected routing %v", i, g.routing)
			}
			if g.routing.Header != protocol.HeaderInteger.Mask() || !g.payload.Equal(w) {
				t.Fatalf("pair %d: got %v/%v want payload %v", i, g.routing, g.payload, w)
			}
			delete(want, g.routing.Format())
		case <-time.After(2 * time.Second):
			t.Fatalf("pair %d never arrived", i)
		}
	}
}

func TestInboundRoutedToChannel(t *testing.T) {
	testlog.Start(t)
	local, remote := net.Pipe()
	pr := newPeer(remote)
	defer remote.Close()

	p, err := Open(local, "inbound", 3)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer p.Close()

	go pr.send(t, 1, protocol.NewString("hello"))

	ch := p.Channel(1)
	ch.AwaitInput()
	got, ok := ch.Receive()
	if !ok || got.Format() != "hello" {
		t.Fatalf("channel 1 got %v,%v", got, ok)
	}
	if p.Channel(0).InputSize() != 0 || p.Channel(2).InputSize() != 0 {
		t.Fatalf("packet leaked to wrong channel")
	}
}

func TestCloseDrainsOutbound(t *testing.T) {
	testlog.Start(t)
	local, remote := net.Pipe()
	pr := newPeer(remote)

	p, err := Open(local, "drain", 2)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	const n = 8
	for i := 0; i < n; i++ {
		p.Channel(i % 2).Send(protocol.NewInt(i))
	}

	count := make(chan int, 1)
	go func() {
		seen := 0
		for {
			if _, err := pr.r.ReadPacket(); err != nil {
				count <- seen
				return
			}
			if _, err := pr.r.ReadPacket(); err != nil {
				count <- seen
				return
			}
			seen++
		}
	}()

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	select {
	case seen := <-count:
		if seen != n {
			t.Fatalf("peer saw %d packets, want %d", seen, n)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("peer still reading after close")
	}
}

func TestUnknownHeaderPassesThrough(t *testing.T) {
	testlog.Start(t)
	local, remote := net.Pipe()
	pr := newPeer(remote)
	defer remote.Close()

	p, err := Open(local, "unknown-header", 1)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer p.Close()

	in := protocol.Raw(999, []byte{0x78}, 5)
	go pr.send(t, 0, in)

	ch := p.Channel(0)
	ch.AwaitInput()
	got, ok := ch.Receive()
	if !ok || !got.Equal(in) {
		t.Fatalf("got %v,%v want %v", got, ok, in)
	}
}

func TestTruncatedInboundStopsReads(t *testing.T) {
	testlog.Start(t)
	local, remote := net.Pipe()

	p, err := Open(local, "truncated", 1)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	go func() {
		remote.Write([]byte{0x00, 0x00, 0x00, 0x65, 0x00, 0x00, 0x00})
		remote.Close()
	}()

	waitState(t, p.Selector(), StateStopped)
	p.Close()
}

func TestInvalidRoutingIsFatal(t *testing.T) {
	testlog.Start(t)
	local, remote := net.Pipe()
	pr := newPeer(remote)
	defer remote.Close()

	p, err := Open(local, "bad-routing", 2)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	go pr.send(t, 99, protocol.NewString("lost"))

	waitState(t, p.Selector(), StateStopped)
	p.Close()
}

func TestPollTimeoutClassification(t *testing.T) {
	testlog.Start(t)
	local, remote := net.Pipe()
	defer local.Close()
	defer remote.Close()

	local.SetReadDeadline(time.Now().Add(time.Millisecond))
	buf := make([]byte, 1)
	_, err := local.Read(buf)
	if err == nil {
		t.Fatalf("read on quiet pipe succeeded")
	}
	if !isPollTimeout(err) {
		t.Fatalf("deadline error not classified as poll timeout: %v", err)
	}
	if isPollTimeout(io.EOF) {
		t.Fatalf("io.EOF misclassified as poll timeout")
	}
	if isPollTimeout(errors.New("boom")) {
		t.Fatalf("arbitrary error misclassified as poll timeout")
	}
}
