package portal

import (
	"testing"
	"time"

	"github.com/danmuck/ttp/internal/protocol"
	"github.com/danmuck/ttp/internal/testutil/testlog"
)

func TestChannelFIFO(t *testing.T) {
	testlog.Start(t)
	ch := newChannel(0)
	for i := 0; i < 3; i++ {
		ch.put(protocol.NewInt(i))
	}
	for i := 0; i < 3; i++ {
		p, ok := ch.Receive()
		if !ok {
			t.Fatalf("receive %d: queue empty", i)
		}
		if string(p.Body) != protocol.NewInt(i).Format() {
			t.Fatalf("receive %d: got %v", i, p)
		}
	}
	if _, ok := ch.Receive(); ok {
		t.Fatalf("drained queue still yields packets")
	}
}

func TestChannelPeekDoesNotConsume(t *testing.T) {
	testlog.Start(t)
	ch := newChannel(0)
	if _, ok := ch.Peek(); ok {
		t.Fatalf("peek on empty queue succeeded")
	}
	ch.put(protocol.NewString("hello"))
	for i := 0; i < 2; i++ {
		p, ok := ch.Peek()
		if !ok || p.Format() != "hello" {
			t.Fatalf("peek %d: got %v,%v", i, p, ok)
		}
	}
	if ch.InputSize() != 1 {
		t.Fatalf("peek consumed the packet")
	}
}

func TestChannelSendNeverBlocks(t *testing.T) {
	testlog.Start(t)
	ch := newChannel(0)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			ch.Send(protocol.NewInt(i))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("send blocked")
	}
	if ch.OutputSize() != 1000 {
		t.Fatalf("outbound size=%d want=1000", ch.OutputSize())
	}
}

func TestAwaitOutputWakesOnDrain(t *testing.T) {
	testlog.Start(t)
	ch := newChannel(0)
	ch.Send(protocol.NewString("hello"))

	done := make(chan struct{})
	go func() {
		ch.AwaitOutput()
		close(done)
	}()

	select {
	case <-done:
		t.Fatalf("await returned before drain")
	case <-time.After(20 * time.Millisecond):
	}

	if _, ok := ch.get(); !ok {
		t.Fatalf("get found no packet")
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("await did not wake after drain")
	}
}

func TestAwaitInputWakesOnPut(t *testing.T) {
	testlog.Start(t)
	ch := newChannel(0)
	done := make(chan struct{})
	go func() {
		ch.AwaitInput()
		close(done)
	}()

	select {
	case <-done:
		t.Fatalf("await returned on empty queue")
	case <-time.After(20 * time.Millisecond):
	}

	ch.put(protocol.NewString("hello"))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("await did not wake after put")
	}
}

func TestAwaitReleasedOnClose(t *testing.T) {
	testlog.Start(t)
	ch := newChannel(0)
	ch.Send(protocol.NewString("pending"))

	output := make(chan struct{})
	input := make(chan struct{})
	go func() {
		ch.AwaitOutput()
		close(output)
	}()
	go func() {
		ch.AwaitInput()
		close(input)
	}()

	time.Sleep(20 * time.Millisecond)
	ch.close()

	for name, done := range map[string]chan struct{}{"output": output, "input": input} {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("%s waiter not released by close", name)
		}
	}
}

func TestCloseKeepsDeliveredPackets(t *testing.T) {
	testlog.Start(t)
	ch := newChannel(0)
	ch.put(protocol.NewString("late"))
	ch.close()
	p, ok := ch.Receive()
	if !ok || p.Format() != "late" {
		t.Fatalf("delivered packet lost on close: %v,%v", p, ok)
	}
}
