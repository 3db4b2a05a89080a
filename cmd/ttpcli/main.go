package main

import (
	"bufio"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/danmuck/ttp/internal/logging"
	"github.com/danmuck/ttp/internal/portal"
	"github.com/danmuck/ttp/internal/protocol"
	"github.com/danmuck/ttp/internal/server"
	"github.com/danmuck/ttp/internal/wsstream"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ttpcli: %v\n", err)
		os.Exit(1)
	}
}

// transferer is the request/response surface shared by both portal kinds.
type transferer interface {
	Transfer(req protocol.Packet) (protocol.Packet, error)
	Close() error
}

func run() error {
	addr := flag.String("addr", fmt.Sprintf("127.0.0.1:%d", portal.StandardPort), "server address")
	wsURL := flag.String("ws", "", "websocket URL, overrides -addr")
	direct := flag.Bool("direct", false, "singleplexed transfer instead of a multiplexed portal")
	channels := flag.Int("channels", 2, "channel count for multiplexed portals")
	flag.Parse()

	logging.ConfigureRuntime()

	var stream portal.Stream
	if *wsURL != "" {
		conn, err := wsstream.Dial(*wsURL)
		if err != nil {
			return err
		}
		stream = conn
	} else {
		conn, err := net.Dial("tcp", *addr)
		if err != nil {
			return err
		}
		stream = conn
	}

	var (
		t    transferer
		p    *portal.Portal
		err  error
		name = "ttpcli"
	)
	if *direct {
		t = portal.NewDirect(stream, name)
	} else {
		p, err = portal.Open(stream, name, *channels)
		if err != nil {
			stream.Close()
			return err
		}
		t = p
	}
	defer t.Close()

	fmt.Println("commands: bool|int|double|string <value>, raw <header> <body> <footer>, quit")
	sc := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !sc.Scan() {
			return sc.Err()
		}
		req, quit, err := parseLine(sc.Text())
		if err != nil {
			fmt.Fprintf(os.Stderr, "ttpcli: %v\n", err)
			continue
		}
		if req == nil {
			continue
		}

		resp, err := t.Transfer(*req)
		if err != nil {
			return err
		}
		fmt.Printf("<<< %v\n", resp)
		if p != nil {
			drainData(p)
		}
		if quit {
			return nil
		}
	}
}

// parseLine turns one input line into a request packet. A nil packet with
// nil error means the line was blank.
func parseLine(line string) (*protocol.Packet, bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, false, nil
	}
	cmd, args := fields[0], fields[1:]
	switch cmd {
	case "quit":
		req := protocol.New(protocol.HeaderOp, "disconnect", server.DisconnectFooter)
		return &req, true, nil
	case "bool":
		if len(args) != 1 {
			return nil, false, fmt.Errorf("usage: bool <true|false>")
		}
		v, err := strconv.ParseBool(args[0])
		if err != nil {
			return nil, false, fmt.Errorf("parse bool: %w", err)
		}
		req := protocol.NewBool(v)
		return &req, false, nil
	case "int":
		if len(args) != 1 {
			return nil, false, fmt.Errorf("usage: int <n>")
		}
		v, err := strconv.Atoi(args[0])
		if err != nil {
			return nil, false, fmt.Errorf("parse int: %w", err)
		}
		req := protocol.NewInt(v)
		return &req, false, nil
	case "double":
		if len(args) != 1 {
			return nil, false, fmt.Errorf("usage: double <x>")
		}
		v, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return nil, false, fmt.Errorf("parse double: %w", err)
		}
		req := protocol.NewDouble(v)
		return &req, false, nil
	case "string":
		req := protocol.NewString(strings.Join(args, " "))
		return &req, false, nil
	case "raw":
		if len(args) != 3 {
			return nil, false, fmt.Errorf("usage: raw <header> <body> <footer>")
		}
		header, err := strconv.ParseInt(args[0], 10, 32)
		if err != nil {
			return nil, false, fmt.Errorf("parse header: %w", err)
		}
		footer, err := strconv.ParseUint(args[2], 10, 16)
		if err != nil {
			return nil, false, fmt.Errorf("parse footer: %w", err)
		}
		req := protocol.Raw(int32(header), []byte(args[1]), uint16(footer))
		return &req, false, nil
	}
	return nil, false, fmt.Errorf("unknown command %q", cmd)
}

// drainData prints whatever the server pushed on the data channel so far.
func drainData(p *portal.Portal) {
	if p.ChannelCount() < 2 {
		return
	}
	ch := p.Channel(1)
	for {
		pkt, ok := ch.Receive()
		if !ok {
			return
		}
		fmt.Printf("ch1 <<< %v\n", pkt)
	}
}
