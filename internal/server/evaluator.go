package server

import "github.com/danmuck/ttp/internal/protocol"

// DisconnectFooter is the OP footer a client sends to request teardown. The
// acknowledging OK carries the same footer so the client knows the request
// was honored rather than rejected.
const DisconnectFooter = 'c'

// Verdict is an evaluator's decision for one request.
type Verdict struct {
	Response protocol.Packet
	// Forward asks the handler to also deliver the request on the data
	// channel. Ignored on singleplexed connections, which have no side
	// channel.
	Forward bool
	// Done closes the connection after the response is sent.
	Done bool
}

// Evaluator turns one request packet into a verdict. Implementations must be
// safe for concurrent use; one server shares its evaluator across every
// connection.
type Evaluator interface {
	Evaluate(req protocol.Packet) Verdict
}

// StandardEvaluator implements the demo exchange: datum packets are
// acknowledged and forwarded, the disconnect OP is honored, everything else
// is rejected.
type StandardEvaluator struct{}

func (StandardEvaluator) Evaluate(req protocol.Packet) Verdict {
	switch protocol.Header(req.Header) {
	case protocol.HeaderBoolean, protocol.HeaderInteger, protocol.HeaderDouble, protocol.HeaderString:
		return Verdict{
			Response: protocol.New(protocol.HeaderOK, "Received!", 0),
			Forward:  true,
		}
	case protocol.HeaderOp:
		if req.Footer == DisconnectFooter {
			return Verdict{
				Response: protocol.New(protocol.HeaderOK, "Disconnected.", DisconnectFooter),
				Done:     true,
			}
		}
	}
	return Verdict{Response: protocol.New(protocol.HeaderBad, "Invalid.", 0)}
}
