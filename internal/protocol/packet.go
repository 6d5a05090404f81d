// Package protocol implements the two wire dialects spoken by the game
// server: NUL-delimited XML session messages and %xt% extension frames.
// Decoding is routed by the first byte of a frame; both dialects produce
// the same Packet type so waiters and subscribers share one command
// namespace.
package protocol

import (
	"strings"

	gameerr "github.com/nmxmxh/empire-core/pkg/errors"
)

// Dialect identifies which wire layer a packet belongs to.
type Dialect string

const (
	DialectXML       Dialect = "xml"
	DialectExtension Dialect = "extension"
)

// Session-layer actions consumed during the handshake.
const (
	ActionAPIOK  = "apiOK"
	ActionRLU    = "rlu"
	ActionJoinOK = "joinOK"
	ActionLogOK  = "logOK"
	ActionLogKO  = "logKO"
)

// Extension commands the client consumes as responses or pushes.
const (
	CmdLogin         = "lli"
	CmdBigData       = "gbd"
	CmdMovements     = "gam"
	CmdMovementDelta = "mov"
	CmdArrival       = "atv"
	CmdAttackArrival = "ata"
	CmdCastleDetails = "dcl"
	CmdMapChunk      = "gaa"
	CmdAllianceChat  = "acm"
)

// Packet is one decoded wire unit. Immutable after construction: the
// dispatcher hands the same pointer to every subscriber and waiter.
type Packet struct {
	Dialect Dialect

	// Command routes the packet: the extension command id, or the XML
	// action string, so both dialects share one naming space.
	Command string

	// Extension fields.
	Zone      string
	Seq       int
	ErrorCode int
	Payload   any      // decoded JSON value, nil for positional bodies
	Tokens    []string // positional body tokens when Payload is nil

	// XML fields.
	Room    string // raw r attribute
	RawBody string // inner body markup
}

// IsJSON reports whether the packet carried a JSON body.
func (p *Packet) IsJSON() bool {
	return p.Payload != nil
}

// PayloadMap returns the payload as a JSON object, or nil.
func (p *Packet) PayloadMap() map[string]any {
	m, _ := p.Payload.(map[string]any)
	return m
}

// Decode routes a raw frame to the dialect decoder. Trailing NUL bytes
// are stripped first; they are a legacy artifact of the socket protocol
// and some servers still emit them over WebSocket.
func Decode(data []byte) (*Packet, error) {
	s := strings.TrimRight(string(data), "\x00")
	switch {
	case strings.HasPrefix(s, "<"):
		return DecodeXML(s)
	case strings.HasPrefix(s, "%xt%"):
		return DecodeExtension(s)
	case s == "":
		return nil, &gameerr.DecodeError{Reason: "empty frame"}
	default:
		return nil, &gameerr.DecodeError{Reason: "unknown dialect", Frame: truncate(s)}
	}
}

func truncate(s string) string {
	if len(s) > 120 {
		return s[:120] + "..."
	}
	return s
}
