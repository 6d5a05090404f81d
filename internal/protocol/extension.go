package protocol

import (
	"strconv"
	"strings"

	gameerr "github.com/nmxmxh/empire-core/pkg/errors"
	pkgjson "github.com/nmxmxh/empire-core/pkg/json"
)

// DecodeExtension parses a frame of the form
// %xt%<zone>%<command>%<seq>%<body...>%.
//
// The body is ambiguous on the wire: some commands put an integer status
// code in front of the JSON document, some reply with bare JSON, some
// with a lone status, and a few with positional tokens. The rule applied
// here: a token directly after the sequence number is treated as the
// status code only when it parses as an integer AND a later token opens
// a JSON document; otherwise the status defaults to zero and an
// "error_code" field inside the JSON object wins when present.
func DecodeExtension(s string) (*Packet, error) {
	if !strings.HasPrefix(s, "%xt%") {
		return nil, &gameerr.DecodeError{Reason: "not an extension frame", Frame: truncate(s)}
	}
	parts := strings.Split(s, "%")
	// parts[0]="" parts[1]="xt" parts[2]=zone parts[3]=command parts[4]=seq
	if len(parts) < 6 {
		return nil, &gameerr.DecodeError{Reason: "short extension frame", Frame: truncate(s)}
	}
	seq, err := strconv.Atoi(parts[4])
	if err != nil {
		return nil, &gameerr.DecodeError{Reason: "non-numeric sequence token", Frame: truncate(s)}
	}
	pkt := &Packet{
		Dialect: DialectExtension,
		Zone:    parts[2],
		Command: parts[3],
		Seq:     seq,
	}

	body := parts[5:]
	if n := len(body); n > 0 && body[n-1] == "" {
		body = body[:n-1] // frame terminator
	}
	if len(body) == 0 {
		return pkt, nil
	}

	first := strings.TrimSpace(body[0])
	firstInt, firstErr := strconv.Atoi(first)
	switch {
	case isJSONStart(first):
		if err := decodeJSONBody(pkt, body); err != nil {
			return nil, err
		}
	case firstErr == nil && len(body) >= 2 && isJSONStart(strings.TrimSpace(body[1])):
		pkt.ErrorCode = firstInt
		if err := decodeJSONBody(pkt, body[1:]); err != nil {
			return nil, err
		}
	case firstErr == nil && len(body) == 1:
		pkt.ErrorCode = firstInt
	default:
		// Positional body. The status position varies per command, so
		// a leading integer is recorded as the code but the full token
		// list is kept for the caller.
		if firstErr == nil {
			pkt.ErrorCode = firstInt
		}
		pkt.Tokens = body
	}
	return pkt, nil
}

// decodeJSONBody reassembles the remaining tokens (JSON text may itself
// contain percent signs, e.g. escaped chat content) and unmarshals.
func decodeJSONBody(pkt *Packet, body []string) error {
	raw := strings.Join(body, "%")
	var v any
	if err := pkgjson.UnmarshalFromString(raw, &v); err != nil {
		return &gameerr.DecodeError{Reason: "malformed json body", Frame: truncate(raw)}
	}
	pkt.Payload = v
	if m, ok := v.(map[string]any); ok {
		if code, ok := numberField(m, "error_code"); ok {
			pkt.ErrorCode = code
		}
	}
	return nil
}

func numberField(m map[string]any, key string) (int, bool) {
	f, ok := m[key].(float64)
	if !ok {
		return 0, false
	}
	return int(f), true
}

func isJSONStart(s string) bool {
	return strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[")
}

// EncodeExtension builds an outbound frame with a JSON body. A nil
// payload encodes as the empty object, which is what parameterless
// commands expect.
func EncodeExtension(zone, command string, seq int, payload any) (string, error) {
	var body string
	switch v := payload.(type) {
	case nil:
		body = "{}"
	case string:
		body = v // pre-encoded
	default:
		s, err := pkgjson.MarshalToString(v)
		if err != nil {
			return "", gameerr.Wrap(err, "encode "+command+" payload")
		}
		body = s
	}
	return "%xt%" + zone + "%" + command + "%" + strconv.Itoa(seq) + "%" + body + "%", nil
}

// EncodeExtensionTokens builds an outbound frame from positional tokens.
func EncodeExtensionTokens(zone, command string, seq int, tokens ...string) string {
	var b strings.Builder
	b.WriteString("%xt%")
	b.WriteString(zone)
	b.WriteString("%")
	b.WriteString(command)
	b.WriteString("%")
	b.WriteString(strconv.Itoa(seq))
	b.WriteString("%")
	for _, t := range tokens {
		b.WriteString(t)
		b.WriteString("%")
	}
	return b.String()
}
