package protocol

import (
	"fmt"
	"strings"

	gameerr "github.com/nmxmxh/empire-core/pkg/errors"
)

// DecodeXML parses a session-layer message of the form
// <msg t='sys'><body action='X' r='R'>...</body></msg>.
// The dialect is not well-formed XML in general (attribute quoting and
// CDATA usage vary by server build), so this is a string scanner rather
// than an xml.Decoder.
func DecodeXML(s string) (*Packet, error) {
	action, ok := scanAttr(s, "action")
	if !ok {
		return nil, &gameerr.DecodeError{Reason: "xml frame without action", Frame: truncate(s)}
	}
	room, _ := scanAttr(s, "r")

	body := ""
	if open := strings.Index(s, "<body"); open >= 0 {
		if gt := strings.Index(s[open:], ">"); gt >= 0 {
			rest := s[open+gt+1:]
			if end := strings.LastIndex(rest, "</body>"); end >= 0 {
				body = rest[:end]
			}
		}
	}

	return &Packet{
		Dialect: DialectXML,
		Command: action,
		Room:    room,
		RawBody: body,
	}, nil
}

// scanAttr finds attr='value' or attr="value" and returns the value.
func scanAttr(s, attr string) (string, bool) {
	needle := attr + "="
	for from := 0; ; {
		i := strings.Index(s[from:], needle)
		if i < 0 {
			return "", false
		}
		i += from
		// Reject substring hits such as "action=" matching "tion=".
		if i > 0 {
			prev := s[i-1]
			if prev != ' ' && prev != '\t' {
				from = i + len(needle)
				continue
			}
		}
		rest := s[i+len(needle):]
		if len(rest) == 0 {
			return "", false
		}
		q := rest[0]
		if q != '\'' && q != '"' {
			from = i + len(needle)
			continue
		}
		end := strings.IndexByte(rest[1:], q)
		if end < 0 {
			return "", false
		}
		return rest[1 : 1+end], true
	}
}

// EncodeXML builds a session-layer message. The sender must not append
// a NUL terminator; the WebSocket framing replaces it.
func EncodeXML(action, room, inner string) string {
	return fmt.Sprintf("<msg t='sys'><body action='%s' r='%s'>%s</body></msg>", action, room, inner)
}

// VersionCheckMessage is handshake step one.
func VersionCheckMessage(version string) string {
	return EncodeXML("verChk", "0", fmt.Sprintf("<ver v='%s' />", version))
}

// ZoneLoginMessage is handshake step two. The nick is an empty CDATA
// section and the pword carries the legacy client marker; the real
// credentials travel later inside the lli extension payload.
func ZoneLoginMessage(zone string) string {
	inner := fmt.Sprintf("<login z='%s'><nick><![CDATA[]]></nick><pword><![CDATA[undefined%%en%%0]]></pword></login>", zone)
	return EncodeXML("login", "0", inner)
}

// AutoJoinMessage is handshake step three, sent with room id -1.
func AutoJoinMessage() string {
	return EncodeXML("autoJoin", "-1", "")
}
