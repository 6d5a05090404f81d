package request

import (
	"strings"
	"time"

	"github.com/nmxmxh/empire-core/internal/protocol"
	gameerr "github.com/nmxmxh/empire-core/pkg/errors"
)

// SendChat posts a message to the alliance chat. The text is escaped
// for the wire on the way out.
type SendChat struct {
	Text string
}

func (SendChat) Command() string { return "acm" }

func (s SendChat) Payload() (any, error) {
	if strings.TrimSpace(s.Text) == "" {
		return nil, &gameerr.ValidationError{Field: "text", Reason: "must not be empty"}
	}
	return map[string]any{"M": protocol.EncodeChatText(s.Text)}, nil
}

// ChatLog fetches the recent alliance chat backlog.
type ChatLog struct{}

func (ChatLog) Command() string { return "acl" }

func (ChatLog) Payload() (any, error) { return map[string]any{}, nil }

// AllianceInfo fetches the public profile of an alliance.
type AllianceInfo struct {
	AllianceID int64
}

func (AllianceInfo) Command() string { return "gia" }

func (a AllianceInfo) Payload() (any, error) {
	if a.AllianceID <= 0 {
		return nil, &gameerr.ValidationError{Field: "alliance_id", Reason: "must be positive"}
	}
	return map[string]any{"AID": a.AllianceID}, nil
}

// HelpMember contributes to one open help request of an alliance
// member.
type HelpMember struct {
	PlayerID int64
	CastleID int
	Kind     HelpKind
}

func (HelpMember) Command() string { return "ahc" }

func (h HelpMember) Payload() (any, error) {
	if h.PlayerID <= 0 {
		return nil, &gameerr.ValidationError{Field: "player_id", Reason: "must be positive"}
	}
	if h.Kind <= 0 {
		return nil, &gameerr.ValidationError{Field: "kind", Reason: "must be a help kind"}
	}
	return map[string]any{"PID": h.PlayerID, "CID": h.CastleID, "HT": int(h.Kind)}, nil
}

// HelpAll contributes to every open help request at once.
type HelpAll struct{}

func (HelpAll) Command() string { return "aha" }

func (HelpAll) Payload() (any, error) { return map[string]any{}, nil }

// AskHelp opens a help request for one of the player's own castles.
type AskHelp struct {
	CastleID int
	Kind     HelpKind
	// BuildingID narrows repair help to one building. Zero omits it.
	BuildingID int
}

func (AskHelp) Command() string { return "ahr" }

func (a AskHelp) Payload() (any, error) {
	if a.CastleID <= 0 {
		return nil, &gameerr.ValidationError{Field: "castle_id", Reason: "must be positive"}
	}
	if a.Kind <= 0 {
		return nil, &gameerr.ValidationError{Field: "kind", Reason: "must be a help kind"}
	}
	payload := map[string]any{"CID": a.CastleID, "HT": int(a.Kind)}
	if a.BuildingID > 0 {
		payload["BID"] = a.BuildingID
	}
	return payload, nil
}

// ChatMessage is one alliance chat line, already unescaped.
type ChatMessage struct {
	PlayerID int64
	Name     string
	Text     string
	SentAt   time.Time
}

type chatRow struct {
	PlayerID  int64  `mapstructure:"PID"`
	Name      string `mapstructure:"CN"`
	AltName   string `mapstructure:"N"`
	Text      string `mapstructure:"MT"`
	AltText   string `mapstructure:"M"`
	Timestamp int64  `mapstructure:"T"`
}

// parseChatLog shapes the acl backlog into chat messages, newest last.
func parseChatLog(pkt *protocol.Packet) (any, error) {
	body := pkt.PayloadMap()
	if body == nil {
		return nil, &gameerr.DecodeError{Reason: "chat log body is not an object", Frame: pkt.RawBody}
	}
	rows, _ := body["CL"].([]any)
	messages := make([]ChatMessage, 0, len(rows))
	for _, row := range rows {
		msg, ok := parseChatRow(row)
		if !ok {
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// ParseChatMessage shapes a single acm push into a chat message.
func ParseChatMessage(pkt *protocol.Packet) (ChatMessage, bool) {
	body := pkt.PayloadMap()
	if body == nil {
		return ChatMessage{}, false
	}
	if inner, ok := body["CM"].(map[string]any); ok {
		return parseChatRow(inner)
	}
	return parseChatRow(body)
}

func parseChatRow(row any) (ChatMessage, bool) {
	var cr chatRow
	if err := weakDecode(row, &cr); err != nil {
		return ChatMessage{}, false
	}
	msg := ChatMessage{PlayerID: cr.PlayerID, Name: cr.Name, Text: cr.Text}
	if msg.Name == "" {
		msg.Name = cr.AltName
	}
	if msg.Text == "" {
		msg.Text = cr.AltText
	}
	if msg.Text == "" && msg.Name == "" {
		return ChatMessage{}, false
	}
	msg.Text = protocol.DecodeChatText(msg.Text)
	if cr.Timestamp > 0 {
		msg.SentAt = time.Unix(cr.Timestamp, 0)
	}
	return msg, true
}

// HelpOverview is the aha response: how many requests were served and
// the raw per-request entries.
type HelpOverview struct {
	Count   int              `mapstructure:"HC"`
	Entries []map[string]any `mapstructure:"E"`
}

func parseHelpOverview(pkt *protocol.Packet) (any, error) {
	body := pkt.PayloadMap()
	if body == nil {
		return nil, &gameerr.DecodeError{Reason: "help body is not an object", Frame: pkt.RawBody}
	}
	var overview HelpOverview
	if err := weakDecode(body, &overview); err != nil {
		return nil, &gameerr.DecodeError{Reason: "help body: " + err.Error(), Frame: pkt.RawBody}
	}
	return &overview, nil
}
