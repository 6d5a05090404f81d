package request

import (
	"github.com/mitchellh/mapstructure"

	"github.com/nmxmxh/empire-core/internal/protocol"
	gameerr "github.com/nmxmxh/empire-core/pkg/errors"
)

// Highscore fetches a page of a global ranking list, optionally
// centered on a search value such as a player name.
type Highscore struct {
	Kind RankingKind
	// ListID narrows kinds that have sub-lists. Zero omits it.
	ListID int
	// SearchValue centers the page. Empty sends "-1", which means the
	// page around the own rank.
	SearchValue string
}

func (Highscore) Command() string { return "hgh" }

func (h Highscore) Payload() (any, error) {
	if h.Kind <= 0 {
		return nil, &gameerr.ValidationError{Field: "kind", Reason: "must be a ranking kind"}
	}
	sv := h.SearchValue
	if sv == "" {
		sv = "-1"
	}
	payload := map[string]any{"LT": int(h.Kind), "SV": sv}
	if h.ListID > 0 {
		payload["LID"] = h.ListID
	}
	return payload, nil
}

// LocalRanking fetches the ranking page around a fixed rank offset.
type LocalRanking struct {
	Kind   RankingKind
	ListID int
	Rank   int
}

func (LocalRanking) Command() string { return "llsp" }

func (l LocalRanking) Payload() (any, error) {
	if l.Kind <= 0 {
		return nil, &gameerr.ValidationError{Field: "kind", Reason: "must be a ranking kind"}
	}
	if l.Rank < 0 {
		return nil, &gameerr.ValidationError{Field: "rank", Reason: "must not be negative"}
	}
	payload := map[string]any{"LT": int(l.Kind), "R": l.Rank}
	if l.ListID > 0 {
		payload["LID"] = l.ListID
	}
	return payload, nil
}

// RankingEntry is one row of a highscore list.
type RankingEntry struct {
	Rank         int
	Score        int64
	PlayerID     int64
	Name         string
	Level        int
	AllianceID   int64
	AllianceName string
}

// RankingPage is the parsed body of a ranking response.
type RankingPage struct {
	Kind     RankingKind
	OwnRank  int
	LastRank int
	Entries  []RankingEntry
}

type rankingBody struct {
	Kind     int   `mapstructure:"LT"`
	OwnRank  int   `mapstructure:"R"`
	LastRank int   `mapstructure:"LR"`
	Rows     []any `mapstructure:"L"`
}

type rankingPlayer struct {
	PlayerID     int64  `mapstructure:"OID"`
	Name         string `mapstructure:"N"`
	Level        int    `mapstructure:"L"`
	AllianceID   int64  `mapstructure:"AID"`
	AllianceName string `mapstructure:"AN"`
}

// parseRankingPage shapes hgh and llsp responses. Rows arrive in three
// layouts depending on the list: a flat [rank, score, name] triple, a
// [rank, score, playerObject] triple, or a keyed object carrying the
// same fields.
func parseRankingPage(pkt *protocol.Packet) (any, error) {
	body := pkt.PayloadMap()
	if body == nil {
		return nil, &gameerr.DecodeError{Reason: "ranking body is not an object", Frame: pkt.RawBody}
	}
	var rb rankingBody
	if err := weakDecode(body, &rb); err != nil {
		return nil, &gameerr.DecodeError{Reason: "ranking body: " + err.Error(), Frame: pkt.RawBody}
	}
	page := &RankingPage{
		Kind:     RankingKind(rb.Kind),
		OwnRank:  rb.OwnRank,
		LastRank: rb.LastRank,
		Entries:  make([]RankingEntry, 0, len(rb.Rows)),
	}
	for _, row := range rb.Rows {
		entry, ok := parseRankingRow(row)
		if !ok {
			continue
		}
		page.Entries = append(page.Entries, entry)
	}
	return page, nil
}

func parseRankingRow(row any) (RankingEntry, bool) {
	switch v := row.(type) {
	case []any:
		if len(v) < 3 {
			return RankingEntry{}, false
		}
		entry := RankingEntry{
			Rank:  int(toFloat(v[0])),
			Score: int64(toFloat(v[1])),
		}
		switch cell := v[2].(type) {
		case string:
			entry.Name = cell
		case map[string]any:
			var p rankingPlayer
			if err := weakDecode(cell, &p); err != nil {
				return RankingEntry{}, false
			}
			entry.PlayerID = p.PlayerID
			entry.Name = p.Name
			entry.Level = p.Level
			entry.AllianceID = p.AllianceID
			entry.AllianceName = p.AllianceName
		default:
			return RankingEntry{}, false
		}
		return entry, true
	case map[string]any:
		var p rankingPlayer
		if err := weakDecode(v, &p); err != nil {
			return RankingEntry{}, false
		}
		return RankingEntry{
			Rank:         int(toFloat(v["R"])),
			Score:        int64(toFloat(v["S"])),
			PlayerID:     p.PlayerID,
			Name:         p.Name,
			Level:        p.Level,
			AllianceID:   p.AllianceID,
			AllianceName: p.AllianceName,
		}, true
	default:
		return RankingEntry{}, false
	}
}

func weakDecode(input, target any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           target,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}
