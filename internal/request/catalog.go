package request

import (
	gameerr "github.com/nmxmxh/empire-core/pkg/errors"
)

// TroopAction selects what a marching army does on arrival.
type TroopAction int

const (
	TroopActionAttack TroopAction = 1
	TroopActionScout  TroopAction = 2
)

// HelpKind is the alliance help category.
type HelpKind int

const (
	HelpHeal    HelpKind = 2
	HelpRepair  HelpKind = 3
	HelpRecruit HelpKind = 6
)

// RankingKind selects a highscore list.
type RankingKind int

const (
	RankingPlayerHonor RankingKind = 5
	RankingPlayerMight RankingKind = 6
)

// Raw sends an arbitrary command with a caller-supplied body. It is the
// escape hatch for commands the catalog does not model.
type Raw struct {
	Cmd  string
	Body any
}

func (r Raw) Command() string { return r.Cmd }

func (r Raw) Payload() (any, error) {
	if r.Cmd == "" {
		return nil, &gameerr.ValidationError{Field: "command", Reason: "must not be empty"}
	}
	if r.Body == nil {
		return map[string]any{}, nil
	}
	return r.Body, nil
}

// Movements polls the server for the current movement snapshot. The
// response also flows through the state store.
type Movements struct{}

func (Movements) Command() string { return "gam" }

func (Movements) Payload() (any, error) { return map[string]any{}, nil }

// MapChunk asks for all map areas inside one chunk rectangle.
type MapChunk struct {
	KingdomID int
	X1, Y1    int
	X2, Y2    int
}

func (MapChunk) Command() string { return "gaa" }

func (m MapChunk) Payload() (any, error) {
	if m.X2 < m.X1 || m.Y2 < m.Y1 {
		return nil, &gameerr.ValidationError{Field: "bounds", Reason: "second corner precedes first"}
	}
	return map[string]any{
		"KID": m.KingdomID,
		"AX1": m.X1, "AY1": m.Y1,
		"AX2": m.X2, "AY2": m.Y2,
	}, nil
}

// CastleDetails asks for the full economy and garrison snapshot of one
// owned castle.
type CastleDetails struct {
	AreaID    int
	KingdomID int
}

func (CastleDetails) Command() string { return "dcl" }

func (c CastleDetails) Payload() (any, error) {
	if c.AreaID <= 0 {
		return nil, &gameerr.ValidationError{Field: "area_id", Reason: "must be positive"}
	}
	return map[string]any{"CID": c.AreaID, "KID": c.KingdomID}, nil
}

// PlayerInfo fetches the public profile for a player id.
type PlayerInfo struct {
	PlayerID int64
}

func (PlayerInfo) Command() string { return "gpi" }

func (p PlayerInfo) Payload() (any, error) {
	if p.PlayerID <= 0 {
		return nil, &gameerr.ValidationError{Field: "player_id", Reason: "must be positive"}
	}
	return map[string]any{"PID": p.PlayerID}, nil
}

// PlayerDetails fetches the extended profile, including castle
// positions, for a player id.
type PlayerDetails struct {
	PlayerID int64
}

func (PlayerDetails) Command() string { return "gdi" }

func (p PlayerDetails) Payload() (any, error) {
	if p.PlayerID <= 0 {
		return nil, &gameerr.ValidationError{Field: "player_id", Reason: "must be positive"}
	}
	return map[string]any{"PID": p.PlayerID}, nil
}

// QuestReward collects the reward of a completed quest.
type QuestReward struct {
	QuestID int
}

func (QuestReward) Command() string { return "cqr" }

func (q QuestReward) Payload() (any, error) {
	if q.QuestID <= 0 {
		return nil, &gameerr.ValidationError{Field: "quest_id", Reason: "must be positive"}
	}
	return map[string]any{"QID": q.QuestID}, nil
}
