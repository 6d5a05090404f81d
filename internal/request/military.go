package request

import (
	gameerr "github.com/nmxmxh/empire-core/pkg/errors"
)

// SendArmy marches troops from an owned castle to a target area. The
// unit map is wire unit id to count.
type SendArmy struct {
	SourceAreaID int
	TargetAreaID int
	KingdomID    int
	Action       TroopAction
	Units        map[int]int
}

func (SendArmy) Command() string { return "att" }

func (s SendArmy) Payload() (any, error) {
	if s.SourceAreaID <= 0 {
		return nil, &gameerr.ValidationError{Field: "source_area_id", Reason: "must be positive"}
	}
	if s.TargetAreaID <= 0 {
		return nil, &gameerr.ValidationError{Field: "target_area_id", Reason: "must be positive"}
	}
	action := s.Action
	if action == 0 {
		action = TroopActionAttack
	}
	units := make(map[int]int, len(s.Units))
	for id, count := range s.Units {
		if count > 0 {
			units[id] = count
		}
	}
	if len(units) == 0 {
		return nil, &gameerr.ValidationError{Field: "units", Reason: "at least one unit required"}
	}
	return map[string]any{
		"OID": s.SourceAreaID,
		"TID": s.TargetAreaID,
		"KID": s.KingdomID,
		"TT":  int(action),
		"UN":  units,
	}, nil
}

// RecallArmy turns a marching movement around.
type RecallArmy struct {
	MovementID int64
}

func (RecallArmy) Command() string { return "cam" }

func (r RecallArmy) Payload() (any, error) {
	if r.MovementID <= 0 {
		return nil, &gameerr.ValidationError{Field: "movement_id", Reason: "must be positive"}
	}
	return map[string]any{"MID": r.MovementID}, nil
}

// TransferResources hauls wood, stone and food between two areas the
// player can trade with.
type TransferResources struct {
	SourceAreaID int
	TargetAreaID int
	Wood         int
	Stone        int
	Food         int
}

func (TransferResources) Command() string { return "tra" }

func (t TransferResources) Payload() (any, error) {
	if t.SourceAreaID <= 0 {
		return nil, &gameerr.ValidationError{Field: "source_area_id", Reason: "must be positive"}
	}
	if t.TargetAreaID <= 0 {
		return nil, &gameerr.ValidationError{Field: "target_area_id", Reason: "must be positive"}
	}
	if t.Wood < 0 || t.Stone < 0 || t.Food < 0 {
		return nil, &gameerr.ValidationError{Field: "resources", Reason: "amounts must not be negative"}
	}
	if t.Wood+t.Stone+t.Food == 0 {
		return nil, &gameerr.ValidationError{Field: "resources", Reason: "at least one amount required"}
	}
	return map[string]any{
		"OID": t.SourceAreaID,
		"TID": t.TargetAreaID,
		"RES": map[string]int{"W": t.Wood, "S": t.Stone, "F": t.Food},
	}, nil
}

// DefenseSetup fetches the wall and moat defense configuration of a
// castle.
type DefenseSetup struct {
	CastleID int
}

func (DefenseSetup) Command() string { return "dfc" }

func (d DefenseSetup) Payload() (any, error) {
	if d.CastleID <= 0 {
		return nil, &gameerr.ValidationError{Field: "castle_id", Reason: "must be positive"}
	}
	return map[string]any{"CID": d.CastleID}, nil
}

// SupportOverview lists the stationed support troops across all owned
// castles.
type SupportOverview struct{}

func (SupportOverview) Command() string { return "sdi" }

func (SupportOverview) Payload() (any, error) { return map[string]any{}, nil }
