package request

import (
	gameerr "github.com/nmxmxh/empire-core/pkg/errors"
)

// Build places a new building on a free slot of a castle.
type Build struct {
	AreaID     int
	BuildingID int
	// Slot is the build position. Zero lets the server pick.
	Slot int
}

func (Build) Command() string { return "bui" }

func (b Build) Payload() (any, error) {
	if b.AreaID <= 0 {
		return nil, &gameerr.ValidationError{Field: "area_id", Reason: "must be positive"}
	}
	if b.BuildingID <= 0 {
		return nil, &gameerr.ValidationError{Field: "building_id", Reason: "must be positive"}
	}
	payload := map[string]any{"AID": b.AreaID, "BID": b.BuildingID}
	if b.Slot > 0 {
		payload["BTYP"] = b.Slot
	}
	return payload, nil
}

// CancelBuild aborts a running construction queue entry.
type CancelBuild struct {
	AreaID  int
	QueueID int
}

func (CancelBuild) Command() string { return "cbu" }

func (c CancelBuild) Payload() (any, error) {
	if c.AreaID <= 0 {
		return nil, &gameerr.ValidationError{Field: "area_id", Reason: "must be positive"}
	}
	if c.QueueID <= 0 {
		return nil, &gameerr.ValidationError{Field: "queue_id", Reason: "must be positive"}
	}
	return map[string]any{"AID": c.AreaID, "QID": c.QueueID}, nil
}

// SpeedUpBuild finishes a construction queue entry early.
type SpeedUpBuild struct {
	AreaID  int
	QueueID int
}

func (SpeedUpBuild) Command() string { return "sbu" }

func (s SpeedUpBuild) Payload() (any, error) {
	if s.AreaID <= 0 {
		return nil, &gameerr.ValidationError{Field: "area_id", Reason: "must be positive"}
	}
	if s.QueueID <= 0 {
		return nil, &gameerr.ValidationError{Field: "queue_id", Reason: "must be positive"}
	}
	return map[string]any{"AID": s.AreaID, "QID": s.QueueID}, nil
}

// Recruit queues units in a castle's barracks.
type Recruit struct {
	AreaID int
	UnitID int
	Count  int
}

func (Recruit) Command() string { return "tru" }

func (r Recruit) Payload() (any, error) {
	if r.AreaID <= 0 {
		return nil, &gameerr.ValidationError{Field: "area_id", Reason: "must be positive"}
	}
	if r.UnitID <= 0 {
		return nil, &gameerr.ValidationError{Field: "unit_id", Reason: "must be positive"}
	}
	if r.Count <= 0 {
		return nil, &gameerr.ValidationError{Field: "count", Reason: "must be positive"}
	}
	return map[string]any{"AID": r.AreaID, "UID": r.UnitID, "C": r.Count}, nil
}

// QueueProduction schedules tool or unit production in a workshop
// building slot.
type QueueProduction struct {
	CastleID   int
	BuildingID int
	UnitID     int
	Count      int
	SlotID     int
}

func (QueueProduction) Command() string { return "bup" }

func (q QueueProduction) Payload() (any, error) {
	if q.CastleID <= 0 {
		return nil, &gameerr.ValidationError{Field: "castle_id", Reason: "must be positive"}
	}
	if q.UnitID <= 0 {
		return nil, &gameerr.ValidationError{Field: "unit_id", Reason: "must be positive"}
	}
	if q.Count <= 0 {
		return nil, &gameerr.ValidationError{Field: "count", Reason: "must be positive"}
	}
	return map[string]any{
		"CID": q.CastleID,
		"BID": q.BuildingID,
		"UID": q.UnitID,
		"C":   q.Count,
		"LID": q.SlotID,
	}, nil
}

// ProductionQueues lists the running production queues of all castles.
type ProductionQueues struct{}

func (ProductionQueues) Command() string { return "spl" }

func (ProductionQueues) Payload() (any, error) { return map[string]any{}, nil }
