// Package state maintains the client's view of the game world. A single
// Store consumes server packets through the dispatcher and exposes
// read-only snapshots; nothing outside the package mutates it.
package state

import (
	"time"
)

// Movement type codes observed on the wire. 11 is a returning army and
// is never hostile regardless of direction.
const (
	MovementTypeAttack    = 1
	MovementTypeSpy       = 2
	MovementTypeSupport   = 3
	MovementTypeTransport = 4
	MovementTypeReturn    = 11
)

// Movement direction relative to the local player.
const (
	DirectionIncoming = 0
	DirectionOutgoing = 1
)

// Player is the local account's identity and balances. Castle ownership
// lives on the Store; the Player snapshot carries the castle ids.
type Player struct {
	ID             int
	Name           string
	Level          int
	LegendaryLevel int
	XP             int64
	XPToNext       int64
	Gold           int64
	Rubies         int64
	AllianceID     int
	AllianceName   string
	CastleIDs      []int
}

// Castle is one owned area with its economy and garrison.
type Castle struct {
	AreaID    int
	KingdomID int
	Name      string
	X, Y      int
	Resources Resources
	Buildings []Building
	Units     map[int]int
}

// Building is a positional [id, level] pair from the wire.
type Building struct {
	ID    int
	Level int
}

// Resources carries balances, caps, hourly production and the share
// protected from plunder. Secondary resources only exist in some
// kingdoms and default to zero elsewhere.
type Resources struct {
	Wood  float64
	Stone float64
	Food  float64

	WoodCap  int
	StoneCap int
	FoodCap  int

	WoodRate  float64
	StoneRate float64
	FoodRate  float64

	WoodSafe  int
	StoneSafe int
	FoodSafe  int

	Iron  float64
	Glass float64
	Ash   float64
	Honey float64
	Mead  float64
	Beef  float64
}

// MapObject is one world-map area: castle, outpost, resource node or NPC
// target. Unowned areas carry OwnerID -1.
type MapObject struct {
	AreaID       int
	KingdomID    int
	X, Y         int
	Type         int
	Level        int
	OwnerID      int
	OwnerName    string
	AllianceID   int
	AllianceName string
	Name         string
	SeenAt       time.Time
}

// MovementResources is the cargo of a transport or returning army.
type MovementResources struct {
	Wood  int `mapstructure:"W"`
	Stone int `mapstructure:"S"`
	Food  int `mapstructure:"F"`
}

// Movement is one army underway. Wire fields keep their short names in
// tags; extracted fields are filled from the positional TA/SA arrays
// and the owner directory of the surrounding packet.
type Movement struct {
	ID             int   `mapstructure:"MID"`
	Type           int   `mapstructure:"T"`
	ProgressTime   int   `mapstructure:"PT"`
	TotalTime      int   `mapstructure:"TT"`
	Direction      int   `mapstructure:"D"`
	TargetPlayerID int   `mapstructure:"TID"`
	KingdomID      int   `mapstructure:"KID"`
	SourceID       int   `mapstructure:"SID"`
	OwnerID        int   `mapstructure:"OID"`
	HBW            int   `mapstructure:"HBW"`
	TargetArea     []any `mapstructure:"TA"`
	SourceArea     []any `mapstructure:"SA"`

	TargetAreaID int    `mapstructure:"-"`
	SourceAreaID int    `mapstructure:"-"`
	TargetX      int    `mapstructure:"-"`
	TargetY      int    `mapstructure:"-"`
	SourceX      int    `mapstructure:"-"`
	SourceY      int    `mapstructure:"-"`
	TargetName   string `mapstructure:"-"`
	SourceName   string `mapstructure:"-"`

	SourcePlayerName   string `mapstructure:"-"`
	SourceAllianceName string `mapstructure:"-"`
	TargetPlayerName   string `mapstructure:"-"`
	TargetAllianceName string `mapstructure:"-"`

	Units     map[int]int        `mapstructure:"-"`
	Resources *MovementResources `mapstructure:"-"`

	CreatedAt   time.Time `mapstructure:"-"`
	LastUpdated time.Time `mapstructure:"-"`
}

// IsAttack reports whether the movement is hostile: an attack or a spy
// run. Returning armies are never hostile.
func (m *Movement) IsAttack() bool {
	return m.Type == MovementTypeAttack || m.Type == MovementTypeSpy
}

// IsIncoming reports whether the movement heads toward the local player.
func (m *Movement) IsIncoming() bool {
	return m.Type != MovementTypeReturn && m.Direction == DirectionIncoming
}

// IsOutgoing reports whether the movement leaves the local player.
func (m *Movement) IsOutgoing() bool {
	return m.Type != MovementTypeReturn && m.Direction == DirectionOutgoing
}

// IsReturning reports whether the army is on its way home.
func (m *Movement) IsReturning() bool {
	return m.Type == MovementTypeReturn
}

// TimeRemaining is the clamped time until arrival.
func (m *Movement) TimeRemaining() time.Duration {
	rem := m.TotalTime - m.ProgressTime
	if rem < 0 {
		rem = 0
	}
	return time.Duration(rem) * time.Second
}

// ProgressPercent is the travelled share in 0..100.
func (m *Movement) ProgressPercent() float64 {
	if m.TotalTime <= 0 {
		return 0
	}
	return float64(m.ProgressTime) / float64(m.TotalTime) * 100
}

// Army is a castle garrison keyed by unit id.
type Army struct {
	CastleID int
	Units    map[int]int
}

func copyUnits(src map[int]int) map[int]int {
	if src == nil {
		return nil
	}
	dst := make(map[int]int, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func (m *Movement) clone() *Movement {
	cp := *m
	cp.TargetArea = append([]any(nil), m.TargetArea...)
	cp.SourceArea = append([]any(nil), m.SourceArea...)
	cp.Units = copyUnits(m.Units)
	if m.Resources != nil {
		res := *m.Resources
		cp.Resources = &res
	}
	return &cp
}

func (c *Castle) clone() *Castle {
	cp := *c
	cp.Buildings = append([]Building(nil), c.Buildings...)
	cp.Units = copyUnits(c.Units)
	return &cp
}

func (p *Player) clone() *Player {
	cp := *p
	cp.CastleIDs = append([]int(nil), p.CastleIDs...)
	return &cp
}
