package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nmxmxh/empire-core/internal/protocol"
	pkgjson "github.com/nmxmxh/empire-core/pkg/json"
)

func apply(t *testing.T, s *Store, command, payload string) {
	t.Helper()
	var v any
	require.NoError(t, pkgjson.UnmarshalFromString(payload, &v))
	s.Apply(&protocol.Packet{
		Dialect: protocol.DialectExtension,
		Zone:    "EmpireEx_21",
		Command: command,
		Seq:     1,
		Payload: v,
	})
}

func loginSnapshot(t *testing.T, s *Store) {
	t.Helper()
	apply(t, s, "gbd", `{
		"gpi": {"PID": 42, "N": "lord"},
		"gcu": {"C1": 1000, "C2": 50},
		"gxp": {"LVL": 30, "XP": 12345, "XPtNL": 20000, "LL": 2},
		"gal": {"AID": 9, "N": "Knights"},
		"gcl": {"C": [{"KID": 0, "AI": [
			{"AI": [10, 20, 0, 1001, 42, 0, 0, 0, 0, 0, "Home"]},
			{"AI": [55, 66, 0, 2002, 777, 0, 0, 0, 0, 0, "EnemyKeep"]}
		]}]}
	}`)
}

func TestBigDataSnapshot(t *testing.T) {
	s := NewStore(zaptest.NewLogger(t))
	loginSnapshot(t, s)

	p := s.Player()
	require.NotNil(t, p)
	assert.Equal(t, 42, p.ID)
	assert.Equal(t, "lord", p.Name)
	assert.Equal(t, int64(1000), p.Gold)
	assert.Equal(t, int64(50), p.Rubies)
	assert.Equal(t, 30, p.Level)
	assert.Equal(t, 2, p.LegendaryLevel)
	assert.Equal(t, int64(12345), p.XP)
	assert.Equal(t, int64(20000), p.XPToNext)
	assert.Equal(t, 9, p.AllianceID)
	assert.Equal(t, "Knights", p.AllianceName)
	assert.Equal(t, []int{1001}, p.CastleIDs)

	castles := s.Castles()
	require.Len(t, castles, 1, "areas owned by other players must be excluded")
	home := castles[0]
	assert.Equal(t, 1001, home.AreaID)
	assert.Equal(t, "Home", home.Name)
	assert.Equal(t, 10, home.X)
	assert.Equal(t, 20, home.Y)

	// A repeated snapshot must not duplicate anything.
	loginSnapshot(t, s)
	assert.Len(t, s.Castles(), 1)
}

func TestBigDataPlayerChangeResetsState(t *testing.T) {
	s := NewStore(zaptest.NewLogger(t))
	loginSnapshot(t, s)
	apply(t, s, "mov", `{"M": {"MID": 5, "T": 1, "D": 1, "PT": 0, "TT": 100}}`)
	require.Len(t, s.Movements(), 1)

	apply(t, s, "gbd", `{"gpi": {"PID": 43, "N": "other"}}`)

	p := s.Player()
	require.NotNil(t, p)
	assert.Equal(t, 43, p.ID)
	assert.Empty(t, s.Castles())
	assert.Empty(t, s.Movements())
}

func TestCastleDetailsEconomy(t *testing.T) {
	s := NewStore(zaptest.NewLogger(t))
	loginSnapshot(t, s)

	apply(t, s, "dcl", `{"C": [{"AI": [{
		"AID": 1001,
		"W": 1000, "S": 500, "F": 200,
		"gpa": {
			"MRW": 5000, "MRS": 4000, "MRF": 3000,
			"RS1": 120, "RS2": 80.5, "RS3": 60,
			"SS1": 400, "SS2": 300, "SS3": 200
		},
		"BD": [[25, 10], [4, 3]],
		"UN": {"620": 100, "608": 25}
	}]}]}`)

	castle := s.Castle(1001)
	require.NotNil(t, castle)
	res := castle.Resources
	assert.Equal(t, 1000.0, res.Wood)
	assert.Equal(t, 500.0, res.Stone)
	assert.Equal(t, 200.0, res.Food)
	assert.Equal(t, 5000, res.WoodCap)
	assert.Equal(t, 4000, res.StoneCap)
	assert.Equal(t, 3000, res.FoodCap)
	assert.Equal(t, 120.0, res.WoodRate)
	assert.Equal(t, 80.5, res.StoneRate)
	assert.Equal(t, 60.0, res.FoodRate)
	assert.Equal(t, 400, res.WoodSafe)

	assert.Equal(t, []Building{{ID: 25, Level: 10}, {ID: 4, Level: 3}}, castle.Buildings)
	assert.Equal(t, map[int]int{620: 100, 608: 25}, castle.Units)
}

func TestCastleDetailsBeforeCastleList(t *testing.T) {
	s := NewStore(zaptest.NewLogger(t))
	apply(t, s, "gbd", `{"gpi": {"PID": 42, "N": "lord"}}`)

	apply(t, s, "dcl", `{"C": [{"AI": [{"AID": 7007, "W": 10, "S": 20, "F": 30}]}]}`)

	castle := s.Castle(7007)
	require.NotNil(t, castle, "details may arrive before the castle list")
	assert.Equal(t, 10.0, castle.Resources.Wood)
}

const attackSnapshot = `{
	"M": [{
		"M": {
			"MID": 9001, "T": 1, "PT": 10, "TT": 600, "D": 0,
			"TID": 42, "OID": 777, "KID": 0,
			"TA": [0, 55, 66, 1001, 0, 0, 0, 0, 0, 0, "Home"],
			"SA": [0, 5, 6, 4004, 0, 0, 0, 0, 0, 0, "DarkKeep"]
		},
		"UM": {"620": 100},
		"GS": {"W": 0, "S": 0, "F": 0}
	}],
	"O": [
		{"OID": 777, "N": "attacker", "AN": "DarkAlliance"},
		{"OID": 42, "N": "lord", "AN": "Knights"}
	]
}`

func TestMovementSnapshotAlertsOnce(t *testing.T) {
	s := NewStore(zaptest.NewLogger(t))
	loginSnapshot(t, s)

	var alerts []*Movement
	s.OnIncomingAttack(func(m *Movement) { alerts = append(alerts, m) })

	apply(t, s, "gam", attackSnapshot)

	require.Len(t, alerts, 1)
	alert := alerts[0]
	assert.Equal(t, 9001, alert.ID)
	assert.Equal(t, "attacker", alert.SourcePlayerName)
	assert.Equal(t, "DarkAlliance", alert.SourceAllianceName)
	assert.Equal(t, "lord", alert.TargetPlayerName)
	assert.Equal(t, map[int]int{620: 100}, alert.Units)
	assert.Equal(t, 1001, alert.TargetAreaID)
	assert.Equal(t, 55, alert.TargetX)
	assert.Equal(t, 66, alert.TargetY)
	assert.Equal(t, "Home", alert.TargetName)
	assert.Equal(t, 4004, alert.SourceAreaID)
	assert.Equal(t, 590*time.Second, alert.TimeRemaining())

	attacks := s.IncomingAttacks()
	require.Len(t, attacks, 1)
	assert.Equal(t, 9001, attacks[0].ID)

	// The same movement in the next snapshot must not re-alert.
	apply(t, s, "gam", attackSnapshot)
	assert.Len(t, alerts, 1)
}

func TestMovementSnapshotPreservesCreatedAt(t *testing.T) {
	s := NewStore(zaptest.NewLogger(t))
	loginSnapshot(t, s)

	apply(t, s, "gam", attackSnapshot)
	first := s.Movement(9001)
	require.NotNil(t, first)

	time.Sleep(5 * time.Millisecond)
	apply(t, s, "gam", attackSnapshot)
	second := s.Movement(9001)
	require.NotNil(t, second)

	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.True(t, second.LastUpdated.After(first.LastUpdated) || second.LastUpdated.Equal(first.LastUpdated))
}

func TestRecallDetection(t *testing.T) {
	s := NewStore(zaptest.NewLogger(t))
	loginSnapshot(t, s)

	var recalled []*Movement
	s.OnMovementRecalled(func(m *Movement) { recalled = append(recalled, m) })

	apply(t, s, "gam", `{"M": [{"M": {"MID": 7, "T": 1, "PT": 0, "TT": 300, "D": 0, "OID": 777, "TID": 42}}]}`)
	require.Len(t, s.Movements(), 1)

	// The movement vanishes from the next snapshot without an arrival.
	apply(t, s, "gam", `{"M": []}`)

	require.Len(t, recalled, 1)
	assert.Equal(t, 7, recalled[0].ID)
	assert.Empty(t, s.Movements())
}

func TestArrivalIsNotARecall(t *testing.T) {
	s := NewStore(zaptest.NewLogger(t))
	loginSnapshot(t, s)

	var recalled []*Movement
	s.OnMovementRecalled(func(m *Movement) { recalled = append(recalled, m) })

	apply(t, s, "gam", `{"M": [{"M": {"MID": 7, "T": 1, "PT": 0, "TT": 300, "D": 0, "OID": 777, "TID": 42}}]}`)
	apply(t, s, "atv", `{"MID": 7}`)
	apply(t, s, "gam", `{"M": []}`)

	assert.Empty(t, recalled, "an arrived movement must not be reported as recalled")
	assert.Empty(t, s.Movements())
}

func TestAttackArrivalCleansUp(t *testing.T) {
	s := NewStore(zaptest.NewLogger(t))
	loginSnapshot(t, s)

	apply(t, s, "gam", attackSnapshot)
	require.NotNil(t, s.Movement(9001))

	apply(t, s, "ata", `{"MID": 9001}`)
	assert.Nil(t, s.Movement(9001))
}

func TestMovementDelta(t *testing.T) {
	s := NewStore(zaptest.NewLogger(t))
	loginSnapshot(t, s)

	var alerts []*Movement
	s.OnIncomingAttack(func(m *Movement) { alerts = append(alerts, m) })

	// New incoming attack alerts.
	apply(t, s, "mov", `{"M": {"MID": 11, "T": 1, "D": 0, "PT": 0, "TT": 200, "OID": 777, "TID": 42}}`)
	require.Len(t, alerts, 1)

	// Progress update on the same movement must not re-alert and must
	// keep the original creation time.
	before := s.Movement(11)
	time.Sleep(5 * time.Millisecond)
	apply(t, s, "mov", `{"M": {"MID": 11, "T": 1, "D": 0, "PT": 50, "TT": 200, "OID": 777, "TID": 42}}`)
	after := s.Movement(11)
	assert.Len(t, alerts, 1)
	assert.Equal(t, before.CreatedAt, after.CreatedAt)
	assert.Equal(t, 50, after.ProgressTime)

	// Outgoing movements never alert.
	apply(t, s, "mov", `{"M": {"MID": 12, "T": 1, "D": 1, "PT": 0, "TT": 100}}`)
	assert.Len(t, alerts, 1)

	// Returning armies never alert regardless of direction.
	apply(t, s, "mov", `{"M": {"MID": 13, "T": 11, "D": 0, "PT": 0, "TT": 100}}`)
	assert.Len(t, alerts, 1)

	// A bare movement dict without the M wrapper still parses.
	apply(t, s, "mov", `{"MID": 14, "T": 4, "D": 1, "PT": 0, "TT": 400}`)
	assert.NotNil(t, s.Movement(14))
}

func TestMapChunkUpsert(t *testing.T) {
	s := NewStore(zaptest.NewLogger(t))

	apply(t, s, "gaa", `{
		"KID": 0,
		"AI": [
			[1, 10, 20, 3001, 777, 5, 0, 0, 0, 0, "Tower"],
			[0, 11, 21, 3002]
		],
		"O": [{"OID": 777, "N": "owner", "AN": "Alliance", "AID": 9}]
	}`)

	require.Equal(t, 2, s.MapObjectCount())

	tower := s.MapObject(3001)
	require.NotNil(t, tower)
	assert.Equal(t, 1, tower.Type)
	assert.Equal(t, 10, tower.X)
	assert.Equal(t, 20, tower.Y)
	assert.Equal(t, 5, tower.Level)
	assert.Equal(t, 777, tower.OwnerID)
	assert.Equal(t, "owner", tower.OwnerName)
	assert.Equal(t, "Alliance", tower.AllianceName)
	assert.Equal(t, 9, tower.AllianceID)
	assert.Equal(t, "Tower", tower.Name)

	empty := s.MapObject(3002)
	require.NotNil(t, empty)
	assert.Equal(t, -1, empty.OwnerID, "short arrays mean unowned areas")

	// Rescan updates in place.
	apply(t, s, "gaa", `{"KID": 0, "AI": [[1, 10, 20, 3001, 777, 6]]}`)
	assert.Equal(t, 2, s.MapObjectCount())
	assert.Equal(t, 6, s.MapObject(3001).Level)
}

func TestCallbackHandleRemoval(t *testing.T) {
	s := NewStore(zaptest.NewLogger(t))
	loginSnapshot(t, s)

	calls := 0
	cb := s.OnIncomingAttack(func(*Movement) { calls++ })
	cb.Remove()
	cb.Remove() // second removal is a no-op

	apply(t, s, "gam", attackSnapshot)
	assert.Zero(t, calls)
}

func TestCallbackPanicIsContained(t *testing.T) {
	s := NewStore(zaptest.NewLogger(t))
	loginSnapshot(t, s)

	second := 0
	s.OnIncomingAttack(func(*Movement) { panic("boom") })
	s.OnIncomingAttack(func(*Movement) { second++ })

	assert.NotPanics(t, func() { apply(t, s, "gam", attackSnapshot) })
	assert.Equal(t, 1, second)
}

func TestCallbackMayQueryStore(t *testing.T) {
	s := NewStore(zaptest.NewLogger(t))
	loginSnapshot(t, s)

	var seen int
	s.OnIncomingAttack(func(*Movement) { seen = len(s.IncomingAttacks()) })

	apply(t, s, "gam", attackSnapshot)
	assert.Equal(t, 1, seen, "callbacks run outside the store lock")
}

func TestQueriesReturnSnapshots(t *testing.T) {
	s := NewStore(zaptest.NewLogger(t))
	loginSnapshot(t, s)
	apply(t, s, "gam", attackSnapshot)

	mov := s.Movement(9001)
	mov.Units[620] = 999999
	mov.ProgressTime = 599

	fresh := s.Movement(9001)
	assert.Equal(t, 100, fresh.Units[620])
	assert.Equal(t, 10, fresh.ProgressTime)

	castle := s.Castle(1001)
	castle.Name = "mutated"
	assert.Equal(t, "Home", s.Castle(1001).Name)
}

func TestNextArrival(t *testing.T) {
	s := NewStore(zaptest.NewLogger(t))
	loginSnapshot(t, s)

	apply(t, s, "mov", `{"M": {"MID": 1, "T": 1, "D": 1, "PT": 0, "TT": 500}}`)
	apply(t, s, "mov", `{"M": {"MID": 2, "T": 1, "D": 1, "PT": 400, "TT": 500}}`)

	next := s.NextArrival()
	require.NotNil(t, next)
	assert.Equal(t, 2, next.ID)
}
