package state

import (
	"sync"

	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"github.com/nmxmxh/empire-core/internal/protocol"
)

// Store is the single authority for world state. It is wired as a
// durable dispatcher subscription for every state-bearing command, so
// updates land before any waiter on the same packet resolves.
type Store struct {
	log *zap.Logger

	mu         sync.RWMutex
	player     *Player
	castles    map[int]*Castle
	mapObjects map[int]*MapObject
	movements  map[int]*Movement

	// Movement bookkeeping across full snapshots.
	previousMovementIDs map[int]bool
	arrivedMovementIDs  map[int]bool

	attackCallbacks *movementCallbackList
	recallCallbacks *movementCallbackList
}

func NewStore(log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		log:                 log.With(zap.String("component", "state")),
		castles:             make(map[int]*Castle),
		mapObjects:          make(map[int]*MapObject),
		movements:           make(map[int]*Movement),
		previousMovementIDs: make(map[int]bool),
		arrivedMovementIDs:  make(map[int]bool),
		attackCallbacks:     newMovementCallbackList(),
		recallCallbacks:     newMovementCallbackList(),
	}
}

// Commands returns every command the store consumes. The client wires
// one subscription per entry.
func Commands() []string {
	return []string{
		protocol.CmdBigData,
		protocol.CmdCastleDetails,
		protocol.CmdMovements,
		protocol.CmdMovementDelta,
		protocol.CmdArrival,
		protocol.CmdAttackArrival,
		protocol.CmdMapChunk,
	}
}

// OnIncomingAttack registers a handler for newly detected hostile
// movements. The handle removes it.
func (s *Store) OnIncomingAttack(fn func(*Movement)) *MovementCallback {
	return s.attackCallbacks.add(fn)
}

// OnMovementRecalled registers a handler for movements that vanished
// from a snapshot without an arrival packet.
func (s *Store) OnMovementRecalled(fn func(*Movement)) *MovementCallback {
	return s.recallCallbacks.add(fn)
}

// Apply folds one packet into the store. Each packet is applied
// atomically; readers never observe a half-applied update. Callbacks
// fire after the lock is released so a handler may query the store.
func (s *Store) Apply(pkt *protocol.Packet) {
	if pkt == nil || pkt.Dialect != protocol.DialectExtension {
		return
	}
	payload := pkt.PayloadMap()
	if payload == nil {
		return
	}

	var fire []deferredCallback
	s.mu.Lock()
	switch pkt.Command {
	case protocol.CmdBigData:
		s.applyBigData(payload)
	case protocol.CmdCastleDetails:
		s.applyCastleDetails(payload)
	case protocol.CmdMovements:
		fire = s.applyMovementSnapshot(payload)
	case protocol.CmdMovementDelta:
		fire = s.applyMovementDelta(payload)
	case protocol.CmdArrival, protocol.CmdAttackArrival:
		s.applyArrival(payload)
	case protocol.CmdMapChunk:
		s.applyMapChunk(payload)
	}
	s.mu.Unlock()

	for _, cb := range fire {
		cb.invoke(s.log)
	}
}

// ---- gbd: post-login world snapshot -------------------------------

type playerInfoData struct {
	ID   int    `mapstructure:"PID"`
	Name string `mapstructure:"N"`
}

type currencyData struct {
	Gold   int64 `mapstructure:"C1"`
	Rubies int64 `mapstructure:"C2"`
}

type experienceData struct {
	Level          int   `mapstructure:"LVL"`
	LegendaryLevel int   `mapstructure:"LL"`
	XP             int64 `mapstructure:"XP"`
	XPToNext       int64 `mapstructure:"XPtNL"`
}

type allianceData struct {
	ID   int    `mapstructure:"AID"`
	Name string `mapstructure:"N"`
}

func (s *Store) applyBigData(payload map[string]any) {
	if gpi, ok := payload["gpi"].(map[string]any); ok {
		var info playerInfoData
		if err := decode(gpi, &info); err == nil && info.ID != 0 {
			if s.player != nil && s.player.ID != info.ID {
				s.log.Info("player changed, resetting state",
					zap.Int("previous", s.player.ID),
					zap.Int("current", info.ID))
				s.resetLocked()
			}
			if s.player == nil {
				s.player = &Player{}
			}
			s.player.ID = info.ID
			if info.Name != "" {
				s.player.Name = info.Name
			}
		}
	}
	if s.player == nil {
		// Without an identity the rest of the snapshot has no anchor.
		s.log.Warn("big data payload without player info")
		return
	}

	if gcu, ok := payload["gcu"].(map[string]any); ok {
		var cur currencyData
		if err := decode(gcu, &cur); err == nil {
			s.player.Gold = cur.Gold
			s.player.Rubies = cur.Rubies
		}
	}
	if gxp, ok := payload["gxp"].(map[string]any); ok {
		var exp experienceData
		if err := decode(gxp, &exp); err == nil {
			s.player.Level = exp.Level
			s.player.LegendaryLevel = exp.LegendaryLevel
			s.player.XP = exp.XP
			s.player.XPToNext = exp.XPToNext
		}
	}
	if gal, ok := payload["gal"].(map[string]any); ok {
		var al allianceData
		if err := decode(gal, &al); err == nil && al.ID != 0 {
			s.player.AllianceID = al.ID
			s.player.AllianceName = al.Name
		}
	}

	if gcl, ok := payload["gcl"].(map[string]any); ok {
		s.applyCastleList(gcl)
	}
}

// applyCastleList walks gcl.C[].AI[].AI positional arrays and keeps the
// areas owned by the local player. Layout: [0]=x [1]=y [3]=area id
// [4]=owner id [10]=name.
func (s *Store) applyCastleList(gcl map[string]any) {
	kingdoms, _ := gcl["C"].([]any)
	parsed := 0
	for _, rawKingdom := range kingdoms {
		kData, ok := rawKingdom.(map[string]any)
		if !ok {
			continue
		}
		kid := intAt(kData["KID"])
		areaInfos, _ := kData["AI"].([]any)
		for _, rawEntry := range areaInfos {
			entry, ok := rawEntry.(map[string]any)
			if !ok {
				continue
			}
			ai, ok := entry["AI"].([]any)
			if !ok || len(ai) <= 10 {
				continue
			}
			areaID := intAt(ai[3])
			ownerID := intAt(ai[4])
			if areaID == 0 || ownerID != s.player.ID {
				continue
			}
			castle := s.castles[areaID]
			if castle == nil {
				castle = &Castle{AreaID: areaID, Units: make(map[int]int)}
				s.castles[areaID] = castle
			}
			castle.KingdomID = kid
			castle.X = intAt(ai[0])
			castle.Y = intAt(ai[1])
			castle.Name = stringAt(ai[10])
			parsed++
		}
	}
	s.player.CastleIDs = s.castleIDsLocked()
	if parsed > 0 {
		s.log.Info("parsed castles", zap.Int("count", parsed))
	}
}

// ---- dcl: detailed castle economy ---------------------------------

type castleDetailsData struct {
	AreaID     int            `mapstructure:"AID"`
	KingdomID  int            `mapstructure:"KID"`
	Wood       float64        `mapstructure:"W"`
	Stone      float64        `mapstructure:"S"`
	Food       float64        `mapstructure:"F"`
	Iron       float64        `mapstructure:"I"`
	Glass      float64        `mapstructure:"G"`
	Ash        float64        `mapstructure:"A"`
	Honey      float64        `mapstructure:"HO"`
	Mead       float64        `mapstructure:"ME"`
	Beef       float64        `mapstructure:"BF"`
	Production map[string]any `mapstructure:"gpa"`
	Buildings  []any          `mapstructure:"BD"`
	Units      map[int]int    `mapstructure:"UN"`
}

type productionData struct {
	WoodCap   int     `mapstructure:"MRW"`
	StoneCap  int     `mapstructure:"MRS"`
	FoodCap   int     `mapstructure:"MRF"`
	WoodRate  float64 `mapstructure:"RS1"`
	StoneRate float64 `mapstructure:"RS2"`
	FoodRate  float64 `mapstructure:"RS3"`
	WoodSafe  int     `mapstructure:"SS1"`
	StoneSafe int     `mapstructure:"SS2"`
	FoodSafe  int     `mapstructure:"SS3"`
}

func (s *Store) applyCastleDetails(payload map[string]any) {
	kingdoms, _ := payload["C"].([]any)
	for _, rawKingdom := range kingdoms {
		kData, ok := rawKingdom.(map[string]any)
		if !ok {
			continue
		}
		areaInfos, _ := kData["AI"].([]any)
		for _, rawCastle := range areaInfos {
			castleMap, ok := rawCastle.(map[string]any)
			if !ok {
				continue
			}
			var details castleDetailsData
			if err := decode(castleMap, &details); err != nil {
				s.log.Debug("skipping unparseable castle details", zap.Error(err))
				continue
			}
			if details.AreaID == 0 {
				continue
			}
			castle := s.castles[details.AreaID]
			if castle == nil {
				// dcl can arrive before gcl on some servers.
				castle = &Castle{AreaID: details.AreaID, Units: make(map[int]int)}
				s.castles[details.AreaID] = castle
			}
			if details.KingdomID != 0 {
				castle.KingdomID = details.KingdomID
			}

			res := &castle.Resources
			res.Wood = details.Wood
			res.Stone = details.Stone
			res.Food = details.Food
			res.Iron = details.Iron
			res.Glass = details.Glass
			res.Ash = details.Ash
			res.Honey = details.Honey
			res.Mead = details.Mead
			res.Beef = details.Beef

			if details.Production != nil {
				var prod productionData
				if err := decode(details.Production, &prod); err == nil {
					res.WoodCap = prod.WoodCap
					res.StoneCap = prod.StoneCap
					res.FoodCap = prod.FoodCap
					res.WoodRate = prod.WoodRate
					res.StoneRate = prod.StoneRate
					res.FoodRate = prod.FoodRate
					res.WoodSafe = prod.WoodSafe
					res.StoneSafe = prod.StoneSafe
					res.FoodSafe = prod.FoodSafe
				}
			}

			if len(details.Buildings) > 0 {
				castle.Buildings = castle.Buildings[:0]
				for _, rawBuilding := range details.Buildings {
					pair, ok := rawBuilding.([]any)
					if !ok || len(pair) < 2 {
						continue
					}
					castle.Buildings = append(castle.Buildings, Building{
						ID:    intAt(pair[0]),
						Level: intAt(pair[1]),
					})
				}
			}
			if len(details.Units) > 0 {
				castle.Units = copyUnits(details.Units)
			}
		}
	}
	if s.player != nil {
		s.player.CastleIDs = s.castleIDsLocked()
	}
}

func (s *Store) applyArrival(payload map[string]any) {
	mid := intAt(payload["MID"])
	if mid == 0 {
		return
	}
	s.arrivedMovementIDs[mid] = true
	delete(s.movements, mid)
	delete(s.previousMovementIDs, mid)
}

func (s *Store) resetLocked() {
	s.castles = make(map[int]*Castle)
	s.mapObjects = make(map[int]*MapObject)
	s.movements = make(map[int]*Movement)
	s.previousMovementIDs = make(map[int]bool)
	s.arrivedMovementIDs = make(map[int]bool)
	s.player = nil
}

func (s *Store) castleIDsLocked() []int {
	ids := make([]int, 0, len(s.castles))
	for id := range s.castles {
		ids = append(ids, id)
	}
	return ids
}

// ---- decode helpers -----------------------------------------------

// decode maps a JSON object onto a tagged struct. Weak typing absorbs
// the float64 numbers and stringly keyed unit maps of the wire format.
func decode(src, dst any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           dst,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(src)
}

func intAt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}

func stringAt(v any) string {
	s, _ := v.(string)
	return s
}

// ---- callbacks ----------------------------------------------------

// MovementCallback is the removal handle for a registered handler.
type MovementCallback struct {
	id   string
	list *movementCallbackList
}

// Remove unregisters the handler. Removing twice is a no-op.
func (c *MovementCallback) Remove() {
	if c != nil && c.list != nil {
		c.list.remove(c.id)
	}
}

type movementCallbackItem struct {
	id string
	fn func(*Movement)
}

type movementCallbackList struct {
	mu    sync.Mutex
	items []movementCallbackItem
}

func newMovementCallbackList() *movementCallbackList {
	return &movementCallbackList{}
}

func (l *movementCallbackList) add(fn func(*Movement)) *MovementCallback {
	cb := &MovementCallback{id: uuid.NewString(), list: l}
	l.mu.Lock()
	l.items = append(l.items, movementCallbackItem{id: cb.id, fn: fn})
	l.mu.Unlock()
	return cb
}

func (l *movementCallbackList) remove(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, item := range l.items {
		if item.id == id {
			l.items = append(l.items[:i], l.items[i+1:]...)
			return
		}
	}
}

func (l *movementCallbackList) snapshot() []func(*Movement) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fns := make([]func(*Movement), len(l.items))
	for i, item := range l.items {
		fns[i] = item.fn
	}
	return fns
}

// deferredCallback is queued during Apply and invoked after the store
// lock is released, so handlers can call query methods.
type deferredCallback struct {
	name     string
	fn       func(*Movement)
	movement *Movement
}

func (c deferredCallback) invoke(log *zap.Logger) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("state callback panicked",
				zap.String("callback", c.name),
				zap.Any("panic", r))
		}
	}()
	c.fn(c.movement)
}
