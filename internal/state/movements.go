package state

import (
	"time"

	"go.uber.org/zap"

	"github.com/nmxmxh/empire-core/pkg/metrics"
)

type ownerEntry struct {
	Name         string `mapstructure:"N"`
	AllianceName string `mapstructure:"AN"`
	AllianceID   int    `mapstructure:"AID"`
}

// applyMovementSnapshot folds a full gam listing. The server pushes gam
// unsolicited for alliance-visible attacks, so new hostile movements
// alert here without an incoming filter; disappearance without a prior
// arrival packet is a recall.
func (s *Store) applyMovementSnapshot(payload map[string]any) []deferredCallback {
	var fire []deferredCallback
	now := time.Now()

	owners := parseOwnerDirectory(payload["O"])
	currentIDs := make(map[int]bool)

	wrappers, _ := payload["M"].([]any)
	for _, rawWrapper := range wrappers {
		wrapper, ok := rawWrapper.(map[string]any)
		if !ok {
			continue
		}
		mData, ok := wrapper["M"].(map[string]any)
		if !ok {
			continue
		}
		mov := s.parseMovement(mData, wrapper, owners, now)
		if mov == nil {
			continue
		}
		currentIDs[mov.ID] = true

		existing := s.movements[mov.ID]
		switch {
		case existing != nil:
			mov.CreatedAt = existing.CreatedAt
		case !s.previousMovementIDs[mov.ID]:
			mov.CreatedAt = now
			if mov.IsAttack() {
				metrics.IncomingAttacks.Inc()
				fire = append(fire, s.queueAttackCallbacks(mov)...)
			}
		default:
			mov.CreatedAt = now
		}
		s.movements[mov.ID] = mov
	}

	for mid := range s.previousMovementIDs {
		if currentIDs[mid] {
			continue
		}
		if !s.arrivedMovementIDs[mid] {
			if recalled := s.movements[mid]; recalled != nil {
				fire = append(fire, s.queueRecallCallbacks(recalled)...)
			}
		}
		delete(s.arrivedMovementIDs, mid)
		delete(s.movements, mid)
	}
	s.previousMovementIDs = currentIDs

	return fire
}

// applyMovementDelta folds a real-time mov push: either one movement
// dict, a list under M, or the payload itself being the movement.
func (s *Store) applyMovementDelta(payload map[string]any) []deferredCallback {
	var fire []deferredCallback
	now := time.Now()

	switch m := payload["M"].(type) {
	case []any:
		for _, item := range m {
			if mData, ok := item.(map[string]any); ok {
				fire = append(fire, s.updateSingleMovement(mData, now)...)
			}
		}
	case map[string]any:
		fire = append(fire, s.updateSingleMovement(m, now)...)
	default:
		fire = append(fire, s.updateSingleMovement(payload, now)...)
	}
	return fire
}

func (s *Store) updateSingleMovement(mData map[string]any, now time.Time) []deferredCallback {
	mov := s.parseMovement(mData, nil, nil, now)
	if mov == nil {
		return nil
	}
	existing := s.movements[mov.ID]
	var fire []deferredCallback
	if existing == nil {
		mov.CreatedAt = now
		s.previousMovementIDs[mov.ID] = true
		if mov.IsIncoming() && mov.IsAttack() {
			metrics.IncomingAttacks.Inc()
			fire = s.queueAttackCallbacks(mov)
		}
	} else {
		mov.CreatedAt = existing.CreatedAt
	}
	s.movements[mov.ID] = mov
	return fire
}

// parseMovement builds a Movement from its wire dict, the optional gam
// wrapper (units and cargo) and the packet's owner directory.
func (s *Store) parseMovement(mData, wrapper map[string]any, owners map[int]ownerEntry, now time.Time) *Movement {
	var mov Movement
	if err := decode(mData, &mov); err != nil {
		s.log.Debug("skipping unparseable movement", zap.Error(err))
		return nil
	}
	if mov.ID == 0 {
		return nil
	}
	mov.LastUpdated = now

	// Target area layout: [1]=x [2]=y [3]=area id [10]=name.
	if ta := mov.TargetArea; len(ta) >= 5 {
		mov.TargetX = intAt(ta[1])
		mov.TargetY = intAt(ta[2])
		mov.TargetAreaID = intAt(ta[3])
		if len(ta) > 10 {
			mov.TargetName = stringAt(ta[10])
		}
	}
	if sa := mov.SourceArea; len(sa) >= 3 {
		mov.SourceX = intAt(sa[1])
		mov.SourceY = intAt(sa[2])
		if len(sa) >= 4 {
			mov.SourceAreaID = intAt(sa[3])
		}
		if len(sa) > 10 {
			mov.SourceName = stringAt(sa[10])
		}
	}

	if wrapper != nil {
		if um, ok := wrapper["UM"].(map[string]any); ok {
			units := make(map[int]int)
			if err := decode(um, &units); err == nil {
				mov.Units = units
			}
		}
		if gs, ok := wrapper["GS"].(map[string]any); ok {
			var res MovementResources
			if err := decode(gs, &res); err == nil {
				mov.Resources = &res
			}
		}
	}

	if owners != nil {
		if entry, ok := owners[mov.OwnerID]; ok {
			mov.SourcePlayerName = entry.Name
			mov.SourceAllianceName = entry.AllianceName
		}
		if entry, ok := owners[mov.TargetPlayerID]; ok {
			mov.TargetPlayerName = entry.Name
			mov.TargetAllianceName = entry.AllianceName
		}
	}
	return &mov
}

func parseOwnerDirectory(raw any) map[int]ownerEntry {
	list, _ := raw.([]any)
	if len(list) == 0 {
		return nil
	}
	owners := make(map[int]ownerEntry, len(list))
	for _, rawOwner := range list {
		ownerMap, ok := rawOwner.(map[string]any)
		if !ok {
			continue
		}
		oid := intAt(ownerMap["OID"])
		if oid == 0 {
			continue
		}
		var entry ownerEntry
		if err := decode(ownerMap, &entry); err == nil {
			owners[oid] = entry
		}
	}
	return owners
}

func (s *Store) queueAttackCallbacks(mov *Movement) []deferredCallback {
	fns := s.attackCallbacks.snapshot()
	if len(fns) == 0 {
		return nil
	}
	snapshot := mov.clone()
	fire := make([]deferredCallback, 0, len(fns))
	for _, fn := range fns {
		fire = append(fire, deferredCallback{name: "incoming_attack", fn: fn, movement: snapshot})
	}
	return fire
}

func (s *Store) queueRecallCallbacks(mov *Movement) []deferredCallback {
	fns := s.recallCallbacks.snapshot()
	if len(fns) == 0 {
		return nil
	}
	snapshot := mov.clone()
	fire := make([]deferredCallback, 0, len(fns))
	for _, fn := range fns {
		fire = append(fire, deferredCallback{name: "movement_recalled", fn: fn, movement: snapshot})
	}
	return fire
}
