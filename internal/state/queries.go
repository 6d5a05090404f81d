package state

import "sort"

// Player returns a snapshot of the local player, or nil before login.
func (s *Store) Player() *Player {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.player == nil {
		return nil
	}
	return s.player.clone()
}

// Castle returns a snapshot of one owned castle, or nil.
func (s *Store) Castle(areaID int) *Castle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := s.castles[areaID]
	if c == nil {
		return nil
	}
	return c.clone()
}

// Castles returns snapshots of all owned castles ordered by area id.
func (s *Store) Castles() []*Castle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Castle, 0, len(s.castles))
	for _, c := range s.castles {
		out = append(out, c.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AreaID < out[j].AreaID })
	return out
}

// Movement returns a snapshot of one tracked movement, or nil.
func (s *Store) Movement(id int) *Movement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m := s.movements[id]
	if m == nil {
		return nil
	}
	return m.clone()
}

// Movements returns snapshots of all tracked movements ordered by id.
func (s *Store) Movements() []*Movement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.movementsLocked(nil)
}

// IncomingMovements returns movements heading toward the local player.
func (s *Store) IncomingMovements() []*Movement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.movementsLocked(func(m *Movement) bool { return m.IsIncoming() })
}

// OutgoingMovements returns movements leaving the local player.
func (s *Store) OutgoingMovements() []*Movement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.movementsLocked(func(m *Movement) bool { return m.IsOutgoing() })
}

// IncomingAttacks returns hostile movements heading toward the player.
func (s *Store) IncomingAttacks() []*Movement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.movementsLocked(func(m *Movement) bool { return m.IsIncoming() && m.IsAttack() })
}

// ReturningMovements returns armies on their way home.
func (s *Store) ReturningMovements() []*Movement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.movementsLocked(func(m *Movement) bool { return m.IsReturning() })
}

// MovementsToArea returns movements targeting a specific area.
func (s *Store) MovementsToArea(areaID int) []*Movement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.movementsLocked(func(m *Movement) bool { return m.TargetAreaID == areaID })
}

// NextArrival returns the tracked movement with the least time left,
// or nil when nothing is underway.
func (s *Store) NextArrival() *Movement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var next *Movement
	for _, m := range s.movements {
		if next == nil || m.TimeRemaining() < next.TimeRemaining() {
			next = m
		}
	}
	if next == nil {
		return nil
	}
	return next.clone()
}

func (s *Store) movementsLocked(keep func(*Movement) bool) []*Movement {
	out := make([]*Movement, 0, len(s.movements))
	for _, m := range s.movements {
		if keep == nil || keep(m) {
			out = append(out, m.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// MapObject returns a snapshot of one discovered area, or nil.
func (s *Store) MapObject(areaID int) *MapObject {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj := s.mapObjects[areaID]
	if obj == nil {
		return nil
	}
	cp := *obj
	return &cp
}

// MapObjects returns snapshots of every discovered area ordered by id.
func (s *Store) MapObjects() []*MapObject {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*MapObject, 0, len(s.mapObjects))
	for _, obj := range s.mapObjects {
		cp := *obj
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AreaID < out[j].AreaID })
	return out
}

// MapObjectsInKingdom filters discovered areas by kingdom.
func (s *Store) MapObjectsInKingdom(kid int) []*MapObject {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*MapObject
	for _, obj := range s.mapObjects {
		if obj.KingdomID == kid {
			cp := *obj
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AreaID < out[j].AreaID })
	return out
}

// MapObjectCount returns the number of discovered areas.
func (s *Store) MapObjectCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.mapObjects)
}
