package state

import "time"

// applyMapChunk folds a gaa response. Each area is a positional array:
// [0]=type [1]=x [2]=y [3]=area id [4]=owner id [5]=level [10]=name.
// An optional owner directory decorates owned areas with names.
func (s *Store) applyMapChunk(payload map[string]any) {
	kid := intAt(payload["KID"])
	owners := parseOwnerDirectory(payload["O"])
	now := time.Now()

	areas, _ := payload["AI"].([]any)
	for _, rawArea := range areas {
		ai, ok := rawArea.([]any)
		if !ok || len(ai) < 4 {
			continue
		}
		areaID := intAt(ai[3])
		if areaID == 0 {
			continue
		}

		obj := s.mapObjects[areaID]
		if obj == nil {
			obj = &MapObject{AreaID: areaID, OwnerID: -1}
			s.mapObjects[areaID] = obj
		}
		obj.KingdomID = kid
		obj.Type = intAt(ai[0])
		obj.X = intAt(ai[1])
		obj.Y = intAt(ai[2])
		if len(ai) >= 5 {
			obj.OwnerID = intAt(ai[4])
		}
		if len(ai) >= 6 {
			obj.Level = intAt(ai[5])
		}
		if len(ai) > 10 {
			obj.Name = stringAt(ai[10])
		}
		if entry, ok := owners[obj.OwnerID]; ok {
			obj.OwnerName = entry.Name
			obj.AllianceName = entry.AllianceName
			obj.AllianceID = entry.AllianceID
		}
		obj.SeenAt = now
	}
}
