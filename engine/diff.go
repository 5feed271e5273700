package engine

import "staywatch/models"

// Diff partitions current against previous by identity key. New holds
// current entries whose key was absent before; Removed holds previous
// entries whose key is gone now. Input order is preserved in both outputs,
// and price differences alone never register as a change.
func Diff(current, previous []models.Availability) models.Changes {
	prevKeys := make(map[string]struct{}, len(previous))
	for i := range previous {
		prevKeys[previous[i].Key()] = struct{}{}
	}
	currKeys := make(map[string]struct{}, len(current))
	for i := range current {
		currKeys[current[i].Key()] = struct{}{}
	}

	changes := models.Changes{New: []models.Availability{}, Removed: []models.Availability{}}
	for _, a := range current {
		if _, ok := prevKeys[a.Key()]; !ok {
			changes.New = append(changes.New, a)
		}
	}
	for _, a := range previous {
		if _, ok := currKeys[a.Key()]; !ok {
			changes.Removed = append(changes.Removed, a)
		}
	}
	return changes
}
