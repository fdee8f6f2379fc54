package catalog

// ValidateSelection checks every group's selection-count bounds against the
// chosen modifier ids. Ids are deduplicated; an id that belongs to none of
// the groups is a ForeignModifierError. Groups are checked in declared order
// and the first violation is returned. The check is pure: availability must
// already have been filtered by the caller.
func ValidateSelection(groups []Group, modifierIDs []string) error {
	owner := make(map[string]string)
	for _, g := range groups {
		for _, m := range g.Modifiers {
			owner[m.ID] = g.ID
		}
	}

	counts := make(map[string]int, len(groups))
	seen := make(map[string]struct{}, len(modifierIDs))
	for _, id := range modifierIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		groupID, ok := owner[id]
		if !ok {
			productID := ""
			if len(groups) > 0 {
				productID = groups[0].ProductID
			}
			return &ForeignModifierError{ModifierID: id, ProductID: productID}
		}
		counts[groupID]++
	}

	for _, g := range groups {
		got := counts[g.ID]
		if got < g.MinSelect {
			return &SelectionError{Group: g.Name, Bound: BoundMin, Limit: g.MinSelect, Got: got}
		}
		if got > g.MaxSelect {
			return &SelectionError{Group: g.Name, Bound: BoundMax, Limit: g.MaxSelect, Got: got}
		}
	}
	return nil
}

// Dedupe returns ids without repeats, preserving first occurrence order.
func Dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
