package property

// Group is a display section of properties sharing the same group key
type Group struct {
	ID         int           `json:"id"`
	Name       string        `json:"name"`
	Collapsed  bool          `json:"collapsed"`
	Properties []*Descriptor `json:"properties"`
}

// GroupProperties partitions ds by Group. Groups appear in the order their
// key is first seen and are numbered from 1 in that order; members keep
// their relative order. Every group starts collapsed.
func GroupProperties(ds []*Descriptor) []Group {
	index := make(map[string]int)
	groups := []Group{}
	for _, d := range ds {
		i, ok := index[d.Group]
		if !ok {
			i = len(groups)
			index[d.Group] = i
			groups = append(groups, Group{ID: i + 1, Name: d.Group, Collapsed: true})
		}
		groups[i].Properties = append(groups[i].Properties, d)
	}
	return groups
}

// Replace swaps the descriptor named like updated for updated, returning
// false when no such descriptor exists.
func Replace(ds []*Descriptor, updated *Descriptor) bool {
	for i, d := range ds {
		if d.Name == updated.Name {
			ds[i] = updated
			return true
		}
	}
	return false
}

// Find returns the descriptor with the given name
func Find(ds []*Descriptor, name string) *Descriptor {
	for _, d := range ds {
		if d.Name == name {
			return d
		}
	}
	return nil
}
