package types

// Delta lists the rows a batch changed. Updated and Deleted are disjoint and
// keep the order in which ids were marked.
type Delta struct {
	BlockNumber uint64
	Updated     []RowID
	Deleted     []RowID
}

func (d Delta) Empty() bool {
	return len(d.Updated) == 0 && len(d.Deleted) == 0
}

// DeltaBuilder accumulates a Delta while events are applied in order.
type DeltaBuilder struct {
	updated orderedSet
	deleted orderedSet
}

// MarkUpdated records id as updated. An id deleted earlier in the batch and
// written again ends up only in Updated.
func (b *DeltaBuilder) MarkUpdated(id RowID) {
	b.deleted.remove(id)
	b.updated.add(id)
}

// MarkDeleted records id as deleted, removing any earlier update mark.
func (b *DeltaBuilder) MarkDeleted(id RowID) {
	b.updated.remove(id)
	b.deleted.add(id)
}

func (b *DeltaBuilder) Build(blockNumber uint64) Delta {
	return Delta{
		BlockNumber: blockNumber,
		Updated:     b.updated.items(),
		Deleted:     b.deleted.items(),
	}
}

type orderedSet struct {
	index map[RowID]int
	order []RowID
	live  int
}

func (s *orderedSet) add(id RowID) {
	if s.index == nil {
		s.index = map[RowID]int{}
	}
	if _, ok := s.index[id]; ok {
		return
	}
	s.index[id] = len(s.order)
	s.order = append(s.order, id)
	s.live++
}

func (s *orderedSet) remove(id RowID) {
	pos, ok := s.index[id]
	if !ok {
		return
	}
	delete(s.index, id)
	s.order[pos] = ""
	s.live--
}

func (s *orderedSet) items() []RowID {
	out := make([]RowID, 0, s.live)
	for _, id := range s.order {
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}
