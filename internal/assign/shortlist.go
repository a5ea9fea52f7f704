package assign

import (
	"fmt"
	"sort"

	"evalassign/internal/model"
)

// Manual assignment mode: instead of solving, present a ranked shortlist
// per slot and let a human pick. One-time use is reproduced by passing the
// explicit set of already-picked evaluators into every shortlist call;
// there is no implicit shared state between calls.

// Shortlist returns up to topK candidates for a customer, cheapest raw
// total first, excluding evaluators in used. Last-resort evaluators are
// flagged but not penalized here; the human sees the true cost.
func (m *Matrix) Shortlist(customer string, used map[string]bool, topK int) []model.ShortlistCandidate {
	var out []model.ShortlistCandidate
	for _, e := range m.Evaluators {
		if used[e] {
			continue
		}
		rec, ok := m.Record(e, customer)
		if !ok {
			continue
		}
		out = append(out, model.ShortlistCandidate{
			Evaluator:      e,
			RoundTripMiles: rec.RoundTripMiles,
			BaseCost:       rec.Cost.Base,
			TotalCost:      rec.Cost.Total,
			Status:         rec.Status.String(),
			LastResort:     m.IsLastResort(e),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TotalCost < out[j].TotalCost })
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}

// Session accumulates manual picks while enforcing the same invariants the
// solver guarantees: each slot filled once, each evaluator used at most
// once across the session.
type Session struct {
	matrix *Matrix
	used   map[string]bool
	picks  []SlotAssignment
	filled map[int]bool
}

func NewSession(m *Matrix) *Session {
	return &Session{matrix: m, used: map[string]bool{}, filled: map[int]bool{}}
}

// Shortlist ranks candidates for one slot, excluding evaluators already
// picked in this session.
func (s *Session) Shortlist(slotIndex, topK int) []model.ShortlistCandidate {
	if slotIndex < 0 || slotIndex >= len(s.matrix.Slots) {
		return nil
	}
	return s.matrix.Shortlist(s.matrix.Slots[slotIndex].Customer, s.used, topK)
}

// Pick records a human selection for a slot. The evaluator must hold a
// matrix entry for the slot's customer and must not be used already.
func (s *Session) Pick(slotIndex int, evaluator string) error {
	if slotIndex < 0 || slotIndex >= len(s.matrix.Slots) {
		return fmt.Errorf("slot %d out of range", slotIndex)
	}
	if s.filled[slotIndex] {
		return fmt.Errorf("slot %d already filled", slotIndex)
	}
	if s.used[evaluator] {
		return fmt.Errorf("evaluator %s already assigned", evaluator)
	}
	c, ok := s.matrix.Cost(evaluator, slotIndex)
	if !ok {
		return fmt.Errorf("evaluator %s has no cost entry for slot %d", evaluator, slotIndex)
	}
	s.used[evaluator] = true
	s.filled[slotIndex] = true
	s.picks = append(s.picks, SlotAssignment{SlotIndex: slotIndex, Evaluator: evaluator, Cost: c})
	return nil
}

// Result converts the session picks into a solver-shaped result so both
// modes share the assembler. Status mirrors the solver: infeasible when
// slots remain unfilled.
func (s *Session) Result() Result {
	res := Result{Status: StatusOptimal, Assignments: s.picks}
	if len(s.matrix.Slots) == 0 {
		res.Status = StatusEmpty
		return res
	}
	for i := range s.matrix.Slots {
		if !s.filled[i] {
			res.UnassignedSlots = append(res.UnassignedSlots, i)
		}
	}
	if len(res.UnassignedSlots) > 0 {
		res.Status = StatusInfeasible
	}
	for _, p := range s.picks {
		res.Objective += p.Cost
	}
	return res
}
