package assign

import (
	"math"
)

// Solver statuses.
const (
	StatusOptimal    = "optimal"
	StatusInfeasible = "infeasible"
	StatusEmpty      = "empty"
)

// SlotAssignment binds one matrix slot to the evaluator filling it.
type SlotAssignment struct {
	SlotIndex int
	Evaluator string
	Cost      float64 // penalized matrix cost
}

// Result is the solver output. Objective is the sum of penalized matrix
// costs over the chosen assignments. With tied costs the chosen assignment
// depends on the (deterministic) slot and evaluator ordering; the objective
// value itself is unique.
type Result struct {
	Status          string
	Assignments     []SlotAssignment
	Objective       float64
	UnassignedSlots []int // slot indices with no augmenting path
}

// Solve finds the minimum-cost assignment of evaluators to slots over the
// sparse matrix: every slot filled by exactly one evaluator, every
// evaluator used at most once across the whole run. The implementation is
// the Hungarian method with potentials, augmenting one slot at a time;
// absent matrix entries are treated as infinite cost. Slots that cannot be
// augmented are reported and the remaining assignment is returned with an
// infeasible status rather than discarded.
func Solve(m *Matrix) Result {
	n := len(m.Slots)
	ne := len(m.Evaluators)
	if n == 0 {
		return Result{Status: StatusEmpty}
	}
	if m.FeasibleEvaluators() < n {
		// Cheap certificate: fewer feasible evaluators than slots can
		// never satisfy one-time use. Still run the matching so the
		// caller gets the best partial fill.
		res := solve(m, n, ne)
		res.Status = StatusInfeasible
		return res
	}
	return solve(m, n, ne)
}

func solve(m *Matrix, n, ne int) Result {
	inf := math.Inf(1)
	cost := func(slot, eval int) float64 {
		if c, ok := m.Cost(m.Evaluators[eval], slot); ok {
			return c
		}
		return inf
	}

	// 1-based potentials; p[j] is the slot matched to evaluator column j,
	// 0 when free.
	u := make([]float64, n+1)
	v := make([]float64, ne+1)
	p := make([]int, ne+1)
	way := make([]int, ne+1)

	var unassigned []int
	for i := 1; i <= n; i++ {
		p[0] = i
		j0 := 0
		minv := make([]float64, ne+1)
		used := make([]bool, ne+1)
		for j := range minv {
			minv[j] = inf
		}
		feasible := true
		for {
			used[j0] = true
			i0 := p[j0]
			delta := inf
			j1 := -1
			for j := 1; j <= ne; j++ {
				if used[j] {
					continue
				}
				cur := cost(i0-1, j-1) - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}
			if math.IsInf(delta, 1) {
				feasible = false
				break
			}
			for j := 0; j <= ne; j++ {
				if used[j] {
					u[p[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}
			j0 = j1
			if p[j0] == 0 {
				break
			}
		}
		if !feasible {
			unassigned = append(unassigned, i-1)
			continue
		}
		for {
			j1 := way[j0]
			p[j0] = p[j1]
			j0 = j1
			if j0 == 0 {
				break
			}
		}
	}

	res := Result{Status: StatusOptimal, UnassignedSlots: unassigned}
	if len(unassigned) > 0 {
		res.Status = StatusInfeasible
	}
	for j := 1; j <= ne; j++ {
		if p[j] == 0 {
			continue
		}
		slot := p[j] - 1
		c, _ := m.Cost(m.Evaluators[j-1], slot)
		res.Assignments = append(res.Assignments, SlotAssignment{SlotIndex: slot, Evaluator: m.Evaluators[j-1], Cost: c})
		res.Objective += c
	}
	return res
}
