package opt

import (
	"math"
	"sort"

	"depotplan/internal/model"
	"depotplan/internal/solver"
)

// DefaultTolerance separates served assignment values from solver
// floating-point noise; exact comparison against 1 is unsafe.
const DefaultTolerance = 1e-6

// Results is the post-processed view of one solved model.
type Results struct {
	Assignments  []model.Assignment
	Reconciled   []model.ReconciledRow
	Summaries    []model.DepotSummary
	Transfers    []model.Transfer
	TransferCost float64
}

// ExtractResults reads solved variable values and reconstructs the
// assignment table, its reconciliation against the full order relation,
// the per-depot summary, and the priced transfer ledger. It only reads
// solved state; the model is never touched again.
func ExtractResults(sol solver.Solution, built *BuiltModel, orders []model.OrderRow, params Params, tol float64) Results {
	if tol <= 0 {
		tol = DefaultTolerance
	}
	var res Results

	served := map[AssignKey]bool{}
	for _, k := range built.AssignOrder {
		v, _ := built.AssignVar(k.OrderID, k.DepotID)
		if math.Abs(sol.Value(v)-1) < tol {
			served[k] = true
			res.Assignments = append(res.Assignments, model.Assignment{
				OrderID: k.OrderID,
				DepotID: k.DepotID,
				Served:  1,
			})
		}
	}

	// Left-join of the distinct (order, depot, priority) combinations
	// against the served pairs, unmatched rows filled with served = 0.
	seen := map[AssignKey]bool{}
	for _, r := range orders {
		k := AssignKey{OrderID: r.OrderID, DepotID: r.DepotID}
		if seen[k] {
			continue
		}
		seen[k] = true
		row := model.ReconciledRow{
			OrderID:  r.OrderID,
			DepotID:  r.DepotID,
			Priority: r.Priority,
		}
		if served[k] {
			row.Served = 1
			row.ServedPriority = r.Priority
		}
		res.Reconciled = append(res.Reconciled, row)
	}

	// Per-depot aggregation of the reconciled table.
	type agg struct {
		orders         map[string]struct{}
		servedCount    int
		servedPriority float64
		assocPriority  float64
	}
	byDepot := map[string]*agg{}
	for _, row := range res.Reconciled {
		a := byDepot[row.DepotID]
		if a == nil {
			a = &agg{orders: map[string]struct{}{}}
			byDepot[row.DepotID] = a
		}
		a.orders[row.OrderID] = struct{}{}
		a.servedCount += row.Served
		a.servedPriority += row.ServedPriority
		a.assocPriority += row.Priority
	}
	depots := make([]string, 0, len(byDepot))
	for j := range byDepot {
		depots = append(depots, j)
	}
	sort.Strings(depots)
	for _, j := range depots {
		a := byDepot[j]
		res.Summaries = append(res.Summaries, model.DepotSummary{
			DepotID:            j,
			AssociatedOrders:   len(a.orders),
			ServedOrders:       a.servedCount,
			ServedPriority:     a.servedPriority,
			AssociatedPriority: a.assocPriority,
		})
	}

	// Nonzero flows, priced from the cost table (absent keys cost zero).
	for _, k := range built.FlowOrder {
		v, ok := built.FlowVar(k.FromDepotID, k.ToDepotID, k.MaterialID)
		if !ok {
			continue
		}
		qty := sol.Value(v)
		if qty <= tol {
			continue
		}
		cost := qty * params.CostOf(k.FromDepotID, k.ToDepotID, k.MaterialID)
		res.Transfers = append(res.Transfers, model.Transfer{
			FromDepotID: k.FromDepotID,
			ToDepotID:   k.ToDepotID,
			MaterialID:  k.MaterialID,
			Qty:         qty,
			Cost:        cost,
		})
		res.TransferCost += cost
	}

	return res
}
