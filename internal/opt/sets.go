package opt

import (
	"sort"

	"depotplan/internal/model"
)

// Sets holds the index sets and subset maps derived from the input
// relations. All slices are sorted so iteration order, and therefore the
// emitted model, is deterministic for identical input.
type Sets struct {
	Orders    []string // distinct order ids, from the order relation
	Depots    []string // distinct depot ids, from the stock relation
	Materials []string // distinct material ids, from the stock relation

	// CandidateDepots maps order -> depots that may execute it (J_i).
	CandidateDepots map[string][]string
	// OrdersByDepot is the inverse map (I_j).
	OrdersByDepot map[string][]string
	// MaterialsByOrder maps order -> materials it requires (M_i).
	MaterialsByOrder map[string][]string
}

// BuildSets derives Sets from the stock and order relations. Duplicate
// (order, depot) and (order, material) rows are collapsed before grouping
// so later constraint sums cannot double-count.
func BuildSets(stock []model.StockRow, orders []model.OrderRow) Sets {
	depots := map[string]struct{}{}
	materials := map[string]struct{}{}
	for _, s := range stock {
		depots[s.DepotID] = struct{}{}
		materials[s.MaterialID] = struct{}{}
	}

	orderIDs := map[string]struct{}{}
	candByOrder := map[string]map[string]struct{}{}
	ordersByDepot := map[string]map[string]struct{}{}
	matsByOrder := map[string]map[string]struct{}{}
	for _, r := range orders {
		orderIDs[r.OrderID] = struct{}{}
		if candByOrder[r.OrderID] == nil {
			candByOrder[r.OrderID] = map[string]struct{}{}
		}
		candByOrder[r.OrderID][r.DepotID] = struct{}{}
		if ordersByDepot[r.DepotID] == nil {
			ordersByDepot[r.DepotID] = map[string]struct{}{}
		}
		ordersByDepot[r.DepotID][r.OrderID] = struct{}{}
		if matsByOrder[r.OrderID] == nil {
			matsByOrder[r.OrderID] = map[string]struct{}{}
		}
		matsByOrder[r.OrderID][r.MaterialID] = struct{}{}
	}

	return Sets{
		Orders:           sortedKeys(orderIDs),
		Depots:           sortedKeys(depots),
		Materials:        sortedKeys(materials),
		CandidateDepots:  sortedSets(candByOrder),
		OrdersByDepot:    sortedSets(ordersByDepot),
		MaterialsByOrder: sortedSets(matsByOrder),
	}
}

// Requires reports whether order needs material.
func (s Sets) Requires(orderID, materialID string) bool {
	for _, m := range s.MaterialsByOrder[orderID] {
		if m == materialID {
			return true
		}
	}
	return false
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedSets(in map[string]map[string]struct{}) map[string][]string {
	out := make(map[string][]string, len(in))
	for k, set := range in {
		out[k] = sortedKeys(set)
	}
	return out
}
