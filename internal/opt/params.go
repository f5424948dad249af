package opt

import "depotplan/internal/model"

// Composite map keys for the parameter tables.
type OrderMaterial struct {
	OrderID    string
	MaterialID string
}

type DepotMaterial struct {
	DepotID    string
	MaterialID string
}

type TransferKey struct {
	FromDepotID string
	ToDepotID   string
	MaterialID  string
}

// Params holds the numeric parameter tables derived from the relations.
type Params struct {
	// Priority is w[i]; exactly one value per order.
	Priority map[string]float64
	// Demand is q[i,m]: demanded quantity summed across duplicate rows.
	Demand map[OrderMaterial]float64
	// Stock is Q[j,m]; absent pairs read as zero via StockAt.
	Stock map[DepotMaterial]float64
	// Costs is the transfer-cost table c, passed through unchanged; absent
	// keys read as zero via CostOf.
	Costs map[TransferKey]float64

	// Scalar counts for diagnostics only, never used in constraints.
	NumOrders int
	NumDepots int
}

// BuildParams derives Params, surfacing integrity errors instead of
// silently resolving them: an order with two different priorities, or any
// negative stock/demand quantity, aborts the run.
func BuildParams(stock []model.StockRow, orders []model.OrderRow, costs []model.TransferCostRow) (Params, error) {
	p := Params{
		Priority: map[string]float64{},
		Demand:   map[OrderMaterial]float64{},
		Stock:    map[DepotMaterial]float64{},
		Costs:    map[TransferKey]float64{},
	}

	depots := map[string]struct{}{}
	for _, r := range orders {
		if r.Demand < 0 {
			return Params{}, integrityErrf("order %s material %s: negative demand %v", r.OrderID, r.MaterialID, r.Demand)
		}
		if prev, ok := p.Priority[r.OrderID]; ok {
			if prev != r.Priority {
				return Params{}, integrityErrf("order %s: conflicting priorities %v and %v", r.OrderID, prev, r.Priority)
			}
		} else {
			p.Priority[r.OrderID] = r.Priority
		}
		p.Demand[OrderMaterial{r.OrderID, r.MaterialID}] += r.Demand
		depots[r.DepotID] = struct{}{}
	}

	for _, s := range stock {
		if s.Qty < 0 {
			return Params{}, integrityErrf("depot %s material %s: negative stock %v", s.DepotID, s.MaterialID, s.Qty)
		}
		// Duplicate rows aggregate, matching the demand treatment.
		p.Stock[DepotMaterial{s.DepotID, s.MaterialID}] += s.Qty
	}

	for _, c := range costs {
		p.Costs[TransferKey{c.FromDepotID, c.ToDepotID, c.MaterialID}] = c.Cost
	}

	p.NumOrders = len(p.Priority)
	p.NumDepots = len(depots)
	return p, nil
}

// StockAt returns Q[j,m], zero when the pair is absent from the relation.
func (p Params) StockAt(depotID, materialID string) float64 {
	return p.Stock[DepotMaterial{depotID, materialID}]
}

// CostOf returns c[k,j,m], zero when the key is absent.
func (p Params) CostOf(from, to, materialID string) float64 {
	return p.Costs[TransferKey{from, to, materialID}]
}
