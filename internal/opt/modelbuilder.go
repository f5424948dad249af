package opt

import (
	"fmt"

	"depotplan/internal/solver"
)

// ModelAPI is the surface of the solver collaborator the builder emits to.
// *solver.Model satisfies it; tests substitute recording fakes.
type ModelAPI interface {
	AddBinaryVar(name string) solver.Var
	AddContinuousVar(name string, lb float64) solver.Var
	AddConstraint(expr *solver.LinearExpr, sense solver.Sense, rhs float64, name string)
	SetObjective(expr *solver.LinearExpr, dir solver.Direction)
}

// AssignKey identifies one x[i,j] assignment variable.
type AssignKey struct {
	OrderID string
	DepotID string
}

// FlowKey identifies one t[k,j,m] transfer variable.
type FlowKey struct {
	FromDepotID string
	ToDepotID   string
	MaterialID  string
}

// BuiltModel maps the sparse variable domains back to solver handles.
type BuiltModel struct {
	// AssignOrder and FlowOrder preserve creation order for extraction.
	AssignOrder []AssignKey
	FlowOrder   []FlowKey

	assign map[AssignKey]solver.Var
	flow   map[FlowKey]solver.Var

	NumConstraints int
}

// AssignVar resolves x[i,j]. Referencing a pair outside the candidate
// domain is a constraint-generation bug and fails fast.
func (b *BuiltModel) AssignVar(orderID, depotID string) (solver.Var, error) {
	v, ok := b.assign[AssignKey{orderID, depotID}]
	if !ok {
		return 0, &SparseDomainError{OrderID: orderID, DepotID: depotID}
	}
	return v, nil
}

// FlowVar resolves t[k,j,m]; the flow domain is dense so a miss can only
// mean identical depots or an unknown id.
func (b *BuiltModel) FlowVar(from, to, materialID string) (solver.Var, bool) {
	v, ok := b.flow[FlowKey{from, to, materialID}]
	return v, ok
}

// BuildModel emits decision variables, constraints and the objective to m.
//
// x[i,j] is binary and exists only for j in J_i. t[k,j,m] is continuous,
// nonnegative and dense over distinct depot pairs × materials. Each order
// is assigned at most once; each (material, depot) pair gets a mass-balance
// row even when no order consumes there, so pure pass-through transfers
// stay bounded by stock.
func BuildModel(m ModelAPI, sets Sets, params Params, progress ProgressFunc) (*BuiltModel, error) {
	b := &BuiltModel{
		assign: map[AssignKey]solver.Var{},
		flow:   map[FlowKey]solver.Var{},
	}
	emit := func(stage string, done, total int) {
		if progress != nil {
			progress(stage, done, total)
		}
	}

	// Assignment variables over the validated sparse domain.
	for _, i := range sets.Orders {
		for _, j := range sets.CandidateDepots[i] {
			k := AssignKey{OrderID: i, DepotID: j}
			b.assign[k] = m.AddBinaryVar(fmt.Sprintf("x[%s,%s]", i, j))
			b.AssignOrder = append(b.AssignOrder, k)
		}
	}

	// Transfer variables over the dense domain.
	for _, from := range sets.Depots {
		for _, to := range sets.Depots {
			if from == to {
				continue
			}
			for _, mat := range sets.Materials {
				k := FlowKey{FromDepotID: from, ToDepotID: to, MaterialID: mat}
				b.flow[k] = m.AddContinuousVar(fmt.Sprintf("t[%s,%s,%s]", from, to, mat), 0)
				b.FlowOrder = append(b.FlowOrder, k)
			}
		}
	}
	emit("variables", len(b.AssignOrder)+len(b.FlowOrder), len(b.AssignOrder)+len(b.FlowOrder))

	// Each order executes at most once, at one candidate depot or not at
	// all. Orders with no candidates get no variables and no row.
	for n, i := range sets.Orders {
		cands := sets.CandidateDepots[i]
		if len(cands) == 0 {
			continue
		}
		expr := solver.NewLinearExpr()
		for _, j := range cands {
			v, err := b.AssignVar(i, j)
			if err != nil {
				return nil, err
			}
			expr.AddTerm(v, 1)
		}
		m.AddConstraint(expr, solver.LE, 1, fmt.Sprintf("one_execution[%s]", i))
		b.NumConstraints++
		emit("assignment_constraints", n+1, len(sets.Orders))
	}

	// Mass balance per (material, depot) over the full cross product:
	// consumption + outflow <= initial stock + inflow.
	total := len(sets.Materials) * len(sets.Depots)
	done := 0
	for _, mat := range sets.Materials {
		for _, j := range sets.Depots {
			expr := solver.NewLinearExpr()
			for _, i := range sets.OrdersByDepot[j] {
				if !sets.Requires(i, mat) {
					continue
				}
				v, err := b.AssignVar(i, j)
				if err != nil {
					return nil, err
				}
				expr.AddTerm(v, params.Demand[OrderMaterial{i, mat}])
			}
			for _, k := range sets.Depots {
				if k == j {
					continue
				}
				if out, ok := b.FlowVar(j, k, mat); ok {
					expr.AddTerm(out, 1)
				}
				if in, ok := b.FlowVar(k, j, mat); ok {
					expr.AddTerm(in, -1)
				}
			}
			m.AddConstraint(expr, solver.LE, params.StockAt(j, mat), fmt.Sprintf("stock_balance[%s,%s]", mat, j))
			b.NumConstraints++
			done++
			emit("balance_constraints", done, total)
		}
	}

	// Single objective: maximize served priority.
	obj := solver.NewLinearExpr()
	for _, k := range b.AssignOrder {
		obj.AddTerm(b.assign[k], params.Priority[k.OrderID])
	}
	m.SetObjective(obj, solver.Maximize)

	return b, nil
}
