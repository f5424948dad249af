package ingest

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"depotplan/internal/model"
	"depotplan/internal/opt"
)

// Loaders for the three input relations. Stock and orders arrive as CSV
// with the legacy column names; transfer costs arrive as a JSON object
// keyed "from,to,material". Header matching is case-insensitive and
// ignores column order.

func integrityErr(format string, args ...any) error {
	return &opt.DataIntegrityError{Detail: fmt.Sprintf(format, args...)}
}

// header maps normalized column names to their index.
type header map[string]int

func readHeader(rec []string) header {
	h := header{}
	for i, name := range rec {
		name = strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		h[name] = i
	}
	return h
}

func (h header) require(relation string, cols ...string) ([]int, error) {
	idx := make([]int, len(cols))
	for i, c := range cols {
		j, ok := h[c]
		if !ok {
			return nil, integrityErr("%s: missing column %s", relation, c)
		}
		idx[i] = j
	}
	return idx, nil
}

func parseQty(relation, col, s string, line int) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, integrityErr("%s line %d: column %s: %q is not numeric", relation, line, col, s)
	}
	return v, nil
}

// ReadStock parses the stock relation (COD_DEP, COD_MAT, ESTOQ).
func ReadStock(r io.Reader) ([]model.StockRow, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	recs, err := cr.ReadAll()
	if err != nil {
		return nil, integrityErr("stock: %v", err)
	}
	if len(recs) == 0 {
		return nil, integrityErr("stock: empty file")
	}
	idx, err := readHeader(recs[0]).require("stock", "COD_DEP", "COD_MAT", "ESTOQ")
	if err != nil {
		return nil, err
	}
	var rows []model.StockRow
	for n, rec := range recs[1:] {
		qty, err := parseQty("stock", "ESTOQ", rec[idx[2]], n+2)
		if err != nil {
			return nil, err
		}
		rows = append(rows, model.StockRow{
			DepotID:    strings.TrimSpace(rec[idx[0]]),
			MaterialID: strings.TrimSpace(rec[idx[1]]),
			Qty:        qty,
		})
	}
	return rows, nil
}

// ReadOrders parses the order relation (OBRA, COD_DEP, PRIOR, COD_MAT, QTD_DEM).
func ReadOrders(r io.Reader) ([]model.OrderRow, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	recs, err := cr.ReadAll()
	if err != nil {
		return nil, integrityErr("orders: %v", err)
	}
	if len(recs) == 0 {
		return nil, integrityErr("orders: empty file")
	}
	idx, err := readHeader(recs[0]).require("orders", "OBRA", "COD_DEP", "PRIOR", "COD_MAT", "QTD_DEM")
	if err != nil {
		return nil, err
	}
	var rows []model.OrderRow
	for n, rec := range recs[1:] {
		prior, err := parseQty("orders", "PRIOR", rec[idx[2]], n+2)
		if err != nil {
			return nil, err
		}
		demand, err := parseQty("orders", "QTD_DEM", rec[idx[4]], n+2)
		if err != nil {
			return nil, err
		}
		rows = append(rows, model.OrderRow{
			OrderID:    strings.TrimSpace(rec[idx[0]]),
			DepotID:    strings.TrimSpace(rec[idx[1]]),
			Priority:   prior,
			MaterialID: strings.TrimSpace(rec[idx[3]]),
			Demand:     demand,
		})
	}
	return rows, nil
}

// ReadTransferCosts parses the transfer cost table: a JSON object whose
// keys are "from,to,material" and whose values are unit costs.
func ReadTransferCosts(r io.Reader) ([]model.TransferCostRow, error) {
	var raw map[string]float64
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, integrityErr("transfer costs: %v", err)
	}
	var rows []model.TransferCostRow
	for key, cost := range raw {
		parts := strings.Split(key, ",")
		if len(parts) != 3 {
			return nil, integrityErr("transfer costs: key %q is not from,to,material", key)
		}
		rows = append(rows, model.TransferCostRow{
			FromDepotID: strings.TrimSpace(parts[0]),
			ToDepotID:   strings.TrimSpace(parts[1]),
			MaterialID:  strings.TrimSpace(parts[2]),
			Cost:        cost,
		})
	}
	return rows, nil
}
