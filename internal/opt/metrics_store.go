package opt

import "sync"

// In-memory record of solve statistics per tenant and dataset, served by
// the admin API.

type statsKey struct {
	Tenant    string
	DatasetID string
}

// SolveStats is the recorded footprint of one run.
type SolveStats struct {
	Status       string  `json:"status"`
	Objective    float64 `json:"objective"`
	Nodes        int     `json:"nodes"`
	SimplexIters int     `json:"simplexIters"`
	WallMs       int64   `json:"wallMs"`
	Variables    int     `json:"variables"`
	Constraints  int     `json:"constraints"`
}

var (
	statsMu sync.Mutex
	stats   = map[statsKey]SolveStats{}
)

func RecordStats(tenant, datasetID string, s SolveStats) {
	statsMu.Lock()
	stats[statsKey{Tenant: tenant, DatasetID: datasetID}] = s
	statsMu.Unlock()
}

func GetStats(tenant string) map[string]SolveStats {
	statsMu.Lock()
	defer statsMu.Unlock()
	out := map[string]SolveStats{}
	for k, v := range stats {
		if k.Tenant == tenant {
			out[k.DatasetID] = v
		}
	}
	return out
}
