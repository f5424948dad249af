package api

import (
	"fmt"

	"depotplan/internal/model"
)

func validateOptimizeRequest(req *model.OptimizeRequest) error {
	if req.DatasetID == "" {
		return fmt.Errorf("datasetId is required")
	}
	if req.TimeLimitMs < 0 {
		return fmt.Errorf("timeLimitMs must be >= 0")
	}
	if req.Tolerance < 0 || req.Tolerance >= 0.5 {
		return fmt.Errorf("tolerance must be in [0, 0.5)")
	}
	return nil
}
