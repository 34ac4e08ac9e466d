package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/confsentinel/sentinel/internal/api/utils"
	"github.com/confsentinel/sentinel/internal/watch"
)

// Scanner triggers a full verification pass
type Scanner interface {
	RunFullScan(ctx context.Context) error
}

// RunScanHandler runs a full exclusive scan. The request fails with 409 when
// continuous watching holds the mode.
func RunScanHandler(scanner Scanner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := scanner.RunFullScan(r.Context())
		if errors.Is(err, watch.ErrDaemonActive) {
			utils.SendErrorResponse(w, utils.NewAPIError("daemon active: stop watching before running a full scan", http.StatusConflict))
			return
		}
		if err != nil {
			utils.SendErrorResponse(w, utils.NewAPIError("scan failed", http.StatusInternalServerError))
			return
		}

		utils.SendSuccessResponse(w, map[string]string{"scan": "completed"})
	}
}
