package server

import (
	"net/http"

	"github.com/blsq/iaso/internal/routing"
)

type seedReportJSON struct {
	Seeded    int   `json:"seeded"`
	Remaining int   `json:"remaining"`
	Failed    int   `json:"failed"`
	Rounds    int   `json:"rounds"`
	ElapsedMS int64 `json:"elapsed_ms"`
}

func (h *api) handleSeedPaths(w http.ResponseWriter, r *http.Request) {
	report, err := h.seeder.Run(r.Context())
	if err != nil {
		writeAPIError(w, r, h.logger, err, "path_seed_failed")
		return
	}
	routing.WriteJSON(w, http.StatusOK, seedReportJSON{
		Seeded:    report.Seeded,
		Remaining: report.Remaining,
		Failed:    report.Failed,
		Rounds:    report.Rounds,
		ElapsedMS: report.Elapsed.Milliseconds(),
	})
}
