package api

import (
	"encoding/json"
	"net/http"
)

func handlePokeStats(stats *pokeStatsAggregate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := stats.snapshot()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"total":  s.Total,
			"missed": s.Missed,
		})
	}
}
