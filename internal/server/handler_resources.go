package server

import (
	"net/http"
	"sort"
)

type resourceInfo struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
	Key  string `json:"key"`
}

// handleListResources reports the resources currently held by running jobs.
// GET /api/v1/resources
func (s *Server) handleListResources(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	held := s.coord.Holdings()
	sort.Slice(held, func(i, j int) bool {
		return held[i].String() < held[j].String()
	})

	infos := make([]resourceInfo, 0, len(held))
	for _, k := range held {
		infos = append(infos, resourceInfo{Kind: k.Kind, ID: k.ID, Key: k.String()})
	}
	respondOK(w, reqID, map[string]any{
		"held":  infos,
		"count": len(infos),
	})
}
