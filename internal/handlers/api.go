// internal/handlers/api.go
package handlers

import (
	"encoding/json"
	"net/http"
)

// RoomListing is one row of the /api/rooms response.
type RoomListing struct {
	Code           string `json:"code"`
	PlayerCount    int    `json:"playerCount"`
	SpectatorCount int    `json:"spectatorCount"`
	Status         string `json:"status"`
}

// IndexHandler is a plain liveness endpoint.
func IndexHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("SMTD Multiplayer Server is running"))
	}
}

// ListRoomsHandler returns the active rooms for dashboards and debugging.
func ListRoomsHandler(ms *MatchServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rooms := ms.Store.Rooms()
		listings := make([]RoomListing, 0, len(rooms))
		for _, rm := range rooms {
			listings = append(listings, RoomListing{
				Code:           rm.Code,
				PlayerCount:    rm.PlayerCount(),
				SpectatorCount: rm.SpectatorCount(),
				Status:         string(rm.CurrentStatus()),
			})
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(listings)
	}
}
