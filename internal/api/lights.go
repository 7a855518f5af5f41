package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-lifx/internal/bridges/lifx"
	"github.com/nerrad567/gray-logic-lifx/internal/light"
)

// History query limits.
const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// LightView is the API representation of one light.
type LightView struct {
	ID string `json:"id"`
	light.State
	HasMultiZone bool `json:"has_multizone"`
	HasInfrared  bool `json:"has_infrared"`
	HasTile      bool `json:"has_tile"`
}

// newLightView builds the view from a snapshot.
func newLightView(s light.State) LightView {
	return LightView{
		ID:           light.FormatID(s.ID),
		State:        s,
		HasMultiZone: s.ProductInfo.HasMultiZone(),
		HasInfrared:  s.ProductInfo.HasInfrared(),
		HasTile:      s.ProductInfo.HasTile(),
	}
}

// LightCommand is the body of PUT /lights/{id}/state.
type LightCommand struct {
	Command    string         `json:"command"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// handleListLights returns every known light, with optional reachable filter.
func (s *Server) handleListLights(w http.ResponseWriter, r *http.Request) {
	var filter *bool
	if raw := r.URL.Query().Get("reachable"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeBadRequest(w, "reachable must be true or false")
			return
		}
		filter = &v
	}

	views := make([]LightView, 0)
	for _, l := range s.lights.Lights() {
		snap := l.Snapshot()
		if filter != nil && snap.Reachable != *filter {
			continue
		}
		views = append(views, newLightView(snap))
	}
	writeJSON(w, http.StatusOK, map[string]any{"lights": views, "count": len(views)})
}

// handleGetLight returns one light's cached state.
func (s *Server) handleGetLight(w http.ResponseWriter, r *http.Request) {
	l, ok := s.lookupLight(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newLightView(l.Snapshot()))
}

// handleSetLightState runs a command against a light and returns the
// resulting cached state.
func (s *Server) handleSetLightState(w http.ResponseWriter, r *http.Request) {
	l, ok := s.lookupLight(w, r)
	if !ok {
		return
	}

	var body LightCommand
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if body.Command == "" {
		writeBadRequest(w, "command field is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.commandTimeout)
	defer cancel()

	err := lifx.Execute(ctx, l, lifx.CommandMessage{
		DeviceID:   light.FormatID(l.ID()),
		Command:    body.Command,
		Parameters: body.Parameters,
		Source:     "api",
	})
	if err != nil {
		s.logger.Debug("light command failed", "light", light.FormatID(l.ID()), "command", body.Command, "error", err)
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newLightView(l.Snapshot()))
}

// writeCommandError maps a command failure onto an HTTP status using the
// same codes the MQTT bridge puts in its acks.
func writeCommandError(w http.ResponseWriter, err error) {
	switch lifx.ErrorCode(err) {
	case lifx.ErrCodeInvalidCommand, lifx.ErrCodeInvalidParameters:
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case lifx.ErrCodeUnsupported:
		fail(w, http.StatusUnprocessableEntity, err.Error())
	case lifx.ErrCodeTimeout:
		fail(w, http.StatusGatewayTimeout, "light did not respond")
	case lifx.ErrCodeNotConnected:
		writeUnavailable(w, "UDP socket not connected")
	default:
		if errors.Is(err, context.DeadlineExceeded) {
			fail(w, http.StatusGatewayTimeout, "command timed out")
			return
		}
		writeInternalError(w, "command failed")
	}
}

// handleGetLightHistory returns the newest change log entries for a light.
func (s *Server) handleGetLightHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeUnavailable(w, "history is not enabled")
		return
	}
	l, ok := s.lookupLight(w, r)
	if !ok {
		return
	}

	limit, err := parseHistoryLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	id := light.FormatID(l.ID())
	entries, err := s.history.GetHistory(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("history query failed", "light", id, "error", err)
		writeInternalError(w, "failed to read history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"light_id": id, "history": entries, "count": len(entries)})
}

// lookupLight resolves {id}; it writes the error response itself.
func (s *Server) lookupLight(w http.ResponseWriter, r *http.Request) (*light.Light, bool) {
	id, err := light.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, "invalid light ID")
		return nil, false
	}
	l, ok := s.lights.Light(id)
	if !ok {
		writeNotFound(w, "light not found")
		return nil, false
	}
	return l, true
}

var (
	errInvalidLimit  = errors.New("invalid limit")
	errLimitTooLarge = errors.New("limit exceeds maximum")
)

func parseHistoryLimit(raw string) (int, error) {
	if raw == "" {
		return defaultHistoryLimit, nil
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, errInvalidLimit
	}
	if limit > maxHistoryLimit {
		return 0, errLimitTooLarge
	}

	return limit, nil
}

// handleListLocations returns the location/group tree.
func (s *Server) handleListLocations(w http.ResponseWriter, _ *http.Request) {
	if s.locations == nil {
		writeUnavailable(w, "location tracking is not enabled")
		return
	}
	locs := s.locations.Locations()
	writeJSON(w, http.StatusOK, map[string]any{"locations": locs, "count": len(locs)})
}

// handleListTiles returns every tracked tile chain.
func (s *Server) handleListTiles(w http.ResponseWriter, _ *http.Request) {
	if s.tiles == nil {
		writeUnavailable(w, "tile tracking is not enabled")
		return
	}
	tiles := s.tiles.Tiles()
	writeJSON(w, http.StatusOK, map[string]any{"tiles": tiles, "count": len(tiles)})
}

// handleGetTile returns one tile chain.
func (s *Server) handleGetTile(w http.ResponseWriter, r *http.Request) {
	if s.tiles == nil {
		writeUnavailable(w, "tile tracking is not enabled")
		return
	}
	id, err := light.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, "invalid light ID")
		return
	}
	t, ok := s.tiles.Tile(id)
	if !ok {
		writeNotFound(w, "tile not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}
