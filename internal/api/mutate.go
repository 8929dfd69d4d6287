package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/zoravur/ivm-engine/internal/ivm/value"
)

// MutateHandler serves the one-shot mutation endpoint: decode a qualified
// mutator name and its JSON args, run it through the mutation engine, and
// replay its committed diff into the live sources.
type MutateHandler struct {
	deps Deps
}

type mutateRequest struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

// HandleMutate decodes {"name": "namespace.name", "args": {...}}, runs the
// named mutator inside a single transaction via deps.Mutate, and replays
// whatever it committed into deps.Replay so subscribed queries observe it.
func (h *MutateHandler) HandleMutate(w http.ResponseWriter, r *http.Request) {
	var req mutateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Name == "" {
		writeJSONError(w, http.StatusBadRequest, "missing name")
		return
	}

	args, err := decodeArgs(req.Args)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.deps.Mutate.BeginMutation(r.Context(), req.Name, args, h.deps.Replay); err != nil {
		h.deps.Log.Warn("mutation failed", zap.String("name", req.Name), zap.Error(err))
		writeJSONError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"ok": true})
}

// decodeArgs turns the request's raw args JSON into a value.Value, wrapping
// an object as value.JSON since mutators receive their args as a single
// opaque value and destructure it themselves.
func decodeArgs(raw json.RawMessage) (value.Value, error) {
	if len(raw) == 0 {
		return value.Null(), nil
	}
	return value.JSON(raw), nil
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
