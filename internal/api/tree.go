package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zefau/huesync/internal/tree"
)

// NodeView is the JSON shape of a state tree node.
type NodeView struct {
	Path  string    `json:"path"`
	Meta  tree.Meta `json:"meta"`
	Value any       `json:"value"`
}

// handleListTree returns every node in the state tree, optionally
// filtered by a path prefix (?prefix=lights).
func (s *Server) handleListTree(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")

	nodes := s.store.Snapshot()
	views := make([]NodeView, 0, len(nodes))
	for _, n := range nodes {
		if prefix != "" && !strings.HasPrefix(n.Path, prefix) {
			continue
		}
		views = append(views, NodeView{Path: n.Path, Meta: n.Meta, Value: n.Value})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"nodes": views,
		"count": len(views),
	})
}

// handleGetNode returns a single node. Slashes in the URL are
// interchangeable with the tree's dot separators, so both
// /tree/lights.001-spot.state.bri and /tree/lights/001-spot/state/bri
// address the same node.
func (s *Server) handleGetNode(w http.ResponseWriter, r *http.Request) {
	path := nodePath(r)

	meta, ok := s.store.GetMeta(path)
	if !ok {
		writeNotFound(w, "no node at "+path)
		return
	}
	value, _ := s.store.Get(path)

	writeJSON(w, http.StatusOK, NodeView{Path: path, Meta: meta, Value: value})
}

// handleSetNode writes a value to a writable node. The body is the bare
// value — JSON if it parses, otherwise the raw text — matching the MQTT
// set topic payload format. The write feeds the same store handlers as
// an MQTT set, so it produces the same bridge command.
func (s *Server) handleSetNode(w http.ResponseWriter, r *http.Request) {
	path := nodePath(r)

	if _, ok := s.store.GetMeta(path); !ok {
		writeNotFound(w, "no node at "+path)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "reading request body: "+err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeBadRequest(w, "empty request body")
		return
	}

	if !s.store.Write(path, decodeValue(body)) {
		writeForbidden(w, "node is not writable: "+path)
		return
	}

	value, _ := s.store.Get(path)
	writeJSON(w, http.StatusOK, map[string]any{
		"path":  path,
		"value": value,
	})
}

// nodePath extracts the tree path from the request URL, mapping URL
// slashes to dot separators.
func nodePath(r *http.Request) string {
	wild := strings.Trim(chi.URLParam(r, "*"), "/")
	return strings.ReplaceAll(wild, "/", ".")
}

// decodeValue interprets a request body the way the MQTT mirror
// interprets set payloads: JSON when it parses, raw string otherwise.
func decodeValue(body []byte) any {
	trimmed := bytes.TrimSpace(body)
	var value any
	if err := json.Unmarshal(trimmed, &value); err != nil {
		return string(trimmed)
	}
	return value
}
