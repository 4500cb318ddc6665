package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"livedirs/internal/logging"
	"livedirs/internal/tree"
)

const (
	wsReadBufferSize  = 1024
	wsWriteBufferSize = 1024
	wsWriteTimeout    = 10 * time.Second
)

// EditsHandler streams the model's merged edit feed over a websocket.
// A kind query parameter (creation, deletion, modification) narrows the
// stream to one edit kind.
type EditsHandler struct {
	Model          *tree.Model
	AuthToken      string
	AllowedOrigins []string
	Logger         *logging.Logger
}

type editPayload struct {
	Type      string    `json:"type"`
	Kind      string    `json:"kind"`
	Base      string    `json:"base"`
	Path      string    `json:"path"`
	Origin    string    `json:"origin,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (handler *EditsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !validateToken(r, handler.AuthToken) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if handler.Model == nil {
		http.Error(w, "edit stream unavailable", http.StatusInternalServerError)
		return
	}

	filter, ok := kindFilter(r.URL.Query().Get("kind"))
	if !ok {
		http.Error(w, "unknown edit kind", http.StatusBadRequest)
		return
	}

	output, cancel := handler.Model.Updates().SubscribeFiltered(filter)
	defer cancel()

	upgrader := websocket.Upgrader{
		ReadBufferSize:  wsReadBufferSize,
		WriteBufferSize: wsWriteBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			return isOriginAllowed(r, handler.AllowedOrigins)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if handler.Logger != nil {
			handler.Logger.Warn("websocket upgrade failed", map[string]string{
				"path":  r.URL.Path,
				"error": err.Error(),
			})
		}
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)

	go func() {
		for {
			select {
			case edit, ok := <-output:
				if !ok {
					return
				}
				if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
					return
				}
				if err := conn.WriteJSON(buildPayload(edit)); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func buildPayload(edit tree.Edit) editPayload {
	payload := editPayload{
		Type:      edit.Type(),
		Kind:      string(edit.Kind),
		Base:      edit.Base,
		Path:      edit.AbsolutePath(),
		Timestamp: edit.Timestamp(),
	}
	if edit.Origin != nil {
		payload.Origin = fmt.Sprint(edit.Origin)
	}
	return payload
}

func kindFilter(kind string) (func(tree.Edit) bool, bool) {
	switch tree.EditKind(kind) {
	case "":
		return nil, true
	case tree.EditCreation, tree.EditDeletion, tree.EditModification:
		return func(edit tree.Edit) bool {
			return edit.Kind == tree.EditKind(kind)
		}, true
	default:
		return nil, false
	}
}
