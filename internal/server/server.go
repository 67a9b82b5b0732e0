// Package server exposes the document API and the per-document websocket
// endpoint that feeds the session hub.
package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/Henryk91/bpmn-collaborator/internal/session"
	"github.com/Henryk91/bpmn-collaborator/internal/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type Server struct {
	st  store.Store
	reg *session.Registry
}

func New(st store.Store, reg *session.Registry) *Server {
	return &Server{st: st, reg: reg}
}

// Router wires all routes. The websocket path carries the document id; the
// optional user_name query parameter requests a display name.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(loggingMiddleware)
	r.Methods(http.MethodGet).Path("/api/diagrams").HandlerFunc(s.listDiagrams)
	r.Methods(http.MethodPost).Path("/api/diagrams").HandlerFunc(s.createDiagram)
	r.Methods(http.MethodGet).Path("/api/diagrams/{id}").HandlerFunc(s.getDiagram)
	r.Methods(http.MethodGet).Path("/ws/{id}").HandlerFunc(s.serveWS)
	return r
}

type diagramJSON struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	XML       string `json:"xml,omitempty"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func toJSON(d store.Document, withContent bool) diagramJSON {
	out := diagramJSON{
		ID:        d.ID,
		Name:      d.Name,
		CreatedAt: d.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: d.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if withContent {
		out.XML = d.Content
	}
	return out
}

func (s *Server) listDiagrams(w http.ResponseWriter, r *http.Request) {
	docs, err := s.st.List(r.Context())
	if err != nil {
		log.Printf("list diagrams: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	items := make([]diagramJSON, 0, len(docs))
	for _, d := range docs {
		items = append(items, toJSON(d, false))
	}
	writeJSON(w, http.StatusOK, map[string]any{"diagrams": items})
}

func (s *Server) getDiagram(w http.ResponseWriter, r *http.Request) {
	doc, err := s.st.Get(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Diagram not found")
		return
	}
	if err != nil {
		log.Printf("get diagram: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, toJSON(doc, true))
}

type createRequest struct {
	Name       string `json:"name"`
	InitialXML string `json:"initial_xml"`
}

func (s *Server) createDiagram(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if n := utf8.RuneCountInString(req.Name); n == 0 || n > 200 {
		writeError(w, http.StatusBadRequest, "name must be 1-200 characters")
		return
	}
	doc, err := s.st.Create(r.Context(), req.Name, req.InitialXML)
	if err != nil {
		log.Printf("create diagram: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusCreated, toJSON(doc, true))
}

// serveWS upgrades the connection and attaches the client to the document's
// session. An unknown document id closes the socket with a policy violation,
// mirroring the HTTP 404.
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	docID := mux.Vars(r)["id"]
	userName := r.URL.Query().Get("user_name")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade: %v", err)
		return
	}

	sess, client, err := s.reg.Join(r.Context(), docID, userName)
	if err != nil {
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "Diagram not found")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		conn.Close()
		return
	}

	go writePump(conn, client)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("ws read: %v", err)
			}
			break
		}
		sess.Handle(client, raw)
	}
	s.reg.Leave(sess, client)
	conn.Close()
}

// writePump drains the session outbox into the socket. It ends when the
// session closes the outbox, which also closes the connection and unblocks
// the read loop.
func writePump(conn *websocket.Conn, client *session.Client) {
	defer conn.Close()
	for raw := range client.Outbox() {
		if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
			return
		}
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
