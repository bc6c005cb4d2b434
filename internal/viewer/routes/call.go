package routes

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/teamloop/teamloop/internal/api"
	"github.com/teamloop/teamloop/internal/call"
	"github.com/teamloop/teamloop/internal/ui/render"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 65536,
	// The viewer binds to loopback; the websocket origin check adds nothing.
	CheckOrigin: func(r *http.Request) bool { return true },
}

func registerCallRoutes(mux *http.ServeMux, d Deps) {
	// GET /call/{id}?initiator=... — the in-call page. Opening the page
	// mounts the session (joining the relay room and starting negotiation);
	// reloading it reattaches to the session already in flight.
	mux.HandleFunc("/call/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !requireAuth(w, r, d) {
			return
		}
		callID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/call/"), "/")
		if callID == "" || strings.Contains(callID, "/") {
			http.NotFound(w, r)
			return
		}
		initiatorID := r.URL.Query().Get("initiator")

		sess, err := d.Calls.Open(r.Context(), callID, initiatorID)
		if err != nil {
			log.Printf("CALL [%s]: open failed: %v", callID, err)
			http.Error(w, fmt.Sprintf("call unavailable: %v", err), http.StatusBadGateway)
			return
		}

		render.Render(w, render.CallVM{
			BaseVM:         baseVM("Call", "chat", "call", d),
			CallID:         sess.CallID(),
			InitiatorID:    initiatorID,
			ConversationID: r.URL.Query().Get("c"),
		})
	})

	// POST /api/call/start
	handlePost(mux, "/api/call/start", func(w http.ResponseWriter, r *http.Request, req struct {
		ConversationID string `json:"conversationId"`
	}) {
		if req.ConversationID == "" {
			http.Error(w, "missing conversationId", http.StatusBadRequest)
			return
		}
		sess, err := d.Calls.StartCall(r.Context(), req.ConversationID)
		if err != nil {
			http.Error(w, fmt.Sprintf("start call failed: %v", err), http.StatusBadGateway)
			return
		}
		writeJSON(w, map[string]string{
			"callId":      sess.CallID(),
			"initiatorId": safeCall(d.SelfID),
		})
	})

	// POST /api/call/hangup
	handlePost(mux, "/api/call/hangup", func(w http.ResponseWriter, r *http.Request, req struct {
		CallID string `json:"callId"`
	}) {
		if req.CallID == "" {
			http.Error(w, "missing callId", http.StatusBadRequest)
			return
		}
		sess, ok := d.Calls.GetSession(req.CallID)
		if !ok {
			writeJSON(w, map[string]string{"status": "not_found"})
			return
		}
		sess.Hangup()
		writeJSON(w, map[string]string{"status": "hung_up"})
	})

	// GET /api/call/debug — live session status, loopback only.
	handleGet(mux, "/api/call/debug", func(w http.ResponseWriter, r *http.Request) {
		if !isLocalRequest(r) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		sessions := d.Calls.AllSessions()
		statuses := make([]call.SessionStatus, 0, len(sessions))
		for _, s := range sessions {
			statuses = append(statuses, s.Status())
		}
		writeJSON(w, map[string]any{
			"session_count": len(statuses),
			"sessions":      statuses,
		})
	})

	// GET /api/call/session/{id}/status and /api/call/session/{id}/participants
	mux.HandleFunc("/api/call/session/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		tail := strings.TrimPrefix(r.URL.Path, "/api/call/session/")
		parts := strings.SplitN(tail, "/", 2)
		if len(parts) != 2 || parts[0] == "" {
			http.Error(w, "invalid path", http.StatusBadRequest)
			return
		}
		switch parts[1] {
		case "status":
			sess, ok := d.Calls.GetSession(parts[0])
			if !ok {
				http.Error(w, "session not found", http.StatusNotFound)
				return
			}
			writeJSON(w, sess.Status())
		case "participants":
			people, err := d.API.Calls.Participants(r.Context(), api.ID(parts[0]))
			if err != nil {
				http.Error(w, fmt.Sprintf("participants unavailable: %v", err), http.StatusBadGateway)
				return
			}
			writeJSON(w, people)
		default:
			http.Error(w, "invalid path", http.StatusBadRequest)
		}
	})

	// GET /api/call/events — SSE: incoming-call prompts and call endings.
	// Each connection holds its own subscription, dropped on disconnect.
	handleGet(mux, "/api/call/events", func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}
		sseHeaders(w)

		ch, cancel := d.Calls.SubscribeEvents()
		defer cancel()

		fmt.Fprintf(w, "event: connected\ndata: {}\n\n")
		flusher.Flush()

		ctx := r.Context()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				data, err := json.Marshal(ev)
				if err != nil {
					continue
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data)
				flusher.Flush()
			}
		}
	})

	// GET /api/call/media/{id}/remote and /api/call/media/{id}/self —
	// WebSocket WebM streams for the in-call page's MSE players. First
	// message is the init segment, then clusters.
	mux.HandleFunc("/api/call/media/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		tail := strings.TrimPrefix(r.URL.Path, "/api/call/media/")
		parts := strings.SplitN(tail, "/", 2)
		if len(parts) != 2 || parts[0] == "" {
			http.Error(w, "invalid path", http.StatusBadRequest)
			return
		}
		callID, which := parts[0], parts[1]

		sess, ok := d.Calls.GetSession(callID)
		if !ok {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}

		var dataCh <-chan []byte
		var cancel func()
		switch which {
		case "remote":
			dataCh, cancel = sess.SubscribeRemoteMedia()
		case "self":
			dataCh, cancel = sess.SubscribeSelfMedia()
		default:
			http.Error(w, "unknown media stream", http.StatusNotFound)
			return
		}
		defer cancel()

		// Session lifetime follows viewer attachment: when the last media
		// socket goes away and nobody reattaches within the grace period,
		// the session hangs itself up. A reload reattaches in time.
		detach := sess.ViewerAttach()
		defer detach()

		conn, err := wsUpgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("CALL [%s]: media websocket upgrade: %v", callID, err)
			return
		}
		defer conn.Close()
		log.Printf("CALL [%s]: %s media websocket connected", callID, which)

		// Drain control frames without blocking the write loop.
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-r.Context().Done():
				log.Printf("CALL [%s]: %s media websocket disconnected", callID, which)
				return
			case <-sess.Done():
				return
			case data, ok := <-dataCh:
				if !ok {
					return
				}
				if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
					return
				}
			}
		}
	})
}
