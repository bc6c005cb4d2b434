package routes

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/teamloop/teamloop/internal/api"
	"github.com/teamloop/teamloop/internal/ui/render"
)

// wireMessage is what the chat page consumes: the message itself plus
// whether the viewer's own user sent it.
type wireMessage struct {
	*api.Message
	Mine bool `json:"mine"`
}

func registerChatRoutes(mux *http.ServeMux, d Deps) {
	mux.HandleFunc("/chat", func(w http.ResponseWriter, r *http.Request) {
		if !requireAuth(w, r, d) {
			return
		}

		convs, err := d.Chat.Conversations(r.Context())
		if err != nil {
			log.Printf("CHAT: conversations: %v", err)
		}

		vm := render.ChatVM{
			BaseVM:        baseVM("Chat", "chat", "chat", d),
			Conversations: convs,
		}

		selected := r.URL.Query().Get("c")
		if selected == "" && len(convs) > 0 {
			selected = convs[0].ID.String()
		}
		for i := range convs {
			if convs[i].ID.String() == selected {
				vm.Selected = &convs[i]
				break
			}
		}
		if vm.Selected != nil {
			msgs, err := d.Chat.History(r.Context(), vm.Selected.ID)
			if err != nil {
				log.Printf("CHAT: history %s: %v", selected, err)
			}
			vm.Messages = msgs
		}

		render.Render(w, vm)
	})

	handleGet(mux, "/api/chat/conversations", func(w http.ResponseWriter, r *http.Request) {
		convs, err := d.Chat.Conversations(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		writeJSON(w, convs)
	})

	// GET /api/chat/history?c=ID
	handleGet(mux, "/api/chat/history", func(w http.ResponseWriter, r *http.Request) {
		convID := r.URL.Query().Get("c")
		if convID == "" {
			http.Error(w, "missing conversation id", http.StatusBadRequest)
			return
		}
		msgs, err := d.Chat.History(r.Context(), api.ID(convID))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		writeJSON(w, msgs)
	})

	handlePost(mux, "/api/chat/send", func(w http.ResponseWriter, r *http.Request, req struct {
		ConversationID string `json:"conversationId"`
		Content        string `json:"content"`
	}) {
		if req.ConversationID == "" || req.Content == "" {
			http.Error(w, "missing conversationId or content", http.StatusBadRequest)
			return
		}
		msg, err := d.Chat.Send(r.Context(), api.ID(req.ConversationID), req.Content)
		if err != nil {
			http.Error(w, fmt.Sprintf("send failed: %v", err), http.StatusBadGateway)
			return
		}
		writeJSON(w, wireMessage{Message: msg, Mine: true})
	})

	// GET /api/chat/events?c=ID — SSE stream of new messages for one
	// conversation. Each connection holds its own subscription.
	handleGet(mux, "/api/chat/events", func(w http.ResponseWriter, r *http.Request) {
		convID := r.URL.Query().Get("c")
		if convID == "" {
			http.Error(w, "missing conversation id", http.StatusBadRequest)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}
		sseHeaders(w)

		ch, cancel := d.Chat.Subscribe()
		defer cancel()

		fmt.Fprintf(w, "event: connected\ndata: {}\n\n")
		flusher.Flush()

		ctx := r.Context()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if msg.ConversationID.String() != convID {
					continue
				}
				data, err := json.Marshal(wireMessage{
					Message: msg,
					Mine:    d.Chat.Mine(msg),
				})
				if err != nil {
					continue
				}
				fmt.Fprintf(w, "event: message\ndata: %s\n\n", data)
				flusher.Flush()
			}
		}
	})
}
