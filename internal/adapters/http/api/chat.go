package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/okian/ludus/internal/domain/model"
)

type chatRequest struct {
	Sender  string `json:"sender" validate:"required|maxLen:128"`
	Content string `json:"content" validate:"required"`
}

type chatMessageResponse struct {
	Message model.ChatMessage `json:"message"`
}

type chatMessagesResponse struct {
	Messages []model.ChatMessage `json:"messages"`
}

func (s *Server) handleSendChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	msg, err := s.deps.SendChatMessage(r.Context(), mux.Vars(r)["channel"], model.ChatMessage{
		Sender:  req.Sender,
		Content: req.Content,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chatMessageResponse{Message: msg})
}

func (s *Server) handleReceiveChat(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.deps.ReceiveChatMessages(r.Context(), mux.Vars(r)["channel"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []model.ChatMessage{}
	}
	writeJSON(w, http.StatusOK, chatMessagesResponse{Messages: msgs})
}
