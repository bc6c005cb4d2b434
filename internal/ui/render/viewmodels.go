package render

import (
	"html/template"

	"github.com/teamloop/teamloop/internal/api"
)

// BaseVM is embedded by every page view model; the layout template reads it.
type BaseVM struct {
	Title       string
	Active      string
	ContentTmpl string
	SelfName    string
	SelfID      string
	BaseURL     string
	Debug       bool
}

type LoginVM struct {
	Title string
	Error string
}

type HomeVM struct {
	BaseVM
	Conversations []api.Conversation
	Boards        []api.Board
}

type ChatVM struct {
	BaseVM
	Conversations []api.Conversation
	Selected      *api.Conversation
	Messages      []*api.Message
}

type CallVM struct {
	BaseVM
	CallID         string
	ConversationID string
	InitiatorID    string
}

type BoardListVM struct {
	BaseVM
	Boards []api.Board
}

type BoardVM struct {
	BaseVM
	Board *api.Board
}

type WikiVM struct {
	BaseVM
	Categories []api.WikiCategory
	Articles   []api.WikiArticle
	Selected   api.ID
}

type WikiArticleVM struct {
	BaseVM
	Article api.WikiArticle
	HTML    template.HTML
}

type TeamVM struct {
	BaseVM
	Team *api.Team
}

type LogsVM struct {
	BaseVM
}
