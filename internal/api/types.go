package api

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ID is an opaque backend identifier. The backend emits both JSON numbers and
// strings for ids depending on the endpoint, so ID accepts either on the wire
// and always renders as a string locally.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*id = ""
		return nil
	}
	if len(s) > 0 && s[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*id = ID(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// Int returns the id as an integer, or -1 if it is not numeric.
func (id ID) Int() int64 {
	n, err := strconv.ParseInt(string(id), 10, 64)
	if err != nil {
		return -1
	}
	return n
}

// User is a backend user record.
type User struct {
	ID        ID     `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

// DisplayName returns "First Last", falling back to the email address.
func (u User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Email
	}
	return name
}

// Team is the user's team with its member roster. The backend serializes
// the roster under the capitalized "Users" key.
type Team struct {
	ID      ID     `json:"id"`
	Name    string `json:"name"`
	Members []User `json:"Users"`
}

// Conversation is a chat thread between team members.
type Conversation struct {
	ID      ID     `json:"id"`
	Title   string `json:"title"`
	Members []User `json:"members,omitempty"`
}

// Message is one chat message within a conversation.
type Message struct {
	ID             ID     `json:"id"`
	ConversationID ID     `json:"conversationId"`
	SenderID       ID     `json:"senderId"`
	SenderName     string `json:"senderName,omitempty"`
	Content        string `json:"content"`
	SentAt         int64  `json:"sentAt"` // unix millis
}

// Board is a kanban board with its columns and tasks.
type Board struct {
	ID      ID       `json:"id"`
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

type Column struct {
	ID    ID     `json:"id"`
	Name  string `json:"name"`
	Order int    `json:"order"`
	Tasks []Task `json:"tasks"`
}

type Task struct {
	ID          ID     `json:"id"`
	ColumnID    ID     `json:"columnId"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	AssigneeID  ID     `json:"assigneeId,omitempty"`
	Order       int    `json:"order"`
}

// WikiCategory groups wiki articles.
type WikiCategory struct {
	ID   ID     `json:"id"`
	Name string `json:"name"`
}

// WikiArticle is one wiki page. Body is markdown.
type WikiArticle struct {
	ID         ID     `json:"id"`
	CategoryID ID     `json:"categoryId"`
	Title      string `json:"title"`
	Body       string `json:"body"`
	UpdatedAt  int64  `json:"updatedAt"` // unix millis
}

// Call is one active or historical call tied to a conversation.
// InitiatorID is immutable once set; state transitions are backend-owned.
type Call struct {
	ID             ID     `json:"id"`
	ConversationID ID     `json:"conversationId"`
	InitiatorID    ID     `json:"initiatorId"`
	Type           string `json:"type"`
	Status         string `json:"status"` // created, active, ended
}

// CallParticipant is a user's membership in a call.
type CallParticipant struct {
	UserID    ID     `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	JoinTime  string `json:"joinTime"`
}
