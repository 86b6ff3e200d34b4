package models

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a conversation. Data is only set on assistant
// messages produced by a successful query.
type Message struct {
	ID        string       `json:"id"`
	Role      Role         `json:"role"`
	Content   string       `json:"content"`
	Data      *QueryResult `json:"data,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// QueryResult is the normalized answer returned by the Answer Service
type QueryResult struct {
	Answer           string       `json:"answer"`
	SimplifiedAnswer string       `json:"simplified_answer,omitempty"`
	ActionSteps      []ActionStep `json:"action_steps,omitempty"`
	Sources          []Source     `json:"sources"`
}

type ActionStep struct {
	StepNumber  int    `json:"step_number"`
	Description string `json:"description"`
}

// Source is a cited legal provision. Fields keeps the element exactly as the
// service returned it.
type Source struct {
	Title   string         `json:"title"`
	Section string         `json:"section"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// User is the session record of a signed-in user. It never carries a password.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// Account is an entry of the persisted account list
type Account struct {
	User
	PasswordHash string `json:"passwordHash"`
}
