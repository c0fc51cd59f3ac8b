package model

import "time"

type Turn struct {
	Index     int       `json:"index"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
}

// TurnEvent is published once a turn has been appended to a session.
type TurnEvent struct {
	SessionID   string    `json:"session_id"`
	Filename    string    `json:"filename"`
	Fingerprint string    `json:"fingerprint"`
	Index       int       `json:"index"`
	Question    string    `json:"question"`
	Answer      string    `json:"answer"`
	CreatedAt   time.Time `json:"created_at"`
}
