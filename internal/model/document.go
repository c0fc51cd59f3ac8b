package model

import "time"

// Document is the extracted form of one uploaded PDF. Raw bytes are not kept.
type Document struct {
	SessionID   string    `json:"session_id"`
	Filename    string    `json:"filename"`
	Text        string    `json:"-"`
	Pages       int       `json:"pages"`
	Size        int64     `json:"size"`
	Fingerprint string    `json:"fingerprint"`
	CreatedAt   time.Time `json:"created_at"`
}

func (d *Document) Characters() int {
	return len([]rune(d.Text))
}
