package model

// Player is one entry in the canonical college roster the matcher resolves
// source names against.
type Player struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	TeamID   string `json:"team_id"`
	Position string `json:"position"`
	Jersey   string `json:"jersey,omitempty"`
	Season   int    `json:"season"`
}
