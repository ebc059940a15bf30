package domain

import "time"

// QuarantineEntry keeps uploaded data that could not be loaded, together with
// why. A validation failure quarantines one row; a loader failure quarantines
// the whole chunk and leaves RowIndex nil.
type QuarantineEntry struct {
	ID         string    `json:"id"`
	Table      string    `json:"table"`
	Source     string    `json:"source"`
	ChunkIndex int       `json:"chunk_index"`
	RowIndex   *int      `json:"row_index,omitempty"`
	Payload    string    `json:"payload"`
	Error      string    `json:"error"`
	CreatedAt  time.Time `json:"created_at"`
}
