package presence

import (
	"errors"
	"sort"
	"time"
)

// Domain errors
var (
	ErrEmptyUserID = errors.New("presence user ID is required")
	ErrEmptyRole   = errors.New("presence role is required")
)

// Record announces one connected staff member on a topic.
// Records live only as long as the subscription that tracked them.
type Record struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	JoinedAt    time.Time `json:"joined_at"`
}

// Validate checks if the Record has valid data.
// PRE: Record struct is populated
// POST: Returns nil if valid, error otherwise
func (r *Record) Validate() error {
	if r.UserID == "" {
		return ErrEmptyUserID
	}
	if r.Role == "" {
		return ErrEmptyRole
	}
	if r.JoinedAt.IsZero() {
		return errors.New("joined_at must be set")
	}
	return nil
}

// Sort orders records by JoinedAt, then UserID.
func Sort(records []Record) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].JoinedAt.Equal(records[j].JoinedAt) {
			return records[i].UserID < records[j].UserID
		}
		return records[i].JoinedAt.Before(records[j].JoinedAt)
	})
}

// Roster is the locally observed online set for one topic.
// It is only ever replaced wholesale from a server snapshot.
type Roster struct {
	records []Record
	byUser  map[string]Record
}

// NewRoster creates an empty Roster.
func NewRoster() *Roster {
	return &Roster{byUser: make(map[string]Record)}
}

// Replace swaps the online set for the given snapshot.
// PRE: snapshot is the full server-side roster
// POST: Roster contains exactly the snapshot's users
func (r *Roster) Replace(snapshot []Record) {
	records := make([]Record, 0, len(snapshot))
	byUser := make(map[string]Record, len(snapshot))
	for _, rec := range snapshot {
		if _, dup := byUser[rec.UserID]; dup {
			continue
		}
		byUser[rec.UserID] = rec
		records = append(records, rec)
	}
	Sort(records)
	r.records = records
	r.byUser = byUser
}

// Clear empties the roster.
func (r *Roster) Clear() {
	r.records = nil
	r.byUser = make(map[string]Record)
}

// Online reports whether userID is in the roster.
func (r *Roster) Online(userID string) bool {
	_, ok := r.byUser[userID]
	return ok
}

// Records returns a copy of the online set in roster order.
func (r *Roster) Records() []Record {
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}
