package chat

// Role tags for transcript entries. The wire format expects exactly these
// strings.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Entry is one role-tagged message in a room's transcript.
type Entry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Transcript is the ordered, append-only message history of one room. The
// exact sequence of entries is sent verbatim to the completion backend on
// every turn, so the backend always sees full history.
//
// Transcript performs no role-alternation validation; the session controller
// is the only writer and maintains the user/assistant alternation invariant.
// Transcript is not safe for concurrent use; callers hold the room lock.
type Transcript struct {
	entries []Entry
}

// Append adds one entry at the end.
func (t *Transcript) Append(role, content string) {
	t.entries = append(t.entries, Entry{Role: role, Content: content})
}

// Len returns the number of entries.
func (t *Transcript) Len() int { return len(t.entries) }

// Entries returns a copy of the ordered entries, used verbatim as the
// completion request payload.
func (t *Transcript) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Restore replaces the contents wholesale, preserving the given order. Used
// when rehydrating from the persistence gateway.
func (t *Transcript) Restore(entries []Entry) {
	t.entries = make([]Entry, len(entries))
	copy(t.entries, entries)
}

// truncate drops entries beyond n. Used to retract a tentative append when a
// completion call fails.
func (t *Transcript) truncate(n int) {
	if n < 0 {
		n = 0
	}
	if n < len(t.entries) {
		t.entries = t.entries[:n]
	}
}
