package chat

import "testing"

func TestTranscriptAppendPreservesOrder(t *testing.T) {
	var tr Transcript
	tr.Append(RoleUser, "q1")
	tr.Append(RoleAssistant, "a1")
	tr.Append(RoleUser, "q2")

	entries := tr.Entries()
	want := []Entry{
		{Role: RoleUser, Content: "q1"},
		{Role: RoleAssistant, Content: "a1"},
		{Role: RoleUser, Content: "q2"},
	}
	if len(entries) != len(want) {
		t.Fatalf("len = %d; want %d", len(entries), len(want))
	}
	for i := range want {
		if entries[i] != want[i] {
			t.Fatalf("entry %d = %+v; want %+v", i, entries[i], want[i])
		}
	}
}

func TestTranscriptEntriesReturnsCopy(t *testing.T) {
	var tr Transcript
	tr.Append(RoleUser, "original")

	entries := tr.Entries()
	entries[0].Content = "mutated"

	if got := tr.Entries()[0].Content; got != "original" {
		t.Fatalf("caller mutation leaked into transcript: %q", got)
	}
}

func TestTranscriptRestoreReplacesState(t *testing.T) {
	var tr Transcript
	tr.Append(RoleUser, "old")

	tr.Restore([]Entry{{Role: RoleUser, Content: "new"}, {Role: RoleAssistant, Content: "reply"}})
	if tr.Len() != 2 || tr.Entries()[0].Content != "new" {
		t.Fatalf("restore did not replace state: %+v", tr.Entries())
	}

	tr.Restore(nil)
	if tr.Len() != 0 {
		t.Fatalf("restore(nil) left %d entries", tr.Len())
	}
}

func TestTranscriptTruncateDropsTail(t *testing.T) {
	var tr Transcript
	tr.Append(RoleUser, "q1")
	tr.Append(RoleAssistant, "a1")
	tr.Append(RoleUser, "staged")

	tr.truncate(2)
	entries := tr.Entries()
	if len(entries) != 2 || entries[1].Content != "a1" {
		t.Fatalf("truncate left %+v", entries)
	}
}
