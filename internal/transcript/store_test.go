package transcript

import "testing"

func TestAppendOrderedAndClear(t *testing.T) {
	s := NewStore()
	s.Append(SpeakerUser, "hello")
	s.Append(SpeakerAI, "Hi there")

	got := s.List()
	if len(got) != 2 {
		t.Fatalf("expected 2 utterances, got %d", len(got))
	}
	if got[0].Speaker != SpeakerUser || got[0].Text != "hello" {
		t.Fatalf("unexpected first utterance: %+v", got[0])
	}
	if got[1].Speaker != SpeakerAI || got[1].Text != "Hi there" {
		t.Fatalf("unexpected second utterance: %+v", got[1])
	}
	if got[0].ID == got[1].ID || got[0].ID == "" {
		t.Fatalf("expected unique non-empty IDs")
	}
	if got[1].Timestamp.Before(got[0].Timestamp) {
		t.Fatalf("expected time-ascending transcript")
	}

	s.Clear()
	if s.Len() != 0 {
		t.Fatalf("expected empty transcript after clear")
	}
}

func TestListReturnsCopy(t *testing.T) {
	s := NewStore()
	s.Append(SpeakerUser, "a")
	out := s.List()
	out[0].Text = "mutated"
	if s.List()[0].Text != "a" {
		t.Fatalf("expected store to be unaffected by caller mutation")
	}
}
