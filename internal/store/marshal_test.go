package store

import (
	"testing"

	"github.com/roach88/depnotify/internal/update"
)

func TestEventRecord_String(t *testing.T) {
	tests := []struct {
		name string
		rec  EventRecord
		want string
	}{
		{
			name: "deliver",
			rec:  EventRecord{Seq: 3, Kind: update.EventDeliver, Subject: "s", Dependent: "d1", Message: update.Changed},
			want: "seq=3 deliver subject=s message=changed dependent=d1",
		},
		{
			name: "done",
			rec:  EventRecord{Seq: 4, Kind: update.EventDone, Subject: "s", Message: update.WillChange},
			want: "seq=4 done subject=s message=will_change",
		},
		{
			name: "overflow",
			rec:  EventRecord{Seq: 1, Kind: update.EventOverflow, Subject: "big", Message: update.Message(42), Dropped: 3},
			want: "seq=1 overflow subject=big message=42 dropped=3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rec.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEventKind_Unknown(t *testing.T) {
	if got := eventKind("future"); got != update.EventKind("future") {
		t.Errorf("eventKind(future) = %q", got)
	}
	if got := eventKind("requeue"); got != update.EventRequeue {
		t.Errorf("eventKind(requeue) = %q", got)
	}
}

func TestUnmarshalMessage(t *testing.T) {
	for _, m := range []update.Message{update.Destroyed, update.WillDestroy, -3} {
		got, err := unmarshalMessage(marshalMessage(m))
		if err != nil {
			t.Fatalf("unmarshalMessage(%v) failed: %v", m, err)
		}
		if got != m {
			t.Errorf("round trip %v = %v", m, got)
		}
	}
	if _, err := unmarshalMessage("not-a-message"); err == nil {
		t.Error("expected error for bad message")
	}
}
