package store

import (
	"fmt"
	"strings"

	"github.com/roach88/depnotify/internal/update"
)

// marshalMessage stores reserved messages by name and the rest as decimals,
// so the column stays readable from the sqlite3 shell.
func marshalMessage(m update.Message) string {
	return m.String()
}

func unmarshalMessage(s string) (update.Message, error) {
	m, err := update.ParseMessage(s)
	if err != nil {
		return 0, fmt.Errorf("unmarshal message: %w", err)
	}
	return m, nil
}

var knownKinds = map[string]update.EventKind{
	string(update.EventDeliver):  update.EventDeliver,
	string(update.EventDone):     update.EventDone,
	string(update.EventDefer):    update.EventDefer,
	string(update.EventCoalesce): update.EventCoalesce,
	string(update.EventCancel):   update.EventCancel,
	string(update.EventRequeue):  update.EventRequeue,
	string(update.EventOverflow): update.EventOverflow,
}

// eventKind maps a stored kind back to its constant. Unknown kinds from a
// newer writer are kept verbatim.
func eventKind(s string) update.EventKind {
	if k, ok := knownKinds[s]; ok {
		return k
	}
	return update.EventKind(s)
}

// String renders the record as one trace line:
//
//	seq=3 deliver subject=s message=changed dependent=d1
//
// The format is stable; golden files depend on it.
func (r EventRecord) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "seq=%d %s subject=%s message=%s", r.Seq, r.Kind, r.Subject, r.Message)
	if r.Dependent != "" {
		fmt.Fprintf(&b, " dependent=%s", r.Dependent)
	}
	if r.Dropped > 0 {
		fmt.Fprintf(&b, " dropped=%d", r.Dropped)
	}
	return b.String()
}
