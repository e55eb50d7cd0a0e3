package update

import "github.com/roach88/depnotify/internal/identity"

// DefaultMaxDependents caps a single dispatch snapshot.
const DefaultMaxDependents = 10240

// dispatchFrame is the live snapshot for one in-flight TriggerUpdates.
// Slots are set to nil when their dependent is removed mid-dispatch.
type dispatchFrame struct {
	subject    identity.Identity
	dependents []Dependent
}

// dispatchStack holds the frames of all in-flight dispatches.
//
// Frames from different goroutines interleave, so pop removes a specific
// frame rather than assuming LIFO order. Must be used with the engine lock
// held.
type dispatchStack struct {
	frames []*dispatchFrame
}

func (s *dispatchStack) push(f *dispatchFrame) {
	s.frames = append(s.frames, f)
}

func (s *dispatchStack) pop(f *dispatchFrame) {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if s.frames[i] == f {
			copy(s.frames[i:], s.frames[i+1:])
			s.frames[len(s.frames)-1] = nil
			s.frames = s.frames[:len(s.frames)-1]
			return
		}
	}
}

// active reports whether id is being dispatched right now.
func (s *dispatchStack) active(id identity.Identity) bool {
	for _, f := range s.frames {
		if f.subject == id {
			return true
		}
	}
	return false
}

func (s *dispatchStack) depth() int {
	return len(s.frames)
}

// scrub clears snapshot slots so removed dependents are skipped by running
// dispatches. A zero subject matches every frame; a nil d matches every
// slot of the matching frames. Returns the number of slots cleared.
func (s *dispatchStack) scrub(subject identity.Identity, d Dependent) int {
	cleared := 0
	for _, f := range s.frames {
		if !subject.IsZero() && f.subject != subject {
			continue
		}
		for i, dep := range f.dependents {
			if dep == nil {
				continue
			}
			if d == nil || dep == d {
				f.dependents[i] = nil
				cleared++
			}
		}
	}
	return cleared
}
