package testutil

import (
	"github.com/roach88/tracked/internal/event"
	"github.com/roach88/tracked/internal/model"
)

// Subscriber is implemented by *model.Entity and *model.Collection.
type Subscriber interface {
	On(name string, fn func(model.Event)) func()
}

// Recorder collects every event raised by the sources it is attached to.
type Recorder struct {
	Events []model.Event
}

// Record attaches a new recorder to every source.
func Record(sources ...Subscriber) *Recorder {
	r := &Recorder{}
	for _, s := range sources {
		s.On(event.All, r.add)
	}
	return r
}

func (r *Recorder) add(ev model.Event) {
	r.Events = append(r.Events, ev)
}

// Names returns the recorded event names in order.
func (r *Recorder) Names() []string {
	names := make([]string, len(r.Events))
	for i, ev := range r.Events {
		names[i] = ev.Name
	}
	return names
}

// Named returns the recorded events with the given name.
func (r *Recorder) Named(name string) []model.Event {
	var out []model.Event
	for _, ev := range r.Events {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

// Count returns how many events with the given name were recorded.
func (r *Recorder) Count(name string) int {
	return len(r.Named(name))
}

// Reset drops the recorded events.
func (r *Recorder) Reset() {
	r.Events = nil
}
