package reporter

import "sync"

// channelCapacity bounds the buffered event channel.
const channelCapacity = 1000

// Reporter merges events from every producer (scanner, executor) in arrival
// order and fans them out to its sinks. The event stream is totally ordered
// per producer; across producers, events interleave in send order — a
// single shared channel is what makes "merges streams in arrival order"
// true without any extra bookkeeping.
type Reporter struct {
	events chan Event
	sinks  []Sink

	wg sync.WaitGroup
}

// New creates a Reporter and starts its dispatch loop. Call Close to drain
// remaining events and shut down every sink.
func New(sinks ...Sink) *Reporter {
	r := &Reporter{
		events: make(chan Event, channelCapacity),
		sinks:  sinks,
	}
	r.wg.Add(1)
	go r.run()
	return r
}

func (r *Reporter) run() {
	defer r.wg.Done()
	for ev := range r.events {
		for _, s := range r.sinks {
			s.Handle(ev)
		}
	}
}

// Emit sends an event to every sink. Safe for concurrent use by multiple
// producers (scanner workers, executor workers).
func (r *Reporter) Emit(ev Event) {
	r.events <- ev
}

// Close signals no more events will be sent, waits for the dispatch loop to
// drain, and closes every sink.
func (r *Reporter) Close() {
	close(r.events)
	r.wg.Wait()
	for _, s := range r.sinks {
		s.Close()
	}
}
