package mqtt

import (
	"fmt"
	"log"
)

// bufferedMsg stores a serialized MQTT message for replay after reconnection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
	timeSec  int // simulation tick of a report; -1 for system events
}

func (m bufferedMsg) isReport() bool {
	return m.timeSec >= 0
}

// outbox holds messages while the broker is unreachable. When full it evicts
// the oldest report; lifecycle events are only evicted when nothing else is
// left. Not safe for concurrent use; caller must synchronize.
type outbox struct {
	msgs     []bufferedMsg
	capacity int
	lost     evictions // since last drain
}

// evictions counts messages pushed out of a full outbox.
type evictions struct {
	reports int
	events  int
}

func newOutbox(capacity int) *outbox {
	return &outbox{
		msgs:     make([]bufferedMsg, 0, capacity),
		capacity: capacity,
	}
}

func (o *outbox) push(msg bufferedMsg) {
	if len(o.msgs) < o.capacity {
		o.msgs = append(o.msgs, msg)
		return
	}

	victim := -1
	for i, m := range o.msgs {
		if m.isReport() {
			victim = i
			break
		}
	}
	if victim >= 0 {
		if o.lost.reports == 0 {
			log.Printf("mqtt: outbox full (%d messages), evicting reports from tick %d", o.capacity, o.msgs[victim].timeSec)
		}
		o.lost.reports++
	} else {
		victim = 0
		log.Printf("mqtt: outbox full of system events, evicting oldest on %s", o.msgs[victim].topic)
		o.lost.events++
	}
	o.msgs = append(o.msgs[:victim], o.msgs[victim+1:]...)
	o.msgs = append(o.msgs, msg)
}

// requeue puts msgs back ahead of anything queued since they were drained.
// Overflow evicts the oldest reports as push does.
func (o *outbox) requeue(msgs []bufferedMsg) {
	queued := o.msgs
	o.msgs = make([]bufferedMsg, 0, o.capacity)
	for _, m := range msgs {
		o.push(m)
	}
	for _, m := range queued {
		o.push(m)
	}
}

// drainAll returns queued messages in arrival order and what was evicted,
// then empties the outbox.
func (o *outbox) drainAll() ([]bufferedMsg, evictions) {
	lost := o.lost
	o.lost = evictions{}
	if len(o.msgs) == 0 {
		return nil, lost
	}

	result := o.msgs
	o.msgs = make([]bufferedMsg, 0, o.capacity)
	return result, lost
}

// span returns the first and last report ticks waiting in the outbox.
// ok is false when no report is queued.
func (o *outbox) span() (first, last int, ok bool) {
	for _, m := range o.msgs {
		if !m.isReport() {
			continue
		}
		if !ok {
			first, ok = m.timeSec, true
		}
		last = m.timeSec
	}
	return first, last, ok
}

func (o *outbox) len() int {
	return len(o.msgs)
}

// reason describes e for a RECONNECTED event, or "" if nothing was lost.
func (e evictions) reason() string {
	switch {
	case e.reports > 0 && e.events > 0:
		return fmt.Sprintf("dropped %d buffered reports and %d system events", e.reports, e.events)
	case e.reports > 0:
		return fmt.Sprintf("dropped %d buffered reports", e.reports)
	case e.events > 0:
		return fmt.Sprintf("dropped %d system events", e.events)
	default:
		return ""
	}
}
