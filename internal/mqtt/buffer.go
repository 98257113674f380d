package mqtt

// bufferedMsg is a serialized message held for replay after reconnection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer keeps the most recent messages published while the broker was
// unreachable. Not safe for concurrent use; the caller must synchronize.
type ringBuffer struct {
	slots   []bufferedMsg
	next    int // write position
	count   int
	dropped bool // set once the oldest entry has been overwritten since the last drain
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{slots: make([]bufferedMsg, capacity)}
}

// push stores msg, overwriting the oldest entry when full. It returns true
// only for the first overwrite since the last drain, so the caller can warn
// once per outage.
func (r *ringBuffer) push(msg bufferedMsg) bool {
	r.slots[r.next] = msg
	r.next = (r.next + 1) % len(r.slots)

	if r.count < len(r.slots) {
		r.count++
		return false
	}
	first := !r.dropped
	r.dropped = true
	return first
}

// drainAll returns the stored messages oldest first and empties the buffer.
func (r *ringBuffer) drainAll() []bufferedMsg {
	if r.count == 0 {
		return nil
	}

	out := make([]bufferedMsg, 0, r.count)
	oldest := (r.next - r.count + len(r.slots)) % len(r.slots)
	for i := 0; i < r.count; i++ {
		out = append(out, r.slots[(oldest+i)%len(r.slots)])
	}

	r.next, r.count, r.dropped = 0, 0, false
	return out
}

func (r *ringBuffer) len() int {
	return r.count
}
