package mqtt

import "go.uber.org/zap"

// defaultBufferSize bounds the system events held while disconnected.
const defaultBufferSize = 32

// bufferedMsg stores a serialized MQTT message for replay after reconnection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer is a fixed-capacity FIFO of system events held while the
// broker is unreachable. Frames are never buffered: only the latest frame
// matters and it is republished on reconnect.
// Not safe for concurrent use; RealPublisher holds its mutex.
type ringBuffer struct {
	buf      []bufferedMsg
	head     int // next write position
	count    int
	dropped  int
	overflow bool // true if any message was dropped since last drain
	log      *zap.Logger
}

func newRingBuffer(capacity int, log *zap.Logger) *ringBuffer {
	if capacity <= 0 {
		capacity = defaultBufferSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ringBuffer{
		buf: make([]bufferedMsg, capacity),
		log: log,
	}
}

func (r *ringBuffer) push(msg bufferedMsg) {
	capacity := len(r.buf)
	r.buf[r.head] = msg
	r.head = (r.head + 1) % capacity
	if r.count < capacity {
		r.count++
		return
	}
	// Full: the write above replaced the oldest entry.
	r.dropped++
	if !r.overflow {
		r.log.Warn("buffer full, dropping oldest", zap.Int("capacity", capacity))
		r.overflow = true
	}
}

func (r *ringBuffer) drainAll() []bufferedMsg {
	if r.count == 0 {
		return nil
	}

	capacity := len(r.buf)
	result := make([]bufferedMsg, r.count)
	start := (r.head - r.count + capacity) % capacity
	for i := range result {
		result[i] = r.buf[(start+i)%capacity]
		r.buf[(start+i)%capacity] = bufferedMsg{}
	}

	r.count = 0
	r.head = 0
	r.overflow = false
	return result
}

func (r *ringBuffer) len() int {
	return r.count
}
