package negotiation

import "github.com/hellomuba/YarnMarket-AI/pkg/models"

// ReplayBuffer is a bounded FIFO of recorded experiences. When full, the
// oldest experience is overwritten.
//
// Not safe for concurrent use; the owning agent serializes access.
type ReplayBuffer struct {
	buf   []models.Experience
	head  int
	count int
}

// DefaultReplayCapacity caps the experience buffer when the configured
// capacity is missing or invalid.
const DefaultReplayCapacity = 10000

func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = DefaultReplayCapacity
	}
	return &ReplayBuffer{buf: make([]models.Experience, capacity)}
}

// Push appends an experience, evicting the oldest if the buffer is full.
func (b *ReplayBuffer) Push(exp models.Experience) {
	b.buf[(b.head+b.count)%len(b.buf)] = exp
	if b.count < len(b.buf) {
		b.count++
	} else {
		b.head = (b.head + 1) % len(b.buf)
	}
}

// Len returns the number of stored experiences.
func (b *ReplayBuffer) Len() int {
	return b.count
}

// Sample draws n experiences uniformly at random (with replacement when the
// buffer is smaller than n the caller should not sample; callers check Len).
func (b *ReplayBuffer) Sample(n int, rng RandomSource) []models.Experience {
	if n > b.count {
		n = b.count
	}
	out := make([]models.Experience, n)
	for i := range out {
		out[i] = b.buf[(b.head+rng.Intn(b.count))%len(b.buf)]
	}
	return out
}
