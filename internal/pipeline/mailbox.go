package pipeline

// mailbox hands completed windows from the sampling loop to the scoring
// loop. It holds at most one window; a newer window replaces an unread one,
// so the producer never blocks and the consumer always scores the latest
// complete window. Only one goroutine may call offer.
type mailbox struct {
	ch chan []float64
}

func newMailbox() *mailbox {
	return &mailbox{ch: make(chan []float64, 1)}
}

// offer delivers w, dropping any window the consumer has not taken yet.
// It returns true if an unread window was replaced.
func (m *mailbox) offer(w []float64) bool {
	replaced := false
	for {
		select {
		case m.ch <- w:
			return replaced
		default:
		}
		select {
		case <-m.ch:
			replaced = true
		default:
		}
	}
}

// take returns the pending window, if any, without blocking.
func (m *mailbox) take() ([]float64, bool) {
	select {
	case w := <-m.ch:
		return w, true
	default:
		return nil, false
	}
}

// pending reports whether a window is waiting.
func (m *mailbox) pending() bool {
	return len(m.ch) > 0
}
