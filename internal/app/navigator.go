package app

import (
	"fmt"
	"sync"

	"quiz-attempt/internal/domain"
)

// Navigator is a cursor over the ordered question list.
type Navigator struct {
	mu    sync.Mutex
	index int
	total int
}

func NewNavigator(total int) *Navigator {
	return &Navigator{total: total}
}

// Current returns the displayed question index.
func (n *Navigator) Current() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.index
}

// Next advances one question. At the last question it stays put and returns atEnd,
// which callers turn into the confirmation gate.
func (n *Navigator) Next() (index int, atEnd bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.index >= n.total-1 {
		return n.index, true
	}
	n.index++
	return n.index, false
}

// Previous moves back one question; a no-op at the first one.
func (n *Navigator) Previous() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.index > 0 {
		n.index--
	}
	return n.index
}

// JumpTo moves to index, rejecting anything outside [0, total-1].
func (n *Navigator) JumpTo(index int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if index < 0 || index >= n.total {
		return fmt.Errorf("%w: %d not in [0, %d)", domain.ErrIndexOutOfRange, index, n.total)
	}
	n.index = index
	return nil
}
