package core

import (
	"fmt"
	"sync"
)

// IdentifierPool hands out small integer ids, reusing released slots first.
// The streaming manager uses it for runtime resource ids.
type IdentifierPool struct {
	mu     sync.Mutex
	owners []interface{}
}

func NewIdentifierPool(initialSize int) *IdentifierPool {
	return &IdentifierPool{
		owners: make([]interface{}, 0, initialSize),
	}
}

func (p *IdentifierPool) Acquire(owner interface{}) uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.owners {
		// Existing free spot. Take it.
		if p.owners[i] == nil {
			p.owners[i] = owner
			return uint32(i)
		}
	}

	// No free slots, the id is the new tail.
	p.owners = append(p.owners, owner)
	return uint32(len(p.owners) - 1)
}

func (p *IdentifierPool) Release(id uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if int(id) >= len(p.owners) {
		return fmt.Errorf("identifier release: id '%d' out of range (max=%d). Nothing was done", id, len(p.owners))
	}
	if p.owners[id] == nil {
		return fmt.Errorf("identifier release: id '%d' is not in use. Nothing was done", id)
	}
	// Just zero out the entry, making it available for use.
	p.owners[id] = nil
	return nil
}

func (p *IdentifierPool) Owner(id uint32) interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	if int(id) >= len(p.owners) {
		return nil
	}
	return p.owners[id]
}

func (p *IdentifierPool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, o := range p.owners {
		if o != nil {
			n++
		}
	}
	return n
}
