package idpool

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/puzpuzpuz/xsync/v3"
)

// maxAttempts bounds the number of draws before Fresh gives up
const maxAttempts = 64

// randomPool draws unpredictable ids from crypto/rand
type randomPool struct {
	used *xsync.MapOf[uint32, struct{}]
	read func(b []byte) (int, error)
}

// NewRandomPool creates a pool of unpredictable 32 bit ids
func NewRandomPool() IPool {
	return &randomPool{
		used: xsync.NewMapOf[uint32, struct{}](),
		read: rand.Read,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see idpool.IPool)
// --------------------------------------------------------------------------

func (p *randomPool) Fresh() (uint32, error) {
	var b [4]byte
	for i := 0; i < maxAttempts; i++ {
		if _, err := p.read(b[:]); err != nil {
			return None, fmt.Errorf("failed to read random id: %w", err)
		}
		id := binary.BigEndian.Uint32(b[:])
		if id == None {
			continue
		}
		if _, loaded := p.used.LoadOrStore(id, struct{}{}); !loaded {
			return id, nil
		}
	}
	return None, ErrExhausted
}

func (p *randomPool) Release(id uint32) {
	p.used.Delete(id)
}

func (p *randomPool) InUse(id uint32) bool {
	_, ok := p.used.Load(id)
	return ok
}
