package positioning

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSetLogWriters_WhileWorkerRuns(t *testing.T) {
	defer SetLogWriters(nil, nil, nil)

	var out lockedBuffer
	p, clock := newTestProvider(t)
	p.Start(context.Background())
	defer p.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		feed(p, clock, 0, 10)
	}()
	for i := 0; i < 50; i++ {
		if i%2 == 0 {
			SetLogWriters(&out, &out, &out)
		} else {
			SetLogWriters(nil, nil, nil)
		}
	}
	<-done

	SetLogWriters(&out, nil, nil)
	p.Reset()
	assert.Contains(t, out.String(), "[positioning] provider reset")
}
