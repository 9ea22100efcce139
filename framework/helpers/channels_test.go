package helpers

import (
	"testing"
	"time"

	"github.com/quic-interop/interop-harness/framework/opt"

	"github.com/stretchr/testify/assert"
)

func TestTryReceive(t *testing.T) {
	ch := make(chan string, 1)
	assert.Equal(t, opt.None[string](), TryReceive(ch, time.Millisecond))

	ch <- "a"
	assert.Equal(t, opt.Some("a"), TryReceive(ch, time.Millisecond))

	go func() {
		time.Sleep(time.Millisecond * 50)
		ch <- "b"
	}()
	assert.Equal(t, opt.Some("b"), TryReceive(ch, time.Second))
}

func TestRequireValue(t *testing.T) {
	ch := make(chan int, 1)
	ch <- 3
	assert.Equal(t, 3, RequireValue(t, ch, time.Second, "timed out"))
}
