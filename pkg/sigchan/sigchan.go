// Package sigchan 只传递“发生了”而不携带数据的通知；重复通知在未消费前合并为一次。
package sigchan

// Chan 非阻塞的通知 channel
type Chan struct {
	c chan struct{}
}

// New bufferSize 为可合并前累积的通知数，通常为 1
func New(bufferSize int) *Chan {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &Chan{c: make(chan struct{}, bufferSize)}
}

// Emit 发送通知；缓冲已满时丢弃
func (c *Chan) Emit() {
	select {
	case c.c <- struct{}{}:
	default:
	}
}

// C 用于 select
func (c *Chan) C() <-chan struct{} {
	return c.c
}
