// Package bus broadcasts values from one producer to many consumers.
package bus

import (
	"context"
	"log/slog"
	"sync"
)

// FanOut broadcasts values to N subscriber channels. If a subscriber's
// channel is full, the value is dropped for that subscriber so a slow
// consumer never blocks the producer.
type FanOut[T any] struct {
	mu      sync.RWMutex
	outputs []chan T
	bufSize int
	closed  bool

	// OnDrop is called when a value is dropped for a subscriber.
	// subscriberIdx is the 0-based index of the slow consumer.
	OnDrop func(subscriberIdx int)
}

// New creates a FanOut with the given buffer size for output channels.
func New[T any](outputBufferSize int) *FanOut[T] {
	return &FanOut[T]{
		bufSize: outputBufferSize,
	}
}

// Subscribe creates and returns a new output channel. Subscribing after
// Close returns an already-closed channel.
func (f *FanOut[T]) Subscribe() <-chan T {
	ch := make(chan T, f.bufSize)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		close(ch)
		return ch
	}
	f.outputs = append(f.outputs, ch)
	return ch
}

// Unsubscribe removes and closes a channel returned by Subscribe.
func (f *FanOut[T]) Unsubscribe(sub <-chan T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, ch := range f.outputs {
		if ch == sub {
			f.outputs = append(f.outputs[:i], f.outputs[i+1:]...)
			close(ch)
			return
		}
	}
}

// Publish delivers v to every subscriber without blocking.
func (f *FanOut[T]) Publish(v T) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for i, ch := range f.outputs {
		select {
		case ch <- v:
		default:
			if f.OnDrop != nil {
				f.OnDrop(i)
			} else {
				slog.Warn("bus: subscriber channel full, dropping", "subscriber", i)
			}
		}
	}
}

// Run reads from the input channel and publishes each value.
// Blocks until ctx is cancelled or input is closed, then closes all
// subscriber channels.
func (f *FanOut[T]) Run(ctx context.Context, input <-chan T) {
	defer f.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-input:
			if !ok {
				return
			}
			f.Publish(v)
		}
	}
}

// Close closes every subscriber channel. Further publishes are no-ops.
func (f *FanOut[T]) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for _, ch := range f.outputs {
		close(ch)
	}
	f.outputs = nil
}

// ChannelStat is the (length, capacity) of one subscriber channel.
// Used for reporting channel saturation.
type ChannelStat struct {
	Len int
	Cap int
}

// ChannelStats returns one entry per subscriber.
func (f *FanOut[T]) ChannelStats() []ChannelStat {
	f.mu.RLock()
	defer f.mu.RUnlock()
	stats := make([]ChannelStat, len(f.outputs))
	for i, ch := range f.outputs {
		stats[i] = ChannelStat{Len: len(ch), Cap: cap(ch)}
	}
	return stats
}

// Subscribers returns the current subscriber count.
func (f *FanOut[T]) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.outputs)
}
