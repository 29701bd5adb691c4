// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"spectrum/internal/log"
	"spectrum/internal/transport"
)

// DefaultQueueSize is the number of frames buffered between Send and the
// publishing goroutine.
const DefaultQueueSize = 64

// Publisher packs spectrum frames into datagrams and sends them through a
// Sender. Send only queues; a goroutine started by Start does the packing
// and writing, so a slow network never stalls the caller.
type Publisher struct {
	sender *Sender
	queue  chan transport.Frame
	log    *log.Logger

	doneChan chan struct{}  // closed to stop the publishing goroutine
	running  bool           // guarded by mu
	stopOnce sync.Once      // Ensures the stop logic runs only once per Start/Stop cycle.
	wg       sync.WaitGroup // Waits for the publishing goroutine during Stop.
	mu       sync.Mutex     // Protects running and doneChan during Start/Stop.

	sequenceNum uint32 // owned by the publishing goroutine
	dropped     atomic.Int64
	sent        atomic.Int64

	// Reused by the publishing goroutine only.
	f32Buffer    []float32
	packetBuffer *bytes.Buffer
}

// NewPublisher creates a Publisher writing to sender. A non-positive
// queueSize selects DefaultQueueSize.
func NewPublisher(sender *Sender, queueSize int) (*Publisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("udp publisher: sender cannot be nil")
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Publisher{
		sender:       sender,
		queue:        make(chan transport.Frame, queueSize),
		log:          log.WithComponent("udp.publisher"),
		packetBuffer: new(bytes.Buffer),
	}, nil
}

// Start launches the publishing goroutine. Calling it while running is a
// no-op.
func (p *Publisher) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		p.log.Warnf("Start called but already running")
		return
	}
	p.running = true
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}
	doneChan := p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case frame := <-p.queue:
				p.publish(frame)
			case <-doneChan:
				p.drain()
				return
			}
		}
	}()
}

// drain publishes whatever is still queued at stop time.
func (p *Publisher) drain() {
	for {
		select {
		case frame := <-p.queue:
			p.publish(frame)
		default:
			return
		}
	}
}

// Stop signals the publishing goroutine, which flushes the queue, and waits
// for it to exit. Calling it when not running is a no-op.
func (p *Publisher) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.running = false
	})
	p.mu.Unlock()

	p.wg.Wait()
	p.log.Debugf("stopped: %d packets sent, %d frames dropped", p.sent.Load(), p.dropped.Load())
	return nil
}

// Send queues a transport.Frame for publishing. Frames arriving while the
// queue is full are dropped, except the terminal frame, which waits briefly
// so receivers see the end of the run.
func (p *Publisher) Send(data any) error {
	frame, ok := data.(transport.Frame)
	if !ok {
		return fmt.Errorf("udp publisher: unsupported message %T", data)
	}
	if len(frame.Magnitudes) > MaxMagnitudes {
		return fmt.Errorf("udp publisher: %d magnitudes exceed the packet limit of %d", len(frame.Magnitudes), MaxMagnitudes)
	}

	if frame.Terminal() {
		select {
		case p.queue <- frame:
		case <-time.After(100 * time.Millisecond):
			p.dropped.Add(1)
		}
		return nil
	}
	select {
	case p.queue <- frame:
	default:
		p.dropped.Add(1)
	}
	return nil
}

// publish packs and sends one frame.
func (p *Publisher) publish(frame transport.Frame) {
	if cap(p.f32Buffer) < len(frame.Magnitudes) {
		p.f32Buffer = make([]float32, len(frame.Magnitudes))
	}
	mags := p.f32Buffer[:len(frame.Magnitudes)]
	for i, v := range frame.Magnitudes {
		mags[i] = float32(v)
	}

	p.sequenceNum++
	err := appendPacket(p.packetBuffer, Packet{
		Sequence:   p.sequenceNum,
		FrameIndex: int32(frame.Index),
		Timestamp:  time.Now().UnixNano(),
		Magnitudes: mags,
	})
	if err != nil {
		p.log.Errorf("packing frame %d: %v", frame.Index, err)
		return
	}

	// Sender logs its own failures.
	if err := p.sender.Send(p.packetBuffer.Bytes()); err == nil {
		p.sent.Add(1)
	}
}

// Dropped returns the number of frames discarded on a full queue.
func (p *Publisher) Dropped() int64 {
	return p.dropped.Load()
}

// Close stops the publisher. The sender stays open; its owner closes it.
func (p *Publisher) Close() error {
	return p.Stop()
}

var _ transport.Transport = (*Publisher)(nil)
