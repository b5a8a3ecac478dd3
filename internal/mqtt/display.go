package mqtt

import (
	"context"

	"go.uber.org/zap"

	"github.com/sweeney/evm-controller/internal/logic"
)

// Display is a display.Renderer that hands frames to a background
// publisher. Render never blocks: if the publisher is still busy with an
// older frame, the unsent frame is replaced by the newer one.
type Display struct {
	pub    Publisher
	frames chan logic.Frame
	log    *zap.Logger

	failing bool
}

// NewDisplay creates a Display publishing through pub.
func NewDisplay(pub Publisher, log *zap.Logger) *Display {
	if log == nil {
		log = zap.NewNop()
	}
	return &Display{
		pub:    pub,
		frames: make(chan logic.Frame, 1),
		log:    log,
	}
}

// Render queues f for publishing. It must be called from one goroutine.
func (d *Display) Render(f logic.Frame) {
	select {
	case d.frames <- f:
		return
	default:
	}
	// Replace the stale frame.
	select {
	case <-d.frames:
	default:
	}
	select {
	case d.frames <- f:
	default:
	}
}

// Run publishes queued frames until ctx is done.
func (d *Display) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case f := <-d.frames:
			d.publish(f)
		}
	}
}

func (d *Display) publish(f logic.Frame) {
	err := d.pub.PublishFrame(f)
	switch {
	case err != nil && !d.failing:
		d.failing = true
		d.log.Warn("frame publish failing", zap.Error(err))
	case err == nil && d.failing:
		d.failing = false
		d.log.Info("frame publish recovered")
	}
}
