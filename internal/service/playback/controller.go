package playback

import (
	"log"
	"sync"
)

// completionTolerance absorbs inexact end-of-stream positions reported
// by audio backends.
const completionTolerance = 0.5

// Status is a playback progress report. Times are seconds.
type Status struct {
	Playing     bool
	CurrentTime float64
	Duration    float64
}

// Player is one acquired audio resource.
type Player interface {
	Play() error
	Pause() error
	Release() error
}

// Factory creates players. onStatus receives progress reports until the
// player is released; reports must be delivered outside the factory
// call itself.
type Factory interface {
	NewPlayer(ref string, onStatus func(Status)) (Player, error)
}

// Controller owns the single active playback resource. Every acquire is
// paired with exactly one release before the next acquire.
type Controller struct {
	mu       sync.Mutex
	factory  Factory
	activeID string
	player   Player
}

// NewController creates an idle controller.
func NewController(factory Factory) *Controller {
	return &Controller{factory: factory}
}

// ActiveID returns the id of the playing message, or "".
func (c *Controller) ActiveID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeID
}

// Play starts the artifact for id. Calling it again with the active id
// toggles playback off without acquiring a new resource; a different id
// releases the current resource first.
func (c *Controller) Play(ref, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.activeID == id && c.player != nil {
		c.releaseLocked()
		return nil
	}

	if c.player != nil {
		c.releaseLocked()
	}

	player, err := c.factory.NewPlayer(ref, func(status Status) {
		c.onStatus(id, status)
	})
	if err != nil {
		return err
	}

	c.player = player
	c.activeID = id

	if err := player.Play(); err != nil {
		c.releaseLocked()
		return err
	}
	return nil
}

// Stop unconditionally releases any active resource.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.player != nil {
		c.releaseLocked()
	}
}

// onStatus releases the resource once the artifact has effectively
// finished: stopped within half a second of its duration. Reports for a
// superseded id are ignored.
func (c *Controller) onStatus(id string, status Status) {
	if status.Playing || status.Duration <= 0 || status.CurrentTime <= 0 {
		return
	}
	if status.CurrentTime < status.Duration-completionTolerance {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.activeID != id || c.player == nil {
		return
	}
	c.releaseLocked()
}

// releaseLocked pauses and frees the current player. Callers must hold
// c.mu.
func (c *Controller) releaseLocked() {
	if err := c.player.Pause(); err != nil {
		log.Printf("[playback] pause failed: %v", err)
	}
	if err := c.player.Release(); err != nil {
		log.Printf("[playback] release failed: %v", err)
	}
	c.player = nil
	c.activeID = ""
}
