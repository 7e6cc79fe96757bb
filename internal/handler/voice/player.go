package voice

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/voidworks/venting-vault/backend/internal/service/playback"
)

// timedFactory builds wall-clock players for auditioning: the server
// has no audio device, so progress is simulated against the artifact's
// known duration and streamed to the client. The ref carries the
// duration as a "path#seconds" suffix.
type timedFactory struct {
	notify func(ref string, status playback.Status)
}

func (f *timedFactory) NewPlayer(ref string, onStatus func(playback.Status)) (playback.Player, error) {
	duration := 0.0
	if idx := strings.LastIndex(ref, "#"); idx >= 0 {
		if parsed, err := strconv.ParseFloat(ref[idx+1:], 64); err == nil {
			duration = parsed
		}
	}

	return &timedPlayer{
		ref:      ref,
		duration: duration,
		onStatus: onStatus,
		notify:   f.notify,
		stop:     make(chan struct{}),
	}, nil
}

type timedPlayer struct {
	ref      string
	duration float64
	onStatus func(playback.Status)
	notify   func(ref string, status playback.Status)
	stop     chan struct{}
	once     sync.Once
}

func (p *timedPlayer) Play() error {
	go p.run()
	return nil
}

func (p *timedPlayer) Pause() error {
	p.halt()
	return nil
}

func (p *timedPlayer) Release() error {
	p.halt()
	return nil
}

func (p *timedPlayer) halt() {
	p.once.Do(func() { close(p.stop) })
}

func (p *timedPlayer) run() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	started := time.Now()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			current := time.Since(started).Seconds()
			playing := p.duration <= 0 || current < p.duration
			if current > p.duration && p.duration > 0 {
				current = p.duration
			}

			status := playback.Status{
				Playing:     playing,
				CurrentTime: current,
				Duration:    p.duration,
			}
			if p.notify != nil {
				p.notify(p.ref, status)
			}
			p.onStatus(status)

			if !playing {
				return
			}
		}
	}
}
