package alert

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/speaker"
)

const chimeSampleRate = beep.SampleRate(44100)

// Chime plays a short generated tone on the default audio device.
type Chime struct {
	volume float64

	initOnce sync.Once
	initErr  error
}

// NewChime returns a Chime at the given volume, where 0 is unity gain and
// each step of -1 halves the amplitude.
func NewChime(volume float64) *Chime {
	return &Chime{volume: volume}
}

// Play queues the chime. Warnings get a two-note falling tone, reminders a
// single note. Audio initialization failures disable the chime permanently.
func (c *Chime) Play(warning bool) {
	c.initOnce.Do(func() {
		c.initErr = speaker.Init(chimeSampleRate, chimeSampleRate.N(time.Second/10))
		if c.initErr != nil {
			c.initErr = fmt.Errorf("speaker init: %w", c.initErr)
		}
	})
	if c.initErr != nil {
		return
	}

	var s beep.Streamer
	if warning {
		s = beep.Seq(
			tone(880, 150*time.Millisecond),
			beep.Silence(chimeSampleRate.N(60*time.Millisecond)),
			tone(660, 220*time.Millisecond),
		)
	} else {
		s = tone(660, 180*time.Millisecond)
	}

	speaker.Play(&effects.Volume{
		Streamer: s,
		Base:     2,
		Volume:   c.volume,
		Silent:   false,
	})
}

// tone is a sine wave with a linear fade-out to avoid clicks.
func tone(freq float64, d time.Duration) beep.Streamer {
	total := chimeSampleRate.N(d)
	pos := 0
	return beep.Take(total, beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		for i := range samples {
			env := 1 - float64(pos)/float64(total)
			v := 0.4 * env * math.Sin(2*math.Pi*freq*float64(pos)/float64(chimeSampleRate))
			samples[i][0] = v
			samples[i][1] = v
			pos++
		}
		return len(samples), true
	}))
}
