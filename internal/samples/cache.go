package samples

import (
	"context"
	"sync"

	"github.com/cbegin/tabplay-go/internal/audio"
	"github.com/cbegin/tabplay-go/internal/tuning"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const prepareConcurrency = 4

type entry struct {
	buf *audio.Buffer
	err error
}

// Cache memoises bank lookups for both live playback and offline rendering.
// Concurrent requests for one note share a single bank call, and a failed
// note stays failed until Invalidate.
type Cache struct {
	bank Bank
	rate int
	log  logrus.FieldLogger

	group singleflight.Group

	mu        sync.RWMutex
	entries   map[string]entry
	fallbacks map[string]*audio.Buffer
}

func NewCache(bank Bank, sampleRate int, log logrus.FieldLogger) *Cache {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Cache{
		bank:      bank,
		rate:      sampleRate,
		log:       log.WithField("component", "samples"),
		entries:   map[string]entry{},
		fallbacks: map[string]*audio.Buffer{},
	}
}

func (c *Cache) SampleRate() int { return c.rate }

// Resolve returns the sample for note, asking the bank at most once.
func (c *Cache) Resolve(ctx context.Context, note string) (*audio.Buffer, error) {
	c.mu.RLock()
	e, ok := c.entries[note]
	c.mu.RUnlock()
	if ok {
		return e.buf, e.err
	}
	v, err, _ := c.group.Do(note, func() (interface{}, error) {
		c.mu.RLock()
		e, ok := c.entries[note]
		c.mu.RUnlock()
		if ok {
			return e.buf, e.err
		}
		buf, err := c.bank.Resolve(ctx, note)
		if err != nil {
			err = errors.Wrapf(err, "resolve %s", note)
		}
		if ctx.Err() == nil {
			c.mu.Lock()
			c.entries[note] = entry{buf: buf, err: err}
			c.mu.Unlock()
		}
		return buf, err
	})
	if err != nil {
		return nil, err
	}
	return v.(*audio.Buffer), nil
}

// Prepare resolves every note concurrently. Individual failures are logged
// and left for Playable to cover; only cancellation is returned.
func (c *Cache) Prepare(ctx context.Context, notes []string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(prepareConcurrency)
	for _, note := range notes {
		g.Go(func() error {
			if _, err := c.Resolve(gctx, note); err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				c.log.WithError(err).WithField("note", note).Warn("sample unavailable, using synthesized tone")
			}
			return nil
		})
	}
	return g.Wait()
}

// Lookup returns a resolved sample without blocking.
func (c *Cache) Lookup(note string) (*audio.Buffer, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[note]
	if !ok || e.err != nil {
		return nil, false
	}
	return e.buf, true
}

// Fallback returns the synthesized stand-in for note.
func (c *Cache) Fallback(note string) *audio.Buffer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if buf, ok := c.fallbacks[note]; ok {
		return buf
	}
	buf := audio.Tone(tuning.Frequency(note), c.rate)
	c.fallbacks[note] = buf
	return buf
}

// Playable returns the sample for note, or its synthesized stand-in.
func (c *Cache) Playable(note string) *audio.Buffer {
	if buf, ok := c.Lookup(note); ok {
		return buf
	}
	return c.Fallback(note)
}

// Invalidate forgets every resolved note, so the next Prepare reloads them.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[string]entry{}
}
