// Package chrome holds the page's presentational state: theme, the about
// dropdown and transient ripple effects. None of it touches uploads.
package chrome

import (
	"sort"
	"sync"
	"time"
)

// RippleDuration is how long a ripple stays rendered.
const RippleDuration = time.Second

// Theme is the light/dark toggle.
type Theme struct {
	mu   sync.Mutex
	dark bool
}

// Toggle flips the theme and reports whether it is now dark.
func (t *Theme) Toggle() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dark = !t.dark
	return t.dark
}

func (t *Theme) Dark() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dark
}

// ButtonLabel is the label of the toggle: the theme it switches to.
func (t *Theme) ButtonLabel() string {
	if t.Dark() {
		return "Light"
	}
	return "Dark"
}

// Dropdown is the header's about menu.
type Dropdown struct {
	mu   sync.Mutex
	open bool
}

func (d *Dropdown) Toggle() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.open = !d.open
	return d.open
}

// Close handles a click outside the menu.
func (d *Dropdown) Close() {
	d.mu.Lock()
	d.open = false
	d.mu.Unlock()
}

func (d *Dropdown) Open() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

// Ripple is one transient click effect.
type Ripple struct {
	ID     int
	Origin string
}

// Effects tracks ripples; each one removes itself after its duration.
type Effects struct {
	mu       sync.Mutex
	duration time.Duration
	nextID   int
	active   map[int]Ripple
}

// NewEffects builds an effect set whose ripples live for duration.
func NewEffects(duration time.Duration) *Effects {
	if duration <= 0 {
		duration = RippleDuration
	}
	return &Effects{duration: duration, active: make(map[int]Ripple)}
}

// Spawn starts a ripple at origin. It is fire-and-forget.
func (e *Effects) Spawn(origin string) Ripple {
	e.mu.Lock()
	e.nextID++
	r := Ripple{ID: e.nextID, Origin: origin}
	e.active[r.ID] = r
	e.mu.Unlock()

	time.AfterFunc(e.duration, func() {
		e.mu.Lock()
		delete(e.active, r.ID)
		e.mu.Unlock()
	})
	return r
}

// Active lists live ripples, oldest first.
func (e *Effects) Active() []Ripple {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Ripple, 0, len(e.active))
	for _, r := range e.active {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
