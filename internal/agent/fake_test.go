package agent

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync"
)

type fakeControl struct {
	name     string
	box      Box
	hidden   bool
	clickErr error
	onClick  func()
	value    string
	mu       sync.Mutex
	clicks   int
	typed    []string
}

func (c *fakeControl) Click(context.Context) error {
	c.mu.Lock()
	c.clicks++
	c.mu.Unlock()
	if c.clickErr != nil {
		return c.clickErr
	}
	if c.onClick != nil {
		c.onClick()
	}
	return nil
}

func (c *fakeControl) Type(_ context.Context, text string) error {
	c.typed = append(c.typed, text)
	c.value = text
	return nil
}

func (c *fakeControl) Press(_ context.Context, keys string) error {
	c.typed = append(c.typed, keys)
	return nil
}

func (c *fakeControl) SetValue(_ context.Context, v string) error {
	c.value = v
	return nil
}

func (c *fakeControl) Interactable(context.Context) (bool, error) { return !c.hidden, nil }
func (c *fakeControl) Box(context.Context) (Box, error)           { return c.box, nil }
func (c *fakeControl) String() string                             { return c.name }

func (c *fakeControl) clickCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clicks
}

type fakeDriver struct {
	mu sync.Mutex

	elements  map[Locator][]Control
	findCalls map[Locator]int

	// script answers ExecuteScript; nil leaves res untouched
	script  func(script string, res any) error
	scripts []string

	modal    string
	hasModal bool
	modalAt  int // modal appears on this ReadModal call (0 = immediately)
	reads    int
	accepted []string

	handles func() []string

	shot          []byte
	pointerClicks [][2]float64
	url           string
	text          string
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		elements:  make(map[Locator][]Control),
		findCalls: make(map[Locator]int),
	}
}

func (d *fakeDriver) put(loc Locator, controls ...Control) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.elements[loc] = controls
}

func (d *fakeDriver) Navigate(_ context.Context, url string) error {
	d.url = url
	return nil
}

func (d *fakeDriver) FindAll(_ context.Context, loc Locator) ([]Control, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.findCalls[loc]++
	return d.elements[loc], nil
}

func (d *fakeDriver) Find(ctx context.Context, loc Locator) (Control, error) {
	cs, _ := d.FindAll(ctx, loc)
	if len(cs) == 0 {
		return nil, ErrNotFound
	}
	return cs[0], nil
}

func (d *fakeDriver) Screenshot(context.Context) ([]byte, error) {
	return d.shot, nil
}

func (d *fakeDriver) ExecuteScript(_ context.Context, script string, res any) error {
	d.mu.Lock()
	d.scripts = append(d.scripts, script)
	fn := d.script
	d.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(script, res)
}

func (d *fakeDriver) WindowHandles(context.Context) ([]string, error) {
	if d.handles == nil {
		return []string{"main"}, nil
	}
	return d.handles(), nil
}

func (d *fakeDriver) SwitchWindow(context.Context, string) error { return nil }

func (d *fakeDriver) ReadModal(context.Context) (string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reads++
	if !d.hasModal || d.reads <= d.modalAt {
		return "", false, nil
	}
	return d.modal, true, nil
}

func (d *fakeDriver) AcceptModal(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.hasModal {
		d.accepted = append(d.accepted, d.modal)
	}
	d.hasModal = false
	return nil
}

func (d *fakeDriver) CurrentURL(context.Context) (string, error) { return d.url, nil }
func (d *fakeDriver) PageText(context.Context) (string, error)   { return d.text, nil }

func (d *fakeDriver) PointerClick(_ context.Context, x, y float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pointerClicks = append(d.pointerClicks, [2]float64{x, y})
	return nil
}

// setBool stores v into res when res is a *bool
func setBool(res any, v bool) {
	if p, ok := res.(*bool); ok {
		*p = v
	}
}

func solidPNG(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}
