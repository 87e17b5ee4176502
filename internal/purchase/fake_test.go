package purchase

import (
	"context"
	"strings"
	"sync"

	"github.com/dreamup/lotto-agent/internal/agent"
)

type stubControl struct {
	name    string
	value   string
	onClick func()
	onType  func(string)
	clicks  int
	pressed []string
}

func (c *stubControl) Click(context.Context) error {
	c.clicks++
	if c.onClick != nil {
		c.onClick()
	}
	return nil
}

func (c *stubControl) Type(_ context.Context, text string) error {
	c.value += text
	if c.onType != nil {
		c.onType(text)
	}
	return nil
}

func (c *stubControl) Press(_ context.Context, keys string) error {
	c.pressed = append(c.pressed, keys)
	if c.onType != nil {
		c.onType(keys)
	}
	return nil
}

func (c *stubControl) SetValue(_ context.Context, v string) error {
	c.value = v
	return nil
}

func (c *stubControl) Interactable(context.Context) (bool, error) { return true, nil }
func (c *stubControl) Box(context.Context) (agent.Box, error) {
	return agent.Box{X: 10, Y: 10, Width: 20, Height: 20}, nil
}
func (c *stubControl) String() string { return c.name }

// stubDriver is a scripted agent.Driver for page-level tests
type stubDriver struct {
	mu sync.Mutex

	elements map[agent.Locator]agent.Control
	visited  []string

	// scripts maps a substring of a script to its result
	scripts map[string]any

	url      string
	text     string
	modal    string
	hasModal bool
	accepted []string
}

func newStubDriver() *stubDriver {
	return &stubDriver{
		elements: make(map[agent.Locator]agent.Control),
		scripts:  make(map[string]any),
	}
}

func (d *stubDriver) Navigate(_ context.Context, url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.visited = append(d.visited, url)
	d.url = url
	return nil
}

func (d *stubDriver) Find(_ context.Context, loc agent.Locator) (agent.Control, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.elements[loc]; ok {
		return c, nil
	}
	return nil, agent.ErrNotFound
}

func (d *stubDriver) FindAll(ctx context.Context, loc agent.Locator) ([]agent.Control, error) {
	c, err := d.Find(ctx, loc)
	if err != nil {
		return nil, nil
	}
	return []agent.Control{c}, nil
}

func (d *stubDriver) Screenshot(context.Context) ([]byte, error) { return nil, nil }

func (d *stubDriver) ExecuteScript(_ context.Context, script string, res any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, v := range d.scripts {
		if !strings.Contains(script, key) {
			continue
		}
		switch p := res.(type) {
		case *bool:
			*p, _ = v.(bool)
		case *[]string:
			*p, _ = v.([]string)
		case *int:
			*p, _ = v.(int)
		}
		return nil
	}
	return nil
}

func (d *stubDriver) WindowHandles(context.Context) ([]string, error) { return []string{"main"}, nil }
func (d *stubDriver) SwitchWindow(context.Context, string) error     { return nil }

func (d *stubDriver) ReadModal(context.Context) (string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.modal, d.hasModal, nil
}

func (d *stubDriver) AcceptModal(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.hasModal {
		d.accepted = append(d.accepted, d.modal)
	}
	d.hasModal = false
	return nil
}

func (d *stubDriver) CurrentURL(context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.url, nil
}

func (d *stubDriver) PageText(context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.text, nil
}

func (d *stubDriver) PointerClick(context.Context, float64, float64) error { return nil }

func (d *stubDriver) setModal(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.modal, d.hasModal = text, true
}

func (d *stubDriver) setText(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.text = text
}
