package agent

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"
)

// element is a Control backed by a DOM node of the window that was current
// when it was found.
type element struct {
	session *Session
	node    *cdp.Node
	loc     Locator
}

func (e *element) ids() []cdp.NodeID {
	return []cdp.NodeID{e.node.NodeID}
}

func (e *element) String() string {
	return fmt.Sprintf("%s <%s>", e.loc, e.node.LocalName)
}

// Click clicks the node. A click that times out because it opened a
// JavaScript dialog is reported as delivered.
func (e *element) Click(ctx context.Context) error {
	err := e.session.run(ctx, e.session.opts.ActionTimeout,
		chromedp.Click(e.ids(), chromedp.ByNodeID))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && e.session.dialogPending() {
			return nil
		}
		return NewInteractionError(fmt.Sprintf("click %s", e), err)
	}
	return nil
}

// Type clears the field and sends text as key events
func (e *element) Type(ctx context.Context, text string) error {
	err := e.session.run(ctx, e.session.opts.ActionTimeout,
		chromedp.Clear(e.ids(), chromedp.ByNodeID),
		chromedp.SendKeys(e.ids(), text, chromedp.ByNodeID),
	)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && e.session.dialogPending() {
			return nil
		}
		return NewInteractionError(fmt.Sprintf("type into %s", e), err)
	}
	return nil
}

func (e *element) Press(ctx context.Context, keys string) error {
	err := e.session.run(ctx, e.session.opts.ActionTimeout,
		chromedp.SendKeys(e.ids(), keys, chromedp.ByNodeID))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && e.session.dialogPending() {
			return nil
		}
		return NewInteractionError(fmt.Sprintf("press keys on %s", e), err)
	}
	return nil
}

// SetValue assigns the value property (select options, hidden inputs)
func (e *element) SetValue(ctx context.Context, value string) error {
	err := e.session.run(ctx, e.session.opts.ActionTimeout,
		chromedp.SetValue(e.ids(), value, chromedp.ByNodeID))
	if err != nil {
		return NewInteractionError(fmt.Sprintf("set value on %s", e), err)
	}
	return nil
}

// Interactable reports whether the node has a rendered box and is not disabled
func (e *element) Interactable(ctx context.Context) (bool, error) {
	if _, disabled := e.node.Attribute("disabled"); disabled {
		return false, nil
	}
	box, err := e.Box(ctx)
	if err != nil {
		// no box model means the node is not rendered
		return false, nil
	}
	return !box.Empty(), nil
}

func (e *element) Box(ctx context.Context) (Box, error) {
	var model *dom.BoxModel
	err := e.session.run(ctx, e.session.opts.ActionTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		model, err = dom.GetBoxModel().WithNodeID(e.node.NodeID).Do(ctx)
		return err
	}))
	if err != nil {
		return Box{}, NewBrowserError(fmt.Sprintf("box of %s", e), err)
	}
	return quadBox(model.Border), nil
}

// quadBox converts a CDP quad (x1,y1 .. x4,y4) to its bounding rectangle
func quadBox(q dom.Quad) Box {
	if len(q) < 8 {
		return Box{}
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for i := 0; i+1 < len(q); i += 2 {
		minX = math.Min(minX, q[i])
		maxX = math.Max(maxX, q[i])
		minY = math.Min(minY, q[i+1])
		maxY = math.Max(maxY, q[i+1])
	}
	return Box{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}
