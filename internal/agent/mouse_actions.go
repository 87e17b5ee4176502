package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
)

// pointer approach path: start this far up-left of the target and step in
const (
	pointerOffsetX = 40.0
	pointerOffsetY = 20.0
	pointerSteps   = 8
	pointerStepGap = 15 * time.Millisecond
	pointerHold    = 60 * time.Millisecond
)

// pointerClick moves the mouse onto (x, y) in small steps, then presses and
// releases the left button. Some pages ignore synthetic clicks that arrive
// without preceding movement.
func pointerClick(x, y float64) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		startX, startY := x-pointerOffsetX, y-pointerOffsetY
		if startX < 0 {
			startX = 0
		}
		if startY < 0 {
			startY = 0
		}

		for i := 1; i <= pointerSteps; i++ {
			t := float64(i) / float64(pointerSteps)
			mx := startX + (x-startX)*t
			my := startY + (y-startY)*t
			if err := input.DispatchMouseEvent(input.MouseMoved, mx, my).Do(ctx); err != nil {
				return fmt.Errorf("mouse move failed at step %d: %w", i, err)
			}
			if err := sleep(ctx, pointerStepGap); err != nil {
				return err
			}
		}

		if err := input.DispatchMouseEvent(input.MousePressed, x, y).
			WithButton(input.Left).
			WithClickCount(1).
			Do(ctx); err != nil {
			return fmt.Errorf("mouse press failed: %w", err)
		}

		if err := sleep(ctx, pointerHold); err != nil {
			return err
		}

		if err := input.DispatchMouseEvent(input.MouseReleased, x, y).
			WithButton(input.Left).
			WithClickCount(1).
			Do(ctx); err != nil {
			return fmt.Errorf("mouse release failed: %w", err)
		}
		return nil
	})
}
