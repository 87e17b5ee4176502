package agent

import (
	"context"
	"encoding/json"
	"fmt"
)

// KeyEnter is the key sequence that submits a focused form field.
const KeyEnter = "\r"

// Strategy is the kind of lookup a Locator performs
type Strategy string

const (
	// ByID matches the element id attribute
	ByID Strategy = "id"
	// ByName matches the element name attribute
	ByName Strategy = "name"
	// ByCSS matches a CSS selector
	ByCSS Strategy = "css"
	// ByXPath matches an XPath expression
	ByXPath Strategy = "xpath"
	// ByText matches visible text or a button value
	ByText Strategy = "text"
)

// Locator is one concrete way of finding a logical target on the page
type Locator struct {
	Strategy Strategy
	Value    string
}

// ID returns an id locator
func ID(v string) Locator { return Locator{Strategy: ByID, Value: v} }

// Name returns a name attribute locator
func Name(v string) Locator { return Locator{Strategy: ByName, Value: v} }

// CSS returns a CSS selector locator
func CSS(v string) Locator { return Locator{Strategy: ByCSS, Value: v} }

// XPath returns an XPath locator
func XPath(v string) Locator { return Locator{Strategy: ByXPath, Value: v} }

// Text returns a visible-text locator
func Text(v string) Locator { return Locator{Strategy: ByText, Value: v} }

func (l Locator) String() string {
	return fmt.Sprintf("%s=%s", l.Strategy, l.Value)
}

// Selector lowers the locator to either a CSS selector or an XPath
// expression. xpath reports which one was produced.
func (l Locator) Selector() (sel string, xpath bool) {
	switch l.Strategy {
	case ByID:
		return fmt.Sprintf("[id=%s]", jsString(l.Value)), false
	case ByName:
		return fmt.Sprintf("[name=%s]", jsString(l.Value)), false
	case ByXPath:
		return l.Value, true
	case ByText:
		return textXPath(l.Value), true
	default:
		return l.Value, false
	}
}

// JS returns a JavaScript expression that evaluates to the first element
// matched by the locator, or null.
func (l Locator) JS() string {
	switch l.Strategy {
	case ByID:
		return fmt.Sprintf("document.getElementById(%s)", jsString(l.Value))
	case ByName:
		return fmt.Sprintf("(document.getElementsByName(%s)[0] || null)", jsString(l.Value))
	case ByXPath, ByText:
		sel, _ := l.Selector()
		return fmt.Sprintf("document.evaluate(%s, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue", jsString(sel))
	default:
		return fmt.Sprintf("document.querySelector(%s)", jsString(l.Value))
	}
}

// FirstElementJS returns an expression evaluating to the element of the
// first locator that matches anything.
func FirstElementJS(locators []Locator) string {
	if len(locators) == 0 {
		return "null"
	}
	expr := ""
	for i, l := range locators {
		if i > 0 {
			expr += " || "
		}
		expr += "(function(){ try { return " + l.JS() + "; } catch (e) { return null; } })()"
	}
	return "(" + expr + ")"
}

func textXPath(text string) string {
	q := xpathLiteral(text)
	return fmt.Sprintf("//*[normalize-space(text())=%s or @value=%s]", q, q)
}

func xpathLiteral(s string) string {
	for _, r := range s {
		if r == '\'' {
			return `"` + s + `"`
		}
	}
	return "'" + s + "'"
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// Box is an element's bounding rectangle in viewport CSS pixels
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the midpoint of the box
func (b Box) Center() (float64, float64) {
	return b.X + b.Width/2, b.Y + b.Height/2
}

// Empty reports whether the box has no area
func (b Box) Empty() bool {
	return b.Width <= 0 || b.Height <= 0
}

// Control is an opaque handle to a live element. Handles are invalidated
// when the page re-renders.
type Control interface {
	Click(ctx context.Context) error
	Type(ctx context.Context, text string) error
	// Press sends key events without clearing the field first
	Press(ctx context.Context, keys string) error
	SetValue(ctx context.Context, value string) error
	Interactable(ctx context.Context) (bool, error)
	Box(ctx context.Context) (Box, error)
	String() string
}

// Driver is the capability set consumed from the remote UI.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	// Find returns the first match without waiting, or ErrNotFound.
	Find(ctx context.Context, loc Locator) (Control, error)
	FindAll(ctx context.Context, loc Locator) ([]Control, error)
	// Screenshot captures the current viewport as PNG.
	Screenshot(ctx context.Context) ([]byte, error)
	// ExecuteScript evaluates script; res may be nil to discard the result.
	ExecuteScript(ctx context.Context, script string, res any) error
	WindowHandles(ctx context.Context) ([]string, error)
	SwitchWindow(ctx context.Context, handle string) error
	// ReadModal returns the text of a pending dialog, if any.
	ReadModal(ctx context.Context) (string, bool, error)
	AcceptModal(ctx context.Context) error
	CurrentURL(ctx context.Context) (string, error)
	PageText(ctx context.Context) (string, error)
	// PointerClick moves the pointer to (x, y) in steps, then presses and releases.
	PointerClick(ctx context.Context, x, y float64) error
}
