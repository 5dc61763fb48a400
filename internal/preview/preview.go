// Package preview renders the live node hierarchy for debugging.
//
// Outline produces one line per entity below a root, indented two spaces
// per level. Draw paints the same outline onto a tcell screen, clipping
// lines to the screen width by display columns so wide runes never spill
// past the right edge.
package preview

import (
	"fmt"
	"strconv"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"

	"github.com/roach88/quill/internal/world"
)

// Line is one row of an outline.
type Line struct {
	Depth  int
	Entity world.EntityID
	Kind   Kind
	Label  string
}

// Kind classifies an outline line for styling.
type Kind int

const (
	KindOther Kind = iota
	KindElement
	KindText
	KindRoot
)

// String renders the line with its indentation.
func (l Line) String() string {
	return fmt.Sprintf("%*s%s", l.Depth*2, "", l.Label)
}

// Lines walks the descendants of root depth-first in child order. The root
// itself is not included; its children are at depth 0.
func Lines(w *world.World, root world.EntityID) []Line {
	var out []Line
	var walk func(id world.EntityID, depth int)
	walk = func(id world.EntityID, depth int) {
		for _, child := range w.Children(id) {
			out = append(out, describe(w, child, depth))
			walk(child, depth+1)
		}
	}
	walk(root, 0)
	return out
}

// Outline returns the rendered lines below root.
func Outline(w *world.World, root world.EntityID) []string {
	lines := Lines(w, root)
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l.String()
	}
	return out
}

func describe(w *world.World, id world.EntityID, depth int) Line {
	l := Line{Depth: depth, Entity: id}
	switch c := w.Get(id, world.ComponentText).(type) {
	case world.Text:
		l.Kind = KindText
		l.Label = strconv.Quote(c.Value)
		return l
	}
	switch c := w.Get(id, world.ComponentTag).(type) {
	case world.Tag:
		l.Kind = KindElement
		l.Label = c.Name
		return l
	}
	switch c := w.Get(id, world.ComponentRoot).(type) {
	case world.Root:
		l.Kind = KindRoot
		l.Label = "root:" + c.Name
		return l
	}
	l.Label = id.String()
	return l
}

// Styles maps line kinds to screen styles.
type Styles map[Kind]tcell.Style

// DefaultStyles is used when Draw is given nil styles.
var DefaultStyles = Styles{
	KindOther:   tcell.StyleDefault.Foreground(tcell.ColorGray),
	KindElement: tcell.StyleDefault.Foreground(tcell.ColorAqua).Bold(true),
	KindText:    tcell.StyleDefault.Foreground(tcell.ColorWhite),
	KindRoot:    tcell.StyleDefault.Foreground(tcell.ColorYellow),
}

// Draw clears screen and paints the outline below root starting at the top
// left corner. Rows past the bottom of the screen are dropped. It returns
// the number of rows drawn.
func Draw(screen tcell.Screen, w *world.World, root world.EntityID, styles Styles) int {
	if styles == nil {
		styles = DefaultStyles
	}
	screen.Clear()
	width, height := screen.Size()
	rows := 0
	for y, l := range Lines(w, root) {
		if y >= height {
			break
		}
		putLine(screen, y, width, l.String(), styles[l.Kind])
		rows++
	}
	screen.Show()
	return rows
}

// putLine writes s at row y, truncated to width columns with an ellipsis.
func putLine(screen tcell.Screen, y, width int, s string, style tcell.Style) {
	if runewidth.StringWidth(s) > width {
		s = runewidth.Truncate(s, width, "…")
	}
	x := 0
	for _, r := range s {
		w := runewidth.RuneWidth(r)
		if w == 0 {
			continue
		}
		if x+w > width {
			break
		}
		screen.SetContent(x, y, r, nil, style)
		x += w
	}
}
