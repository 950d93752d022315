package history

// Viewport is a scrollable view whose content grows at the top when an older
// page is prepended. Extents and offsets are in the view's own units.
type Viewport interface {
	ContentExtent() int
	ScrollOffset() int
	SetScrollOffset(offset int)
}

// Anchor remembers the viewport geometry from before an older page arrived.
type Anchor struct {
	view   Viewport
	extent int
	offset int
}

// Capture records the current content extent and scroll offset.
func Capture(v Viewport) Anchor {
	return Anchor{view: v, extent: v.ContentExtent(), offset: v.ScrollOffset()}
}

// Restore shifts the scroll offset by exactly the extent added since Capture
// so the previously visible messages stay in place.
func (a Anchor) Restore() {
	if a.view == nil {
		return
	}
	added := a.view.ContentExtent() - a.extent
	if added <= 0 {
		return
	}
	a.view.SetScrollOffset(a.offset + added)
}

// AtTop reports whether a scroll offset has reached the top edge.
func AtTop(offset int) bool {
	return offset <= 0
}
