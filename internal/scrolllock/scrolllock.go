// Package scrolllock is a counted page scroll lock. The first Acquire saves
// the page state and locks it; the matching last Release restores it.
package scrolllock

import "sync"

// Page is the scroll-related state of the hosting page
type Page struct {
	Overflow string
	ScrollY  int
}

// Lock guards a Page. The zero value is ready to use.
type Lock struct {
	mu    sync.Mutex
	page  Page
	saved Page
	depth int
}

// New creates a Lock over the given initial page state
func New(page Page) *Lock {
	return &Lock{page: page}
}

// Acquire locks scrolling. Nested calls only increase the depth.
func (l *Lock) Acquire() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.depth == 0 {
		l.saved = l.page
		l.page.Overflow = "hidden"
	}
	l.depth++
}

// Release undoes one Acquire. Releasing an unheld lock is a no-op.
func (l *Lock) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.depth == 0 {
		return
	}
	l.depth--
	if l.depth == 0 {
		l.page = l.saved
	}
}

// Scroll moves the page. It has no effect while locked.
func (l *Lock) Scroll(y int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.depth == 0 {
		l.page.ScrollY = y
	}
}

// Held reports whether the lock is currently held
func (l *Lock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.depth > 0
}

// Depth returns the number of outstanding acquisitions
func (l *Lock) Depth() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.depth
}

// Page returns the current page state
func (l *Lock) Page() Page {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.page
}
