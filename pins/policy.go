package pins

import (
	"time"

	cst "wuyrush.io/pinboard/constants"
	md "wuyrush.io/pinboard/models"
)

// EditWindow is the period after creation during which the owner may edit or delete a pin
type EditWindow struct {
	Window time.Duration
}

// NewEditWindow returns an EditWindow of given length; non-positive lengths fall back to the default window
func NewEditWindow(d time.Duration) EditWindow {
	if d <= 0 {
		d = cst.DefaultEditWindow
	}
	return EditWindow{Window: d}
}

// CanMutate tells whether p is still mutable at asOf. The window is half-open: a pin exactly Window old is expired.
func (w EditWindow) CanMutate(p *md.Pin, asOf time.Time) bool {
	return asOf.Sub(p.CreatedAt) < w.Window
}

// Clock tells current time
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}
