package bufferpool

import "github.com/tuannm99/clockpool/pkg/clockx"

type clockAdapter struct {
	c *clockx.Clock
}

func newClockAdapter(capacity int) *clockAdapter {
	return &clockAdapter{c: clockx.New(capacity)}
}

func (a *clockAdapter) Unpin(frameID int) {
	a.c.Unpin(frameID)
}

func (a *clockAdapter) Pin(frameID int) {
	a.c.Pin(frameID)
}

func (a *clockAdapter) Victim() (int, bool) {
	return a.c.Victim()
}

func (a *clockAdapter) Tracked(frameID int) bool {
	return a.c.Tracked(frameID)
}

func (a *clockAdapter) Size() int {
	return a.c.Size()
}
