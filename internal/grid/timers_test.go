package grid

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDebouncer_Fires(t *testing.T) {
	d := NewDebouncer()
	defer d.Close()

	h := d.Schedule("search", time.Millisecond)
	assert.True(t, h.Wait())
	assert.Eventually(t, func() bool { return d.Pending() == 0 }, time.Second, time.Millisecond)
}

func TestDebouncer_RescheduleCancelsPrevious(t *testing.T) {
	d := NewDebouncer()
	defer d.Close()

	first := d.Schedule("search", time.Hour)
	second := d.Schedule("search", time.Millisecond)

	assert.False(t, first.Wait())
	assert.True(t, second.Wait())
}

func TestDebouncer_CloseCancelsEverything(t *testing.T) {
	d := NewDebouncer()
	a := d.Schedule("a", time.Hour)
	b := d.Schedule("b", time.Hour)

	d.Close()
	assert.False(t, a.Wait())
	assert.False(t, b.Wait())
	assert.Equal(t, 0, d.Pending())

	late := d.Schedule("a", time.Millisecond)
	assert.False(t, late.Wait(), "handles scheduled after close never fire")
}

func TestDebouncer_CancelKey(t *testing.T) {
	d := NewDebouncer()
	defer d.Close()

	h := d.Schedule("search", time.Hour)
	d.Cancel("search")
	assert.False(t, h.Wait())
	d.Cancel("missing")
}
