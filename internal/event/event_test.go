package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFeed(t *testing.T) {
	var f Feed[int]
	var a, b []int

	unsubA := f.Subscribe(func(v int) { a = append(a, v) })
	unsubB := f.Subscribe(func(v int) { b = append(b, v) })
	assert.Equal(t, 2, f.Len())

	f.Publish(1)
	unsubA()
	unsubA()
	f.Publish(2)
	unsubB()
	f.Publish(3)

	assert.Equal(t, []int{1}, a)
	assert.Equal(t, []int{1, 2}, b)
	assert.Equal(t, 0, f.Len())
}

func TestFeedSelfUnsubscribe(t *testing.T) {
	var f Feed[string]
	calls := 0
	var unsub func()
	unsub = f.Subscribe(func(string) {
		calls++
		unsub()
	})

	f.Publish("x")
	f.Publish("y")
	assert.Equal(t, 1, calls)
}

func TestFocus(t *testing.T) {
	var focus Focus
	n := 0
	unsub := focus.OnFocus(func() { n++ })

	focus.Fire()
	focus.Fire()
	unsub()
	focus.Fire()

	assert.Equal(t, 2, n)
}
