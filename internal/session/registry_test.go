package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeChannel struct {
	id string
}

func (f *fakeChannel) ID() string             { return f.id }
func (f *fakeChannel) Send(data []byte) error { return nil }

func TestRegistryAddRemove(t *testing.T) {
	r := NewRegistry()
	a := &fakeChannel{id: "a"}
	b := &fakeChannel{id: "b"}

	r.Add("s1", a)
	r.Add("s1", b)
	r.Add("s1", a)
	r.Add("s2", &fakeChannel{id: "c"})

	channels := r.Channels("s1")
	assert.Len(t, channels, 2)
	assert.Equal(t, "a", channels[0].ID())
	assert.Equal(t, "b", channels[1].ID())
	assert.Equal(t, 2, r.SessionCount())
	assert.Equal(t, 3, r.ChannelCount())

	r.Remove("s1", a)
	assert.Len(t, r.Channels("s1"), 1)

	r.Remove("s1", b)
	assert.Empty(t, r.Channels("s1"))
	assert.Equal(t, 1, r.SessionCount())

	// Removing from an unknown session is harmless.
	r.Remove("nope", a)
}

func TestRegistrySnapshotIsIndependent(t *testing.T) {
	r := NewRegistry()
	r.Add("s1", &fakeChannel{id: "a"})

	snapshot := r.Channels("s1")
	r.Add("s1", &fakeChannel{id: "b"})

	assert.Len(t, snapshot, 1)
	assert.Len(t, r.Channels("s1"), 2)
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ch := &fakeChannel{id: string(rune('a' + i%26))}
			r.Add("s1", ch)
			_ = r.Channels("s1")
			r.Remove("s1", ch)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, r.ChannelCount())
}
