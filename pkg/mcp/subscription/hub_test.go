// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package subscription

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObserver struct {
	id     string
	mu     sync.Mutex
	events []Event
	notify func(Event)
}

func (f *fakeObserver) ID() string { return f.id }

func (f *fakeObserver) Notify(ev Event) {
	if f.notify != nil {
		f.notify(ev)
		return
	}
	f.mu.Lock()
	f.events = append(f.events, ev)
	f.mu.Unlock()
}

func (f *fakeObserver) received() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Event, len(f.events))
	copy(out, f.events)
	return out
}

func TestHub_PublishDeliversToSubscriber(t *testing.T) {
	h := NewHub(nil)
	obs := &fakeObserver{id: "obs-1"}
	h.Subscribe("file:///a.txt", obs)

	h.Publish(Event{Kind: EventUpdated, URI: "file:///a.txt"})

	require.Eventually(t, func() bool { return len(obs.received()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, EventUpdated, obs.received()[0].Kind)
}

func TestHub_UnsubscribedObserverReceivesNothing(t *testing.T) {
	h := NewHub(nil)
	obs := &fakeObserver{id: "obs-1"}
	h.Subscribe("file:///a.txt", obs)
	h.Unsubscribe("file:///a.txt", obs.ID())

	h.Publish(Event{Kind: EventUpdated, URI: "file:///a.txt"})

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, obs.received())
}

func TestHub_RemoveObserverStopsAllSubscriptions(t *testing.T) {
	h := NewHub(nil)
	obs := &fakeObserver{id: "obs-1"}
	h.Subscribe("file:///a.txt", obs)
	h.Subscribe("file:///b.txt", obs)
	h.RemoveObserver(obs.ID())

	h.Publish(Event{Kind: EventUpdated, URI: "file:///a.txt"})
	h.Publish(Event{Kind: EventUpdated, URI: "file:///b.txt"})

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, obs.received())
}

func TestHub_EvictsObserverAfterRepeatedPanics(t *testing.T) {
	h := NewHub(nil)
	var calls int
	var mu sync.Mutex
	obs := &fakeObserver{id: "obs-1", notify: func(Event) {
		mu.Lock()
		calls++
		mu.Unlock()
		panic("boom")
	}}
	h.Subscribe("file:///a.txt", obs)

	for i := 0; i < maxConsecutiveErrors+2; i++ {
		h.Publish(Event{Kind: EventUpdated, URI: "file:///a.txt"})
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, calls, maxConsecutiveErrors+1)
}
