// Copyright 2026 The Botvisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package botvisor

import (
	"context"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestStatusEmitter(t *testing.T) {
	Convey("Given a status emitter", t, func() {
		r := NewRegistry()
		So(r.Add(&Bot{ID: "one", Name: "one"}), ShouldBeNil)
		e := NewStatusEmitter(r, time.Hour)
		ch, cancel := e.Subscribe()
		defer cancel()

		ctx, stop := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- e.Run(ctx)
		}()

		Convey("It publishes on start", func() {
			snap := <-ch
			So(len(snap.Bots), ShouldEqual, 1)
			So(snap.Bots[0].ID, ShouldEqual, "one")
			So(snap.Bots[0].Uptime, ShouldEqual, UptimeNA)
		})

		Convey("It publishes after a change", func() {
			first := <-ch
			So(r.Add(&Bot{ID: "two", Name: "two"}), ShouldBeNil)
			select {
			case snap := <-ch:
				So(snap.Serial, ShouldBeGreaterThan, first.Serial)
				So(len(snap.Bots), ShouldEqual, 2)
			case <-time.After(time.Second):
				So("no snapshot", ShouldBeEmpty)
			}
		})

		Convey("A snapshot can be taken on demand", func() {
			snap := e.Snapshot()
			So(snap.Serial, ShouldEqual, r.Serial())
			So(len(snap.Bots), ShouldEqual, 1)
		})

		stop()
		So(<-done, ShouldEqual, context.Canceled)
	})

	Convey("The emitter ticks on its interval", t, func() {
		r := NewRegistry()
		e := NewStatusEmitter(r, 10*time.Millisecond)
		ch, cancel := e.Subscribe()
		defer cancel()
		ctx, stop := context.WithCancel(context.Background())
		defer stop()
		go e.Run(ctx)
		for i := 0; i < 3; i++ {
			select {
			case <-ch:
			case <-time.After(time.Second):
				So("no tick", ShouldBeEmpty)
			}
		}
	})

	Convey("Slow subscribers get the newest snapshot", t, func() {
		r := NewRegistry()
		e := NewStatusEmitter(r, 0)
		ch, cancel := e.Subscribe()
		e.publish(Snapshot{Serial: 1})
		e.publish(Snapshot{Serial: 2})
		So((<-ch).Serial, ShouldEqual, 2)
		cancel()
		_, ok := <-ch
		So(ok, ShouldBeFalse)
		e.publish(Snapshot{Serial: 3})
	})
}
