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

func TestFormatUptime(t *testing.T) {
	Convey("Uptime formatting", t, func() {
		So(FormatUptime(0), ShouldEqual, "0h 0m 0s")
		So(FormatUptime(-5*time.Second), ShouldEqual, "0h 0m 0s")
		So(FormatUptime(3661000*time.Millisecond), ShouldEqual, "1h 1m 1s")
		So(FormatUptime(999*time.Millisecond), ShouldEqual, "0h 0m 0s")
		So(FormatUptime(50*time.Hour+59*time.Second), ShouldEqual, "50h 0m 59s")
	})

	Convey("Bot uptime", t, func() {
		now := time.Now()
		b := &Bot{status: StatusStopped}
		So(b.uptime(now), ShouldEqual, UptimeNA)

		b.status = StatusRunning
		b.startTime = now.Add(-90 * time.Second)
		So(b.uptime(now), ShouldEqual, "0h 1m 30s")

		b.status = StatusStopped
		b.startTime = time.Time{}
		b.prior = 2 * time.Hour
		b.hasPrior = true
		So(b.uptime(now), ShouldEqual, "2h 0m 0s")
	})
}

func TestRegistry(t *testing.T) {
	Convey("Given a registry", t, func() {
		r := NewRegistry()
		So(r.Len(), ShouldEqual, 0)

		b1 := &Bot{ID: "one", Name: "one", Port: 10001, Dir: "apps/one"}
		b2 := &Bot{ID: "two", Name: "two", Port: 10002, Dir: "apps/two"}
		So(r.Add(b1), ShouldBeNil)
		So(r.Add(b2), ShouldBeNil)
		So(r.Add(&Bot{ID: "one"}), ShouldEqual, ErrDuplicate)
		So(r.Add(&Bot{}), ShouldEqual, ErrBadRequest)

		Convey("Bots start out stopped", func() {
			st, err := r.Status("one")
			So(err, ShouldBeNil)
			So(st, ShouldEqual, StatusStopped)
			_, err = r.Status("three")
			So(err, ShouldEqual, ErrNoBot)
		})

		Convey("Snapshots are ordered by creation", func() {
			bots, serial := r.Snapshot()
			So(len(bots), ShouldEqual, 2)
			So(bots[0].ID, ShouldEqual, "one")
			So(bots[1].ID, ShouldEqual, "two")
			So(bots[0].Uptime, ShouldEqual, UptimeNA)
			So(serial, ShouldEqual, r.Serial())
		})

		Convey("Ports and directories are tracked", func() {
			r.lock()
			So(r.portTaken(10001), ShouldBeTrue)
			So(r.portTaken(10003), ShouldBeFalse)
			So(r.dirTaken("apps/two"), ShouldBeTrue)
			r.unlock()
		})

		Convey("Removal needs a bot without a process", func() {
			r.lock()
			b1.proc = &fakeProc{exit: make(chan int, 1)}
			r.unlock()
			So(r.Remove("one"), ShouldEqual, ErrBotRunning)

			r.lock()
			b1.proc = nil
			b1.deploying = true
			r.unlock()
			So(r.Remove("one"), ShouldEqual, ErrBusy)

			r.lock()
			b1.deploying = false
			r.unlock()
			So(r.Remove("one"), ShouldBeNil)
			So(r.Len(), ShouldEqual, 1)
			So(r.Remove("one"), ShouldEqual, ErrNoBot)
		})

		Convey("Watchers wake on a change", func() {
			old := r.Serial()
			go func() {
				time.Sleep(10 * time.Millisecond)
				r.lock()
				r.setStatus(b2, StatusRunning)
				r.unlock()
			}()
			nv := r.WatchSerial(context.Background(), old, time.Second)
			So(nv, ShouldBeGreaterThan, old)
			info, _ := r.Info("two")
			So(info.Status, ShouldEqual, StatusRunning)
			So(info.Serial, ShouldEqual, nv)
		})

		Convey("Watchers time out", func() {
			old := r.Serial()
			So(r.WatchSerial(context.Background(), old, 10*time.Millisecond), ShouldEqual, old)
			So(r.WatchSerial(context.Background(), old, 0), ShouldEqual, old)
		})

		Convey("List watchers see additions", func() {
			old := r.WatchBots(context.Background(), 0, 0)
			go func() {
				time.Sleep(10 * time.Millisecond)
				r.Add(&Bot{ID: "three"})
			}()
			So(r.WatchBots(context.Background(), old, time.Second), ShouldBeGreaterThan, old)
		})
	})
}
