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
	"fmt"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLog(t *testing.T) {
	Convey("A log holds a bounded number of records", t, func() {
		log := NewLog(5)
		for i := 0; i < 8; i++ {
			log.Append(fmt.Sprintf("line %d\n", i))
		}
		So(log.Len(), ShouldEqual, 5)
		recs, id := log.GetRecords(0)
		So(len(recs), ShouldEqual, 5)
		So(recs[0].Text, ShouldEqual, "line 3")
		So(recs[4].Text, ShouldEqual, "line 7")
		So(recs[4].Id, ShouldEqual, id)

		Convey("GetRecords with the current id returns nothing", func() {
			again, id2 := log.GetRecords(id)
			So(again, ShouldBeNil)
			So(id2, ShouldEqual, id)
		})

		Convey("Since returns only newer records", func() {
			newer, _ := log.Since(recs[2].Id)
			So(len(newer), ShouldEqual, 2)
			So(newer[0].Text, ShouldEqual, "line 6")
		})
	})

	Convey("The default capacity is 3000", t, func() {
		log := NewLog(0)
		for i := 0; i < MaxLogRecords+10; i++ {
			log.Append(fmt.Sprintf("%d", i))
		}
		So(log.Len(), ShouldEqual, MaxLogRecords)
		recs, _ := log.GetRecords(0)
		So(recs[0].Text, ShouldEqual, "10")
		So(recs[len(recs)-1].Text, ShouldEqual, fmt.Sprintf("%d", MaxLogRecords+9))
	})

	Convey("Multi-line text becomes several records", t, func() {
		log := NewLog(0)
		n, err := log.Write([]byte("a\r\nb\nc\n"))
		So(err, ShouldBeNil)
		So(n, ShouldEqual, 7)
		recs, _ := log.GetRecords(0)
		So(len(recs), ShouldEqual, 3)
		So(recs[0].Text, ShouldEqual, "a")
		So(recs[2].Text, ShouldEqual, "c")

		log.Append("\n")
		So(log.Len(), ShouldEqual, 3)
	})

	Convey("Subscribers see new records in order", t, func() {
		log := NewLog(0)
		log.Append("before")
		ch, cancel := log.Subscribe(10)
		log.Append("one\ntwo")
		So((<-ch).Text, ShouldEqual, "one")
		So((<-ch).Text, ShouldEqual, "two")

		cancel()
		cancel()
		_, ok := <-ch
		So(ok, ShouldBeFalse)
		log.Append("after")
	})

	Convey("Slow subscribers lose records instead of blocking", t, func() {
		log := NewLog(0)
		ch, cancel := log.Subscribe(1)
		defer cancel()
		log.Append("a\nb\nc")
		So((<-ch).Text, ShouldEqual, "a")
		So(len(ch), ShouldEqual, 0)
		So(log.Len(), ShouldEqual, 3)
	})

	Convey("Replay returns history and then live records", t, func() {
		log := NewLog(0)
		log.Append("old")
		hist, ch, cancel := log.Replay(4)
		defer cancel()
		So(len(hist), ShouldEqual, 1)
		So(hist[0].Text, ShouldEqual, "old")
		log.Append("new")
		So((<-ch).Text, ShouldEqual, "new")
	})

	Convey("Watch wakes on a write", t, func() {
		log := NewLog(0)
		_, id := log.GetRecords(0)
		go func() {
			time.Sleep(10 * time.Millisecond)
			log.Append("wake")
		}()
		start := time.Now()
		nid := log.Watch(context.Background(), id, time.Second)
		So(nid, ShouldNotEqual, id)
		So(time.Since(start), ShouldBeLessThan, time.Second)

		Convey("And expires without one", func() {
			So(log.Watch(context.Background(), nid, 10*time.Millisecond), ShouldEqual, nid)
		})

		Convey("And returns when the context ends", func() {
			ctx, cancel := context.WithCancel(context.Background())
			time.AfterFunc(10*time.Millisecond, cancel)
			start := time.Now()
			So(log.Watch(ctx, nid, time.Hour), ShouldEqual, nid)
			So(time.Since(start), ShouldBeLessThan, time.Second)
		})
	})
}

func TestBroadcaster(t *testing.T) {
	Convey("The broadcaster strips escape sequences", t, func() {
		b := NewBroadcaster(0)
		b.Append("x", "\x1b[31mred\x1b[0m and \x1b[1;32mgreen\x1b[0m\n")
		recs, _ := b.Open("x").GetRecords(0)
		So(len(recs), ShouldEqual, 1)
		So(recs[0].Text, ShouldEqual, "red and green")
	})

	Convey("Subscribers get history, then live text", t, func() {
		b := NewBroadcaster(0)
		b.Logf("x", "first %d", 1)
		hist, ch, cancel := b.Subscribe("x", 8)
		So(len(hist), ShouldEqual, 1)
		So(hist[0].Text, ShouldEqual, "first 1")

		w := b.Writer("x")
		w.Write([]byte("\x1b[33msecond\x1b[0m\n"))
		So((<-ch).Text, ShouldEqual, "second")

		Convey("Logs are independent", func() {
			b.Append("y", "other")
			select {
			case r := <-ch:
				So(r.Text, ShouldBeEmpty)
			default:
			}
			So(b.Open("y").Len(), ShouldEqual, 1)
		})

		Convey("Removal closes subscribers", func() {
			b.Remove("x")
			_, ok := <-ch
			So(ok, ShouldBeFalse)
			So(b.Log("x"), ShouldBeNil)
			cancel()
		})
	})
}
