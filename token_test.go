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
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"golang.org/x/crypto/bcrypt"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func TestTokenGate(t *testing.T) {
	Convey("Given a token gate", t, func() {
		clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
		g := NewTokenGate("sekrit", 0)
		g.SetClock(clock.Now)

		Convey("A wrong key is refused", func() {
			_, err := g.Issue("guess")
			So(err, ShouldEqual, ErrAuth)
			_, err = g.Issue("")
			So(err, ShouldEqual, ErrAuth)
			So(g.Len(), ShouldEqual, 0)
		})

		Convey("Missing and unknown tokens do not verify", func() {
			So(g.Verify(""), ShouldBeFalse)
			So(g.Verify("nope"), ShouldBeFalse)
		})

		Convey("An issued token is valid until it expires", func() {
			tok, err := g.Issue("sekrit")
			So(err, ShouldBeNil)
			So(tok.Value, ShouldNotBeEmpty)
			So(tok.Expires.Equal(clock.now.Add(6*time.Hour)), ShouldBeTrue)
			So(g.Verify(tok.Value), ShouldBeTrue)

			clock.now = tok.Expires.Add(-time.Nanosecond)
			So(g.Verify(tok.Value), ShouldBeTrue)

			clock.now = tok.Expires
			So(g.Verify(tok.Value), ShouldBeFalse)
			So(g.Len(), ShouldEqual, 0)
		})

		Convey("Tokens are distinct", func() {
			t1, _ := g.Issue("sekrit")
			t2, _ := g.Issue("sekrit")
			So(t1.Value, ShouldNotEqual, t2.Value)
			g.Revoke(t1.Value)
			So(g.Verify(t1.Value), ShouldBeFalse)
			So(g.Verify(t2.Value), ShouldBeTrue)
		})

		Convey("A large table sweeps expired tokens", func() {
			for i := 0; i < SweepThreshold; i++ {
				_, err := g.Issue("sekrit")
				So(err, ShouldBeNil)
			}
			So(g.Len(), ShouldEqual, SweepThreshold)

			clock.now = clock.now.Add(7 * time.Hour)
			tok, err := g.Issue("sekrit")
			So(err, ShouldBeNil)
			So(g.Len(), ShouldEqual, 1)
			So(g.Verify(tok.Value), ShouldBeTrue)
		})

		Convey("Expired tokens linger until they are checked", func() {
			tok, _ := g.Issue("sekrit")
			clock.now = clock.now.Add(7 * time.Hour)
			So(g.Len(), ShouldEqual, 1)
			So(g.Verify(tok.Value), ShouldBeFalse)
			So(g.Len(), ShouldEqual, 0)
		})
	})

	Convey("A bcrypt panel key", t, func() {
		hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
		So(err, ShouldBeNil)
		g := NewTokenGate(string(hash), time.Minute)
		_, err = g.Issue("hunter2")
		So(err, ShouldBeNil)
		_, err = g.Issue(string(hash))
		So(err, ShouldEqual, ErrAuth)
	})

	Convey("An empty panel key admits nobody", t, func() {
		g := NewTokenGate("", 0)
		_, err := g.Issue("")
		So(err, ShouldEqual, ErrAuth)
	})
}
