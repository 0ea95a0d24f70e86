package cache

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestFreecache(t *testing.T) {
	Convey("Given a freecache-backed cache", t, func() {
		c := New("test", 1)

		Convey("When a key is missing", func() {
			_, ok := c.Get("missing")
			Convey("Then Get reports a miss", func() {
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When a value is set", func() {
			c.Set("k", []byte("v"))
			got, ok := c.Get("k")

			Convey("Then it is returned", func() {
				So(ok, ShouldBeTrue)
				So(string(got), ShouldEqual, "v")
			})

			Convey("Then Del invalidates it", func() {
				c.Del("k")
				_, ok := c.Get("k")
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When sized below the minimum arena", func() {
			small := New("small", 0, WithTTL(0))
			small.Set("k", []byte("v"))
			_, ok := small.Get("k")
			Convey("Then it still works", func() {
				So(ok, ShouldBeTrue)
			})
		})
	})

	Convey("Given the noop cache", t, func() {
		var c Cache = Noop{}
		c.Set("k", []byte("v"))
		_, ok := c.Get("k")
		So(ok, ShouldBeFalse)
	})
}
