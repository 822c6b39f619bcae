package blobstore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/polydawn/vault/testutil"
)

const sampleHash = "da39a3ee5e6b4b0d3255bfef95601890afd80709" // arbitrary 40-hex stand-in

func TestPathSplitsTwoAndThirtyEight(t *testing.T) {
	Convey("blob paths split as <aa>/<rest>", t, func() {
		path, err := Path("/vault", sampleHash)
		So(err, ShouldBeNil)
		So(path, ShouldEqual, filepath.Join("/vault/blobs", sampleHash[:2], sampleHash[2:]))
	})
}

func TestPutIsIdempotent(t *testing.T) {
	Convey("writing the same blob twice only writes once", t, func() {
		testutil.WithTmpdir(func(root string) {
			err := Put(root, sampleHash, strings.NewReader("hello"), 0644)
			So(err, ShouldBeNil)
			path, _ := Path(root, sampleHash)
			info1, err := os.Stat(path)
			So(err, ShouldBeNil)

			// Second write with different (but not inspected) content is skipped.
			err = Put(root, sampleHash, strings.NewReader("ignored"), 0644)
			So(err, ShouldBeNil)
			info2, err := os.Stat(path)
			So(err, ShouldBeNil)
			So(info2.ModTime(), ShouldEqual, info1.ModTime())

			got, err := os.ReadFile(path)
			So(err, ShouldBeNil)
			So(string(got), ShouldEqual, "hello")
		})
	})
}

func TestPutCreatesPrefixDirOwnerOnly(t *testing.T) {
	Convey("the <aa> prefix dir is created 0700", t, func() {
		testutil.WithTmpdir(func(root string) {
			err := Put(root, sampleHash, strings.NewReader("x"), 0644)
			So(err, ShouldBeNil)
			info, err := os.Stat(filepath.Join(Dir(root), sampleHash[:2]))
			So(err, ShouldBeNil)
			So(info.Mode().Perm(), ShouldEqual, os.FileMode(0700))
		})
	})
}
