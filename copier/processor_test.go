package copier

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/polydawn/vault/events"
	"github.com/polydawn/vault/testutil"
)

func noMonitor() (events.Monitor, events.Operation) {
	return events.Monitor{}, events.OpBackup
}

func TestCompactCopyPreservesContentAndMtime(t *testing.T) {
	Convey("a compact copy reproduces bytes and mtime", t, func() {
		testutil.WithTmpdir(func(dir string) {
			srcDir := filepath.Join(dir, "src")
			dstDir := filepath.Join(dir, "dst")
			So(os.Mkdir(srcDir, 0755), ShouldBeNil)
			So(os.Mkdir(dstDir, 0755), ShouldBeNil)
			filePath := filepath.Join(srcDir, "hello.txt")
			So(os.WriteFile(filePath, []byte("hi\n"), 0644), ShouldBeNil)

			mon, op := noMonitor()
			err := CopyTree(Options{Data: Compact}, Export, filePath, dstDir, mon, op, "", nil)
			So(err, ShouldBeNil)

			got, err := os.ReadFile(filepath.Join(dstDir, "hello.txt"))
			So(err, ShouldBeNil)
			So(string(got), ShouldEqual, "hi\n")

			srcInfo, err := os.Stat(filePath)
			So(err, ShouldBeNil)
			dstInfo, err := os.Stat(filepath.Join(dstDir, "hello.txt"))
			So(err, ShouldBeNil)
			So(dstInfo.ModTime().Equal(srcInfo.ModTime()), ShouldBeTrue)
		})
	})
}

func TestBigModeExportThenImportRoundTrips(t *testing.T) {
	Convey("big-mode export then import reproduces original bytes via a blob", t, func() {
		testutil.WithTmpdir(func(dir string) {
			vaultRoot := filepath.Join(dir, "vault")
			liveDir := filepath.Join(dir, "live")
			stageDir := filepath.Join(dir, "stage")
			restoreDir := filepath.Join(dir, "restore")
			for _, d := range []string{vaultRoot, liveDir, stageDir, restoreDir} {
				So(os.MkdirAll(d, 0755), ShouldBeNil)
			}
			content := make([]byte, 2*1024*1024)
			for i := range content {
				content[i] = byte(i % 251)
			}
			bigFile := filepath.Join(liveDir, "big.bin")
			So(os.WriteFile(bigFile, content, 0644), ShouldBeNil)

			mon, op := noMonitor()
			opts := Options{BlobRoot: vaultRoot, Data: Big}
			So(CopyTree(opts, Export, bigFile, stageDir, mon, op, "", nil), ShouldBeNil)

			refPath := filepath.Join(stageDir, "big.bin")
			refBytes, err := os.ReadFile(refPath)
			So(err, ShouldBeNil)
			So(len(refBytes), ShouldBeGreaterThan, 0)

			So(CopyTree(opts, Import, refPath, restoreDir, mon, op, "", nil), ShouldBeNil)
			restored, err := os.ReadFile(filepath.Join(restoreDir, "big.bin"))
			So(err, ShouldBeNil)
			So(restored, ShouldResemble, content)
		})
	})
}

func TestDirectoryCopyIsRecursive(t *testing.T) {
	Convey("a directory copies its full subtree", t, func() {
		testutil.WithTmpdir(func(dir string) {
			srcDir := filepath.Join(dir, "src")
			dstParent := filepath.Join(dir, "dstparent")
			So(os.MkdirAll(filepath.Join(srcDir, "sub"), 0755), ShouldBeNil)
			So(os.MkdirAll(dstParent, 0755), ShouldBeNil)
			So(os.WriteFile(filepath.Join(srcDir, "a.txt"), []byte("a"), 0644), ShouldBeNil)
			So(os.WriteFile(filepath.Join(srcDir, "sub", "b.txt"), []byte("b"), 0644), ShouldBeNil)

			mon, op := noMonitor()
			err := CopyTree(Options{Data: Compact}, Export, srcDir, dstParent, mon, op, "", nil)
			So(err, ShouldBeNil)

			gotA, err := os.ReadFile(filepath.Join(dstParent, "src", "a.txt"))
			So(err, ShouldBeNil)
			So(string(gotA), ShouldEqual, "a")
			gotB, err := os.ReadFile(filepath.Join(dstParent, "src", "sub", "b.txt"))
			So(err, ShouldBeNil)
			So(string(gotB), ShouldEqual, "b")
		})
	})
}

func TestSymlinkPreservedWithoutDeref(t *testing.T) {
	Convey("a symlink is recreated, not dereferenced, when Deref=No", t, func() {
		testutil.WithTmpdir(func(dir string) {
			srcDir := filepath.Join(dir, "src")
			dstParent := filepath.Join(dir, "dstparent")
			So(os.MkdirAll(srcDir, 0755), ShouldBeNil)
			So(os.MkdirAll(dstParent, 0755), ShouldBeNil)
			linkPath := filepath.Join(srcDir, "link")
			So(os.Symlink("../target", linkPath), ShouldBeNil)

			mon, op := noMonitor()
			err := CopyTree(Options{Data: Compact, Deref: DerefNo}, Export, linkPath, dstParent, mon, op, "", nil)
			So(err, ShouldBeNil)

			target, err := os.Readlink(filepath.Join(dstParent, "link"))
			So(err, ShouldBeNil)
			So(target, ShouldEqual, "../target")
		})
	})
}

func TestOverwriteNoSkipsExistingDestination(t *testing.T) {
	Convey("Overwrite=No leaves an already-complete destination untouched", t, func() {
		testutil.WithTmpdir(func(dir string) {
			srcDir := filepath.Join(dir, "src")
			dstDir := filepath.Join(dir, "dst")
			So(os.MkdirAll(srcDir, 0755), ShouldBeNil)
			So(os.MkdirAll(dstDir, 0755), ShouldBeNil)
			srcFile := filepath.Join(srcDir, "f.txt")
			dstFile := filepath.Join(dstDir, "f.txt")
			So(os.WriteFile(srcFile, []byte("new"), 0644), ShouldBeNil)
			So(os.WriteFile(dstFile, []byte("old"), 0644), ShouldBeNil)
			before, err := os.Stat(dstFile)
			So(err, ShouldBeNil)

			mon, op := noMonitor()
			err = CopyTree(Options{Data: Compact, Overwrite: OverwriteNo}, Export, srcFile, dstDir, mon, op, "", nil)
			So(err, ShouldBeNil)

			after, err := os.Stat(dstFile)
			So(err, ShouldBeNil)
			So(after.ModTime().Equal(before.ModTime()), ShouldBeTrue)
			got, err := os.ReadFile(dstFile)
			So(err, ShouldBeNil)
			So(string(got), ShouldEqual, "old")
		})
	})
}
