package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/polydawn/vault/events"
	"github.com/polydawn/vault/registry"
	"github.com/polydawn/vault/testutil"
	"github.com/polydawn/vault/vaulterr"
)

// writeShellHandler writes an executable shell script implementing the
// unit handler protocol (spec §6): on export it writes fixture content
// (with printf backslash escapes expanded) to --dir/hello.txt; on import
// it does nothing and exits 0.
func writeShellHandler(t *testing.T, path, fixtureContent string) {
	script := "#!/bin/sh\n" +
		"set -e\n" +
		"action=\n" +
		"dir=\n" +
		"for arg in \"$@\"; do\n" +
		"  case \"$arg\" in\n" +
		"    --action=*) action=\"${arg#--action=}\" ;;\n" +
		"    --dir=*) dir=\"${arg#--dir=}\" ;;\n" +
		"  esac\n" +
		"done\n" +
		"if [ \"$action\" = \"export\" ]; then\n" +
		"  printf '%b' '" + fixtureContent + "' > \"$dir/hello.txt\"\n" +
		"fi\n" +
		"exit 0\n"
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
}

func TestEmptyBackupProducesOneTagAndNoBlobs(t *testing.T) {
	Convey("connecting and backing up a unit with no payload yields one tag", t, func() {
		testutil.WithTmpdir(func(dir string) {
			root := filepath.Join(dir, "vault")
			scriptPath := filepath.Join(dir, "noop.sh")
			if err := os.WriteFile(scriptPath, []byte("#!/bin/sh\nexit 0\n"), 0755); err != nil {
				t.Fatal(err)
			}

			e := New(root, "tester", "tester@example.com", "", nil)
			mon := events.Monitor{}
			So(e.Connect(mon), ShouldBeNil)

			reg, err := e.Registry()
			So(err, ShouldBeNil)
			_, err = reg.Set(registry.Unit{Name: "u1", Script: scriptPath})
			So(err, ShouldBeNil)

			snapshot, err := e.Backup(context.Background(), mon, "init", []string{"u1"})
			So(err, ShouldBeNil)
			So(snapshot, ShouldNotBeEmpty)

			tags, err := e.Snapshots()
			So(err, ShouldBeNil)
			So(len(tags), ShouldEqual, 1)
			So(tags[0].Name, ShouldEqual, snapshot)

			blobsDir := filepath.Join(root, "blobs")
			_, statErr := os.Stat(blobsDir)
			So(os.IsNotExist(statErr), ShouldBeTrue)
		})
	})
}

func TestSmallFileRoundTripsThroughBackupAndRestore(t *testing.T) {
	Convey("a small exported file survives a backup/restore cycle", t, func() {
		testutil.WithTmpdir(func(dir string) {
			root := filepath.Join(dir, "vault")
			scriptPath := filepath.Join(dir, "handler.sh")
			writeShellHandler(t, scriptPath, "hi\\n")

			e := New(root, "tester", "tester@example.com", "", nil)
			mon := events.Monitor{}
			So(e.Connect(mon), ShouldBeNil)

			reg, err := e.Registry()
			So(err, ShouldBeNil)
			_, err = reg.Set(registry.Unit{Name: "u1", Script: scriptPath})
			So(err, ShouldBeNil)

			snapshot, err := e.Backup(context.Background(), mon, "s1", []string{"u1"})
			So(err, ShouldBeNil)

			got, err := os.ReadFile(filepath.Join(root, "u1", "data", "hello.txt"))
			So(err, ShouldBeNil)
			So(string(got), ShouldEqual, "hi\n")

			So(os.RemoveAll(filepath.Join(root, "u1", "data", "hello.txt")), ShouldBeNil)
			So(e.Restore(context.Background(), mon, snapshot, []string{"u1"}), ShouldBeNil)

			restored, err := os.ReadFile(filepath.Join(root, "u1", "data", "hello.txt"))
			So(err, ShouldBeNil)
			So(string(restored), ShouldEqual, "hi\n")
		})
	})
}

func TestBackupFailsForUnregisteredUnit(t *testing.T) {
	Convey("backing up an unregistered unit name is a Config error", t, func() {
		testutil.WithTmpdir(func(dir string) {
			root := filepath.Join(dir, "vault")
			e := New(root, "tester", "tester@example.com", "", nil)
			mon := events.Monitor{}
			So(e.Connect(mon), ShouldBeNil)

			_, err := e.Backup(context.Background(), mon, "s1", []string{"ghost"})
			So(err, ShouldNotBeNil)
			So(vaulterr.Category(err), ShouldEqual, vaulterr.Config)
		})
	})
}

func TestRemoveSnapshotDropsItFromList(t *testing.T) {
	Convey("removing a snapshot removes it from Snapshots but keeps others", t, func() {
		testutil.WithTmpdir(func(dir string) {
			root := filepath.Join(dir, "vault")
			scriptPath := filepath.Join(dir, "noop.sh")
			os.WriteFile(scriptPath, []byte("#!/bin/sh\nexit 0\n"), 0755)

			e := New(root, "tester", "tester@example.com", "", nil)
			mon := events.Monitor{}
			So(e.Connect(mon), ShouldBeNil)
			reg, err := e.Registry()
			So(err, ShouldBeNil)
			reg.Set(registry.Unit{Name: "u1", Script: scriptPath})

			s1, err := e.Backup(context.Background(), mon, "s1", []string{"u1"})
			So(err, ShouldBeNil)
			s2, err := e.Backup(context.Background(), mon, "s2", []string{"u1"})
			So(err, ShouldBeNil)

			So(e.RemoveSnapshot(mon, s1), ShouldBeNil)
			tags, err := e.Snapshots()
			So(err, ShouldBeNil)
			So(len(tags), ShouldEqual, 1)
			So(tags[0].Name, ShouldEqual, s2)
		})
	})
}
