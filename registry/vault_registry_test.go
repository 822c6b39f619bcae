package registry

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/polydawn/vault/testutil"
)

// fakeAdapter is a minimal in-memory stand-in for *vcsadapter.Adapter,
// tracking only what VaultRegistry needs to decide whether to commit.
type fakeAdapter struct {
	dirty   bool
	commits []string
}

func (f *fakeAdapter) AddAllUnder(path string) error    { return nil }
func (f *fakeAdapter) AddUpdateOnly(path string) error   { return nil }
func (f *fakeAdapter) Status(path string) (bool, error)  { return !f.dirty, nil }
func (f *fakeAdapter) CommitTagged(msg string) (string, error) {
	f.commits = append(f.commits, msg)
	f.dirty = false
	return "deadbeef", nil
}

func TestVaultRegistrySetCommitsWhenDirty(t *testing.T) {
	Convey("Set stages and commits +name when the tree is dirty", t, func() {
		testutil.WithTmpdir(func(dir string) {
			fa := &fakeAdapter{dirty: true}
			reg, err := NewVaultRegistry(DefaultUnitsDir(dir), fa, nil)
			So(err, ShouldBeNil)

			changed, err := reg.Set(Unit{Name: "mail", Script: "./mail.sh"})
			So(err, ShouldBeNil)
			So(changed, ShouldBeTrue)
			So(fa.commits, ShouldResemble, []string{"+mail"})
		})
	})
}

func TestVaultRegistryRmFailsWhenTreeStaysClean(t *testing.T) {
	Convey("Rm raises a logic error if removal leaves the tree clean", t, func() {
		testutil.WithTmpdir(func(dir string) {
			fa := &fakeAdapter{dirty: true}
			reg, err := NewVaultRegistry(DefaultUnitsDir(dir), fa, nil)
			So(err, ShouldBeNil)
			_, err = reg.Set(Unit{Name: "mail", Script: "./mail.sh"})
			So(err, ShouldBeNil)

			fa.dirty = false // simulate nothing actually staged
			_, err = reg.Rm("mail")
			So(err, ShouldNotBeNil)
		})
	})
}

func TestVaultRegistryRmCommitsWhenDirty(t *testing.T) {
	Convey("Rm stages and commits -name when the tree is dirty", t, func() {
		testutil.WithTmpdir(func(dir string) {
			fa := &fakeAdapter{dirty: true}
			reg, err := NewVaultRegistry(DefaultUnitsDir(dir), fa, nil)
			So(err, ShouldBeNil)
			_, err = reg.Set(Unit{Name: "mail", Script: "./mail.sh"})
			So(err, ShouldBeNil)

			fa.dirty = true
			name, err := reg.Rm("mail")
			So(err, ShouldBeNil)
			So(name, ShouldEqual, "mail.json")
			So(fa.commits, ShouldResemble, []string{"+mail", "-mail"})
		})
	})
}
