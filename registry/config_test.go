package registry

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/polydawn/vault/testutil"
)

func TestLoadEmptyDirIsNotAnError(t *testing.T) {
	Convey("loading a missing .modules dir yields an empty registry", t, func() {
		testutil.WithTmpdir(func(dir string) {
			cfg, err := Load(DefaultUnitsDir(dir), nil)
			So(err, ShouldBeNil)
			So(len(cfg.Units()), ShouldEqual, 0)
		})
	})
}

func TestLoadSkipsMalformedFile(t *testing.T) {
	Convey("a malformed unit file is skipped, not fatal", t, func() {
		testutil.WithTmpdir(func(dir string) {
			unitsDir := DefaultUnitsDir(dir)
			So(os.MkdirAll(unitsDir, 0755), ShouldBeNil)
			So(os.WriteFile(filepath.Join(unitsDir, "good.json"), []byte(`{"name":"good","script":"./x"}`), 0644), ShouldBeNil)
			So(os.WriteFile(filepath.Join(unitsDir, "bad.json"), []byte(`{not json`), 0644), ShouldBeNil)

			cfg, err := Load(unitsDir, nil)
			So(err, ShouldBeNil)
			So(len(cfg.Units()), ShouldEqual, 1)
			_, ok := cfg.Get("good")
			So(ok, ShouldBeTrue)
		})
	})
}

func TestSetRequiresNameAndScript(t *testing.T) {
	Convey("Set rejects a unit missing name or script", t, func() {
		testutil.WithTmpdir(func(dir string) {
			cfg, err := Load(DefaultUnitsDir(dir), nil)
			So(err, ShouldBeNil)
			_, err = cfg.Set(Unit{Name: "incomplete"})
			So(err, ShouldNotBeNil)
		})
	})
}

func TestSetTrustsAlreadyMarkedUnitConfig(t *testing.T) {
	Convey("Set skips the name/script check when IsUnitConfig is already set", t, func() {
		testutil.WithTmpdir(func(dir string) {
			cfg, err := Load(DefaultUnitsDir(dir), nil)
			So(err, ShouldBeNil)
			_, err = cfg.Set(Unit{Name: "partial", IsUnitConfig: true})
			So(err, ShouldBeNil)
		})
	})
}

func TestSetReportsChangedOnlyWhenDifferent(t *testing.T) {
	Convey("Set is idempotent for identical configs", t, func() {
		testutil.WithTmpdir(func(dir string) {
			cfg, err := Load(DefaultUnitsDir(dir), nil)
			So(err, ShouldBeNil)

			u := Unit{Name: "mail", Script: "./mail.sh"}
			changed, err := cfg.Set(u)
			So(err, ShouldBeNil)
			So(changed, ShouldBeTrue)

			changed, err = cfg.Set(u)
			So(err, ShouldBeNil)
			So(changed, ShouldBeFalse)

			u.Home = "/home/alt"
			changed, err = cfg.Set(u)
			So(err, ShouldBeNil)
			So(changed, ShouldBeTrue)
		})
	})
}

func TestRmReturnsDeletedFilenameOrEmpty(t *testing.T) {
	Convey("Rm reports the filename deleted, or empty if absent", t, func() {
		testutil.WithTmpdir(func(dir string) {
			cfg, err := Load(DefaultUnitsDir(dir), nil)
			So(err, ShouldBeNil)
			_, err = cfg.Set(Unit{Name: "mail", Script: "./mail.sh"})
			So(err, ShouldBeNil)

			name, err := cfg.Rm("mail")
			So(err, ShouldBeNil)
			So(name, ShouldEqual, "mail.json")

			name, err = cfg.Rm("mail")
			So(err, ShouldBeNil)
			So(name, ShouldEqual, "")
		})
	})
}
