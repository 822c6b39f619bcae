// Command vault is a thin CLI wrapper over the engine package (spec §6):
// one process per invocation, one action, exit 0 on success or non-zero
// with a single-line diagnostic on stderr on failure.
//
// Grounded on cmd/rio/main.go's baseCLI/kingpin/CancelOnInterrupt shape,
// with rio's per-verb subcommands collapsed into a single --action flag
// because that is the surface spec.md §6 actually specifies.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/polydawn/vault/engine"
	"github.com/polydawn/vault/events"
	"github.com/polydawn/vault/internal/vlog"
	"github.com/polydawn/vault/registry"
)

type baseCLI struct {
	Action      string
	VaultPath   string
	HomePath    string
	Message     string
	Snapshot    string
	UnitsRaw    string
	ExternalDir string
	UnitName    string
	UnitScript  string
	UnitHome    string
	UnitOptions []string
	BlobRef     string
}

func (c baseCLI) units() []string {
	if c.UnitsRaw == "" {
		return nil
	}
	parts := strings.Split(c.UnitsRaw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// CancelOnInterrupt blocks until SIGINT, then cancels. Matches
// cmd/rio/main.go's CancelOnInterrupt exactly.
func CancelOnInterrupt(cancel context.CancelFunc) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt)
	<-signalChan
	cancel()
	close(signalChan)
}

func main() {
	ctx := context.Background()
	os.Exit(Main(ctx, os.Args, os.Stdout, os.Stderr))
}

func Main(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	ctx, cancel := context.WithCancel(ctx)
	go CancelOnInterrupt(cancel)

	cli := baseCLI{}
	app := kingpin.New("vault", "Incremental, content-addressed backup engine")
	app.HelpFlag.Short('h')
	app.UsageWriter(stderr)
	app.ErrorWriter(stderr)

	app.Flag("action", "Action to perform").Required().
		EnumVar(&cli.Action,
			"init", "backup", "restore", "list-snapshots", "remove-snapshot",
			"export", "import", "register-unit", "unregister-unit", "resolve-blob")
	app.Flag("vault", "Vault root path").Required().StringVar(&cli.VaultPath)
	app.Flag("home", "HOME override passed through to unit handlers").StringVar(&cli.HomePath)
	app.Flag("message", "Snapshot message (backup)").StringVar(&cli.Message)
	app.Flag("snapshot", "Snapshot tag name (restore, remove-snapshot)").StringVar(&cli.Snapshot)
	app.Flag("units", "Comma-separated unit names (backup, restore)").StringVar(&cli.UnitsRaw)
	app.Flag("path", "External directory (export, import)").StringVar(&cli.ExternalDir)
	app.Flag("unit-name", "Unit name (register-unit, unregister-unit)").StringVar(&cli.UnitName)
	app.Flag("unit-script", "Unit handler script path (register-unit)").StringVar(&cli.UnitScript)
	app.Flag("unit-home", "Per-unit HOME override (register-unit)").StringVar(&cli.UnitHome)
	app.Flag("unit-option", "key=value, repeatable (register-unit)").StringsVar(&cli.UnitOptions)
	app.Flag("blob", "Blob hash, blob URI, or reference file path (resolve-blob)").StringVar(&cli.BlobRef)

	var termErr error
	app.Terminate(func(status int) { termErr = fmt.Errorf("parsing error: %d", status) })
	if _, err := app.Parse(args[1:]); err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	if termErr != nil {
		fmt.Fprintln(stderr, termErr)
		return 2
	}

	if cli.HomePath == "" {
		if home, err := homedir.Dir(); err == nil {
			cli.HomePath = home
		}
	}

	log := vlog.Default()
	eventCh := make(chan events.Event, 16)
	mon := events.Monitor{Chan: eventCh}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range eventCh {
			printEvent(stderr, ev)
		}
	}()
	runErr := dispatch(ctx, cli, mon, log, stdout)
	close(eventCh)
	<-done

	if runErr != nil {
		fmt.Fprintln(stderr, runErr)
		return 1
	}
	return 0
}

func printEvent(w io.Writer, ev events.Event) {
	if ev.Kind != events.KindProgress {
		return
	}
	fmt.Fprintf(w, "%s: %v\n", ev.Operation, ev.Data)
}

func dispatch(ctx context.Context, cli baseCLI, mon events.Monitor, log *vlog.Logger, stdout io.Writer) error {
	e := engine.New(cli.VaultPath, "vault", "vault@localhost", cli.HomePath, log)
	if err := e.Connect(mon); err != nil {
		return err
	}

	switch cli.Action {
	case "init":
		fmt.Fprintln(stdout, cli.VaultPath)
		return nil

	case "backup":
		snapshot, err := e.Backup(ctx, mon, cli.Message, cli.units())
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, snapshot)
		return nil

	case "restore":
		if cli.Snapshot == "" {
			return fmt.Errorf("restore: --snapshot is required")
		}
		return e.Restore(ctx, mon, cli.Snapshot, cli.units())

	case "list-snapshots":
		tags, err := e.Snapshots()
		if err != nil {
			return err
		}
		for _, t := range tags {
			fmt.Fprintln(stdout, t.Name)
		}
		return nil

	case "remove-snapshot":
		if cli.Snapshot == "" {
			return fmt.Errorf("remove-snapshot: --snapshot is required")
		}
		return e.RemoveSnapshot(mon, cli.Snapshot)

	case "export":
		return runExportImport(e, mon, engine.ExternalExport, cli.ExternalDir)

	case "import":
		return runExportImport(e, mon, engine.ExternalImport, cli.ExternalDir)

	case "register-unit":
		return registerUnit(e, cli)

	case "unregister-unit":
		if cli.UnitName == "" {
			return fmt.Errorf("unregister-unit: --unit-name is required")
		}
		reg, err := e.Registry()
		if err != nil {
			return err
		}
		_, err = reg.Rm(cli.UnitName)
		return err

	case "resolve-blob":
		if cli.BlobRef == "" {
			return fmt.Errorf("resolve-blob: --blob is required")
		}
		path, err := resolveBlob(e.Root(), cli.BlobRef)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, path)
		return nil

	default:
		return fmt.Errorf("unrecognized action %q", cli.Action)
	}
}

func runExportImport(e *engine.Engine, mon events.Monitor, action engine.ExportImportAction, path string) error {
	if path == "" {
		return fmt.Errorf("--path is required")
	}
	desc, err := e.ExportImportPrepare(action, path)
	if err != nil {
		return err
	}
	return e.ExportImportExecute(mon, desc)
}

func registerUnit(e *engine.Engine, cli baseCLI) error {
	if cli.UnitName == "" || cli.UnitScript == "" {
		return fmt.Errorf("register-unit: --unit-name and --unit-script are required")
	}
	reg, err := e.Registry()
	if err != nil {
		return err
	}
	opts := map[string]string{}
	for _, kv := range cli.UnitOptions {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("register-unit: malformed --unit-option %q, want key=value", kv)
		}
		opts[parts[0]] = parts[1]
	}
	_, err = reg.Set(registry.Unit{
		Name:    cli.UnitName,
		Script:  cli.UnitScript,
		Home:    cli.UnitHome,
		Options: opts,
	})
	return err
}

func resolveBlob(root, ref string) (string, error) {
	if strings.HasPrefix(ref, "blob://") {
		return engine.ResolveBlobURI(root, ref)
	}
	if len(ref) == 40 {
		return engine.ResolveBlobURI(root, engine.BlobURIFromHash(ref))
	}
	return engine.ResolveBlobRefFile(root, ref)
}
