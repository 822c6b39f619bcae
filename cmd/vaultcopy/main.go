// Command vaultcopy drives the copier package (C4) directly, without any
// vcsadapter/registry/engine involvement, for operators who want the
// content-addressed tree replicator as a standalone tool -- the same
// relationship vault-copy.cpp bears to vault-sync.cpp in original_source.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/polydawn/vault/copier"
	"github.com/polydawn/vault/events"
	"github.com/polydawn/vault/internal/vlog"
)

type copyCLI struct {
	Src       string
	DstDir    string
	BlobRoot  string
	Mode      string // "compact" or "big"
	Recursive bool
	Overwrite bool
	Deref     bool
}

func CancelOnInterrupt(cancel context.CancelFunc) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt)
	<-signalChan
	cancel()
	close(signalChan)
}

func main() {
	ctx := context.Background()
	os.Exit(Main(ctx, os.Args, os.Stderr))
}

func Main(ctx context.Context, args []string, stderr io.Writer) int {
	_, cancel := context.WithCancel(ctx)
	go CancelOnInterrupt(cancel)

	cli := copyCLI{}
	app := kingpin.New("vaultcopy", "Content-addressed directory-tree copier")
	app.HelpFlag.Short('h')
	app.UsageWriter(stderr)
	app.ErrorWriter(stderr)

	app.Arg("src", "Source path").Required().StringVar(&cli.Src)
	app.Arg("dst-dir", "Destination directory (src lands at dst-dir/basename(src))").Required().StringVar(&cli.DstDir)
	app.Flag("blob-root", "Vault root whose blobs/ subtree backs big-mode data").Required().StringVar(&cli.BlobRoot)
	app.Flag("mode", "compact: inline bytes, big: route through the blob store").
		Default("big").EnumVar(&cli.Mode, "compact", "big")
	app.Flag("recursive", "Traverse subdirectories").Default("true").BoolVar(&cli.Recursive)
	app.Flag("overwrite", "Replace an existing destination entry").BoolVar(&cli.Overwrite)
	app.Flag("deref", "Follow source symlinks instead of recreating them").BoolVar(&cli.Deref)
	action := app.Flag("action", "export: live -> blob store, import: blob store -> live").
		Default("export").Enum("export", "import")

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

	opts := copier.Options{BlobRoot: cli.BlobRoot}
	if cli.Mode == "big" {
		opts.Data = copier.Big
	}
	if !cli.Recursive {
		opts.Depth = copier.Shallow
	}
	if cli.Overwrite {
		opts.Overwrite = copier.OverwriteYes
	}
	if cli.Deref {
		opts.Deref = copier.DerefYes
	}
	copyAction := copier.Export
	if *action == "import" {
		copyAction = copier.Import
	}

	log := vlog.Default()
	eventCh := make(chan events.Event, 16)
	mon := events.Monitor{Chan: eventCh}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range eventCh {
			if ev.Kind == events.KindProgress {
				fmt.Fprintf(stderr, "%s: %v\n", ev.Operation, ev.Data)
			}
		}
	}()

	err := copier.CopyTree(opts, copyAction, cli.Src, cli.DstDir, mon, events.Operation("copy"), "", log)
	close(eventCh)
	<-done

	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	return 0
}
