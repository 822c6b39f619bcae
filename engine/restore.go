package engine

import (
	"context"

	"github.com/polydawn/vault/copier"
	"github.com/polydawn/vault/events"
)

// Restore checks out snapshot in a detached state, invokes each unit's
// import handler, and returns the working tree to the prior branch. A
// single unit's failure is surfaced per-unit and does not abort the
// remaining units, per spec §4.6.
func (e *Engine) Restore(ctx context.Context, mon events.Monitor, snapshot string, units []string) error {
	if err := e.requireConnected(); err != nil {
		return err
	}
	origBranch, err := e.adapter.CurrentBranch()
	if err != nil {
		return err
	}
	if err := e.adapter.CheckoutTagDetached(snapshot); err != nil {
		mon.Error(events.OpRestore, map[string]interface{}{"msg": "checkout failed", "error": err.Error(), "snapshot": snapshot})
		return err
	}

	for _, name := range units {
		mon.Progress(events.OpRestore, map[string]interface{}{"unit": name, "stage": "start"})
		u, ok := e.registry.Get(name)
		if !ok {
			mon.Progress(events.OpRestore, map[string]interface{}{"unit": name, "error": "not registered"})
			continue
		}

		blobsDir := e.unitBlobsDir(name)
		dataDir := e.unitDataDir(name)

		// Reconstitute the unit's staged blobs dir from reference files
		// back into raw payloads before handing it to the handler.
		opts := copier.Options{BlobRoot: e.root, Data: copier.Big, Overwrite: copier.OverwriteYes}
		if err := copier.CopyTree(opts, copier.Import, blobsDir, e.unitDir(name), mon, events.OpRestore, name, e.log); err != nil {
			mon.Progress(events.OpRestore, map[string]interface{}{"unit": name, "error": err.Error()})
			continue
		}

		if err := invokeHandler(ctx, u, handlerImport, dataDir, blobsDir, e.unitHome(u)); err != nil {
			mon.Progress(events.OpRestore, map[string]interface{}{"unit": name, "error": err.Error()})
			continue
		}
		mon.Progress(events.OpRestore, map[string]interface{}{"unit": name, "stage": "done"})
	}

	if origBranch != "" {
		if err := e.adapter.BranchCheckout(origBranch); err != nil {
			mon.Error(events.OpRestore, map[string]interface{}{"msg": "failed to return to prior branch", "error": err.Error()})
			return err
		}
	}
	mon.Done(events.OpRestore, map[string]interface{}{"snapshot": snapshot})
	return nil
}
