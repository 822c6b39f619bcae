package engine

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/polydawn/vault/copier"
	"github.com/polydawn/vault/copier/treehash"
	"github.com/polydawn/vault/events"
	"github.com/polydawn/vault/vaulterr"
	"github.com/polydawn/vault/vcsadapter"
)

// Backup runs the full staging-branch/commit/tag choreography of spec
// §4.6 over the given unit names (which must already be registered).
func (e *Engine) Backup(ctx context.Context, mon events.Monitor, message string, units []string) (snapshot string, err error) {
	if err := e.requireConnected(); err != nil {
		return "", err
	}
	for _, name := range units {
		if _, ok := e.registry.Get(name); !ok {
			return "", vaulterr.Errorf(vaulterr.Config, "backup: unit %q is not registered", name)
		}
	}

	origBranch, err := e.adapter.CurrentBranch()
	if err != nil {
		return "", err
	}
	tmpBranch := fmt.Sprintf("vault-staging-%d", time.Now().UnixNano())
	if err := e.adapter.BranchCreate(tmpBranch); err != nil {
		return "", err
	}
	if err := e.adapter.BranchCheckout(tmpBranch); err != nil {
		return "", err
	}

	cleanupOnFailure := func(opErr error) error {
		e.adapter.ResetHard("HEAD")
		if origBranch != "" {
			e.adapter.BranchCheckout(origBranch)
		}
		e.adapter.BranchDelete(tmpBranch)
		mon.Error(events.OpBackup, map[string]interface{}{
			"operation": string(events.OpBackup),
			"msg":       opErr.Error(),
		})
		return opErr
	}

	for _, name := range units {
		u, _ := e.registry.Get(name)
		mon.Progress(events.OpBackup, map[string]interface{}{"unit": name, "stage": "start"})

		unitDir := e.unitDir(name)
		blobsDir := e.unitBlobsDir(name)
		dataDir := e.unitDataDir(name)
		if err := os.MkdirAll(blobsDir, 0755); err != nil {
			return "", cleanupOnFailure(wrapIOErr(blobsDir, err))
		}
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return "", cleanupOnFailure(wrapIOErr(dataDir, err))
		}

		if err := invokeHandler(ctx, u, handlerExport, dataDir, blobsDir, e.unitHome(u)); err != nil {
			return "", cleanupOnFailure(err)
		}

		// The handler drops large payloads as plain files under blobsDir;
		// the copier replaces them in place with blob-store references,
		// landing the bytes in root/blobs (src and dst resolve to the
		// same directory, which is safe because each file's content is
		// read -- and, for new hashes, copied into the blob store -- in
		// full before that same path is overwritten with its reference).
		opts := copier.Options{BlobRoot: e.root, Data: copier.Big, Overwrite: copier.OverwriteYes}
		if err := copier.CopyTree(opts, copier.Export, blobsDir, e.unitDir(name), mon, events.OpBackup, name, e.log); err != nil {
			return "", cleanupOnFailure(err)
		}

		// Cheap pre-commit sanity signal: a stable identity hash over the
		// staged unit tree, logged (not stored) before handing it to the
		// VCS adapter -- lets an operator eyeball whether a unit actually
		// changed since the last backup without diffing the commit.
		digest, err := treehash.HexString(unitDir)
		if err != nil {
			return "", cleanupOnFailure(err)
		}
		e.log.Infof("unit %q staged tree hash: %s", name, digest)

		if err := e.adapter.Add(unitDir, vcsadapter.AddAll); err != nil {
			return "", cleanupOnFailure(err)
		}
		mon.Progress(events.OpBackup, map[string]interface{}{"unit": name, "stage": "done"})
	}

	commitHash, err := e.adapter.Commit(message)
	if err != nil {
		return "", cleanupOnFailure(err)
	}

	name := generateTagName(time.Now(), func(candidate string) bool {
		tags, listErr := e.adapter.ListTags()
		if listErr != nil {
			return false
		}
		for _, t := range tags {
			if t.Name == candidate {
				return true
			}
		}
		return false
	})

	if err := e.adapter.Tag(name, commitHash, message); err != nil {
		return "", cleanupOnFailure(err)
	}

	if origBranch != "" {
		if err := e.adapter.BranchCheckout(origBranch); err != nil {
			return "", cleanupOnFailure(err)
		}
	}
	if err := e.adapter.BranchDelete(tmpBranch); err != nil {
		return "", err
	}

	mon.Done(events.OpBackup, map[string]interface{}{"snapshot": name})
	return name, nil
}
