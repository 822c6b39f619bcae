// Package treehash computes a deterministic CBOR-based hash over a staged
// directory's metadata -- a pre-commit sanity signal ("this unit's content
// changed since last backup") logged by the engine. It is an enrichment
// beyond spec.md's text (added per SPEC_FULL.md); it never participates in
// content-addressing or restore.
//
// Grounded on transmat/mixins/fshash/bucketHash.go's HashBucket, trimmed to
// the fields fsutil.Stat actually carries (no xattrs, no device nodes: this
// is a sanity log line, not a content-integrity primitive).
package treehash

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/polydawn/refmt/cbor"
	"github.com/polydawn/refmt/tok"

	"github.com/polydawn/vault/fsutil"
	"github.com/polydawn/vault/vaulterr"
)

// Hash walks root depth-first in sorted order and returns a CBOR/SHA-256
// digest over each entry's (name, type, mode, size), nesting directories
// the same way HashBucket nests "leaves" arrays. File bytes and mtimes are
// not read, so a content change that keeps the size does not alter it.
func Hash(root string) ([]byte, error) {
	h := sha256.New()
	enc := cbor.NewEncoder(h)
	if err := encodeEntry(enc, root, filepath.Base(root)); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}

func encodeEntry(enc *cbor.Encoder, path, name string) error {
	st := fsutil.NewStat(path)
	if st.Err() != nil {
		return st.Err()
	}

	isDir := st.Type() == fsutil.TypeDir
	fields := 4
	if isDir {
		fields++
	}
	enc.Step(&tok.Token{Type: tok.TMapOpen, Length: fields})

	enc.Step(&tok.Token{Type: tok.TString, Str: "name"})
	enc.Step(&tok.Token{Type: tok.TString, Str: name})

	enc.Step(&tok.Token{Type: tok.TString, Str: "type"})
	enc.Step(&tok.Token{Type: tok.TString, Str: string(st.Type())})

	enc.Step(&tok.Token{Type: tok.TString, Str: "mode"})
	enc.Step(&tok.Token{Type: tok.TInt, Int: int64(st.Mode().Perm())})

	enc.Step(&tok.Token{Type: tok.TString, Str: "size"})
	enc.Step(&tok.Token{Type: tok.TInt, Int: st.Size()})

	if !isDir {
		return nil
	}

	enc.Step(&tok.Token{Type: tok.TString, Str: "leaves"})
	enc.Step(&tok.Token{Type: tok.TArrOpen, Length: -1})

	entries, err := os.ReadDir(path)
	if err != nil {
		return vaulterr.WrapPath(vaulterr.IO, path, err)
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	sort.Strings(names)
	for _, childName := range names {
		if err := encodeEntry(enc, filepath.Join(path, childName), childName); err != nil {
			return err
		}
	}
	enc.Step(&tok.Token{Type: tok.TArrClose})
	return nil
}

// HexString returns Hash as a hex digest suitable for a log line.
func HexString(root string) (string, error) {
	sum, err := Hash(root)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", sum), nil
}
