package engine

import (
	"os"
	"strings"

	"github.com/polydawn/vault/blobstore"
	"github.com/polydawn/vault/vaulterr"
)

// blobURIScheme prefixes a blob's hash when it is expressed as a portable
// URI rather than a bare on-disk path, matching original_source
// vault-resolve.cpp's uri_from_hash/path_from_uri pair (supplemented from
// original_source, not present in spec.md's distillation -- see
// SPEC_FULL.md's C6 section).
const blobURIScheme = "blob://"

// BlobURIFromHash turns a 40-hex blob hash into its portable URI form.
func BlobURIFromHash(hash string) string {
	return blobURIScheme + hash
}

// HashFromBlobURI extracts the hash from a blob URI.
func HashFromBlobURI(uri string) (string, error) {
	if !strings.HasPrefix(uri, blobURIScheme) {
		return "", vaulterr.Errorf(vaulterr.Config, "not a blob URI: %q", uri)
	}
	hash := strings.TrimPrefix(uri, blobURIScheme)
	if len(hash) != 40 {
		return "", vaulterr.Errorf(vaulterr.Config, "blob URI %q has a malformed hash", uri)
	}
	return hash, nil
}

// ResolveBlobURI converts a blob URI into its on-disk path under root.
func ResolveBlobURI(root, uri string) (string, error) {
	hash, err := HashFromBlobURI(uri)
	if err != nil {
		return "", err
	}
	return blobstore.Path(root, hash)
}

// ResolveBlobRefFile reads a blob reference file at refPath (whose trimmed
// content is a bare 40-hex hash, per spec §6) and returns the blob's
// on-disk path under root.
func ResolveBlobRefFile(root, refPath string) (string, error) {
	raw, err := os.ReadFile(refPath)
	if err != nil {
		return "", vaulterr.WrapPath(vaulterr.IO, refPath, err)
	}
	hash := strings.TrimSpace(string(raw))
	if len(hash) != 40 {
		return "", vaulterr.Errorf(vaulterr.Config, "%q is not a valid blob reference", refPath)
	}
	return blobstore.Path(root, hash)
}

// BlobURIFromRefFile reads refPath the same way ResolveBlobRefFile does,
// but returns the portable URI form instead of an on-disk path -- the
// `--reverse` direction of vault-resolve.cpp.
func BlobURIFromRefFile(refPath string) (string, error) {
	raw, err := os.ReadFile(refPath)
	if err != nil {
		return "", vaulterr.WrapPath(vaulterr.IO, refPath, err)
	}
	hash := strings.TrimSpace(string(raw))
	if len(hash) != 40 {
		return "", vaulterr.Errorf(vaulterr.Config, "%q is not a valid blob reference", refPath)
	}
	return BlobURIFromHash(hash), nil
}
