package build

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/conneroisu/unify/internal/interfaces"
)

// HashProvider computes SHA-256 content digests. Every FileDigest call
// reads the content; the metadata memo (path, modification time, size)
// only lets MemoizedDigest skip the read when the same file was hashed
// moments earlier.
type HashProvider struct {
	fs   interfaces.FileSystem
	memo *DigestMemo
}

// NewHashProvider creates a provider over fsys.
func NewHashProvider(fsys interfaces.FileSystem, memo *DigestMemo) *HashProvider {
	if memo == nil {
		memo = NewDigestMemo(0)
	}
	return &HashProvider{fs: fsys, memo: memo}
}

// Digest returns the hex SHA-256 of data.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// FileDigest reads and hashes the file at path and refreshes the memo.
// Content edits that keep size and modification time are still seen.
func (hp *HashProvider) FileDigest(path string) (string, error) {
	key, err := hp.metadataKey(path)
	if err != nil {
		return "", err
	}

	content, err := hp.fs.ReadFile(path)
	if err != nil {
		return "", err
	}

	digest := Digest(content)
	hp.memo.Set(key, digest)
	return digest, nil
}

// MemoizedDigest returns the digest recorded by the last FileDigest of an
// identical path and metadata, hashing the file when there is none.
func (hp *HashProvider) MemoizedDigest(path string) (string, error) {
	key, err := hp.metadataKey(path)
	if err != nil {
		return "", err
	}
	if digest, ok := hp.memo.Get(key); ok {
		return digest, nil
	}
	return hp.FileDigest(path)
}

func (hp *HashProvider) metadataKey(path string) (string, error) {
	stat, err := hp.fs.Stat(path)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d:%d", path, stat.ModTime().UnixNano(), stat.Size()), nil
}

// Memo exposes the metadata memo for statistics.
func (hp *HashProvider) Memo() *DigestMemo { return hp.memo }
