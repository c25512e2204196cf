package checksum

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
)

// GetFileChecksum fingerprints a file on disk, used by the CLI to skip
// re-analyzing an unchanged dossier export.
func GetFileChecksum(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open file %s: %w", filePath, err)
	}
	defer file.Close()

	hasher := xxhash.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("failed to copy file content to hasher for file %s: %w", filePath, err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// CalculatePagesChecksum fingerprints the ordered page texts of a
// dossier. Identical input always hashes identically, which backs both
// the history dedup and the determinism checks.
func CalculatePagesChecksum(pages []string) string {
	digest := xxhash.New()
	for _, page := range pages {
		digest.Write([]byte(page))
		digest.Write([]byte{0})
	}
	return hex.EncodeToString(digest.Sum(nil))
}
