package emit

import (
	"encoding/binary"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/minio/crc64nvme"
	"github.com/mr-tron/base58"
)

const shortIDLength = 4

// computeCRC64 computes the CRC-64/NVME checksum of data.
func computeCRC64(data []byte) uint64 {
	h := crc64nvme.New()
	h.Write(data)
	return h.Sum64()
}

// contentHash is the hex form of the checksum, used by [contenthash].
func contentHash(data []byte) string {
	return fmt.Sprintf("%016x", computeCRC64(data))
}

func fingerprint(key string) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], computeCRC64([]byte(key)))
	return base58.Encode(buf[:])
}

// shortIDs assigns each key a base58 fingerprint prefix of shortIDLength
// characters, extended one character at a time while it collides with an id
// already handed out. Keys are processed in order so the result is stable.
func shortIDs(keys []string) map[string]string {
	ids := make(map[string]string, len(keys))
	taken := make(map[string]bool, len(keys))

	for _, key := range keys {
		if _, ok := ids[key]; ok {
			continue
		}

		fp := fingerprint(key)
		id := ""
		for n := min(shortIDLength, len(fp)); n <= len(fp); n++ {
			if !taken[fp[:n]] {
				id = fp[:n]
				break
			}
		}
		// identical checksums for different keys
		for i := 2; id == ""; i++ {
			if candidate := fp + strconv.Itoa(i); !taken[candidate] {
				id = candidate
			}
		}

		taken[id] = true
		ids[key] = id
	}

	return ids
}

// moduleIDs maps module paths to ids. hashed ids are short fingerprints of the
// root-relative path, named ids are the root-relative path itself.
func moduleIDs(paths []string, root, strategy string) map[string]string {
	rel := make([]string, len(paths))
	for i, p := range paths {
		rel[i] = relativePath(root, p)
	}

	out := make(map[string]string, len(paths))
	if strategy == "named" {
		for i, p := range paths {
			out[p] = rel[i]
		}
		return out
	}

	short := shortIDs(rel)
	for i, p := range paths {
		out[p] = short[rel[i]]
	}
	return out
}

// relativePath is p relative to root using forward slashes, or p itself when
// it is not below root.
func relativePath(root, p string) string {
	if root != "" {
		if r, err := filepath.Rel(root, p); err == nil && filepath.IsLocal(r) {
			return filepath.ToSlash(r)
		}
	}
	return filepath.ToSlash(p)
}
