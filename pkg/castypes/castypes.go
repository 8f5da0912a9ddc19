// Shared types for content-addressed blob access: the digest accumulator and
// the two textual encodings of its result.
package castypes

import (
	"encoding/base64"
	"hash"

	"github.com/minio/sha256-simd"
)

// ContentId names a blob by its content: URL-safe unpadded Base64 of the raw
// 32-byte SHA-256 digest. Never assigned, always computed from the bytes.
type ContentId string

func (c ContentId) String() string {
	return string(c)
}

// running hash state. fed incrementally while bytes move, finalized (Sum)
// exactly once by the owning writer/reader.
func NewDigest() hash.Hash {
	return sha256.New()
}

func ContentIdFromDigest(sum []byte) ContentId {
	return ContentId(base64.RawURLEncoding.EncodeToString(sum))
}

// same digest bytes as ContentIdFromDigest, but the standard (padded)
// alphabet. this is the encoding exchanged with the blob store as the
// integrity attribute.
func ChecksumFromDigest(sum []byte) string {
	return base64.StdEncoding.EncodeToString(sum)
}
