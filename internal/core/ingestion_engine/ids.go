package ingestion_engine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/markdave123-py/Ledgerlens/internal/models"
)

// TextChunkID is the id of the i-th narrative chunk of file.
func TextChunkID(file string, i int) string {
	return fmt.Sprintf("%s_text_chunk_%d", file, i)
}

// ContentID derives a stable id for a table or chart from its position in
// the document and its content.
func ContentID(file string, ct models.ContentType, order int, content []byte) string {
	h := sha256.New()
	h.Write([]byte(strconv.Itoa(order)))
	h.Write([]byte{0})
	h.Write(content)
	return fmt.Sprintf("%s_%s_%s", file, ct, hex.EncodeToString(h.Sum(nil))[:12])
}
