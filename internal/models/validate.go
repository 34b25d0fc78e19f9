package models

import (
	"fmt"

	"github.com/markdave123-py/Ledgerlens/internal/internalerr"
)

// ValidateUnits checks a write batch before it reaches a collection and
// returns the shared embedding dimension.
func ValidateUnits(units []RetrievableUnit) (int, error) {
	dim := 0
	owners := make(map[string]string, len(units))
	for i := range units {
		u := &units[i]
		if u.ID == "" || u.DocumentID == "" {
			return 0, fmt.Errorf("%w: unit %d has no id or document id", internalerr.ErrInvalidInput, i)
		}
		if owner, seen := owners[u.ID]; seen && owner != u.DocumentID {
			return 0, fmt.Errorf("%w: %s", internalerr.ErrDuplicateID, u.ID)
		}
		owners[u.ID] = u.DocumentID

		if len(u.Embedding) == 0 {
			return 0, fmt.Errorf("%w: unit %s has no embedding", internalerr.ErrInvalidInput, u.ID)
		}
		if dim == 0 {
			dim = len(u.Embedding)
		} else if len(u.Embedding) != dim {
			return 0, fmt.Errorf("%w: unit %s has %d dimensions, batch has %d", internalerr.ErrDimensionMismatch, u.ID, len(u.Embedding), dim)
		}

		ct := u.ContentType()
		if !ct.Valid() {
			return 0, fmt.Errorf("%w: unit %s has content type %q", internalerr.ErrInvalidInput, u.ID, ct)
		}
		_, hasImage := u.ImageRef()
		if (ct == ContentChart) != hasImage {
			return 0, fmt.Errorf("%w: unit %s: only chart units carry an image path", internalerr.ErrInvalidInput, u.ID)
		}
	}
	return dim, nil
}
