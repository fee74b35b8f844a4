package ports

import (
	"gospatial/domain/core"
	"gospatial/domain/moments"
)

// MetadataLookup resolves a field to its sample, patient, region and QC status
type MetadataLookup interface {
	Resolve(field core.FieldID) (moments.FieldContext, error)
}
