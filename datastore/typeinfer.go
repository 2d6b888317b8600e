package datastore

import (
	"fmt"
	"time"

	"github.com/TristanCP/kapua/errors"
)

// MetricType tags a payload property with its storable type. The set is
// closed: it mirrors the field types the document store's mapping can
// declare for an index partition.
type MetricType string

// Storable metric types
const (
	TypeString    MetricType = "string"
	TypeBoolean   MetricType = "boolean"
	TypeInt32     MetricType = "integer"
	TypeInt64     MetricType = "long"
	TypeFloat     MetricType = "float"
	TypeDouble    MetricType = "double"
	TypeTimestamp MetricType = "date"
	TypeBinary    MetricType = "binary"
)

// InferType maps a payload property's runtime value to its storable type.
//
// Integral values narrower than 64 bits map to TypeInt32; 64-bit integrals
// map to TypeInt64. Values outside the supported kinds fail with
// ErrUnsupportedPropertyType; the caller decides whether to drop the
// property or abort the message write.
func InferType(value any) (MetricType, error) {
	switch value.(type) {
	case string:
		return TypeString, nil
	case bool:
		return TypeBoolean, nil
	case int8, int16, int32, uint8, uint16, uint32:
		return TypeInt32, nil
	case int, int64, uint, uint64:
		return TypeInt64, nil
	case float32:
		return TypeFloat, nil
	case float64:
		return TypeDouble, nil
	case time.Time:
		return TypeTimestamp, nil
	case []byte:
		return TypeBinary, nil
	default:
		return "", errors.WrapInvalid(errors.ErrUnsupportedPropertyType,
			"datastore", "InferType", fmt.Sprintf("value of type %T", value))
	}
}
