package enums

// Precision is the storage width of tensor payloads in binary files.
type Precision string

const (
	PrecisionUnknown Precision = "PrecisionUnknown"
	PrecisionFP16    Precision = "PrecisionFP16"
	PrecisionFP32    Precision = "PrecisionFP32"
)

func (p Precision) String() string {
	switch p {
	case PrecisionFP16:
		return "PrecisionFP16"
	case PrecisionFP32:
		return "PrecisionFP32"
	default:
		return "PrecisionUnknown"
	}
}

func (p Precision) Size() int {
	switch p {
	case PrecisionFP16:
		return 2
	case PrecisionFP32:
		return 4
	default:
		return 0
	}
}

// PrecisionFromWireType maps the on-file type byte to the enum.
func PrecisionFromWireType(b byte) Precision {
	switch b {
	case 1:
		return PrecisionFP16
	case 2:
		return PrecisionFP32
	default:
		return PrecisionUnknown
	}
}

// WireType is the type byte written into binary tensor file headers.
func (p Precision) WireType() byte {
	switch p {
	case PrecisionFP16:
		return 1
	case PrecisionFP32:
		return 2
	default:
		return 0
	}
}
