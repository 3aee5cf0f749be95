package schema

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/Meesho/BharatMLStack/schemaflow/internal/config/enums"
)

// Binary tensor archive: a flat list of named float tensors with a
// shared storage precision.
//
//	header:  magic uint32 | version uint8 | precision uint8 | count uint32
//	entry:   nameLen uint16 | rank uint8 | name | dims [rank]uint32 | payload
//
// Payload elements are precision-encoded floats in file order. Integers
// use the byte order installed by Init.
const (
	tensorFileMagic   = uint32(0x53464C57)
	tensorFileVersion = uint8(1)

	maxTensorRank     = 8
	maxTensorElements = 1 << 40
)

// NamedTensor is one entry of a tensor archive, always surfaced to
// callers as float32 regardless of storage precision.
type NamedTensor struct {
	Name string
	Dims []int
	Data []float32
}

// Elements is the product of dims.
func (t *NamedTensor) Elements() int {
	n := 1
	for _, d := range t.Dims {
		n *= d
	}
	return n
}

// WriteTensorFile writes tensors in order at the given precision.
func WriteTensorFile(path string, precision enums.Precision, tensors []NamedTensor) error {
	elemSize := precision.Size()
	if elemSize == 0 {
		return fmt.Errorf("write tensor file %s: unsupported precision %s", path, precision)
	}
	put, err := GetToByteFloat(precision)
	if err != nil {
		return fmt.Errorf("write tensor file %s: %w", path, err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create tensor file %s: %w", path, err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	header := make([]byte, 10)
	ByteOrder.PutUint32(header[0:4], tensorFileMagic)
	header[4] = tensorFileVersion
	header[5] = precision.WireType()
	ByteOrder.PutUint32(header[6:10], uint32(len(tensors)))
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("write tensor file %s header: %w", path, err)
	}

	scratch := make([]byte, 8)
	for _, t := range tensors {
		if len(t.Name) == 0 || len(t.Name) > int(^uint16(0)) {
			return fmt.Errorf("write tensor file %s: invalid tensor name %q", path, t.Name)
		}
		if len(t.Dims) == 0 || len(t.Dims) > maxTensorRank {
			return fmt.Errorf("write tensor file %s: tensor %s has rank %d", path, t.Name, len(t.Dims))
		}
		if t.Elements() != len(t.Data) {
			return fmt.Errorf("write tensor file %s: tensor %s dims %v do not match %d elements",
				path, t.Name, t.Dims, len(t.Data))
		}

		ByteOrder.PutUint16(scratch[0:2], uint16(len(t.Name)))
		scratch[2] = uint8(len(t.Dims))
		if _, err := w.Write(scratch[0:3]); err != nil {
			return fmt.Errorf("write tensor file %s entry %s: %w", path, t.Name, err)
		}
		if _, err := w.WriteString(t.Name); err != nil {
			return fmt.Errorf("write tensor file %s entry %s: %w", path, t.Name, err)
		}
		for _, d := range t.Dims {
			ByteOrder.PutUint32(scratch[0:4], uint32(d))
			if _, err := w.Write(scratch[0:4]); err != nil {
				return fmt.Errorf("write tensor file %s entry %s: %w", path, t.Name, err)
			}
		}
		for _, v := range t.Data {
			put(scratch[0:elemSize], v)
			if _, err := w.Write(scratch[0:elemSize]); err != nil {
				return fmt.Errorf("write tensor file %s entry %s: %w", path, t.Name, err)
			}
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush tensor file %s: %w", path, err)
	}
	return nil
}

// ReadTensorFile loads a tensor archive into a name-keyed map.
func ReadTensorFile(path string) (map[string]*NamedTensor, enums.Precision, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, enums.PrecisionUnknown, fmt.Errorf("open tensor file %s: %w", path, err)
	}
	defer f.Close()
	r := bufio.NewReader(f)

	header := make([]byte, 10)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, enums.PrecisionUnknown, fmt.Errorf("read tensor file %s header: %w", path, err)
	}
	if magic := ByteOrder.Uint32(header[0:4]); magic != tensorFileMagic {
		return nil, enums.PrecisionUnknown, fmt.Errorf("read tensor file %s: bad magic 0x%08X", path, magic)
	}
	if version := header[4]; version != tensorFileVersion {
		return nil, enums.PrecisionUnknown, fmt.Errorf("read tensor file %s: unsupported version %d", path, version)
	}
	precision := enums.PrecisionFromWireType(header[5])
	get, err := GetFromByteFloat(precision)
	if err != nil {
		return nil, enums.PrecisionUnknown, fmt.Errorf("read tensor file %s: %w", path, err)
	}
	elemSize := precision.Size()
	count := int(ByteOrder.Uint32(header[6:10]))

	tensors := make(map[string]*NamedTensor, count)
	scratch := make([]byte, 8)
	for i := 0; i < count; i++ {
		if _, err := io.ReadFull(r, scratch[0:3]); err != nil {
			return nil, precision, fmt.Errorf("read tensor file %s entry %d: %w", path, i, err)
		}
		nameLen := int(ByteOrder.Uint16(scratch[0:2]))
		rank := int(scratch[2])
		if rank == 0 || rank > maxTensorRank {
			return nil, precision, fmt.Errorf("read tensor file %s entry %d: rank %d", path, i, rank)
		}
		nameBytes := make([]byte, nameLen)
		if _, err := io.ReadFull(r, nameBytes); err != nil {
			return nil, precision, fmt.Errorf("read tensor file %s entry %d name: %w", path, i, err)
		}
		name := string(nameBytes)

		dims := make([]int, rank)
		elements := 1
		for d := 0; d < rank; d++ {
			if _, err := io.ReadFull(r, scratch[0:4]); err != nil {
				return nil, precision, fmt.Errorf("read tensor file %s entry %s dims: %w", path, name, err)
			}
			dims[d] = int(ByteOrder.Uint32(scratch[0:4]))
			if dims[d] != 0 && elements > maxTensorElements/dims[d] {
				return nil, precision, fmt.Errorf("read tensor file %s entry %s: dims %v exceed the element cap", path, name, dims[:d+1])
			}
			elements *= dims[d]
		}

		payload := make([]byte, elements*elemSize)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, precision, fmt.Errorf("read tensor file %s entry %s payload: %w", path, name, err)
		}
		data := make([]float32, elements)
		for e := 0; e < elements; e++ {
			data[e] = get(payload[e*elemSize : (e+1)*elemSize])
		}
		if _, dup := tensors[name]; dup {
			return nil, precision, fmt.Errorf("read tensor file %s: duplicate tensor %s", path, name)
		}
		tensors[name] = &NamedTensor{Name: name, Dims: dims, Data: data}
	}
	return tensors, precision, nil
}

// RequireTensor fetches a named tensor and checks its dims.
func RequireTensor(tensors map[string]*NamedTensor, name string, dims ...int) (*NamedTensor, error) {
	t, ok := tensors[name]
	if !ok {
		return nil, fmt.Errorf("tensor %s missing", name)
	}
	if len(t.Dims) != len(dims) {
		return nil, fmt.Errorf("tensor %s has rank %d, want %d", name, len(t.Dims), len(dims))
	}
	for i, d := range dims {
		if t.Dims[i] != d {
			return nil, fmt.Errorf("tensor %s dim %d is %d, want %d", name, i, t.Dims[i], d)
		}
	}
	return t, nil
}
