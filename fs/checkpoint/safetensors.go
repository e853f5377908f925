package checkpoint

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"
)

type safetensorMetadata struct {
	Type    string  `json:"dtype"`
	Shape   []int   `json:"shape"`
	Offsets []int64 `json:"data_offsets"`
}

func readSafetensors(path string) ([]Tensor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var n int64
	if err := binary.Read(f, binary.LittleEndian, &n); err != nil {
		return nil, err
	}

	if n <= 0 || n > 100<<20 {
		return nil, fmt.Errorf("%w: invalid safetensors header size %d", ErrUnsupportedFormat, n)
	}

	b := bytes.NewBuffer(make([]byte, 0, n))
	if _, err = io.CopyN(b, f, n); err != nil {
		return nil, err
	}

	var headers map[string]json.RawMessage
	if err := json.NewDecoder(b).Decode(&headers); err != nil {
		return nil, err
	}

	var ts []Tensor
	for key, raw := range headers {
		if key == "__metadata__" {
			continue
		}

		var value safetensorMetadata
		if err := json.Unmarshal(raw, &value); err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}

		if len(value.Offsets) != 2 {
			return nil, fmt.Errorf("%s: %w: bad data offsets", key, ErrUnsupportedFormat)
		}

		// bitsandbytes quantized tensors carry no shape
		if len(value.Shape) == 0 {
			return nil, errors.New("unsupported safetensors model")
		}

		size := value.Offsets[1] - value.Offsets[0]
		sr := io.NewSectionReader(f, 8+n+value.Offsets[0], size)
		data, err := decodeSafetensor(sr, value.Type, size)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}

		t := Tensor{Name: key, Shape: value.Shape, Data: data}
		if t.Elements() != len(data) {
			return nil, fmt.Errorf("%s: shape %v does not match %d elements", key, value.Shape, len(data))
		}

		ts = append(ts, t)
	}

	slices.SortFunc(ts, func(a, b Tensor) int { return strings.Compare(a.Name, b.Name) })
	return ts, nil
}

func decodeSafetensor(r io.Reader, dtype string, size int64) ([]float32, error) {
	var f32s []float32
	switch dtype {
	case "F32":
		f32s = make([]float32, size/4)
		if err := binary.Read(r, binary.LittleEndian, f32s); err != nil {
			return nil, err
		}
	case "F16":
		u16s := make([]uint16, size/2)
		if err := binary.Read(r, binary.LittleEndian, u16s); err != nil {
			return nil, err
		}

		f32s = make([]float32, len(u16s))
		for i := range u16s {
			f32s[i] = float16.Frombits(u16s[i]).Float32()
		}
	case "BF16":
		u8s := make([]uint8, size)
		if _, err := io.ReadFull(r, u8s); err != nil {
			return nil, err
		}

		f32s = bfloat16.DecodeFloat32(u8s)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDType, dtype)
	}

	return f32s, nil
}

// WriteSafetensors serializes ts as float32 safetensors to w.
func WriteSafetensors(w io.Writer, ts []Tensor) error {
	ts = slices.Clone(ts)
	slices.SortFunc(ts, func(a, b Tensor) int { return strings.Compare(a.Name, b.Name) })

	headers := make(map[string]safetensorMetadata, len(ts))
	var offset int64
	for _, t := range ts {
		if t.Elements() != len(t.Data) {
			return fmt.Errorf("%s: shape %v does not match %d elements", t.Name, t.Shape, len(t.Data))
		}

		size := int64(len(t.Data)) * 4
		headers[t.Name] = safetensorMetadata{Type: "F32", Shape: t.Shape, Offsets: []int64{offset, offset + size}}
		offset += size
	}

	bts, err := json.Marshal(headers)
	if err != nil {
		return err
	}

	// pad the header so tensor data starts 8 byte aligned
	if pad := len(bts) % 8; pad != 0 {
		bts = append(bts, bytes.Repeat([]byte(" "), 8-pad)...)
	}

	if err := binary.Write(w, binary.LittleEndian, int64(len(bts))); err != nil {
		return err
	}

	if _, err := w.Write(bts); err != nil {
		return err
	}

	for _, t := range ts {
		if err := binary.Write(w, binary.LittleEndian, t.Data); err != nil {
			return err
		}
	}

	return nil
}
