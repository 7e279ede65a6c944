package vector

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Flat index file layout (little endian), as written by faiss::write_index for IndexFlatIP:
// fourcc "IxFI", d int32, ntotal int64, two reserved int64, is_trained uint8,
// metric_type int32, [metric_arg float32 when metric_type > 1], then a uint64
// count followed by count float32 values (ntotal*d).
const (
	flatIPMagic    = "IxFI"
	metricInner    = 0
	headerReserved = int64(1 << 20)
)

type flatHeader struct {
	D          int32
	NTotal     int64
	Reserved1  int64
	Reserved2  int64
	IsTrained  uint8
	MetricType int32
}

// FlatData is the decoded content of a flat inner product index file.
type FlatData struct {
	Dimensions int
	Vectors    [][]float32
}

// ReadFlatIndex decodes a flat inner product index file.
func ReadFlatIndex(path string) (*FlatData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat index file: %w", err)
	}
	return decodeFlat(bufio.NewReader(f), info.Size())
}

func decodeFlat(r io.Reader, size int64) (*FlatData, error) {
	magic := make([]byte, 4)
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("read magic: %w", err)
	}
	if string(magic) != flatIPMagic {
		return nil, fmt.Errorf("unsupported index type %q (want %s)", magic, flatIPMagic)
	}
	var h flatHeader
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if h.D <= 0 || h.NTotal < 0 {
		return nil, fmt.Errorf("invalid header: d=%d ntotal=%d", h.D, h.NTotal)
	}
	if h.MetricType != metricInner {
		return nil, fmt.Errorf("unsupported metric type %d (want inner product)", h.MetricType)
	}
	var count uint64
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("read vector count: %w", err)
	}
	if count != uint64(h.NTotal)*uint64(h.D) {
		return nil, fmt.Errorf("vector data holds %d floats, header declares %d x %d", count, h.NTotal, h.D)
	}
	headerSize := int64(4 + binary.Size(h) + 8)
	if size >= 0 && int64(count)*4 != size-headerSize {
		return nil, fmt.Errorf("index file is %d bytes, expected %d", size, headerSize+int64(count)*4)
	}
	flat := make([]float32, count)
	if err := binary.Read(r, binary.LittleEndian, flat); err != nil {
		return nil, fmt.Errorf("read vectors: %w", err)
	}
	d := int(h.D)
	vectors := make([][]float32, h.NTotal)
	for i := range vectors {
		vectors[i] = flat[i*d : (i+1)*d : (i+1)*d]
	}
	return &FlatData{Dimensions: d, Vectors: vectors}, nil
}

// WriteFlatIndex writes vectors as a flat inner product index file. Directory is created if needed.
func WriteFlatIndex(path string, dimensions int, vectors [][]float32) error {
	if dimensions <= 0 {
		return fmt.Errorf("dimensions must be positive")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	w := bufio.NewWriter(f)
	if err := encodeFlat(w, dimensions, vectors); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush index file: %w", err)
	}
	return f.Close()
}

func encodeFlat(w io.Writer, dimensions int, vectors [][]float32) error {
	if _, err := io.WriteString(w, flatIPMagic); err != nil {
		return fmt.Errorf("write magic: %w", err)
	}
	h := flatHeader{
		D:          int32(dimensions),
		NTotal:     int64(len(vectors)),
		Reserved1:  headerReserved,
		Reserved2:  headerReserved,
		IsTrained:  1,
		MetricType: metricInner,
	}
	if err := binary.Write(w, binary.LittleEndian, h); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(len(vectors)*dimensions)); err != nil {
		return fmt.Errorf("write vector count: %w", err)
	}
	for i, vec := range vectors {
		if len(vec) != dimensions {
			return fmt.Errorf("%w: vector %d has %d dimensions, expected %d", ErrDimensionMismatch, i, len(vec), dimensions)
		}
		if err := binary.Write(w, binary.LittleEndian, vec); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	return nil
}
