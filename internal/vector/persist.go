package vector

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

var indexMagic = [4]byte{'K', 'V', 'E', 'C'}

const indexVersion uint32 = 1

// MetaPath returns the metadata sidecar paired with a vector blob path:
// "store/index.vec" pairs with "store/index.meta.json".
func MetaPath(vectorPath string) string {
	return strings.TrimSuffix(vectorPath, filepath.Ext(vectorPath)) + ".meta.json"
}

// WriteTo encodes the index. Format (little-endian): magic (4), version (4), dimension (4),
// count (4), then count*dimension float32 values.
func (f *FlatIndex) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	header := []uint32{indexVersion, uint32(f.dim), uint32(len(f.rows))}
	if _, err := bw.Write(indexMagic[:]); err != nil {
		return 0, err
	}
	if err := binary.Write(bw, binary.LittleEndian, header); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}
	buf := make([]byte, 4*f.dim)
	for _, row := range f.rows {
		for i, v := range row {
			binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
		}
		if _, err := bw.Write(buf); err != nil {
			return 0, fmt.Errorf("write vector: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return 0, err
	}
	return int64(16 + len(f.rows)*len(buf)), nil
}

// maxDimension bounds the dimension accepted from a persisted header.
const maxDimension = 1 << 16

// ReadFrom replaces the index contents with the decoded stream.
func (f *FlatIndex) ReadFrom(r io.Reader) (int64, error) {
	return f.decode(r, -1)
}

// decode reads an encoded index. When size is known the header must describe exactly that
// many bytes, so a damaged header is rejected before anything is allocated from it.
func (f *FlatIndex) decode(r io.Reader, size int64) (int64, error) {
	br := bufio.NewReader(r)
	var magic [4]byte
	if _, err := io.ReadFull(br, magic[:]); err != nil {
		return 0, fmt.Errorf("read magic: %w", err)
	}
	if magic != indexMagic {
		return 0, errors.New("not a vector index file")
	}
	var header [3]uint32
	if err := binary.Read(br, binary.LittleEndian, &header); err != nil {
		return 0, fmt.Errorf("read header: %w", err)
	}
	if header[0] != indexVersion {
		return 0, fmt.Errorf("unsupported index version %d", header[0])
	}
	dim, n := int64(header[1]), int64(header[2])
	if dim > maxDimension {
		return 0, fmt.Errorf("index dimension %d exceeds %d", dim, maxDimension)
	}
	if n > 0 && dim == 0 {
		return 0, errors.New("index has vectors but no dimension")
	}
	want := 16 + n*dim*4
	if size >= 0 && want != size {
		return 0, fmt.Errorf("index header describes %d bytes, file has %d", want, size)
	}

	rows := make([][]float32, 0, min(n, 1024))
	buf := make([]byte, 4*dim)
	for i := int64(0); i < n; i++ {
		if _, err := io.ReadFull(br, buf); err != nil {
			return 0, fmt.Errorf("read vector %d: %w", i, err)
		}
		row := make([]float32, dim)
		for j := range row {
			row[j] = math.Float32frombits(binary.LittleEndian.Uint32(buf[j*4:]))
		}
		rows = append(rows, row)
	}
	if _, err := br.ReadByte(); err != io.EOF {
		return 0, errors.New("trailing data after vectors")
	}
	f.dim, f.rows = int(dim), rows
	return want, nil
}

// Save writes the index to path through a temporary file renamed into place.
func (f *FlatIndex) Save(path string) error {
	return writeAtomic(path, func(w io.Writer) error {
		_, err := f.WriteTo(w)
		return err
	})
}

// Load replaces the index contents with the file at path. The header is checked against
// the file size before any vector is read.
func (f *FlatIndex) Load(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return err
	}
	_, err = f.decode(file, info.Size())
	return err
}

func writeMetaFile(path string, chunks []models.Chunk) error {
	return writeAtomic(path, func(w io.Writer) error {
		if chunks == nil {
			chunks = []models.Chunk{}
		}
		return json.NewEncoder(w).Encode(chunks)
	})
}

func readMetaFile(path string) ([]models.Chunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var chunks []models.Chunk
	if err := json.Unmarshal(data, &chunks); err != nil {
		return nil, fmt.Errorf("parse metadata: %w", err)
	}
	return chunks, nil
}

// writeAtomic writes to a temp file in the target directory and renames it into place.
func writeAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}
