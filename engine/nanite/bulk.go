package nanite

import (
	"bytes"
	"fmt"
	"io"
)

/**
 * @brief The streamable page blob that lives next to the asset. Pages are read
 * on demand by offset and size.
 */
type BulkData struct {
	reader io.ReaderAt
	size   int64
}

func NewBulkData(reader io.ReaderAt, size int64) *BulkData {
	return &BulkData{reader: reader, size: size}
}

func NewBulkDataFromBytes(data []byte) *BulkData {
	return &BulkData{reader: bytes.NewReader(data), size: int64(len(data))}
}

func (b *BulkData) Size() int64 {
	if b == nil {
		return 0
	}
	return b.size
}

/**
 * @brief Reads size bytes at offset.
 */
func (b *BulkData) Read(offset, size uint32) ([]byte, error) {
	if b == nil || b.reader == nil {
		return nil, fmt.Errorf("bulk data is not loaded")
	}
	if int64(offset)+int64(size) > b.size {
		return nil, fmt.Errorf("bulk read [%d, %d) past end of %d byte bulk data", offset, int64(offset)+int64(size), b.size)
	}
	out := make([]byte, size)
	if _, err := b.reader.ReadAt(out, int64(offset)); err != nil && err != io.EOF {
		return nil, err
	}
	return out, nil
}

// WriteTo copies the whole blob to w.
func (b *BulkData) WriteTo(w io.Writer) (int64, error) {
	if b.Size() == 0 {
		return 0, nil
	}
	return io.Copy(w, io.NewSectionReader(b.reader, 0, b.size))
}
