package asciicall

/*------------------------------------------------------------------
 *
 * Purpose:   	Character grids and their datagram wire format.
 *
 * Description:	An AsciiFrame is the converted form of an ImageFrame:
 *		one byte per cell, row major.  Cells are single bytes
 *		rather than runes because the wire format collapses
 *		every cell to its low 8 bits; keeping the shipped glyph
 *		families inside 0x20-0x7E makes the mapping the identity
 *		and the serialization round trip exact.
 *
 *		Wire format, all integers big endian:
 *
 *			8 bytes		width
 *			8 bytes		height
 *			W*H bytes	cell data
 *
 *		Trailing bytes after the cell data are ignored, so a
 *		receiver can hand the whole datagram to Deserialize.
 *
 *----------------------------------------------------------------*/

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const frameHeaderLen = 16

var (
	ErrShortHeader   = errors.New("datagram shorter than frame header")
	ErrShortBody     = errors.New("datagram shorter than declared frame body")
	ErrBadDimensions = errors.New("frame dimensions must be greater than zero")
)

type AsciiFrame struct {
	W     int
	H     int
	cells []byte
}

func NewAsciiFrame(w int, h int, fill byte) (*AsciiFrame, error) {
	if w <= 0 || h <= 0 {
		return nil, ErrBadDimensions
	}

	var f = &AsciiFrame{
		W:     w,
		H:     h,
		cells: make([]byte, w*h),
	}

	for i := range f.cells {
		f.cells[i] = fill
	}

	return f, nil
}

// SetCell stores c at (x, y).  Out-of-range coordinates are ignored.
func (f *AsciiFrame) SetCell(x int, y int, c byte) bool {
	if x < 0 || y < 0 || x >= f.W || y >= f.H {
		return false
	}

	f.cells[y*f.W+x] = c

	return true
}

func (f *AsciiFrame) Cell(x int, y int) byte {
	if x < 0 || y < 0 || x >= f.W || y >= f.H {
		return 0
	}

	return f.cells[y*f.W+x]
}

func (f *AsciiFrame) Cells() []byte {
	return f.cells
}

/*------------------------------------------------------------------
 *
 * Name:        Serialize / DeserializeAsciiFrame
 *
 * Purpose:     Datagram framing for the unreliable channel.
 *
 *----------------------------------------------------------------*/

func (f *AsciiFrame) Serialize() []byte {
	var out = make([]byte, frameHeaderLen+len(f.cells))

	binary.BigEndian.PutUint64(out[0:8], uint64(f.W))
	binary.BigEndian.PutUint64(out[8:16], uint64(f.H))
	copy(out[frameHeaderLen:], f.cells)

	return out
}

func DeserializeAsciiFrame(data []byte) (*AsciiFrame, error) {
	if len(data) < frameHeaderLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortHeader, len(data))
	}

	var w = binary.BigEndian.Uint64(data[0:8])
	var h = binary.BigEndian.Uint64(data[8:16])

	if w == 0 || h == 0 || w > 1<<20 || h > 1<<20 {
		return nil, fmt.Errorf("%w: %dx%d", ErrBadDimensions, w, h)
	}

	var n = int(w) * int(h)
	if len(data) < frameHeaderLen+n {
		return nil, fmt.Errorf("%w: want %d bytes, have %d", ErrShortBody, frameHeaderLen+n, len(data))
	}

	var f = &AsciiFrame{
		W:     int(w),
		H:     int(h),
		cells: make([]byte, n),
	}
	copy(f.cells, data[frameHeaderLen:frameHeaderLen+n])

	return f, nil
}
