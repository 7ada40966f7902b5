package segment

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"sort"

	"github.com/hupe1980/lexgo/model"
)

var segmentMagic = [4]byte{'L', 'X', 'S', 'G'}

const segmentFormatVersion = uint16(1)

// Blob layout:
//
//	header (12 bytes): magic, version, compression, reserved, docCount
//	3 sections, each: method uint8, pad [3]byte, uncompressedLen uint32,
//	                  storedLen uint32, crc32 uint32, then storedLen bytes
//
// Section 1 holds the stored documents, section 2 the per-row token
// lengths, section 3 the term dictionary with row-delta posting lists.
// Checksums cover the stored (possibly compressed) bytes.

// Marshal serializes the segment with the requested block compression.
func (s *Segment) Marshal(c Compression) ([]byte, error) {
	var hdr [12]byte
	copy(hdr[0:4], segmentMagic[:])
	binary.LittleEndian.PutUint16(hdr[4:6], segmentFormatVersion)
	hdr[6] = byte(c)
	binary.LittleEndian.PutUint32(hdr[8:12], uint32(len(s.ids)))

	out := append([]byte(nil), hdr[:]...)

	for _, section := range [][]byte{s.encodeDocs(), s.encodeLengths(), s.encodePostings()} {
		stored, method, err := compressBlock(c, section)
		if err != nil {
			return nil, err
		}

		var sh [16]byte
		sh[0] = byte(method)
		binary.LittleEndian.PutUint32(sh[4:8], uint32(len(section)))
		binary.LittleEndian.PutUint32(sh[8:12], uint32(len(stored)))
		binary.LittleEndian.PutUint32(sh[12:16], crc32.ChecksumIEEE(stored))

		out = append(out, sh[:]...)
		out = append(out, stored...)
	}

	return out, nil
}

func (s *Segment) encodeDocs() []byte {
	var buf []byte
	for i := range s.ids {
		buf = binary.AppendUvarint(buf, uint64(len(s.ids[i])))
		buf = append(buf, s.ids[i]...)
		buf = binary.AppendUvarint(buf, uint64(len(s.texts[i])))
		buf = append(buf, s.texts[i]...)
	}
	return buf
}

func (s *Segment) encodeLengths() []byte {
	var buf []byte
	for _, l := range s.lengths {
		buf = binary.AppendUvarint(buf, uint64(l))
	}
	return buf
}

func (s *Segment) encodePostings() []byte {
	terms := make([]string, 0, len(s.postings))
	for t := range s.postings {
		terms = append(terms, t)
	}
	sort.Strings(terms)

	buf := binary.AppendUvarint(nil, uint64(len(terms)))
	for _, t := range terms {
		buf = binary.AppendUvarint(buf, uint64(len(t)))
		buf = append(buf, t...)

		plist := s.postings[t]
		buf = binary.AppendUvarint(buf, uint64(len(plist)))
		prev := uint64(0)
		for i, p := range plist {
			row := uint64(p.Row)
			if i == 0 {
				buf = binary.AppendUvarint(buf, row)
			} else {
				buf = binary.AppendUvarint(buf, row-prev)
			}
			prev = row
			buf = binary.AppendUvarint(buf, uint64(p.Freq))
		}
	}
	return buf
}

// Open deserializes a segment blob.
func Open(id model.SegmentID, data []byte) (*Segment, error) {
	if len(data) < 12 {
		return nil, fmt.Errorf("segment %d: blob truncated", id)
	}
	if [4]byte(data[0:4]) != segmentMagic {
		return nil, fmt.Errorf("segment %d: bad magic", id)
	}
	if v := binary.LittleEndian.Uint16(data[4:6]); v != segmentFormatVersion {
		return nil, fmt.Errorf("segment %d: unsupported format version %d", id, v)
	}
	docCount := int(binary.LittleEndian.Uint32(data[8:12]))

	sections := make([][]byte, 0, 3)
	off := 12
	for i := 0; i < 3; i++ {
		if off+16 > len(data) {
			return nil, fmt.Errorf("segment %d: section %d header truncated", id, i+1)
		}
		method := Compression(data[off])
		uncompressedLen := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		storedLen := int(binary.LittleEndian.Uint32(data[off+8 : off+12]))
		sum := binary.LittleEndian.Uint32(data[off+12 : off+16])
		off += 16

		if off+storedLen > len(data) {
			return nil, fmt.Errorf("segment %d: section %d truncated", id, i+1)
		}
		stored := data[off : off+storedLen]
		off += storedLen

		if crc32.ChecksumIEEE(stored) != sum {
			return nil, fmt.Errorf("segment %d: section %d checksum mismatch", id, i+1)
		}

		section, err := decompressBlock(method, stored, uncompressedLen)
		if err != nil {
			return nil, fmt.Errorf("segment %d: section %d: %w", id, i+1, err)
		}
		if len(section) != uncompressedLen {
			return nil, fmt.Errorf("segment %d: section %d length mismatch", id, i+1)
		}
		sections = append(sections, section)
	}

	s := &Segment{
		id:       id,
		ids:      make([]string, 0, docCount),
		texts:    make([]string, 0, docCount),
		lengths:  make([]uint32, 0, docCount),
		idRows:   make(map[string]model.RowID, docCount),
		postings: make(map[string][]Posting),
	}

	if err := s.decodeDocs(sections[0], docCount); err != nil {
		return nil, fmt.Errorf("segment %d: %w", id, err)
	}
	if err := s.decodeLengths(sections[1], docCount); err != nil {
		return nil, fmt.Errorf("segment %d: %w", id, err)
	}
	if err := s.decodePostings(sections[2], docCount); err != nil {
		return nil, fmt.Errorf("segment %d: %w", id, err)
	}

	return s, nil
}

func (s *Segment) decodeDocs(buf []byte, docCount int) error {
	for i := 0; i < docCount; i++ {
		id, rest, err := readString(buf)
		if err != nil {
			return fmt.Errorf("doc %d id: %w", i, err)
		}
		text, rest, err := readString(rest)
		if err != nil {
			return fmt.Errorf("doc %d text: %w", i, err)
		}
		buf = rest

		s.idRows[id] = model.RowID(len(s.ids))
		s.ids = append(s.ids, id)
		s.texts = append(s.texts, text)
	}
	if len(buf) != 0 {
		return fmt.Errorf("trailing bytes after stored docs")
	}
	return nil
}

func (s *Segment) decodeLengths(buf []byte, docCount int) error {
	for i := 0; i < docCount; i++ {
		v, n := binary.Uvarint(buf)
		if n <= 0 {
			return fmt.Errorf("length %d truncated", i)
		}
		buf = buf[n:]
		s.lengths = append(s.lengths, uint32(v))
		s.totalTokens += v
	}
	if len(buf) != 0 {
		return fmt.Errorf("trailing bytes after lengths")
	}
	return nil
}

func (s *Segment) decodePostings(buf []byte, docCount int) error {
	termCount, n := binary.Uvarint(buf)
	if n <= 0 {
		return fmt.Errorf("term count truncated")
	}
	buf = buf[n:]

	for i := uint64(0); i < termCount; i++ {
		term, rest, err := readString(buf)
		if err != nil {
			return fmt.Errorf("term %d: %w", i, err)
		}
		buf = rest

		postingCount, n := binary.Uvarint(buf)
		if n <= 0 {
			return fmt.Errorf("term %q posting count truncated", term)
		}
		buf = buf[n:]

		plist := make([]Posting, 0, postingCount)
		row := uint64(0)
		for j := uint64(0); j < postingCount; j++ {
			delta, n := binary.Uvarint(buf)
			if n <= 0 {
				return fmt.Errorf("term %q posting %d truncated", term, j)
			}
			buf = buf[n:]
			if j == 0 {
				row = delta
			} else {
				row += delta
			}

			freq, n := binary.Uvarint(buf)
			if n <= 0 {
				return fmt.Errorf("term %q posting %d freq truncated", term, j)
			}
			buf = buf[n:]

			if row >= uint64(docCount) {
				return fmt.Errorf("term %q posting %d row %d out of range", term, j, row)
			}
			plist = append(plist, Posting{Row: model.RowID(row), Freq: uint32(freq)})
		}
		s.postings[term] = plist
	}
	if len(buf) != 0 {
		return fmt.Errorf("trailing bytes after postings")
	}
	return nil
}

func readString(buf []byte) (string, []byte, error) {
	l, n := binary.Uvarint(buf)
	if n <= 0 {
		return "", nil, fmt.Errorf("length truncated")
	}
	buf = buf[n:]
	if uint64(len(buf)) < l {
		return "", nil, fmt.Errorf("value truncated")
	}
	return string(buf[:l]), buf[l:], nil
}
