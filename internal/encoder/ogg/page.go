// Package ogg frames Opus packets into Ogg pages (RFC 3533, RFC 7845).
// Every packet gets its own page, which keeps pages small enough to ship as
// individual websocket frames.
package ogg

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
)

const (
	headerTypeContinuation = 0x00
	headerTypeBOS          = 0x02

	pageHeaderSize = 27
	maxSegments    = 255

	// MaxPacketSize is the largest payload a single page can carry.
	MaxPacketSize = maxSegments*255 - 1

	// GranuleRate is the clock granule positions are counted in for Opus.
	GranuleRate = 48000

	defaultPreSkip = 3840
	vendor         = "speechstream"
)

var ErrPacketTooLarge = errors.New("ogg: packet does not fit in one page")

var crcTable = makeCRCTable()

// Stream tracks page sequence and granule position for one logical stream.
type Stream struct {
	serial     uint32
	sequence   uint32
	granule    uint64
	sampleRate uint32
	channels   uint8
}

func NewStream(serial uint32, sampleRate, channels int) *Stream {
	return &Stream{
		serial:     serial,
		sampleRate: uint32(sampleRate),
		channels:   uint8(channels),
	}
}

// RandomSerial picks a serial number for a new stream.
func RandomSerial() uint32 {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 1
	}
	return binary.LittleEndian.Uint32(b[:])
}

func (s *Stream) Serial() uint32   { return s.serial }
func (s *Stream) Granule() uint64  { return s.granule }
func (s *Stream) Sequence() uint32 { return s.sequence }

// Headers returns the OpusHead (beginning of stream) and OpusTags pages.
func (s *Stream) Headers() [][]byte {
	head := make([]byte, 19)
	copy(head, "OpusHead")
	head[8] = 1
	head[9] = s.channels
	binary.LittleEndian.PutUint16(head[10:], defaultPreSkip)
	binary.LittleEndian.PutUint32(head[12:], s.sampleRate)

	tags := make([]byte, 8+4+len(vendor)+4)
	copy(tags, "OpusTags")
	binary.LittleEndian.PutUint32(tags[8:], uint32(len(vendor)))
	copy(tags[12:], vendor)

	return [][]byte{
		s.page(headerTypeBOS, 0, head),
		s.page(headerTypeContinuation, 0, tags),
	}
}

// Packet wraps one Opus packet. samples is the packet duration at 48 kHz.
func (s *Stream) Packet(packet []byte, samples int) ([]byte, error) {
	if len(packet) > MaxPacketSize {
		return nil, ErrPacketTooLarge
	}
	s.granule += uint64(samples)
	return s.page(headerTypeContinuation, s.granule, packet), nil
}

func (s *Stream) page(headerType byte, granule uint64, payload []byte) []byte {
	p := Page(headerType, granule, s.serial, s.sequence, payload)
	s.sequence++
	return p
}

// Page builds a single Ogg page with its lacing table and checksum.
func Page(headerType byte, granule uint64, serial, sequence uint32, payload []byte) []byte {
	segments := len(payload)/255 + 1
	page := make([]byte, pageHeaderSize+segments+len(payload))

	copy(page, "OggS")
	page[5] = headerType
	binary.LittleEndian.PutUint64(page[6:], granule)
	binary.LittleEndian.PutUint32(page[14:], serial)
	binary.LittleEndian.PutUint32(page[18:], sequence)
	page[26] = byte(segments)

	for i := 0; i < segments-1; i++ {
		page[pageHeaderSize+i] = 255
	}
	page[pageHeaderSize+segments-1] = byte(len(payload) % 255)
	copy(page[pageHeaderSize+segments:], payload)

	binary.LittleEndian.PutUint32(page[22:], Checksum(page))
	return page
}

// Checksum computes the Ogg CRC over a page whose checksum field is zero.
func Checksum(page []byte) uint32 {
	var crc uint32
	for _, b := range page {
		crc = (crc << 8) ^ crcTable[byte(crc>>24)^b]
	}
	return crc
}

func makeCRCTable() *[256]uint32 {
	var table [256]uint32
	const poly = 0x04c11db7
	for i := range table {
		r := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if r&0x80000000 != 0 {
				r = (r << 1) ^ poly
			} else {
				r <<= 1
			}
		}
		table[i] = r
	}
	return &table
}
