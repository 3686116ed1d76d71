package capture

import "github.com/Joa705/raspberrypi-projects/internal/core/domain"

const (
	naluTypeIDR = 5
)

// annexBSplitter incrementally extracts H264 NAL units from an Annex-B byte
// stream. Input may be split at arbitrary points across Push calls; emitted
// units keep their start code so downstream payloaders and raw-socket clients
// both work unmodified.
type annexBSplitter struct {
	buf []byte
}

// Push appends raw stream bytes and returns every complete NAL unit found.
// The trailing, possibly incomplete unit stays buffered for the next call.
func (s *annexBSplitter) Push(p []byte) []domain.VideoUnit {
	s.buf = append(s.buf, p...)

	var units []domain.VideoUnit
	for {
		start, scLen := findStartCode(s.buf)
		if start == -1 {
			// No start code yet: keep only the last 3 bytes in case one is
			// split across reads.
			if len(s.buf) > 3 {
				s.buf = append(s.buf[:0], s.buf[len(s.buf)-3:]...)
			}
			return units
		}
		if start > 0 {
			s.buf = s.buf[start:]
		}

		next, _ := findStartCode(s.buf[scLen:])
		if next == -1 {
			// Incomplete unit, wait for more data.
			return units
		}
		end := scLen + next
		unit := make([]byte, end)
		copy(unit, s.buf[:end])
		s.buf = s.buf[end:]

		units = append(units, domain.VideoUnit{
			Data:     unit,
			Keyframe: naluType(unit) == naluTypeIDR,
		})
	}
}

// findStartCode returns the index and length of the first Annex-B start code
// (00 00 01 or 00 00 00 01), or -1 when none is present.
func findStartCode(buf []byte) (int, int) {
	for i := 0; i+3 < len(buf); i++ {
		if buf[i] != 0 || buf[i+1] != 0 {
			continue
		}
		if buf[i+2] == 1 {
			return i, 3
		}
		if buf[i+2] == 0 && buf[i+3] == 1 {
			return i, 4
		}
	}
	// A 3-byte start code could end exactly at the buffer boundary.
	if n := len(buf); n >= 3 && buf[n-3] == 0 && buf[n-2] == 0 && buf[n-1] == 1 {
		return n - 3, 3
	}
	return -1, 0
}

// naluType reads the NAL unit type of a unit that still carries its start code.
func naluType(unit []byte) byte {
	_, scLen := findStartCode(unit)
	if scLen == 0 || len(unit) <= scLen {
		return 0
	}
	return unit[scLen] & 0x1F
}
