package capture

import (
	"testing"

	"github.com/Joa705/raspberrypi-projects/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nalu(startCode []byte, header byte, payload ...byte) []byte {
	unit := append([]byte{}, startCode...)
	unit = append(unit, header)
	return append(unit, payload...)
}

var (
	sc3 = []byte{0x00, 0x00, 0x01}
	sc4 = []byte{0x00, 0x00, 0x00, 0x01}
)

func TestSplitter_SingleCompleteUnit(t *testing.T) {
	var s annexBSplitter

	sps := nalu(sc4, 0x67, 0xAA, 0xBB)
	idr := nalu(sc4, 0x65, 0x01, 0x02, 0x03)

	units := s.Push(append(append([]byte{}, sps...), idr...))
	// The second unit has no terminating start code yet.
	require.Len(t, units, 1)
	assert.Equal(t, sps, units[0].Data)
	assert.False(t, units[0].Keyframe)

	units = s.Push(sc4)
	require.Len(t, units, 1)
	assert.Equal(t, idr, units[0].Data)
	assert.True(t, units[0].Keyframe)
}

func TestSplitter_ArbitraryReadBoundaries(t *testing.T) {
	stream := append([]byte{}, nalu(sc4, 0x67, 0x10)...)
	stream = append(stream, nalu(sc3, 0x68, 0x20)...)
	stream = append(stream, nalu(sc4, 0x65, 0x30, 0x31)...)
	stream = append(stream, nalu(sc3, 0x41, 0x40)...)
	stream = append(stream, sc4...) // terminator for the last unit

	// Feed byte by byte; boundaries must not matter.
	var s annexBSplitter
	var units []domain.VideoUnit
	for i := range stream {
		units = append(units, s.Push(stream[i:i+1])...)
	}

	require.Len(t, units, 4)
	assert.Equal(t, nalu(sc4, 0x67, 0x10), units[0].Data)
	assert.Equal(t, nalu(sc3, 0x68, 0x20), units[1].Data)
	assert.Equal(t, nalu(sc4, 0x65, 0x30, 0x31), units[2].Data)
	assert.Equal(t, nalu(sc3, 0x41, 0x40), units[3].Data)

	assert.False(t, units[0].Keyframe)
	assert.False(t, units[1].Keyframe)
	assert.True(t, units[2].Keyframe)
	assert.False(t, units[3].Keyframe)
}

func TestSplitter_GarbageBeforeFirstStartCode(t *testing.T) {
	var s annexBSplitter

	var units []domain.VideoUnit
	units = append(units, s.Push([]byte{0xDE, 0xAD, 0xBE, 0xEF})...)
	units = append(units, s.Push(nalu(sc4, 0x61, 0x01))...)
	units = append(units, s.Push(sc4)...)

	require.Len(t, units, 1)
	assert.Equal(t, nalu(sc4, 0x61, 0x01), units[0].Data)
}

func TestFindStartCode(t *testing.T) {
	idx, n := findStartCode([]byte{0x00, 0x00, 0x01, 0x65})
	assert.Equal(t, 0, idx)
	assert.Equal(t, 3, n)

	idx, n = findStartCode([]byte{0x00, 0x00, 0x00, 0x01, 0x65})
	assert.Equal(t, 0, idx)
	assert.Equal(t, 4, n)

	idx, n = findStartCode([]byte{0xFF, 0x00, 0x00, 0x01})
	assert.Equal(t, 1, idx)
	assert.Equal(t, 3, n)

	idx, _ = findStartCode([]byte{0x00, 0x00, 0x02, 0xFF})
	assert.Equal(t, -1, idx)
}

func TestNaluType(t *testing.T) {
	assert.Equal(t, byte(5), naluType(nalu(sc4, 0x65)))
	assert.Equal(t, byte(7), naluType(nalu(sc3, 0x67)))
	assert.Equal(t, byte(0), naluType([]byte{0x01, 0x02}))
}
