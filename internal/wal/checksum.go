package wal

import (
	"encoding/binary"
	"hash/crc32"
)

// checksum computes the CRC-32 used to protect every WAL record: the
// reflected polynomial 0xEDB88320 with initial value 0xFFFFFFFF and a final
// XOR of 0xFFFFFFFF — exactly Go's stdlib crc32.IEEE table, which is the
// same checksum zip and Ethernet use. No third-party package in the
// retrieved corpus supplies a materially different or faster CRC-32 for
// this polynomial, so this stays on hash/crc32 rather than reaching for one.
func checksum(data ...[]byte) uint32 {
	c := crc32.NewIEEE()
	for _, d := range data {
		_, _ = c.Write(d)
	}
	return c.Sum32()
}

func decodeCRC(buf []byte) uint32 {
	return binary.LittleEndian.Uint32(buf)
}
