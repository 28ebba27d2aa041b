// Package macaddr implements the 48-bit Ethernet MAC address identifier
// used as a key component throughout the forwarding engine.
package macaddr

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Length is the byte length of an Ethernet MAC address.
const Length = 6

// MAC is a 48-bit EUI Ethernet address.
type MAC [Length]byte

// Zero is the all-zero MAC address.
var Zero = MAC{}

// Broadcast is the reserved all-ones broadcast address.
var Broadcast = MAC{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// Parse accepts "xx:xx:xx:xx:xx:xx", "xx-xx-xx-xx-xx-xx", or a bare
// 12-hex-digit string and returns the decoded address.
func Parse(s string) (MAC, error) {
	s = strings.ReplaceAll(s, ":", "")
	s = strings.ReplaceAll(s, "-", "")
	if len(s) != Length*2 {
		return MAC{}, fmt.Errorf("macaddr: invalid address length in %q", s)
	}

	raw, err := hex.DecodeString(s)
	if err != nil {
		return MAC{}, fmt.Errorf("macaddr: %w", err)
	}

	var m MAC
	copy(m[:], raw)
	return m, nil
}

// FromBytes copies a 6-byte slice into a MAC.
func FromBytes(b []byte) (MAC, error) {
	if len(b) != Length {
		return MAC{}, fmt.Errorf("macaddr: invalid byte length %d", len(b))
	}
	var m MAC
	copy(m[:], b)
	return m, nil
}

// Bytes returns a fresh copy of the address bytes.
func (m MAC) Bytes() []byte {
	b := make([]byte, Length)
	copy(b, m[:])
	return b
}

// String renders the address as "xx:xx:xx:xx:xx:xx".
func (m MAC) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", m[0], m[1], m[2], m[3], m[4], m[5])
}

// IsMulticast reports whether the low bit of the first octet (the
// I/G bit) is set, which covers both multicast and the broadcast
// address. A multicast/broadcast MAC is never a learning source.
func (m MAC) IsMulticast() bool {
	return m[0]&0x01 == 0x01
}

// IsBroadcast reports whether m is the reserved all-ones address.
func (m MAC) IsBroadcast() bool {
	return m == Broadcast
}

// IsZero reports whether m is the all-zero address.
func (m MAC) IsZero() bool {
	return m == Zero
}

// Fold32 folds the 6 address bytes into a 32-bit value for hashing: the
// low 4 bytes taken directly, XORed with the high 2 bytes placed in the
// low 16 bits of the word. Used by the MAC table's bucket hash alongside the VLAN ID.
func (m MAC) Fold32() uint32 {
	low := uint32(m[2])<<24 | uint32(m[3])<<16 | uint32(m[4])<<8 | uint32(m[5])
	high := uint32(m[0])<<8 | uint32(m[1])
	return low ^ high
}
