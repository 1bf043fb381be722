package usb

// USB bus checksums. These are deliberately separate from the host-link CRC
// in package link: the link uses CCITT 0x1021 with no final complement, the
// bus data CRC uses 0x8005 with a final ones'-complement, and tokens use a
// 5-bit checksum over 11 bits. Unifying them would silently change both
// protocols.

const (
	crc16Poly = 0x8005
	crc5Poly  = 0x14 // reflected USB CRC-5 polynomial
	crc5Init  = 0x1F
)

var (
	crc16Table [256]uint16

	// crc5Table covers the whole 11-bit token domain directly.
	crc5Table [1 << 11]uint8
)

func init() {
	for i := range crc16Table {
		r := uint16(i) << 8
		for b := 0; b < 8; b++ {
			if r&0x8000 != 0 {
				r = r<<1 ^ crc16Poly
			} else {
				r <<= 1
			}
		}
		crc16Table[i] = r
	}

	for v := range crc5Table {
		crc := uint8(crc5Init)
		d := uint16(v)
		for i := 0; i < 11; i++ {
			if (uint16(crc)^d)&1 != 0 {
				crc = crc>>1 ^ crc5Poly
			} else {
				crc >>= 1
			}
			d >>= 1
		}
		crc5Table[v] = crc
	}
}

// CRC16 computes the USB data-packet checksum over a payload. The final
// value is the ones'-complement of the running register.
func CRC16(p []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range p {
		crc = crc>>8 ^ crc16Table[byte(crc)^b]
	}
	return ^crc
}

// CRC5 computes the 5-bit token checksum over the low 11 bits of token.
func CRC5(token uint16) uint8 {
	return crc5Table[token&0x7FF]
}
