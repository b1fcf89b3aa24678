package protocol

// crcPolynomial is the CRC-32 generator polynomial in MSB-first form.
const crcPolynomial uint32 = 0x04C11DB7

var crcTable = makeCRCTable(crcPolynomial)

func makeCRCTable(poly uint32) *[256]uint32 {
	var table [256]uint32
	for i := range table {
		crc := uint32(i) << 24
		for bit := 0; bit < 8; bit++ {
			if crc&0x80000000 != 0 {
				crc = crc<<1 ^ poly
			} else {
				crc <<= 1
			}
		}
		table[i] = crc
	}
	return &table
}

// UpdateChecksum feeds one byte into a running checksum.
func UpdateChecksum(crc uint32, b byte) uint32 {
	return crcTable[byte(crc>>24)^b] ^ crc<<8
}

// Checksum computes the envelope checksum of data starting from zero.
func Checksum(data []byte) uint32 {
	return AppendChecksum(0, data)
}

// AppendChecksum continues a running checksum over data.
func AppendChecksum(crc uint32, data []byte) uint32 {
	for _, b := range data {
		crc = crcTable[byte(crc>>24)^b] ^ crc<<8
	}
	return crc
}
