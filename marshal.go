package rfm9x

// Marshaling of ints in big-endian order.

func marshalUint16(n uint16) []byte {
	return []byte{byte(n >> 8), byte(n & 0xFF)}
}

func marshalUint32(n uint32) []byte {
	return append(marshalUint16(uint16(n>>16)), marshalUint16(uint16(n&0xFFFF))...)
}

// marshalUint24 returns the low 24 bits of n, as stored in the RegFrf registers.
func marshalUint24(n uint32) []byte {
	return marshalUint32(n)[1:]
}

func unmarshalUint16(b []byte) uint16 {
	return uint16(b[0])<<8 | uint16(b[1])
}

func unmarshalUint24(b []byte) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}
