package amdtp

import "testing"

func TestCRC32KnownAnswers(t *testing.T) {
	cases := []struct {
		name string
		data []byte
		want uint32
	}{
		{"empty", nil, 0x00000000},
		{"check-string", []byte("123456789"), 0xCBF43926},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := crc32Checksum(tc.data); got != tc.want {
				t.Errorf("crc32Checksum(%q) = %#08x, want %#08x", tc.data, got, tc.want)
			}
		})
	}
}

func TestCRC32Consistency(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0x04, 0x05}
	if crc32Checksum(data) != crc32Checksum(data) {
		t.Errorf("crc32Checksum not consistent across calls")
	}
}

func TestCRC32Sensitivity(t *testing.T) {
	original := []byte{0x10, 0x20, 0x30, 0x40, 0x50}
	flipped := append([]byte(nil), original...)
	flipped[len(flipped)-1] ^= 0xFF

	if crc32Checksum(original) == crc32Checksum(flipped) {
		t.Errorf("crc32Checksum did not change after flipping the last byte")
	}
}
