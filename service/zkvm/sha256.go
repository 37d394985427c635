package zkvm

import "encoding/binary"

// SHA-256 built from the block-level primitives a constrained VM
// exposes: message-schedule extension and block compression over 64-byte
// blocks. The host uses crypto/sha256 for the same digest; this
// implementation exists because the constrained environment has no
// whole-message hash call, only the two primitives.
//
// Padding follows Merkle-Damgard exactly: append 0x80, zero-pad, and
// place the 64-bit big-endian bit length in the final 8 bytes. When
// fewer than 8 bytes remain after the 0x80 byte, an additional
// all-padding block is processed. Any deviation here changes every
// ledger commitment, so the edge cases are covered by vectors against
// crypto/sha256.

var sha256InitState = [8]uint32{
	0x6a09e667, 0xbb67ae85, 0x3c6ef372, 0xa54ff53a,
	0x510e527f, 0x9b05688c, 0x1f83d9ab, 0x5be0cd19,
}

var sha256K = [64]uint32{
	0x428a2f98, 0x71374491, 0xb5c0fbcf, 0xe9b5dba5,
	0x3956c25b, 0x59f111f1, 0x923f82a4, 0xab1c5ed5,
	0xd807aa98, 0x12835b01, 0x243185be, 0x550c7dc3,
	0x72be5d74, 0x80deb1fe, 0x9bdc06a7, 0xc19bf174,
	0xe49b69c1, 0xefbe4786, 0x0fc19dc6, 0x240ca1cc,
	0x2de92c6f, 0x4a7484aa, 0x5cb0a9dc, 0x76f988da,
	0x983e5152, 0xa831c66d, 0xb00327c8, 0xbf597fc7,
	0xc6e00bf3, 0xd5a79147, 0x06ca6351, 0x14292967,
	0x27b70a85, 0x2e1b2138, 0x4d2c6dfc, 0x53380d13,
	0x650a7354, 0x766a0abb, 0x81c2c92e, 0x92722c85,
	0xa2bfe8a1, 0xa81a664b, 0xc24b8b70, 0xc76c51a3,
	0xd192e819, 0xd6990624, 0xf40e3585, 0x106aa070,
	0x19a4c116, 0x1e376c08, 0x2748774c, 0x34b0bcb5,
	0x391c0cb3, 0x4ed8aa4a, 0x5b9cca4f, 0x682e6ff3,
	0x748f82ee, 0x78a5636f, 0x84c87814, 0x8cc70208,
	0x90befffa, 0xa4506ceb, 0xbef9a3f7, 0xc67178f2,
}

func rotr(x uint32, n uint) uint32 {
	return (x >> n) | (x << (32 - n))
}

// sha256Extend expands the 16 loaded message words into the full
// 64-word schedule in place.
func sha256Extend(w *[64]uint32) {
	for i := 16; i < 64; i++ {
		s0 := rotr(w[i-15], 7) ^ rotr(w[i-15], 18) ^ (w[i-15] >> 3)
		s1 := rotr(w[i-2], 17) ^ rotr(w[i-2], 19) ^ (w[i-2] >> 10)
		w[i] = w[i-16] + s0 + w[i-7] + s1
	}
}

// sha256Compress folds one extended schedule into the running state.
func sha256Compress(w *[64]uint32, state *[8]uint32) {
	a, b, c, d := state[0], state[1], state[2], state[3]
	e, f, g, h := state[4], state[5], state[6], state[7]

	for i := 0; i < 64; i++ {
		s1 := rotr(e, 6) ^ rotr(e, 11) ^ rotr(e, 25)
		ch := (e & f) ^ (^e & g)
		t1 := h + s1 + ch + sha256K[i] + w[i]
		s0 := rotr(a, 2) ^ rotr(a, 13) ^ rotr(a, 22)
		maj := (a & b) ^ (a & c) ^ (b & c)
		t2 := s0 + maj

		h, g, f, e = g, f, e, d+t1
		d, c, b, a = c, b, a, t1+t2
	}

	state[0] += a
	state[1] += b
	state[2] += c
	state[3] += d
	state[4] += e
	state[5] += f
	state[6] += g
	state[7] += h
}

func loadBlock(block []byte) [64]uint32 {
	var w [64]uint32
	for j := 0; j < 16; j++ {
		w[j] = binary.BigEndian.Uint32(block[j*4:])
	}
	return w
}

// Sum256 computes the SHA-256 digest of data from block primitives.
func Sum256(data []byte) [32]byte {
	state := sha256InitState

	i := 0
	for ; i+64 <= len(data); i += 64 {
		w := loadBlock(data[i : i+64])
		sha256Extend(&w)
		sha256Compress(&w, &state)
	}

	var final [64]byte
	remaining := copy(final[:], data[i:])
	final[remaining] = 0x80

	lenBits := uint64(len(data)) * 8
	if remaining < 56 {
		// The length field fits after the 0x80 byte.
		binary.BigEndian.PutUint64(final[56:], lenBits)
		w := loadBlock(final[:])
		sha256Extend(&w)
		sha256Compress(&w, &state)
	} else {
		// Not enough room: close out this block, then process one more
		// holding only padding and the length.
		w := loadBlock(final[:])
		sha256Extend(&w)
		sha256Compress(&w, &state)

		var extra [64]byte
		binary.BigEndian.PutUint64(extra[56:], lenBits)
		w = loadBlock(extra[:])
		sha256Extend(&w)
		sha256Compress(&w, &state)
	}

	var digest [32]byte
	for j, s := range state {
		binary.BigEndian.PutUint32(digest[j*4:], s)
	}
	return digest
}
