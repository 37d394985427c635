package zkvm

import (
	"encoding/binary"
	"fmt"
)

// PublicValuesLen is the exact size of the encoded public output.
const PublicValuesLen = 66

// PublicValues is the statement an attestation proof commits to: the
// ledger digest, the total tax owed, who owes it, and whether the
// presumptive income election was applied.
type PublicValues struct {
	LedgerCommitment [32]byte
	TotalTaxPaisa    uint64
	UserTypeCode     uint8
	Use44ADA         bool
}

// EncodePublicValues serializes to the fixed 66-byte layout:
// 32 bytes of commitment, a 32-byte big-endian tax amount in paisa
// (upper 24 bytes zero), one user-type byte, one boolean byte.
func EncodePublicValues(pv PublicValues) []byte {
	out := make([]byte, PublicValuesLen)
	copy(out[:32], pv.LedgerCommitment[:])
	binary.BigEndian.PutUint64(out[56:64], pv.TotalTaxPaisa)
	out[64] = pv.UserTypeCode
	if pv.Use44ADA {
		out[65] = 1
	}
	return out
}

// DecodePublicValues parses a 66-byte public output. It rejects a
// wrong length, a tax amount that overflows 64 bits, or a boolean
// byte that is not 0 or 1.
func DecodePublicValues(b []byte) (PublicValues, error) {
	var pv PublicValues
	if len(b) != PublicValuesLen {
		return pv, fmt.Errorf("public values: want %d bytes, got %d", PublicValuesLen, len(b))
	}
	for _, c := range b[32:56] {
		if c != 0 {
			return pv, fmt.Errorf("public values: tax amount exceeds 64 bits")
		}
	}
	if b[65] > 1 {
		return pv, fmt.Errorf("public values: invalid boolean byte 0x%02x", b[65])
	}
	copy(pv.LedgerCommitment[:], b[:32])
	pv.TotalTaxPaisa = binary.BigEndian.Uint64(b[56:64])
	pv.UserTypeCode = b[64]
	pv.Use44ADA = b[65] == 1
	return pv, nil
}
