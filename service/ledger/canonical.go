package ledger

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// Canonical ledger encoding.
//
// The commitment that binds an attestation to its input set is a SHA-256
// digest over this encoding. The host hashes it with the standard library;
// the zkVM guest hashes the same bytes with block-level primitives. Field
// order, widths, and endianness are therefore a compatibility contract:
// any change here changes every commitment.
//
// Layout, all integers big-endian:
//
//	u32 row count
//	per row:
//	  u64 chain id
//	  u32 len || bytes  owner wallet
//	  u32 len || bytes  tx hash
//	  u64 block time
//	  u32 len || bytes  asset
//	  u32 len || bytes  amount
//	  u8  decimals
//	  u8  direction (in=0, out=1)
//	  u8  counterparty present || u32 len || bytes (when present)
//	  u8  category code
//	  u32 confidence (IEEE-754 bits)
//	  u8  user override

// CanonicalBytes serializes rows into the canonical byte sequence.
func CanonicalBytes(rows []LedgerRow) []byte {
	buf := make([]byte, 0, 32+len(rows)*128)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(rows)))
	for i := range rows {
		buf = appendRow(buf, &rows[i])
	}
	return buf
}

func appendRow(buf []byte, row *LedgerRow) []byte {
	buf = binary.BigEndian.AppendUint64(buf, row.ChainID)
	buf = appendBytes(buf, row.OwnerWallet)
	buf = appendBytes(buf, row.TxHash)
	buf = binary.BigEndian.AppendUint64(buf, row.BlockTime)
	buf = appendBytes(buf, row.Asset)
	buf = appendBytes(buf, row.Amount)
	buf = append(buf, row.Decimals)
	buf = append(buf, row.Direction.Code())
	if row.Counterparty != nil {
		buf = append(buf, 1)
		buf = appendBytes(buf, *row.Counterparty)
	} else {
		buf = append(buf, 0)
	}
	buf = append(buf, row.Category.Code())
	buf = binary.BigEndian.AppendUint32(buf, math.Float32bits(row.Confidence))
	if row.UserOverride {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	return buf
}

func appendBytes(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

// Commit hashes the canonical encoding of rows with SHA-256. This is the
// host-side commitment builder; the guest recomputes the identical digest
// from compression primitives.
func Commit(rows []LedgerRow) [32]byte {
	return sha256.Sum256(CanonicalBytes(rows))
}
