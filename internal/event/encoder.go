package event

import (
	"encoding/base64"
	"encoding/binary"

	"github.com/mr-tron/base58"
)

// The encoders mirror the on-chain producer's wire layout. They exist for
// round-trip tests and synthetic fixtures: scale mismatches between
// producer and decoder are silent correctness bugs, so the layout lives
// in one place on both sides.

// EncodeTrade serializes a trade event into a payload the decoder accepts.
func EncodeTrade(e *TradeEvent) []byte {
	buf := make([]byte, minTradeSize)
	buf[0] = tagTrade
	buf[1] = byte(e.Side)
	buf[2] = byte(e.Action)
	binary.LittleEndian.PutUint64(buf[3:], uint64(e.NetAmount))
	binary.LittleEndian.PutUint64(buf[11:], uint64(e.ShareDelta))
	binary.LittleEndian.PutUint64(buf[19:], uint64(e.AvgPrice))
	copy(buf[27:59], encodeUser(e.User))
	return buf
}

// EncodeDeposit serializes a deposit event.
func EncodeDeposit(e *DepositEvent) []byte {
	buf := make([]byte, minDepositSize)
	buf[0] = tagDeposit
	binary.LittleEndian.PutUint64(buf[1:], uint64(e.Amount))
	copy(buf[10:42], encodeUser(e.User))
	return buf
}

// EncodeRedeem serializes a redeem event.
func EncodeRedeem(e *RedeemEvent) []byte {
	buf := make([]byte, minRedeemSize)
	buf[0] = tagRedeem
	binary.LittleEndian.PutUint64(buf[1:], uint64(e.Payout))
	binary.LittleEndian.PutUint64(buf[9:], uint64(e.CycleID))
	copy(buf[18:50], encodeUser(e.User))
	return buf
}

// LogLine wraps an encoded payload in the textual form the program emits.
func LogLine(payload []byte) string {
	return DataMarker + base64.StdEncoding.EncodeToString(payload)
}

// encodeUser converts a base58 address back to its 32-byte key. Empty or
// undecodable addresses become the all-zero key (unattributed).
func encodeUser(addr string) []byte {
	if addr == "" {
		return make([]byte, 32)
	}
	key, err := base58.Decode(addr)
	if err != nil || len(key) != 32 {
		return make([]byte, 32)
	}
	return key
}
