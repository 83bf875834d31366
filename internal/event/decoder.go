package event

import (
	"encoding/base64"
	"encoding/binary"
	"strings"

	"github.com/mr-tron/base58"
)

// DataMarker prefixes log lines that carry a base64 event payload.
const DataMarker = "Program data: "

// Event tags at payload offset 0.
const (
	tagTrade   byte = 1
	tagDeposit byte = 2
	tagRedeem  byte = 3
)

// Minimum payload sizes per event kind. Shorter buffers are discarded,
// never treated as an error.
const (
	// tag(1) + side(1) + action(1) + netAmount(8) + shareDelta(8) + avgPrice(8) + user(32)
	minTradeSize = 59
	// tag(1) + amount(8) + reserved(1) + user(32)
	minDepositSize = 42
	// tag(1) + payout(8) + cycleID(8) + reserved(1) + user(32)
	minRedeemSize = 50
)

// DecodeLogs decodes every event payload in a transaction's log lines.
// Lines without the data marker, undecodable base64, undersized buffers
// and unknown tags are all skipped silently; a bad line never aborts the
// rest of the batch. Multiple events under one signature all surface,
// in log order.
func DecodeLogs(logs []string, signature string, timestampMs int64) []Event {
	var events []Event

	for _, line := range logs {
		idx := strings.Index(line, DataMarker)
		if idx < 0 {
			continue
		}

		data, err := base64.StdEncoding.DecodeString(line[idx+len(DataMarker):])
		if err != nil {
			continue
		}

		if ev := decode(data, signature, timestampMs); ev != nil {
			events = append(events, ev)
		}
	}

	return events
}

// decode parses a single binary payload into a typed event, or nil when
// the payload is undersized, carries an unknown tag, or holds invalid
// enum values.
func decode(data []byte, signature string, timestampMs int64) Event {
	if len(data) < 1 {
		return nil
	}

	switch data[0] {
	case tagTrade:
		if len(data) < minTradeSize {
			return nil
		}
		side := Side(data[1])
		action := Action(data[2])
		if !side.IsValid() || !action.IsValid() {
			return nil
		}
		return &TradeEvent{
			Side:       side,
			Action:     action,
			NetAmount:  readInt64LE(data, 3),
			ShareDelta: readInt64LE(data, 11),
			AvgPrice:   readInt64LE(data, 19),
			User:       decodeUser(data[27:59]),
			Signature:  signature,
			Timestamp:  timestampMs,
		}

	case tagDeposit:
		if len(data) < minDepositSize {
			return nil
		}
		return &DepositEvent{
			Amount:    readInt64LE(data, 1),
			User:      decodeUser(data[10:42]),
			Signature: signature,
			Timestamp: timestampMs,
		}

	case tagRedeem:
		if len(data) < minRedeemSize {
			return nil
		}
		return &RedeemEvent{
			Payout:    readInt64LE(data, 1),
			CycleID:   readInt64LE(data, 9),
			User:      decodeUser(data[18:50]),
			Signature: signature,
			Timestamp: timestampMs,
		}

	default:
		return nil
	}
}

// decodeUser converts a 32-byte pubkey to a base58 address. An all-zero
// key means the payload carried no identity and the fee payer must be
// resolved via transaction lookup.
func decodeUser(key []byte) string {
	allZero := true
	for _, b := range key {
		if b != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		return ""
	}
	return base58.Encode(key)
}

// readInt64LE reads a little-endian int64 from data at offset.
func readInt64LE(data []byte, offset int) int64 {
	if offset+8 > len(data) {
		return 0
	}
	return int64(binary.LittleEndian.Uint64(data[offset:]))
}
