package chain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sandevgo/memchain/internal/core"
	"github.com/sandevgo/memchain/pkg/canon"
)

// EncodeRecord serializes a signed record the way it is stored: the payload
// object's own fields next to previousCid, signature and timestamp.
func EncodeRecord(rec core.MemoryRecord) ([]byte, error) {
	fields, err := payloadFields(rec.Payload)
	if err != nil {
		return nil, err
	}
	for _, reserved := range []string{core.FieldPreviousCID, core.FieldSignature, core.FieldTimestamp} {
		if _, ok := fields[reserved]; ok {
			return nil, fmt.Errorf("%w: payload uses reserved field %q", core.ErrInvalidPayload, reserved)
		}
	}

	if rec.PreviousCID != "" {
		fields[core.FieldPreviousCID] = mustJSON(rec.PreviousCID)
	}
	fields[core.FieldSignature] = mustJSON(rec.Signature)
	fields[core.FieldTimestamp] = mustJSON(rec.Timestamp.UTC().Format(core.TimestampLayout))

	data, err := canon.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidPayload, err)
	}
	return data, nil
}

// DecodeRecord parses stored bytes back into a record.
func DecodeRecord(data []byte) (core.MemoryRecord, error) {
	var rec core.MemoryRecord

	fields, err := payloadFields(data)
	if err != nil {
		return rec, fmt.Errorf("%w: %v", core.ErrDecode, err)
	}

	if raw, ok := fields[core.FieldPreviousCID]; ok {
		// The original uploader may write previousCid: null for genesis.
		if !bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			if err := json.Unmarshal(raw, &rec.PreviousCID); err != nil {
				return rec, fmt.Errorf("%w: previousCid: %v", core.ErrDecode, err)
			}
		}
		delete(fields, core.FieldPreviousCID)
	}

	raw, ok := fields[core.FieldSignature]
	if !ok {
		return rec, fmt.Errorf("%w: missing signature", core.ErrDecode)
	}
	if err := json.Unmarshal(raw, &rec.Signature); err != nil {
		return rec, fmt.Errorf("%w: signature: %v", core.ErrDecode, err)
	}
	delete(fields, core.FieldSignature)

	raw, ok = fields[core.FieldTimestamp]
	if !ok {
		return rec, fmt.Errorf("%w: missing timestamp", core.ErrDecode)
	}
	var ts string
	if err := json.Unmarshal(raw, &ts); err != nil {
		return rec, fmt.Errorf("%w: timestamp: %v", core.ErrDecode, err)
	}
	rec.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return rec, fmt.Errorf("%w: timestamp: %v", core.ErrDecode, err)
	}
	delete(fields, core.FieldTimestamp)

	rec.Payload, err = canon.Marshal(fields)
	if err != nil {
		return rec, fmt.Errorf("%w: payload: %v", core.ErrDecode, err)
	}
	return rec, nil
}

func payloadFields(raw []byte) (map[string]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: payload must be a JSON object", core.ErrInvalidPayload)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidPayload, err)
	}
	if fields == nil {
		fields = make(map[string]json.RawMessage)
	}
	return fields, nil
}

func mustJSON(s string) json.RawMessage {
	data, _ := json.Marshal(s)
	return data
}
