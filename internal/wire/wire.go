// Package wire implements the binary frame codec for the command
// transport and event channel: a framed request/response protocol
// between the authoritative-store process and the cache, plus a
// one-way event stream. Tenants are addressed on the wire by a numeric
// id (u32); pkg/hotcache owns the mapping between that id and the
// tenant name used everywhere else in the module.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

// Opcode identifies a command request.
type Opcode uint16

const (
	OpRead         Opcode = 0x01
	OpInvalidate   Opcode = 0x02
	OpBatchPromote Opcode = 0x03
	OpPurge        Opcode = 0x04
	OpStats        Opcode = 0x05
	OpConfigure    Opcode = 0x06
)

// Status is the response status byte.
type Status byte

const (
	StatusOK       Status = 0
	StatusMiss     Status = 1
	StatusStale    Status = 2
	StatusRejected Status = 3
	StatusInvalid  Status = 4
	StatusTimeout  Status = 5
	StatusPressure Status = 6
)

// EventKind identifies an event-channel frame.
type EventKind byte

const (
	EventEvicted      EventKind = 1
	EventPressure     EventKind = 2
	EventRefreshHint  EventKind = 3
	EventPolicy       EventKind = 4
	EventDroppedCount EventKind = 5
)

// ErrMalformedFrame is returned when a frame's declared payload length
// does not fit the bytes actually available.
var ErrMalformedFrame = errors.New("wire: malformed frame")

// Request is one decoded command request frame: opcode (u16), flags
// (u16), tenant id (u32), deadline (u64 monotonic nanos), payload length
// (u32), payload bytes.
type Request struct {
	Opcode        Opcode
	Flags         uint16
	TenantID      uint32
	DeadlineNanos uint64
	Payload       []byte
}

// EncodeRequest serializes req to its wire form.
func EncodeRequest(req Request) []byte {
	buf := make([]byte, 2+2+4+8+4+len(req.Payload))
	binary.BigEndian.PutUint16(buf[0:2], uint16(req.Opcode))
	binary.BigEndian.PutUint16(buf[2:4], req.Flags)
	binary.BigEndian.PutUint32(buf[4:8], req.TenantID)
	binary.BigEndian.PutUint64(buf[8:16], req.DeadlineNanos)
	binary.BigEndian.PutUint32(buf[16:20], uint32(len(req.Payload)))
	copy(buf[20:], req.Payload)
	return buf
}

// DecodeRequest reads one Request frame from r.
func DecodeRequest(r io.Reader) (Request, error) {
	var head [20]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return Request{}, err
	}
	req := Request{
		Opcode:        Opcode(binary.BigEndian.Uint16(head[0:2])),
		Flags:         binary.BigEndian.Uint16(head[2:4]),
		TenantID:      binary.BigEndian.Uint32(head[4:8]),
		DeadlineNanos: binary.BigEndian.Uint64(head[8:16]),
	}
	n := binary.BigEndian.Uint32(head[16:20])
	req.Payload = make([]byte, n)
	if _, err := io.ReadFull(r, req.Payload); err != nil {
		return Request{}, err
	}
	return req, nil
}

// Response is one decoded command response frame: mirrors Request's
// framing with an added status byte.
type Response struct {
	Opcode        Opcode
	Flags         uint16
	TenantID      uint32
	DeadlineNanos uint64
	Status        Status
	Payload       []byte
}

// EncodeResponse serializes resp to its wire form.
func EncodeResponse(resp Response) []byte {
	buf := make([]byte, 2+2+4+8+1+4+len(resp.Payload))
	binary.BigEndian.PutUint16(buf[0:2], uint16(resp.Opcode))
	binary.BigEndian.PutUint16(buf[2:4], resp.Flags)
	binary.BigEndian.PutUint32(buf[4:8], resp.TenantID)
	binary.BigEndian.PutUint64(buf[8:16], resp.DeadlineNanos)
	buf[16] = byte(resp.Status)
	binary.BigEndian.PutUint32(buf[17:21], uint32(len(resp.Payload)))
	copy(buf[21:], resp.Payload)
	return buf
}

// DecodeResponse reads one Response frame from r.
func DecodeResponse(r io.Reader) (Response, error) {
	var head [21]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return Response{}, err
	}
	resp := Response{
		Opcode:        Opcode(binary.BigEndian.Uint16(head[0:2])),
		Flags:         binary.BigEndian.Uint16(head[2:4]),
		TenantID:      binary.BigEndian.Uint32(head[4:8]),
		DeadlineNanos: binary.BigEndian.Uint64(head[8:16]),
		Status:        Status(head[16]),
	}
	n := binary.BigEndian.Uint32(head[17:21])
	resp.Payload = make([]byte, n)
	if _, err := io.ReadFull(r, resp.Payload); err != nil {
		return Response{}, err
	}
	return resp, nil
}

// EncodeReadPayload encodes a READ request body: key_len (u16), key.
func EncodeReadPayload(key []byte) []byte {
	buf := make([]byte, 2+len(key))
	binary.BigEndian.PutUint16(buf[0:2], uint16(len(key)))
	copy(buf[2:], key)
	return buf
}

// DecodeReadPayload decodes a READ request body.
func DecodeReadPayload(payload []byte) (key []byte, err error) {
	if len(payload) < 2 {
		return nil, ErrMalformedFrame
	}
	n := int(binary.BigEndian.Uint16(payload[0:2]))
	if len(payload) < 2+n {
		return nil, ErrMalformedFrame
	}
	return payload[2 : 2+n], nil
}

// EncodeInvalidatePayload encodes an INVALIDATE request body: key_len,
// key, version (u64).
func EncodeInvalidatePayload(key []byte, version uint64) []byte {
	buf := make([]byte, 2+len(key)+8)
	binary.BigEndian.PutUint16(buf[0:2], uint16(len(key)))
	copy(buf[2:2+len(key)], key)
	binary.BigEndian.PutUint64(buf[2+len(key):], version)
	return buf
}

// DecodeInvalidatePayload decodes an INVALIDATE request body.
func DecodeInvalidatePayload(payload []byte) (key []byte, version uint64, err error) {
	if len(payload) < 2 {
		return nil, 0, ErrMalformedFrame
	}
	n := int(binary.BigEndian.Uint16(payload[0:2]))
	if len(payload) < 2+n+8 {
		return nil, 0, ErrMalformedFrame
	}
	key = payload[2 : 2+n]
	version = binary.BigEndian.Uint64(payload[2+n : 2+n+8])
	return key, version, nil
}

// PromoteItem is one entry of a BATCH_PROMOTE request body.
type PromoteItem struct {
	Key     []byte
	Version uint64
	TTLMillis uint32
	Value   []byte
}

// EncodeBatchPromotePayload encodes a BATCH_PROMOTE request body: count
// (u16), then count x {key_len, key, ver (u64), ttl_ms (u32), val_len
// (u32), val}.
func EncodeBatchPromotePayload(items []PromoteItem) []byte {
	var buf bytes.Buffer
	var countBuf [2]byte
	binary.BigEndian.PutUint16(countBuf[:], uint16(len(items)))
	buf.Write(countBuf[:])
	for _, it := range items {
		var head [2]byte
		binary.BigEndian.PutUint16(head[:], uint16(len(it.Key)))
		buf.Write(head[:])
		buf.Write(it.Key)
		var verBuf [8]byte
		binary.BigEndian.PutUint64(verBuf[:], it.Version)
		buf.Write(verBuf[:])
		var ttlBuf [4]byte
		binary.BigEndian.PutUint32(ttlBuf[:], it.TTLMillis)
		buf.Write(ttlBuf[:])
		var valLenBuf [4]byte
		binary.BigEndian.PutUint32(valLenBuf[:], uint32(len(it.Value)))
		buf.Write(valLenBuf[:])
		buf.Write(it.Value)
	}
	return buf.Bytes()
}

// DecodeBatchPromotePayload decodes a BATCH_PROMOTE request body.
func DecodeBatchPromotePayload(payload []byte) ([]PromoteItem, error) {
	if len(payload) < 2 {
		return nil, ErrMalformedFrame
	}
	count := int(binary.BigEndian.Uint16(payload[0:2]))
	items := make([]PromoteItem, 0, count)
	off := 2
	for i := 0; i < count; i++ {
		if off+2 > len(payload) {
			return nil, ErrMalformedFrame
		}
		keyLen := int(binary.BigEndian.Uint16(payload[off : off+2]))
		off += 2
		if off+keyLen+8+4+4 > len(payload) {
			return nil, ErrMalformedFrame
		}
		key := payload[off : off+keyLen]
		off += keyLen
		version := binary.BigEndian.Uint64(payload[off : off+8])
		off += 8
		ttl := binary.BigEndian.Uint32(payload[off : off+4])
		off += 4
		valLen := int(binary.BigEndian.Uint32(payload[off : off+4]))
		off += 4
		if off+valLen > len(payload) {
			return nil, ErrMalformedFrame
		}
		val := payload[off : off+valLen]
		off += valLen
		items = append(items, PromoteItem{Key: key, Version: version, TTLMillis: ttl, Value: val})
	}
	return items, nil
}

// EncodePurgePayload encodes a PURGE request body: scope (u8: 0 tenant,
// 1 global).
func EncodePurgePayload(global bool) []byte {
	if global {
		return []byte{1}
	}
	return []byte{0}
}

// DecodePurgePayload decodes a PURGE request body.
func DecodePurgePayload(payload []byte) (global bool, err error) {
	if len(payload) < 1 {
		return false, ErrMalformedFrame
	}
	return payload[0] == 1, nil
}

// EncodeConfigurePayload encodes a CONFIGURE request body as a TLV
// sequence of (keyLen u16, key, valLen u16, val) pairs, one per
// configuration option.
func EncodeConfigurePayload(opts map[string]string) []byte {
	var buf bytes.Buffer
	for k, v := range opts {
		var klBuf [2]byte
		binary.BigEndian.PutUint16(klBuf[:], uint16(len(k)))
		buf.Write(klBuf[:])
		buf.WriteString(k)
		var vlBuf [2]byte
		binary.BigEndian.PutUint16(vlBuf[:], uint16(len(v)))
		buf.Write(vlBuf[:])
		buf.WriteString(v)
	}
	return buf.Bytes()
}

// DecodeConfigurePayload decodes a CONFIGURE request body.
func DecodeConfigurePayload(payload []byte) (map[string]string, error) {
	opts := make(map[string]string)
	off := 0
	for off < len(payload) {
		if off+2 > len(payload) {
			return nil, ErrMalformedFrame
		}
		kl := int(binary.BigEndian.Uint16(payload[off : off+2]))
		off += 2
		if off+kl+2 > len(payload) {
			return nil, ErrMalformedFrame
		}
		key := string(payload[off : off+kl])
		off += kl
		vl := int(binary.BigEndian.Uint16(payload[off : off+2]))
		off += 2
		if off+vl > len(payload) {
			return nil, ErrMalformedFrame
		}
		opts[key] = string(payload[off : off+vl])
		off += vl
	}
	return opts, nil
}

// EventFrame is one decoded event-channel frame: kind (u8), tenant
// (u32), length (u32), body.
type EventFrame struct {
	Kind     EventKind
	TenantID uint32
	Body     []byte
}

// EncodeEventFrame serializes ev to its wire form.
func EncodeEventFrame(ev EventFrame) []byte {
	buf := make([]byte, 1+4+4+len(ev.Body))
	buf[0] = byte(ev.Kind)
	binary.BigEndian.PutUint32(buf[1:5], ev.TenantID)
	binary.BigEndian.PutUint32(buf[5:9], uint32(len(ev.Body)))
	copy(buf[9:], ev.Body)
	return buf
}

// DecodeEventFrame reads one EventFrame from r.
func DecodeEventFrame(r io.Reader) (EventFrame, error) {
	var head [9]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return EventFrame{}, err
	}
	ev := EventFrame{
		Kind:     EventKind(head[0]),
		TenantID: binary.BigEndian.Uint32(head[1:5]),
	}
	n := binary.BigEndian.Uint32(head[5:9])
	ev.Body = make([]byte, n)
	if _, err := io.ReadFull(r, ev.Body); err != nil {
		return EventFrame{}, err
	}
	return ev, nil
}
