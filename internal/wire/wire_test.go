package wire

import (
	"bytes"
	"testing"
)

func TestRequestRoundTrip(t *testing.T) {
	req := Request{Opcode: OpRead, Flags: 1, TenantID: 7, DeadlineNanos: 123456, Payload: EncodeReadPayload([]byte("hot"))}
	encoded := EncodeRequest(req)

	got, err := DecodeRequest(bytes.NewReader(encoded))
	if err != nil {
		t.Fatalf("DecodeRequest: %v", err)
	}
	if got.Opcode != OpRead || got.TenantID != 7 || got.DeadlineNanos != 123456 {
		t.Fatalf("decoded request = %+v", got)
	}
	key, err := DecodeReadPayload(got.Payload)
	if err != nil || string(key) != "hot" {
		t.Fatalf("DecodeReadPayload = %q, %v", key, err)
	}
}

func TestResponseRoundTrip(t *testing.T) {
	resp := Response{Opcode: OpRead, TenantID: 3, Status: StatusOK, Payload: []byte("value")}
	encoded := EncodeResponse(resp)

	got, err := DecodeResponse(bytes.NewReader(encoded))
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if got.Status != StatusOK || string(got.Payload) != "value" {
		t.Fatalf("decoded response = %+v", got)
	}
}

func TestInvalidatePayloadRoundTrip(t *testing.T) {
	payload := EncodeInvalidatePayload([]byte("k"), 42)
	key, version, err := DecodeInvalidatePayload(payload)
	if err != nil || string(key) != "k" || version != 42 {
		t.Fatalf("got key=%q version=%d err=%v", key, version, err)
	}
}

func TestBatchPromotePayloadRoundTrip(t *testing.T) {
	items := []PromoteItem{
		{Key: []byte("a"), Version: 1, TTLMillis: 1000, Value: []byte("va")},
		{Key: []byte("b"), Version: 2, TTLMillis: 2000, Value: []byte("vb")},
	}
	payload := EncodeBatchPromotePayload(items)
	got, err := DecodeBatchPromotePayload(payload)
	if err != nil {
		t.Fatalf("DecodeBatchPromotePayload: %v", err)
	}
	if len(got) != 2 || string(got[0].Key) != "a" || string(got[1].Value) != "vb" {
		t.Fatalf("decoded items = %+v", got)
	}
}

func TestPurgePayloadRoundTrip(t *testing.T) {
	global, err := DecodePurgePayload(EncodePurgePayload(true))
	if err != nil || !global {
		t.Fatalf("global=%v err=%v", global, err)
	}
	tenantScoped, err := DecodePurgePayload(EncodePurgePayload(false))
	if err != nil || tenantScoped {
		t.Fatalf("tenantScoped=%v err=%v", tenantScoped, err)
	}
}

func TestConfigurePayloadRoundTrip(t *testing.T) {
	opts := map[string]string{
		"cache.total_bytes":    "268435456",
		"tenant.t1.eviction":   "lru",
	}
	payload := EncodeConfigurePayload(opts)
	got, err := DecodeConfigurePayload(payload)
	if err != nil {
		t.Fatalf("DecodeConfigurePayload: %v", err)
	}
	if got["cache.total_bytes"] != "268435456" || got["tenant.t1.eviction"] != "lru" {
		t.Fatalf("decoded opts = %+v", got)
	}
}

func TestEventFrameRoundTrip(t *testing.T) {
	ev := EventFrame{Kind: EventDroppedCount, TenantID: 9, Body: []byte{0, 0, 0, 5}}
	encoded := EncodeEventFrame(ev)
	got, err := DecodeEventFrame(bytes.NewReader(encoded))
	if err != nil {
		t.Fatalf("DecodeEventFrame: %v", err)
	}
	if got.Kind != EventDroppedCount || got.TenantID != 9 || !bytes.Equal(got.Body, ev.Body) {
		t.Fatalf("decoded event = %+v", got)
	}
}
