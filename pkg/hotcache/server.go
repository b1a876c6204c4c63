package hotcache

import (
	"context"
	"errors"
	"io"
	"strconv"
	"time"

	"github.com/hybridkv/hotcache/internal/ledger"
	"github.com/hybridkv/hotcache/internal/promotion"
	"github.com/hybridkv/hotcache/internal/wire"
)

// GlobalTenantID is the sentinel wire tenant id meaning "no specific
// tenant": a global STATS or PURGE request.
const GlobalTenantID uint32 = 0xFFFFFFFF

// ServeConn decodes and dispatches wire.Request frames from rw in a loop
// and writes back a wire.Response for each, until rw returns io.EOF or ctx
// is cancelled. One call serves one connection; callers typically run it
// in its own goroutine per accepted connection.
func (c *Cache) ServeConn(ctx context.Context, rw io.ReadWriter) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		req, err := wire.DecodeRequest(rw)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		resp := c.dispatch(ctx, req)
		if _, err := rw.Write(wire.EncodeResponse(resp)); err != nil {
			return err
		}
	}
}

func (c *Cache) dispatch(ctx context.Context, req wire.Request) wire.Response {
	resp := wire.Response{Opcode: req.Opcode, Flags: req.Flags, TenantID: req.TenantID, DeadlineNanos: req.DeadlineNanos}

	global := req.TenantID == GlobalTenantID
	tenant, known := "", false
	if !global {
		tenant, known = c.TenantName(req.TenantID)
	}

	switch req.Opcode {
	case wire.OpRead:
		key, err := wire.DecodeReadPayload(req.Payload)
		if err != nil || !known {
			resp.Status = wire.StatusInvalid
			return resp
		}
		result, err := c.Read(ctx, tenant, key, nil)
		if err != nil {
			resp.Status = statusForError(err)
			return resp
		}
		switch result.Outcome {
		case OutcomeHit:
			resp.Status = wire.StatusOK
			resp.Payload = result.Value
		case OutcomeStale:
			resp.Status = wire.StatusStale
			resp.Payload = result.Value
		default:
			resp.Status = wire.StatusMiss
		}
		return resp

	case wire.OpInvalidate:
		key, version, err := wire.DecodeInvalidatePayload(req.Payload)
		if err != nil || !known {
			resp.Status = wire.StatusInvalid
			return resp
		}
		if err := c.Invalidate(ctx, tenant, key, version); err != nil {
			if errors.Is(err, ledger.ErrVersionRegression) {
				resp.Status = wire.StatusRejected
			} else {
				resp.Status = statusForError(err)
			}
			return resp
		}
		resp.Status = wire.StatusOK
		return resp

	case wire.OpBatchPromote:
		items, err := wire.DecodeBatchPromotePayload(req.Payload)
		if err != nil || !known {
			resp.Status = wire.StatusInvalid
			return resp
		}
		promItems := make([]promotion.Item, len(items))
		for i, it := range items {
			promItems[i] = promotion.Item{
				Tenant:  tenant,
				Key:     it.Key,
				Value:   it.Value,
				Version: it.Version,
				TTL:     time.Duration(it.TTLMillis) * time.Millisecond,
			}
		}
		results := c.BatchPromote(ctx, promItems)
		resp.Status = wire.StatusOK
		for _, r := range results {
			if !r.Accepted {
				resp.Status = wire.StatusRejected
				break
			}
		}
		return resp

	case wire.OpPurge:
		global, err := wire.DecodePurgePayload(req.Payload)
		if err != nil {
			resp.Status = wire.StatusInvalid
			return resp
		}
		if !global && !known {
			resp.Status = wire.StatusInvalid
			return resp
		}
		if _, err := c.Purge(ctx, tenant, global); err != nil {
			resp.Status = statusForError(err)
			return resp
		}
		resp.Status = wire.StatusOK
		return resp

	case wire.OpStats:
		scope := tenant
		if global {
			scope = ""
		} else if !known {
			resp.Status = wire.StatusInvalid
			return resp
		}
		snap, err := c.Stats(scope)
		if err != nil {
			resp.Status = statusForError(err)
			return resp
		}
		resp.Status = wire.StatusOK
		resp.Payload = wire.EncodeConfigurePayload(statsToWire(snap))
		return resp

	case wire.OpConfigure:
		opts, err := wire.DecodeConfigurePayload(req.Payload)
		if err != nil || !known {
			resp.Status = wire.StatusInvalid
			return resp
		}
		if err := c.Configure(tenant, tenantOptionsFromWire(opts)); err != nil {
			resp.Status = statusForError(err)
			return resp
		}
		resp.Status = wire.StatusOK
		return resp

	default:
		resp.Status = wire.StatusInvalid
		return resp
	}
}

func statusForError(err error) wire.Status {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return wire.StatusTimeout
	case errors.Is(err, ErrPressure), errors.Is(err, ErrAccountingFault):
		return wire.StatusPressure
	default:
		return wire.StatusInvalid
	}
}

// statsToWire flattens a StatsSnapshot into the same key/value shape
// CONFIGURE requests already use, so the client side of the wire protocol
// only needs one TLV decoder.
func statsToWire(s StatsSnapshot) map[string]string {
	c := s.Counters
	out := map[string]string{
		"hits":                strconv.FormatUint(c.Hits, 10),
		"misses":              strconv.FormatUint(c.Misses, 10),
		"admissions":          strconv.FormatUint(c.Admissions, 10),
		"refusals":            strconv.FormatUint(c.Refusals, 10),
		"evicted_pressure":    strconv.FormatUint(c.EvictedPressure, 10),
		"evicted_ttl":         strconv.FormatUint(c.EvictedTTL, 10),
		"evicted_invalidated": strconv.FormatUint(c.EvictedInvalidated, 10),
		"evicted_admin":       strconv.FormatUint(c.EvictedAdmin, 10),
		"bytes_in_use":        strconv.FormatInt(c.BytesInUse, 10),
		"entry_count":         strconv.FormatInt(c.EntryCount, 10),
	}
	if s.Tenant != "" {
		out["used_bytes"] = strconv.FormatInt(s.Governor.UsedBytes, 10)
		out["hard_cap_bytes"] = strconv.FormatInt(s.Governor.HardCapBytes, 10)
	}
	return out
}

func tenantOptionsFromWire(opts map[string]string) TenantOptions {
	var t TenantOptions
	if v, ok := opts["hard_cap_bytes"]; ok {
		t.HardCapBytes, _ = strconv.ParseInt(v, 10, 64)
	}
	if v, ok := opts["min_guarantee_bytes"]; ok {
		t.MinGuaranteeBytes, _ = strconv.ParseInt(v, 10, 64)
	}
	if v, ok := opts["weight"]; ok {
		t.Weight, _ = strconv.ParseFloat(v, 64)
	}
	if v, ok := opts["priority"]; ok {
		p, _ := strconv.Atoi(v)
		t.Priority = p
	}
	if v, ok := opts["bounded_staleness_ms"]; ok {
		t.BoundedStalenessMillis, _ = strconv.ParseInt(v, 10, 64)
	}
	t.Eviction = opts["eviction"]
	t.Admission = opts["admission"]
	t.Consistency = opts["consistency"]
	return t
}
