package main

// main.go implements hotcache-ctl, a small operator CLI that speaks the
// same binary wire protocol pkg/hotcache.Cache.ServeConn understands
// over a raw TCP connection, instead of polling an HTTP debug endpoint.
// It supports a one-shot STATS dump, a watch mode that re-polls on an
// interval, and a PURGE command, printed either as pretty text or JSON.

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/hybridkv/hotcache/internal/wire"
)

var version = "dev"

type options struct {
	addr     string
	tenant   string
	global   bool
	purge    bool
	watch    bool
	interval time.Duration
	json     bool
	timeout  time.Duration
	version  bool
}

func parseFlags() *options {
	o := &options{}
	flag.StringVar(&o.addr, "addr", "127.0.0.1:7070", "hotcache wire-protocol listen address")
	flag.StringVar(&o.tenant, "tenant", "", "tenant name to query (required unless -global)")
	flag.BoolVar(&o.global, "global", false, "operate across all tenants instead of one")
	flag.BoolVar(&o.purge, "purge", false, "issue PURGE instead of STATS")
	flag.BoolVar(&o.watch, "watch", false, "repeat STATS on -interval until interrupted")
	flag.DurationVar(&o.interval, "interval", 2*time.Second, "poll interval in watch mode")
	flag.BoolVar(&o.json, "json", false, "print machine-readable JSON instead of a table")
	flag.DurationVar(&o.timeout, "timeout", 5*time.Second, "per-request deadline")
	flag.BoolVar(&o.version, "version", false, "print version and exit")
	flag.Parse()
	return o
}

func main() {
	opts := parseFlags()

	if opts.version {
		fmt.Println(version)
		return
	}
	if opts.tenant == "" && !opts.global {
		fatal(fmt.Errorf("either -tenant or -global is required"))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	if opts.purge {
		if err := runPurge(ctx, opts); err != nil {
			fatal(err)
		}
		return
	}

	if opts.watch {
		ticker := time.NewTicker(opts.interval)
		defer ticker.Stop()
		for {
			if err := runStats(ctx, opts); err != nil {
				fmt.Fprintln(os.Stderr, "error:", err)
			}
			select {
			case <-ticker.C:
				continue
			case <-ctx.Done():
				return
			}
		}
	}

	if err := runStats(ctx, opts); err != nil {
		fatal(err)
	}
}

func dial(ctx context.Context, opts *options) (net.Conn, error) {
	d := net.Dialer{Timeout: opts.timeout}
	return d.DialContext(ctx, "tcp", opts.addr)
}

func runStats(ctx context.Context, opts *options) error {
	conn, err := dial(ctx, opts)
	if err != nil {
		return err
	}
	defer conn.Close()

	req := wire.Request{
		Opcode:        wire.OpStats,
		TenantID:      tenantWireID(opts),
		DeadlineNanos: uint64(opts.timeout.Nanoseconds()),
	}
	resp, err := roundTrip(conn, opts.timeout, req)
	if err != nil {
		return err
	}
	if resp.Status != wire.StatusOK {
		return fmt.Errorf("server returned status %d", resp.Status)
	}
	stats, err := wire.DecodeConfigurePayload(resp.Payload)
	if err != nil {
		return err
	}

	if opts.json {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}
	printStats(stats)
	return nil
}

func runPurge(ctx context.Context, opts *options) error {
	conn, err := dial(ctx, opts)
	if err != nil {
		return err
	}
	defer conn.Close()

	req := wire.Request{
		Opcode:        wire.OpPurge,
		TenantID:      tenantWireID(opts),
		DeadlineNanos: uint64(opts.timeout.Nanoseconds()),
		Payload:       wire.EncodePurgePayload(opts.global),
	}
	resp, err := roundTrip(conn, opts.timeout, req)
	if err != nil {
		return err
	}
	if resp.Status != wire.StatusOK {
		return fmt.Errorf("server returned status %d", resp.Status)
	}
	fmt.Println("purge ok")
	return nil
}

// tenantWireID resolves opts.tenant to a wire-level tenant id. hotcache-ctl
// has no channel to ask the server to resolve a tenant name to its numeric
// id outside of an existing request, so operators are expected to pass the
// numeric id directly for tenant-scoped commands; -global sidesteps this
// entirely with the reserved sentinel id.
func tenantWireID(opts *options) uint32 {
	if opts.global {
		return hotcacheGlobalTenantID
	}
	id, err := strconv.ParseUint(opts.tenant, 10, 32)
	if err != nil {
		fatal(fmt.Errorf("-tenant must be a numeric wire tenant id (got %q): %w", opts.tenant, err))
	}
	return uint32(id)
}

// hotcacheGlobalTenantID mirrors pkg/hotcache.GlobalTenantID; duplicated
// here rather than imported so hotcache-ctl depends only on the wire
// protocol package, not on the cache implementation itself.
const hotcacheGlobalTenantID uint32 = 0xFFFFFFFF

func roundTrip(conn net.Conn, timeout time.Duration, req wire.Request) (wire.Response, error) {
	conn.SetDeadline(time.Now().Add(timeout))
	if _, err := conn.Write(wire.EncodeRequest(req)); err != nil {
		return wire.Response{}, err
	}
	return wire.DecodeResponse(conn)
}

func printStats(stats map[string]string) {
	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := stats[k]
		if isByteField(k) {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				fmt.Printf("%-20s %s (%s)\n", k+":", v, humanize.Bytes(uint64(n)))
				continue
			}
		}
		fmt.Printf("%-20s %s\n", k+":", v)
	}
}

func isByteField(k string) bool {
	switch k {
	case "bytes_in_use", "used_bytes", "hard_cap_bytes":
		return true
	default:
		return false
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "hotcache-ctl:", err)
	os.Exit(1)
}
