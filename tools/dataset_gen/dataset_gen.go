package main

// dataset_gen.go generates deterministic key-access traces for driving load
// against a cache, or for feeding bench's BenchmarkReadAsyncRefresh-style
// workloads outside `go test`. It emits newline-separated decimal keys.
//
// -dist=uniform spreads accesses evenly over -keyspace, so every key recurs
// at about the same rate and none stands out as hot. -dist=zipf skews the
// draws over the same -keyspace, so a small number of keys recur often
// enough to cross the tracker's hot_rate_min threshold, the way a real
// skewed workload would.
//
// Usage:
//   go run ./tools/dataset_gen -n 1000000 -dist=zipf -keyspace=100000 -seed=42 -out keys.txt
//
// Flags:
//   -n         number of keys to generate (default 1e6)
//   -dist      distribution: "uniform" or "zipf" (default uniform)
//   -keyspace  number of distinct keys the distribution draws from (default 100000)
//   -zipfs     Zipf s parameter (>1)  (default 1.2)
//   -zipfv     Zipf v parameter (>=1) (default 1.0)
//   -seed      RNG seed (default current time)
//   -out       output file (default stdout)

import (
	"bufio"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"
)

func main() {
	var (
		n        = flag.Int("n", 1_000_000, "number of keys to generate")
		dist     = flag.String("dist", "uniform", "distribution: uniform or zipf")
		keyspace = flag.Uint64("keyspace", 100_000, "distinct keys the distribution draws from")
		zipfS    = flag.Float64("zipfs", 1.2, "zipf s parameter (>1)")
		zipfV    = flag.Float64("zipfv", 1.0, "zipf v parameter (>=1)")
		seedVal  = flag.Int64("seed", time.Now().UnixNano(), "PRNG seed")
		outPath  = flag.String("out", "", "output file (default stdout)")
	)
	flag.Parse()

	rnd := rand.New(rand.NewSource(*seedVal))

	var gen func() uint64
	switch *dist {
	case "uniform":
		gen = func() uint64 { return rnd.Uint64() % *keyspace }
	case "zipf":
		if *zipfS <= 1.0 || *zipfV < 1.0 {
			fmt.Fprintln(os.Stderr, "zipfs must be >1 and zipfv >=1")
			os.Exit(1)
		}
		z := rand.NewZipf(rnd, *zipfS, *zipfV, *keyspace-1)
		gen = z.Uint64
	default:
		fmt.Fprintln(os.Stderr, "unknown dist:", *dist)
		os.Exit(1)
	}

	var out *os.File
	var err error
	if *outPath == "" {
		out = os.Stdout
	} else {
		out, err = os.Create(*outPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "cannot create file:", err)
			os.Exit(1)
		}
		defer out.Close()
	}

	w := bufio.NewWriterSize(out, 1<<20)
	defer w.Flush()

	for i := 0; i < *n; i++ {
		fmt.Fprintln(w, gen())
	}
}
