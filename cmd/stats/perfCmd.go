package stats

import (
	"context"
	"encoding/csv"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ValentinKolb/dStats/cmd/util"
	"github.com/ValentinKolb/dStats/lib/statsdb"
	"github.com/ValentinKolb/dStats/lib/store/lstore"
	"github.com/ValentinKolb/dStats/lib/values"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Load generator for dStats masters",
		Long:    "Runs concurrent collector updates against an in-memory collector and syncs it to the master periodically. Reports update and sync rates.",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfNumThreads   = 10
	perfKeySpread    = 100
	perfDuration     = 10 * time.Second
	perfSyncInterval = 100 * time.Millisecond
)

func init() {
	key := "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of goroutines writing to the collector"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different values to use per level"))
	key = "duration"
	perfTestCmd.Flags().Duration(key, 10*time.Second, util.WrapString("How long to generate load"))
	key = "sync-interval"
	perfTestCmd.Flags().Duration(key, 100*time.Millisecond, util.WrapString("Interval between two syncs of the collector"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save the results as CSV"))
}

func processPerfConfig(*cobra.Command, []string) error {
	perfNumThreads = viper.GetInt("threads")
	perfKeySpread = viper.GetInt("keys")
	perfDuration = viper.GetDuration("duration")
	perfSyncInterval = viper.GetDuration("sync-interval")

	if perfNumThreads < 1 || perfKeySpread < 1 || perfDuration <= 0 || perfSyncInterval <= 0 {
		return fmt.Errorf("threads, keys, duration and sync-interval must be positive")
	}
	return nil
}

// perfMetrics are the rcrowley meters and timers of one run
type perfMetrics struct {
	registry gometrics.Registry
	updates  gometrics.Meter
	errors   gometrics.Counter
	syncs    gometrics.Timer
	statuses map[statsdb.SyncStatus]gometrics.Counter
}

func newPerfMetrics() *perfMetrics {
	r := gometrics.NewRegistry()
	m := &perfMetrics{
		registry: r,
		updates:  gometrics.NewRegisteredMeter("updates", r),
		errors:   gometrics.NewRegisteredCounter("update_errors", r),
		syncs:    gometrics.NewRegisteredTimer("syncs", r),
		statuses: make(map[statsdb.SyncStatus]gometrics.Counter),
	}
	for _, s := range []statsdb.SyncStatus{statsdb.SyncEmpty, statsdb.SyncApplied, statsdb.SyncAlreadyApplied, statsdb.SyncFailed, statsdb.SyncBusy} {
		m.statuses[s] = gometrics.NewRegisteredCounter("sync_"+s.String(), r)
	}
	return m
}

func runPerf(cmd *cobra.Command, _ []string) error {
	fmt.Println("Load generator for dStats masters")

	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(util.GetClientConfig().String())
	fmt.Printf("Threads: %d, Keys: %d, Duration: %s, Sync Interval: %s\n", perfNumThreads, perfKeySpread, perfDuration, perfSyncInterval)
	fmt.Println()

	ctx := cmd.Context()
	ks, err := remote.GetSchema(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch schema: %w", err)
	}

	node, err := statsdb.NewNode(ks, values.NewCodec(), remote, lstore.NewMemStore(), lstore.NewMemStore(),
		statsdb.NodeConfig{SyncTimeout: time.Duration(viper.GetInt("timeout")) * time.Second})
	if err != nil {
		return err
	}
	defer node.Close()
	if err := node.Start(ctx); err != nil {
		return err
	}

	m := newPerfMetrics()
	loadCtx, cancel := context.WithTimeout(ctx, perfDuration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < perfNumThreads; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			generateLoad(loadCtx, node, ks.Depth(), rand.New(rand.NewSource(seed)), m)
		}(time.Now().UnixNano() + int64(i))
	}

	syncOnce := func(ctx context.Context) {
		var status statsdb.SyncStatus
		m.syncs.Time(func() { status = node.Sync(ctx) })
		m.statuses[status].Inc(1)
	}

	ticker := time.NewTicker(perfSyncInterval)
	defer ticker.Stop()
loop:
	for {
		select {
		case <-loadCtx.Done():
			break loop
		case <-ticker.C:
			syncOnce(ctx)
		}
	}
	wg.Wait()
	// deliver the rest
	syncOnce(ctx)

	printPerf(m)
	if path := viper.GetString("csv"); path != "" {
		if err := writePerfCSV(path, m); err != nil {
			return err
		}
		fmt.Printf("results written to %s\n", path)
	}
	return nil
}

// generateLoad increments random paths of random depth until ctx is done
func generateLoad(ctx context.Context, node *statsdb.Node, depth int, rnd *rand.Rand, m *perfMetrics) {
	for ctx.Err() == nil {
		n := 1 + rnd.Intn(depth)
		path := make([]string, n)
		for i := range path {
			path[i] = "k" + strconv.Itoa(rnd.Intn(perfKeySpread))
		}
		if err := node.Update(path, values.Increment("hits", 1), values.Factory(n == depth)); err != nil {
			m.errors.Inc(1)
			continue
		}
		m.updates.Mark(1)
	}
}

func printPerf(m *perfMetrics) {
	fmt.Printf("%-20s%d total\t%.0f ops/sec\n", "updates", m.updates.Count(), m.updates.RateMean())
	fmt.Printf("%-20s%d\n", "update errors", m.errors.Count())

	t := m.syncs.Snapshot()
	ps := t.Percentiles([]float64{0.5, 0.99})
	fmt.Printf("%-20s%d total\tmean %s\tp50 %s\tp99 %s\tmax %s\n", "syncs", t.Count(),
		time.Duration(t.Mean()), time.Duration(ps[0]), time.Duration(ps[1]), time.Duration(t.Max()))

	var parts []string
	for _, s := range []statsdb.SyncStatus{statsdb.SyncApplied, statsdb.SyncEmpty, statsdb.SyncAlreadyApplied, statsdb.SyncFailed, statsdb.SyncBusy} {
		parts = append(parts, fmt.Sprintf("%s=%d", s, m.statuses[s].Count()))
	}
	fmt.Printf("%-20s%s\n", "sync status", strings.Join(parts, " "))
}

// writePerfCSV writes one row per registered metric
func writePerfCSV(csvPath string, m *perfMetrics) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"Metric", "Count", "RatePerSec", "MeanNs", "P99Ns",
		"Endpoints", "ShardID", "Serializer", "Transport", "Threads", "Keys"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	config := util.GetClientConfig()
	common := []string{
		strings.Join(config.Transport.Endpoints, ";"),
		strconv.FormatUint(util.GetShardID(), 10),
		viper.GetString("serializer"),
		viper.GetString("transport"),
		strconv.Itoa(perfNumThreads),
		strconv.Itoa(perfKeySpread),
	}

	var rows [][]string
	m.registry.Each(func(name string, metric interface{}) {
		switch v := metric.(type) {
		case gometrics.Meter:
			s := v.Snapshot()
			rows = append(rows, []string{name, strconv.FormatInt(s.Count(), 10), fmt.Sprintf("%.0f", s.RateMean()), "", ""})
		case gometrics.Timer:
			s := v.Snapshot()
			rows = append(rows, []string{name, strconv.FormatInt(s.Count(), 10), fmt.Sprintf("%.2f", s.RateMean()),
				fmt.Sprintf("%.0f", s.Mean()), fmt.Sprintf("%.0f", s.Percentile(0.99))})
		case gometrics.Counter:
			rows = append(rows, []string{name, strconv.FormatInt(v.Count(), 10), "", "", ""})
		}
	})
	for _, row := range rows {
		if err := writer.Write(append(row, common...)); err != nil {
			return fmt.Errorf("failed to write row for %s: %v", row[0], err)
		}
	}
	return nil
}
