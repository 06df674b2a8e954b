package stats

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ValentinKolb/dStats/cmd/util"
	"github.com/ValentinKolb/dStats/lib/statsdb"
	"github.com/ValentinKolb/dStats/lib/store"
	"github.com/ValentinKolb/dStats/lib/store/bstore"
	"github.com/ValentinKolb/dStats/lib/values"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	getCmd = &cobra.Command{
		Use:   "get [path...]",
		Short: "Prints the value of a node, e.g. 'get api/get'",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, ok, err := remote.Get(cmd.Context(), util.SplitPath(args))
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("not found")
				return nil
			}
			fmt.Println(v)
			return nil
		},
	}
	childrenCmd = &cobra.Command{
		Use:   "children [path...]",
		Short: "Prints the leaf values below a path, all leaves without a path",
		RunE: func(cmd *cobra.Command, args []string) error {
			vs, err := remote.Children(cmd.Context(), util.SplitPath(args))
			if err != nil {
				return err
			}
			for _, v := range vs {
				fmt.Println(v)
			}
			fmt.Printf("(%d values)\n", len(vs))
			return nil
		},
	}
	addCmd = &cobra.Command{
		Use:   "add [path...]",
		Short: "Adds to a counter through a local collector and syncs it to the master",
		Long: `Adds to a counter through a local collector and syncs it to the master.
The collector buffer lives in --buffer-dir, so counts that could not be
delivered are sent with the next call.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return add(cmd.Context(), util.SplitPath(args), viper.GetString("counter"), viper.GetInt64("by"))
		},
	}
)

func init() {
	addCmd.Flags().String("counter", "count", util.WrapString("Name of the counter to increment"))
	addCmd.Flags().Int64("by", 1, util.WrapString("Amount to add"))
	addCmd.Flags().String("buffer-dir", ".dstats", util.WrapString("Directory of the local collector buffer"))
	addCmd.Flags().String("host", "", util.WrapString("Host id of the collector, a persisted random id if empty"))
}

// openCollector opens a collector node whose buffer and outbox share one bolt file.
func openCollector(ctx context.Context) (*statsdb.Node, func() error, error) {
	ks, err := remote.GetSchema(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch schema: %w", err)
	}

	dir := viper.GetString("buffer-dir")
	db, err := bstore.NewBoltStore(bstore.Options{
		Path:    filepath.Join(dir, fmt.Sprintf("collector-%d.db", util.GetShardID())),
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, nil, err
	}

	node, err := statsdb.NewNode(ks, values.NewCodec(), remote,
		store.Namespace(db, "buffer/"), store.Namespace(db, "outbox/"),
		statsdb.NodeConfig{
			Host:        viper.GetString("host"),
			SyncTimeout: time.Duration(viper.GetInt("timeout")) * time.Second,
		})
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	closeFn := func() error {
		if err := node.Close(); err != nil {
			db.Close()
			return err
		}
		return db.Close()
	}
	if err := node.Start(ctx); err != nil {
		closeFn()
		return nil, nil, err
	}
	return node, closeFn, nil
}

func add(ctx context.Context, path []string, counter string, by int64) error {
	node, closeFn, err := openCollector(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	leaf := len(path) == node.Schema().Depth()
	if err := node.Update(path, values.Increment(counter, by), values.Factory(leaf)); err != nil {
		return err
	}

	status := node.Sync(ctx)
	fmt.Printf("sync %s (host %s)\n", status, node.Host())
	if status == statsdb.SyncFailed {
		return fmt.Errorf("sync failed, the update stays buffered in %s", viper.GetString("buffer-dir"))
	}
	return nil
}
