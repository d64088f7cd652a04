package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/vmaark/storesync"
	"github.com/vmaark/storesync/diag"
	"github.com/vmaark/storesync/internal/config"
	"github.com/vmaark/storesync/schema"
	"github.com/vmaark/storesync/types"
)

const diagBuffer = 1024

func main() {
	kingpin.CommandLine.HelpFlag.Short('h')
	kingpin.CommandLine.Help = "Keeps a decoded local replica of a table store in sync with its event log."

	configPath := kingpin.Flag("config", "path to the YAML session config").Short('c').String()

	syncCmd := kingpin.Command("sync", "stream store events and apply them").Default()
	uri := syncCmd.Flag("uri", "log server base URI").String()
	store := syncCmd.Flag("store", "0x-prefixed store contract address").String()
	tablesFile := syncCmd.Flag("tables", "path to the table schema file").String()
	fromBlock := syncCmd.Flag("from-block", "first block to stream").Uint64()
	logLevel := syncCmd.Flag("log-level", "logrus level").String()
	dedup := syncCmd.Flag("dedup", "how many unknown tables to warn about once").Int()

	tablesCmd := kingpin.Command("tables", "print the ids of the tables in the schema file")
	tablesPath := tablesCmd.Arg("file", "table schema file").Required().ExistingFile()

	switch kingpin.Parse() {
	case syncCmd.FullCommand():
		cfg, err := loadConfig(*configPath, overrides{
			uri:        *uri,
			store:      *store,
			tablesFile: *tablesFile,
			fromBlock:  *fromBlock,
			logLevel:   *logLevel,
			dedup:      *dedup,
		})
		kingpin.FatalIfError(err, "config")
		kingpin.FatalIfError(runSync(cfg), "sync")
	case tablesCmd.FullCommand():
		kingpin.FatalIfError(printTables(*tablesPath), "tables")
	}
}

type overrides struct {
	uri        string
	store      string
	tablesFile string
	fromBlock  uint64
	logLevel   string
	dedup      int
}

func loadConfig(path string, o overrides) (*config.YAMLConfig, error) {
	cfg := &config.YAMLConfig{}
	if path != "" {
		var err error
		if cfg, err = config.FromFile(path); err != nil {
			return nil, err
		}
	}
	if o.uri != "" {
		cfg.URIStr = &o.uri
	}
	if o.store != "" {
		cfg.StoreAddressStr = &o.store
	}
	if o.tablesFile != "" {
		cfg.TablesFileStr = &o.tablesFile
	}
	if o.fromBlock != 0 {
		cfg.FromBlockNum = &o.fromBlock
	}
	if o.logLevel != "" {
		cfg.LogLevelStr = &o.logLevel
	}
	if o.dedup != 0 {
		cfg.UnknownTableDedupNum = &o.dedup
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runSync(cfg *config.YAMLConfig) error {
	log := logrus.New()
	log.SetLevel(cfg.LogLevel())
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log.WithField("store", cfg.StoreAddress()).Debugf("config:\n%s", cfg)

	tables, err := schema.LoadFile(cfg.TablesFile())
	if err != nil {
		return err
	}
	registry, err := schema.NewRegistry(tables...)
	if err != nil {
		return err
	}
	subscribed, err := selectTables(registry, cfg.Tables)
	if err != nil {
		return err
	}

	logSink, err := diag.NewLogSink(log, diag.WithDedup(cfg.UnknownTableDedup()))
	if err != nil {
		return err
	}
	sink := diag.Async(logSink, diagBuffer)
	defer func() {
		sink.Close()
		if n := sink.Dropped(); n > 0 {
			log.WithField("dropped", n).Warn("diagnostics were dropped")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	attempts, backoff := cfg.Retry()
	session, err := storesync.NewSessionBuilder().
		WithURI(cfg.URI()).
		WithStoreAddress(cfg.StoreAddress()).
		WithToken(cfg.Token()).
		WithCompression(cfg.Compression()).
		WithRegistry(registry).
		WithDiagnostics(sink).
		WithLogger(log).
		WithConnectRetry(attempts, backoff).
		OnDelta(func(d types.Delta) {
			log.WithFields(logrus.Fields{
				"block":   d.BlockNumber,
				"updated": len(d.Updated),
				"deleted": len(d.Deleted),
			}).Info("store changed")
		}).
		OnDisconnect(func(*storesync.Session, error) {
			stop()
		}).
		Build(ctx)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer func() {
		if err := session.Disconnect(); err != nil {
			log.WithError(err).Warn("disconnect failed")
		}
		// The read loop may still be applying a batch; the sink closes after it.
		<-session.Done()
	}()

	if _, err := session.Subscribe(ctx, subscribed, cfg.FromBlock()); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	log.WithField("tables", len(subscribed)).Info("syncing, press Ctrl+C to exit")
	<-ctx.Done()

	snap := session.Snapshot()
	log.WithFields(logrus.Fields{
		"block": snap.BlockNumber(),
		"rows":  snap.Len(),
	}).Info("shutting down")
	return nil
}

// selectTables resolves labels to registered table ids. No labels selects
// every registered table.
func selectTables(registry *schema.MapRegistry, labels []string) ([]types.TableID, error) {
	if len(labels) == 0 {
		return registry.IDs(), nil
	}
	byLabel := map[string]types.TableID{}
	for _, t := range registry.Tables() {
		byLabel[t.Label()] = t.ID
	}
	out := make([]types.TableID, 0, len(labels))
	for _, label := range labels {
		id, ok := byLabel[label]
		if !ok {
			return nil, fmt.Errorf("table %q is not in the schema file", label)
		}
		out = append(out, id)
	}
	return out, nil
}

func printTables(path string) error {
	tables, err := schema.LoadFile(path)
	if err != nil {
		return err
	}
	registry, err := schema.NewRegistry(tables...)
	if err != nil {
		return err
	}
	for _, t := range registry.Tables() {
		fmt.Printf("%s\t%s\t%d key\t%d value\n", t.ID, t.Label(), len(t.Key), len(t.Value))
	}
	return nil
}
