// Command chunkdrive-backup dumps and restores the catalog's tree
// collection to a single BSON file, translating the source's click-based
// db_man.py dump/load commands into a Cobra CLI.
package main

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/chunkdrive/chunkdrive/internal/catalog"
)

const dbName = "dsdrive"

// bundle is the on-disk BSON document shape, keyed "database" on both the
// dump and load paths (the source's db_man.py dumps under "database" but
// reads back "data", a mismatch that would make load always fail against
// a freshly dumped file — fixed here to a single consistent key).
type bundle struct {
	Database []catalog.Node `bson:"database"`
	HostKey  []byte         `bson:"host_key,omitempty"`
	Webhooks []byte         `bson:"webhooks,omitempty"`
}

var opts struct {
	mongoURL     string
	configPath   string
	includeKey   bool
	includeHooks bool
	hostKeyPath  string
	webhooksPath string
}

func main() {
	root := &cobra.Command{
		Use:   "chunkdrive-backup",
		Short: "Dump or restore the chunkdrive catalog",
	}
	root.PersistentFlags().StringVar(&opts.mongoURL, "mongourl", "mongodb://127.0.0.1:27017", "MongoDB connection URL")
	root.PersistentFlags().StringVar(&opts.hostKeyPath, "host-key", ".conf/host_key", "path to the SSH host private key, for -k")
	root.PersistentFlags().StringVar(&opts.webhooksPath, "webhooks", ".conf/webhooks.txt", "path to the webhook list, for -w")

	dumpCmd := &cobra.Command{
		Use:   "dump <output-file>",
		Short: "Dump the catalog to a BSON file",
		Args:  cobra.ExactArgs(1),
		RunE:  runDump,
	}
	dumpCmd.Flags().BoolVarP(&opts.includeKey, "key", "k", false, "include the SFTP host private key")
	dumpCmd.Flags().BoolVarP(&opts.includeHooks, "webhooks", "w", false, "include the webhook list")

	loadCmd := &cobra.Command{
		Use:   "load <input-file>",
		Short: "Restore the catalog from a BSON file",
		Args:  cobra.ExactArgs(1),
		RunE:  runLoad,
	}

	root.AddCommand(dumpCmd, loadCmd)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func connect(ctx context.Context) (*mongo.Client, *catalog.Catalog, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(opts.mongoURL))
	if err != nil {
		return nil, nil, errors.Wrap(err, "chunkdrive-backup: connect to mongo")
	}
	cat, err := catalog.Open(ctx, client, dbName)
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, errors.Wrap(err, "chunkdrive-backup: open catalog")
	}
	return client, cat, nil
}

func runDump(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	client, cat, err := connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Disconnect(ctx) }()

	nodes, err := cat.DumpAll(ctx)
	if err != nil {
		return errors.Wrap(err, "chunkdrive-backup: dump catalog")
	}
	b := bundle{Database: nodes}

	if opts.includeKey {
		raw, err := os.ReadFile(opts.hostKeyPath)
		if err != nil {
			return errors.Wrap(err, "chunkdrive-backup: read host key")
		}
		b.HostKey = raw
	}
	if opts.includeHooks {
		raw, err := os.ReadFile(opts.webhooksPath)
		if err != nil {
			return errors.Wrap(err, "chunkdrive-backup: read webhooks")
		}
		b.Webhooks = raw
	}

	encoded, err := bson.Marshal(b)
	if err != nil {
		return errors.Wrap(err, "chunkdrive-backup: encode bundle")
	}
	if err := os.WriteFile(args[0], encoded, 0o600); err != nil {
		return errors.Wrap(err, "chunkdrive-backup: write output file")
	}
	cmd.Println("Data dumped successfully.")
	return nil
}

func runLoad(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	client, cat, err := connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Disconnect(ctx) }()

	raw, err := os.ReadFile(args[0])
	if err != nil {
		return errors.Wrap(err, "chunkdrive-backup: read input file")
	}
	var b bundle
	if err := bson.Unmarshal(raw, &b); err != nil {
		return errors.Wrap(err, "chunkdrive-backup: decode bundle")
	}
	if err := cat.LoadAll(ctx, b.Database); err != nil {
		return errors.Wrap(err, "chunkdrive-backup: load catalog")
	}
	cmd.Println("Data loaded successfully.")
	return nil
}
