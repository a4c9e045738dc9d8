// Command chunkdrived wires the catalog, chunk engine, and filesystem
// facade together and exposes the result over SFTP, mirroring the
// startup order of the source's main.py (load webhooks, connect Mongo,
// expose the filesystem) generalized to the full config file.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/chunkdrive/chunkdrive/internal/catalog"
	"github.com/chunkdrive/chunkdrive/internal/codec"
	"github.com/chunkdrive/chunkdrive/internal/config"
	"github.com/chunkdrive/chunkdrive/internal/dispatcher"
	"github.com/chunkdrive/chunkdrive/internal/engine"
	"github.com/chunkdrive/chunkdrive/internal/renewal"
	"github.com/chunkdrive/chunkdrive/internal/sftpd"
	"github.com/chunkdrive/chunkdrive/internal/vfs"
)

const dbName = "dsdrive"

var flags struct {
	configPath     string
	hostKeyPath    string
	webhooksPath   string
	botTokenPath   string
	passphrasePath string
}

func main() {
	root := &cobra.Command{
		Use:          "chunkdrived",
		Short:        "Serve a chunked, encrypted object catalog over SFTP",
		SilenceUsage: true,
		RunE:         run,
	}

	root.Flags().StringVar(&flags.configPath, "config", ".conf/config.yaml", "path to the YAML config file")
	root.Flags().StringVar(&flags.hostKeyPath, "host-key", ".conf/host_key", "path to the SSH host private key")
	root.Flags().StringVar(&flags.webhooksPath, "webhooks", ".conf/webhooks.txt", "path to the newline-delimited webhook URL list")
	root.Flags().StringVar(&flags.botTokenPath, "bot-token", ".conf/bot_token", "path to the bot token used for CDN URL renewal")
	root.Flags().StringVar(&flags.passphrasePath, "passphrase", ".conf/passphrase", "path to the chunk-encryption passphrase file")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return errors.Wrap(err, "chunkdrived: load config")
	}
	if err := cfg.LoadHostKey(flags.hostKeyPath); err != nil {
		return errors.Wrap(err, "chunkdrived: load host key")
	}
	if err := cfg.LoadWebhooks(flags.webhooksPath); err != nil {
		return errors.Wrap(err, "chunkdrived: load webhooks")
	}
	if err := cfg.LoadBotToken(flags.botTokenPath); err != nil {
		return errors.Wrap(err, "chunkdrived: load bot token")
	}
	if err := cfg.LoadPassphrase(flags.passphrasePath); err != nil {
		return errors.Wrap(err, "chunkdrived: load passphrase")
	}
	if len(cfg.Webhooks) == 0 {
		return fmt.Errorf("chunkdrived: webhook list at %s is empty", flags.webhooksPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURL))
	if err != nil {
		return errors.Wrap(err, "chunkdrived: connect to mongo")
	}
	defer func() { _ = client.Disconnect(context.Background()) }()

	cat, err := catalog.Open(ctx, client, dbName)
	if err != nil {
		return errors.Wrap(err, "chunkdrived: open catalog")
	}

	cod := codec.New(cfg.Passphrase)
	disp := dispatcher.New(cfg.Webhooks)
	ren := renewal.NewAPIPolicy(cfg.BotToken)
	defer ren.Close()

	eng := engine.New(cat, cod, disp, ren, log)
	fsys := vfs.New(cat, eng)

	addr := cfg.SFTP.Host + ":" + cfg.SFTP.Port
	server, err := sftpd.New(addr, cfg.HostKey, cfg.SFTP.Auths, cfg.SFTP.NoAuth, fsys, log)
	if err != nil {
		return errors.Wrap(err, "chunkdrived: start sftp listener")
	}

	log.Info().Str("addr", server.Addr().String()).Msg("listening")
	return server.Serve(ctx)
}
