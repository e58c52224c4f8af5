// Command dedupfsmount mounts an in-memory, block-deduplicating image as
// a FUSE filesystem. The image and every file it holds live only in this
// process's memory; unmounting or killing the process discards them.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dedupfs/dedupfs/fsadapter"
	"github.com/dedupfs/dedupfs/store"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var debug bool
	var jsonLogs bool

	root := &cobra.Command{
		Use:           "dedupfsmount",
		Short:         "Mount a content-addressed, deduplicating in-memory filesystem",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "log every FUSE call")
	root.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "emit structured JSON logs instead of text")

	root.AddCommand(newMountCmd(&debug, &jsonLogs))
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the dedupfsmount version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(version)
			return nil
		},
	}
}

func newMountCmd(debug, jsonLogs *bool) *cobra.Command {
	var allowOther bool
	var blockSize, blockCount, inodeCount uint64

	cmd := &cobra.Command{
		Use:   "mount <mountpoint>",
		Short: "Format a fresh image and mount it at the given path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMount(args[0], runOptions{
				debug:      *debug,
				jsonLogs:   *jsonLogs,
				allowOther: allowOther,
				cfg: store.Config{
					BlockSize:  blockSize,
					BlockCount: blockCount,
					InodeCount: inodeCount,
				},
			})
		},
	}

	def := store.DefaultConfig()
	cmd.Flags().BoolVar(&allowOther, "allow-other", false, "allow other users to access the mount")
	cmd.Flags().Uint64Var(&blockSize, "block-size", def.BlockSize, "image block size in bytes")
	cmd.Flags().Uint64Var(&blockCount, "block-count", def.BlockCount, "number of blocks in the image")
	cmd.Flags().Uint64Var(&inodeCount, "inode-count", def.InodeCount, "number of inodes in the image")
	return cmd
}

type runOptions struct {
	debug      bool
	jsonLogs   bool
	allowOther bool
	cfg        store.Config
}

func newLogger(opts runOptions) *logrus.Entry {
	log := logrus.New()
	if opts.jsonLogs {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	if opts.debug {
		log.SetLevel(logrus.DebugLevel)
	}
	return logrus.NewEntry(log)
}

func runMount(mountpoint string, opts runOptions) error {
	log := newLogger(opts)

	st, err := store.New(opts.cfg, log)
	if err != nil {
		return fmt.Errorf("format image: %w", err)
	}

	root := fsadapter.NewRoot(st, log)
	server, err := fs.Mount(mountpoint, root, &fs.Options{
		MountOptions: fuse.MountOptions{
			Debug:      opts.debug,
			AllowOther: opts.allowOther,
		},
	})
	if err != nil {
		return fmt.Errorf("mount %s: %w", mountpoint, err)
	}

	log.WithFields(logrus.Fields{
		"mountpoint":  mountpoint,
		"block_size":  opts.cfg.BlockSize,
		"block_count": opts.cfg.BlockCount,
		"inode_count": opts.cfg.InodeCount,
	}).Info("mounted")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info("signal received, unmounting")
		if err := server.Unmount(); err != nil {
			log.WithError(err).Error("unmount failed")
		}
	}()

	server.Wait()
	return nil
}
