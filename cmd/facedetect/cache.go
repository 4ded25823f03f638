package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MrCodeEU/facedetect/pkg/logging"
	"github.com/MrCodeEU/facedetect/pkg/storage"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or drop the known-face descriptor cache",
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached known faces",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openCache()
		if err != nil {
			return err
		}

		names, err := store.List()
		if err != nil {
			return err
		}
		if len(names) == 0 {
			fmt.Println("No cached known faces.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSOURCE\tENCODED")
		for _, name := range names {
			known, err := store.Load(name)
			if err != nil {
				logging.WithError(err).WithField("name", name).Warn("Unreadable cache entry")
				fmt.Fprintf(w, "%s\t(unreadable)\t\n", name)
				continue
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", known.Name, known.Source, known.EncodedAt.Format("2006-01-02 15:04:05"))
		}
		return w.Flush()
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear [name...]",
	Short: "Remove cached known faces (all when no name is given)",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openCache()
		if err != nil {
			return err
		}

		if len(args) == 0 {
			n, err := store.Clear()
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d cached known face(s).\n", n)
			return nil
		}

		failed := 0
		for _, name := range args {
			if err := store.Delete(name); err != nil {
				logging.Errorf("Failed to remove %s: %v", name, err)
				failed++
				continue
			}
			fmt.Printf("Removed %s.\n", name)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d cached known face(s) could not be removed", failed, len(args))
		}
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}

func openCache() (*storage.FileStorage, error) {
	return storage.NewFileStorage(cfg.Cache.Dir, cfg.Cache.Encryption)
}
