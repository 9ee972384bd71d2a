package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ivlev/cruisereel/internal/journal"
	"github.com/ivlev/cruisereel/internal/source"
	blobstore "github.com/ivlev/cruisereel/internal/store/badger"
	"github.com/ivlev/cruisereel/internal/store/sqlite"
)

func newImportCommand(ctx *commandContext) *cobra.Command {
	var journalFile, photosDir, dbPath, blobsPath string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a journal YAML file and its photos into the stores",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ctx.ensureConfig(); err != nil {
				return err
			}
			if journalFile == "" || photosDir == "" || dbPath == "" || blobsPath == "" {
				return errors.New("--journal, --photos, --db and --blobs are required")
			}
			runCtx := cmd.Context()

			j, err := journal.ReadFile(journalFile)
			if err != nil {
				return err
			}
			dir, err := source.NewDirStore(photosDir)
			if err != nil {
				return fmt.Errorf("photo directory: %w", err)
			}

			db, err := sqlite.Open(runCtx, dbPath)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.Import(runCtx, j); err != nil {
				return err
			}

			blobs, err := blobstore.Open(blobsPath)
			if err != nil {
				return err
			}
			defer blobs.Close()

			var stored, missing int
			var size uint64
			for _, id := range source.Dedupe(j.PhotoIDs(), 0) {
				data, err := dir.Get(runCtx, id)
				if errors.Is(err, source.ErrBlobNotFound) {
					fmt.Fprintf(cmd.ErrOrStderr(), "[!] Missing photo %s\n", id)
					missing++
					continue
				}
				if err != nil {
					return err
				}
				if err := blobs.Put(runCtx, id, data); err != nil {
					return err
				}
				stored++
				size += uint64(len(data))
			}

			rows := [][]string{{
				j.Cruise.ID,
				j.Cruise.Name,
				strconv.Itoa(len(j.Entries)),
				strconv.Itoa(stored),
				strconv.Itoa(missing),
				humanize.Bytes(size),
			}}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Cruise", "Name", "Entries", "Photos", "Missing", "Size"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&journalFile, "journal", "", "Journal YAML file")
	cmd.Flags().StringVar(&photosDir, "photos", "", "Photo directory")
	cmd.Flags().StringVar(&dbPath, "db", "", "Journal database (sqlite)")
	cmd.Flags().StringVar(&blobsPath, "blobs", "", "Photo blob store directory (badger)")
	return cmd
}
