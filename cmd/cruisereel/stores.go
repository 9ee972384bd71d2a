package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ivlev/cruisereel/internal/journal"
	"github.com/ivlev/cruisereel/internal/source"
	blobstore "github.com/ivlev/cruisereel/internal/store/badger"
	"github.com/ivlev/cruisereel/internal/store/sqlite"
)

// storeFlags select where journals and photo blobs come from: a YAML file or
// the sqlite journal database, and a directory or the badger blob store.
type storeFlags struct {
	journalFile string
	dbPath      string
	photosDir   string
	blobsPath   string
}

func (f *storeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.journalFile, "journal", "", "Journal YAML file")
	cmd.Flags().StringVar(&f.dbPath, "db", "", "Journal database (sqlite)")
	cmd.Flags().StringVar(&f.photosDir, "photos", "", "Photo directory")
	cmd.Flags().StringVar(&f.blobsPath, "blobs", "", "Photo blob store directory (badger)")
}

type stores struct {
	journals journal.Store
	photos   source.PhotoStore
	closers  []func() error
}

func (f *storeFlags) open(ctx context.Context) (*stores, error) {
	s := &stores{}
	switch {
	case f.journalFile != "":
		j, err := journal.ReadFile(f.journalFile)
		if err != nil {
			return nil, err
		}
		s.journals = &journal.FileStore{Journal: j}
	case f.dbPath != "":
		db, err := sqlite.Open(ctx, f.dbPath)
		if err != nil {
			return nil, err
		}
		s.journals = db
		s.closers = append(s.closers, db.Close)
	default:
		return nil, errors.New("one of --journal or --db is required")
	}

	switch {
	case f.photosDir != "":
		dir, err := source.NewDirStore(f.photosDir)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("photo directory: %w", err)
		}
		s.photos = dir
	case f.blobsPath != "":
		blobs, err := blobstore.Open(f.blobsPath)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.photos = blobs
		s.closers = append(s.closers, blobs.Close)
	default:
		s.Close()
		return nil, errors.New("one of --photos or --blobs is required")
	}
	return s, nil
}

func (s *stores) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	s.closers = nil
	return errors.Join(errs...)
}
