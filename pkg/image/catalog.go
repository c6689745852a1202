package image

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/thesofproject/sof-lmdk/internal/types"
)

// Bucket names for the build catalog.
var (
	// bucketBuilds stores build records keyed by image digest.
	bucketBuilds = []byte("builds")

	// bucketByLibrary indexes the latest digest per library name.
	bucketByLibrary = []byte("by_library")
)

var (
	// ErrCatalogClosed is returned when operating on a closed catalog.
	ErrCatalogClosed = errors.New("catalog closed")

	// ErrBuildNotFound is returned when a record doesn't exist.
	ErrBuildNotFound = errors.New("build not found in catalog")
)

// BuildRecord is one catalog entry describing a signed image that left the
// builder.
type BuildRecord struct {
	Library     string
	Path        string
	Digest      types.Digest
	Fingerprint types.Digest
	Modules     []string
	CreatedAt   time.Time
}

// Catalog is the persistent index of images produced on this machine. It is
// bookkeeping for tooling; the signed images remain the source of truth.
type Catalog struct {
	db     *bolt.DB
	closed bool
}

// OpenCatalog opens or creates a catalog database.
func OpenCatalog(path string) (*Catalog, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketBuilds, bucketByLibrary} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init catalog: %w", err)
	}

	return &Catalog{db: db}, nil
}

// Record stores a build record, replacing any prior record with the same
// digest and updating the per-library index.
func (c *Catalog) Record(rec *BuildRecord) error {
	if c.closed {
		return ErrCatalogClosed
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return fmt.Errorf("encode build record: %w", err)
	}

	return c.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketBuilds).Put(rec.Digest[:], buf.Bytes()); err != nil {
			return err
		}
		return tx.Bucket(bucketByLibrary).Put([]byte(rec.Library), rec.Digest[:])
	})
}

// Get returns the record for an image digest.
func (c *Catalog) Get(digest types.Digest) (*BuildRecord, error) {
	if c.closed {
		return nil, ErrCatalogClosed
	}

	var rec *BuildRecord
	err := c.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketBuilds).Get(digest[:])
		if data == nil {
			return fmt.Errorf("%w: %s", ErrBuildNotFound, digest)
		}
		rec = &BuildRecord{}
		return gob.NewDecoder(bytes.NewReader(data)).Decode(rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Latest returns the most recent record for a library name.
func (c *Catalog) Latest(library string) (*BuildRecord, error) {
	if c.closed {
		return nil, ErrCatalogClosed
	}

	var digest types.Digest
	err := c.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketByLibrary).Get([]byte(library))
		if data == nil {
			return fmt.Errorf("%w: library %q", ErrBuildNotFound, library)
		}
		var err error
		digest, err = types.DigestFromBytes(data)
		return err
	})
	if err != nil {
		return nil, err
	}
	return c.Get(digest)
}

// Builds returns every record, newest first.
func (c *Catalog) Builds() ([]*BuildRecord, error) {
	if c.closed {
		return nil, ErrCatalogClosed
	}

	var records []*BuildRecord
	err := c.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBuilds).ForEach(func(k, v []byte) error {
			rec := &BuildRecord{}
			if err := gob.NewDecoder(bytes.NewReader(v)).Decode(rec); err != nil {
				return err
			}
			records = append(records, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

// Close closes the underlying database.
func (c *Catalog) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.db.Close()
}
