// Package sqlstore is a document backend on top of gorm.
//
// Each collection lives in the shared "documents" table; a document body is
// stored as tagged JSON, so timestamps, geo points and references keep their
// types. Multi-id lookups are capped like a hosted document store's "in"
// query: FetchByIDs refuses more than MaxBatch ids.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/unkn0wn-root/doccache/codec"
	"github.com/unkn0wn-root/doccache/document"
	"github.com/unkn0wn-root/doccache/loader"
	"github.com/unkn0wn-root/doccache/serializer"
)

// CollectionField carries the collection id on every fetched document, next
// to document.IDField. Neither is stored in the body.
const CollectionField = "collection"

var (
	ErrTooManyIDs = errors.New("sqlstore: too many ids in one lookup")
	ErrMissingID  = errors.New("sqlstore: document has no id")
)

type row struct {
	Collection string `gorm:"primaryKey;size:255"`
	ID         string `gorm:"primaryKey;size:255"`
	Data       string `gorm:"type:text;not null"`
	UpdatedAt  time.Time
}

func (row) TableName() string { return "documents" }

type Config struct {
	DB         *gorm.DB
	Collection string // required, e.g. "users"
	Database   string // name carried by references built by Doc; default "sqlite"
	MaxBatch   int    // 0 => loader.DefaultMaxBatch
}

type Store struct {
	db         *gorm.DB
	collection string
	database   string
	maxBatch   int
	ser        *serializer.Serializer
}

// Open opens a SQLite database through the pure-Go driver with gorm logging
// silenced.
func Open(dsn string) (*gorm.DB, error) {
	return gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
}

// New migrates the documents table and returns a store for one collection.
func New(cfg Config) (*Store, error) {
	if cfg.DB == nil {
		return nil, errors.New("sqlstore: db is required")
	}
	if cfg.Collection == "" {
		return nil, errors.New("sqlstore: collection is required")
	}
	if err := cfg.DB.AutoMigrate(&row{}); err != nil {
		return nil, fmt.Errorf("sqlstore: migrate: %w", err)
	}
	s := &Store{
		db:         cfg.DB,
		collection: cfg.Collection,
		database:   cfg.Database,
		maxBatch:   cfg.MaxBatch,
	}
	if s.database == "" {
		s.database = "sqlite"
	}
	if s.maxBatch <= 0 {
		s.maxBatch = loader.DefaultMaxBatch
	}
	s.ser = serializer.New(codec.JSON[codec.Tree]{}, s)
	return s, nil
}

func (s *Store) Collection() string { return s.collection }

// Doc returns a reference to the document at path ("<collection>/<id>").
func (s *Store) Doc(path string) document.Ref {
	return document.Ref{Database: s.database, Path: path}
}

// Ref returns a reference to the document id of this store's collection.
func (s *Store) Ref(id string) document.Ref { return s.Doc(s.collection + "/" + id) }

// FetchByIDs returns the documents that exist among ids, in no particular order.
func (s *Store) FetchByIDs(ctx context.Context, ids []string) ([]document.Document, error) {
	if len(ids) > s.maxBatch {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyIDs, len(ids), s.maxBatch)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []row
	err := s.db.WithContext(ctx).
		Where("collection = ? AND id IN ?", s.collection, ids).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]document.Document, 0, len(rows))
	for _, r := range rows {
		doc, err := s.ser.Decode([]byte(r.Data))
		if err != nil {
			return nil, fmt.Errorf("sqlstore: %s/%s: %w", s.collection, r.ID, err)
		}
		doc[document.IDField] = r.ID
		doc[CollectionField] = r.Collection
		out = append(out, doc)
	}
	return out, nil
}

// Put upserts doc. The "id" and "collection" fields are derived from the row
// and are not stored in the body.
func (s *Store) Put(ctx context.Context, doc document.Document) error {
	id, ok := doc.ID()
	if !ok {
		return ErrMissingID
	}
	body := make(document.Document, len(doc))
	for k, v := range doc {
		if k != document.IDField && k != CollectionField {
			body[k] = v
		}
	}
	data, err := s.ser.Encode(body)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row{Collection: s.collection, ID: id, Data: string(data)}).Error
}

func (s *Store) Delete(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).
		Where("collection = ? AND id = ?", s.collection, id).
		Delete(&row{}).Error
}
