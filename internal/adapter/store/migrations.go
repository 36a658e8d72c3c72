package store

import (
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"
	"notesim/internal/domain"
)

// CurrentSchemaVersion is the current on-disk layout of a bolt collection.
// Increment this when making breaking changes to the storage format.
const CurrentSchemaVersion = 1

// SchemaInfo is stored per collection in the collections bucket.
type SchemaInfo struct {
	Version   int    `json:"version"`
	Dimension int    `json:"dimension"`
	Metric    string `json:"metric"`
}

// GetSchemaInfo returns the schema info of a collection, or nil if it does not exist.
func (s *BoltVectorStore) GetSchemaInfo(collection string) (*SchemaInfo, error) {
	var info *SchemaInfo
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		info, err = schemaInfo(tx, collection)
		return err
	})
	return info, err
}

func schemaInfo(tx *bbolt.Tx, collection string) (*SchemaInfo, error) {
	b := tx.Bucket(bucketCollections)
	if b == nil {
		return nil, nil
	}
	data := b.Get([]byte(collection))
	if data == nil {
		return nil, nil
	}
	var info SchemaInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("malformed schema info for %s: %w", collection, err)
	}
	if info.Version == 0 {
		info.Version = 1
	}
	return &info, nil
}

func putSchemaInfo(tx *bbolt.Tx, collection string, info *SchemaInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketCollections).Put([]byte(collection), data)
}

// MigrationResult describes the result of a migration check.
type MigrationResult struct {
	NeedsRebuild bool
	OldVersion   int
	NewVersion   int
	Reason       string
}

// CheckMigration checks whether a collection was written by a newer layout.
func (s *BoltVectorStore) CheckMigration(collection string) (*MigrationResult, error) {
	info, err := s.GetSchemaInfo(collection)
	if err != nil {
		return nil, fmt.Errorf("failed to get schema info: %w", err)
	}
	if info == nil {
		return nil, fmt.Errorf("collection %s not found", collection)
	}

	result := &MigrationResult{
		OldVersion: info.Version,
		NewVersion: CurrentSchemaVersion,
	}
	if info.Version > CurrentSchemaVersion {
		result.NeedsRebuild = true
		result.Reason = fmt.Sprintf("database created by newer version (v%d > v%d)", info.Version, CurrentSchemaVersion)
	}
	return result, nil
}

// Migrate refuses collections this build cannot read.
func (s *BoltVectorStore) Migrate(collection string) error {
	result, err := s.CheckMigration(collection)
	if err != nil {
		return err
	}
	if result.NeedsRebuild {
		return domain.ConfigurationError("bolt migrate", "cannot open collection "+collection+": "+result.Reason, nil)
	}
	return nil
}
