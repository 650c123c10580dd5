package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/nhle/unibox/internal/model"
)

const catalogInsert = `
	INSERT INTO catalog_entries (
		id, user_id, name, sku, description, price, category, available, metadata, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// CreateCatalogEntry inserts one catalog entry for a user.
func (s *SQLStore) CreateCatalogEntry(ctx context.Context, entry *model.CatalogEntry) error {
	if err := s.prepareEntry(entry); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, s.q(catalogInsert), catalogArgs(entry)...)
	if err != nil {
		return fmt.Errorf("creating catalog entry %q: %w", entry.Name, err)
	}
	return nil
}

// ListCatalog returns all of a user's catalog entries ordered by name.
func (s *SQLStore) ListCatalog(ctx context.Context, userID string) ([]model.CatalogEntry, error) {
	var entries []model.CatalogEntry
	err := s.db.SelectContext(ctx, &entries, s.q(`
		SELECT id, user_id, name, sku, description, price, category, available, metadata, created_at
		FROM catalog_entries WHERE user_id = ? ORDER BY name, id`), userID)
	if err != nil {
		return nil, fmt.Errorf("listing catalog for user %s: %w", userID, err)
	}
	return entries, nil
}

// ReplaceCatalog atomically swaps a user's catalog for entries.
func (s *SQLStore) ReplaceCatalog(ctx context.Context, userID string, entries []model.CatalogEntry) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, tx.Rebind(
		"DELETE FROM catalog_entries WHERE user_id = ?"), userID); err != nil {
		return fmt.Errorf("clearing catalog for user %s: %w", userID, err)
	}

	stmt, err := tx.PreparexContext(ctx, tx.Rebind(catalogInsert))
	if err != nil {
		return fmt.Errorf("preparing catalog insert: %w", err)
	}
	defer stmt.Close()

	for i := range entries {
		entry := &entries[i]
		entry.UserID = userID
		if err := s.prepareEntry(entry); err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, catalogArgs(entry)...); err != nil {
			return fmt.Errorf("inserting catalog entry %q: %w", entry.Name, err)
		}
	}

	return tx.Commit()
}

func (s *SQLStore) prepareEntry(entry *model.CatalogEntry) error {
	if strings.TrimSpace(entry.Name) == "" {
		return fmt.Errorf("catalog entry name must not be empty")
	}
	if entry.UserID == "" {
		return fmt.Errorf("catalog entry user id must not be empty")
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	entry.CreatedAt = s.now().UTC()
	return nil
}

func catalogArgs(e *model.CatalogEntry) []any {
	return []any{
		e.ID, e.UserID, e.Name, e.SKU, e.Description, nullFloat(e.Price),
		e.Category, boolToInt(e.Available), e.Metadata, e.CreatedAt,
	}
}
