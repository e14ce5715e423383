package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

// CategoryRow mirrors the categories table.
type CategoryRow struct {
	CategoryID string `bigquery:"category_id"`
	Name       string `bigquery:"name"`
}

// CategoryRepository reads the shared category taxonomy.
type CategoryRepository struct {
	store *Store
}

// NewCategoryRepository creates a CategoryRepository sharing the store's
// client.
func NewCategoryRepository(store *Store) *CategoryRepository {
	return &CategoryRepository{store: store}
}

// ListCategoryNames returns all category names, used to steer the extraction
// model toward known categories.
func (r *CategoryRepository) ListCategoryNames(ctx context.Context) ([]string, error) {
	q := r.store.client.Query(fmt.Sprintf(`
		SELECT name
		FROM %s
		ORDER BY name ASC
	`, r.store.table(categoriesTable)))

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("bigquery: querying categories: %w", err)
	}

	var names []string
	for {
		var row CategoryRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("bigquery: reading category row: %w", err)
		}
		names = append(names, row.Name)
	}
	return names, nil
}

// FindCategoryIDByName resolves a category name to its identifier. Returns an
// empty string when the name is unknown.
func (r *CategoryRepository) FindCategoryIDByName(ctx context.Context, name string) (string, error) {
	q := r.store.client.Query(fmt.Sprintf(`
		SELECT category_id
		FROM %s
		WHERE LOWER(name) = LOWER(@name)
		LIMIT 1
	`, r.store.table(categoriesTable)))
	q.Parameters = []bigquery.QueryParameter{{Name: "name", Value: name}}

	it, err := q.Read(ctx)
	if err != nil {
		return "", fmt.Errorf("bigquery: querying category by name: %w", err)
	}

	var row CategoryRow
	err = it.Next(&row)
	if err == iterator.Done {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("bigquery: reading category row: %w", err)
	}
	return row.CategoryID, nil
}
