package postgres

import (
	"context"

	"bookstore-orders/internal/domain/books"
	"bookstore-orders/internal/ports"
)

// BooksRepo implements catalog reads using pgx and SQL.
type BooksRepo struct{}

// NewBooksRepo constructs a new BooksRepo.
func NewBooksRepo() ports.BookRepository {
	return &BooksRepo{}
}

// GetByID retrieves a book by its id. Returns pgx.ErrNoRows when absent.
// The pipeline reads the current price here exactly once, when an order line
// snapshots it.
func (r *BooksRepo) GetByID(ctx context.Context, id int64) (*books.Book, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var b books.Book
	err = tx.QueryRow(ctx, `
		SELECT id, title, author, price::numeric*100, created_at
		FROM books
		WHERE id = $1
	`, id).Scan(&b.ID, &b.Title, &b.Author, &b.Price, &b.CreatedAt)
	if err != nil {
		return nil, err
	}

	return &b, nil
}
