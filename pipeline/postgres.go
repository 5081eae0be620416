package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/aluiziolira/go-scrape-olx/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const cardsTable = "listing_cards"

// PostgresWriter mirrors a run's cards into <schema>.listing_cards.
type PostgresWriter struct {
	pool  *pgxpool.Pool
	table string
	batch int
}

// NewPostgresWriter connects to dsn and makes sure the table exists.
func NewPostgresWriter(ctx context.Context, dsn, schema string) (*PostgresWriter, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	w := &PostgresWriter{
		pool:  pool,
		table: tableName(schema),
		batch: 200,
	}
	if err := w.ensureTable(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return w, nil
}

func tableName(schema string) string {
	return pgx.Identifier{schema, cardsTable}.Sanitize()
}

func (w *PostgresWriter) ensureTable(ctx context.Context) error {
	_, err := w.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+w.table+` (
		run_at        timestamptz NOT NULL,
		position      integer NOT NULL,
		card_id       text,
		card_url      text,
		img_url       text,
		name          text,
		price         double precision,
		currency_unit text NOT NULL,
		state         text,
		PRIMARY KEY (run_at, position)
	)`)
	if err != nil {
		return fmt.Errorf("create %s: %w", w.table, err)
	}
	return nil
}

// Insert writes cards in order, tagged with runAt. Returns the number of rows inserted.
func (w *PostgresWriter) Insert(ctx context.Context, runAt time.Time, cards []*models.Card) (int, error) {
	if len(cards) == 0 {
		return 0, nil
	}

	query := `INSERT INTO ` + w.table + `
		(run_at, position, card_id, card_url, img_url, name, price, currency_unit, state)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (run_at, position) DO NOTHING`

	total := 0
	for i := 0; i < len(cards); i += w.batch {
		j := i + w.batch
		if j > len(cards) {
			j = len(cards)
		}
		b := &pgx.Batch{}
		for pos := i; pos < j; pos++ {
			b.Queue(query, cardArgs(runAt, pos, cards[pos])...)
		}
		br := w.pool.SendBatch(ctx, b)
		for k := i; k < j; k++ {
			tag, err := br.Exec()
			if err != nil {
				_ = br.Close()
				return total, fmt.Errorf("insert card %d: %w", k, err)
			}
			total += int(tag.RowsAffected())
		}
		if err := br.Close(); err != nil {
			return total, err
		}
	}
	return total, nil
}

// Close releases the pool.
func (w *PostgresWriter) Close() {
	w.pool.Close()
}

func cardArgs(runAt time.Time, position int, card *models.Card) []any {
	return []any{
		runAt,
		position,
		card.ID,
		card.URL,
		card.ImageURL,
		card.Name,
		card.Price,
		card.CurrencyUnit,
		card.State,
	}
}
