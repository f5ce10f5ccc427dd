package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/openlegis/legisrag/internal/model"
)

// SummaryRepo persists per-theme digests produced by the summarization
// pipeline during ingest.
type SummaryRepo struct {
	db *sql.DB
}

func NewSummaryRepo(db *sql.DB) *SummaryRepo {
	return &SummaryRepo{db: db}
}

func (r *SummaryRepo) Save(ctx context.Context, summary *model.ThemeSummary) error {
	temas, err := json.Marshal(summary.Temas)
	if err != nil {
		return err
	}
	destaques, err := json.Marshal(summary.Destaques)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO theme_summaries (theme, resumo, temas, destaques, ctime)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (theme) DO UPDATE SET
			resumo = EXCLUDED.resumo,
			temas = EXCLUDED.temas,
			destaques = EXCLUDED.destaques,
			ctime = EXCLUDED.ctime
	`
	_, err = r.db.ExecContext(ctx, query, summary.Theme, summary.Resumo, temas, destaques, summary.Ctime)
	return err
}

func (r *SummaryRepo) Get(ctx context.Context, theme string) (*model.ThemeSummary, bool, error) {
	const query = `
		SELECT theme, resumo, temas, destaques, ctime
		FROM theme_summaries
		WHERE theme = $1
	`
	row := r.db.QueryRowContext(ctx, query, theme)
	summary, err := scanSummary(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}
	return summary, true, nil
}

func (r *SummaryRepo) List(ctx context.Context) ([]model.ThemeSummary, error) {
	const query = `
		SELECT theme, resumo, temas, destaques, ctime
		FROM theme_summaries
		ORDER BY theme
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.ThemeSummary
	for rows.Next() {
		summary, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *summary)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSummary(row rowScanner) (*model.ThemeSummary, error) {
	var summary model.ThemeSummary
	var temas, destaques []byte
	if err := row.Scan(&summary.Theme, &summary.Resumo, &temas, &destaques, &summary.Ctime); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(temas, &summary.Temas); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(destaques, &summary.Destaques); err != nil {
		return nil, err
	}
	return &summary, nil
}
