package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"renaissance-stewcall/internal/models"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// GuestDirectory resolves wristband codes to guests
type GuestDirectory interface {
	LookupWristbands(ctx context.Context, codes []string) (map[string]models.Guest, error)
}

// GuestRepository wristband/guest directory in PostgreSQL
type GuestRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewGuestRepository creates the guest directory repository
func NewGuestRepository(db *sql.DB, logger *zap.Logger) *GuestRepository {
	return &GuestRepository{
		db:     db,
		logger: logger,
	}
}

// LookupWristbands returns the current guest for each known code.
// Unknown codes are absent from the map.
func (r *GuestRepository) LookupWristbands(ctx context.Context, codes []string) (map[string]models.Guest, error) {
	out := make(map[string]models.Guest)
	if len(codes) == 0 {
		return out, nil
	}

	query := `
		SELECT
			w.code,
			COALESCE(g.first_name || ' ' || g.last_name, ''),
			COALESCE(c.code, '')
		FROM wristbands w
		LEFT JOIN guests g ON g.id = w.guest_id
		LEFT JOIN cabins c ON c.id = g.cabin_id
		WHERE UPPER(w.code) = ANY($1)
	`

	upper := make([]string, 0, len(codes))
	for _, c := range codes {
		upper = append(upper, strings.ToUpper(strings.TrimSpace(c)))
	}

	rows, err := r.db.QueryContext(ctx, query, pq.Array(upper))
	if err != nil {
		return nil, fmt.Errorf("failed to query wristbands: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var g models.Guest
		if err := rows.Scan(&g.WristbandCode, &g.GuestName, &g.CabinCode); err != nil {
			return nil, fmt.Errorf("failed to scan wristband: %w", err)
		}
		g.GuestName = strings.TrimSpace(g.GuestName)
		out[strings.ToUpper(g.WristbandCode)] = g
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate wristbands: %w", err)
	}

	r.logger.Debug("Resolved wristbands",
		zap.Int("requested", len(codes)),
		zap.Int("found", len(out)),
	)
	return out, nil
}
