package orgunit

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
)

var (
	ErrSourceRefInvalid  = errors.New("source_ref_invalid")
	ErrSourceRefNotFound = errors.New("source_ref_not_found")
	ErrGeometryType      = errors.New("geometry_type_unsupported")
)

const maxSourceRefLen = 255

func NormalizeSourceRef(input string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" || utf8.RuneCountInString(trimmed) > maxSourceRefLen {
		return "", ErrSourceRefInvalid
	}
	return trimmed, nil
}

// ResolveIDBySourceRef maps an external identifier to an org unit id inside one source version.
func ResolveIDBySourceRef(ctx context.Context, tx pgx.Tx, versionID int64, sourceRef string) (int64, error) {
	normalized, err := NormalizeSourceRef(sourceRef)
	if err != nil {
		return 0, err
	}
	var id int64
	if err := tx.QueryRow(ctx, `
SELECT id
FROM iaso.org_units
WHERE version_id = $1::bigint AND source_ref = $2::text
ORDER BY id ASC
LIMIT 1
`, versionID, normalized).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrSourceRefNotFound
		}
		return 0, err
	}
	return id, nil
}
