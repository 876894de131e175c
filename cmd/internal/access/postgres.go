package access

import (
	"context"
	"errors"
	"regexp"
	"strings"

	authapi "tasklane/cmd/internal/auth/api"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresVerifier checks membership via <schema>.project_members.
// Used when the coordinator runs next to the project database instead of calling the REST API.
type PostgresVerifier struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures PostgresVerifier behavior.
type PostgresOption func(*PostgresVerifier) error

// WithSchema sets the DB schema (default: "tasklane").
func WithSchema(schema string) PostgresOption {
	return func(v *PostgresVerifier) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("access: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("access: invalid schema identifier")
		}
		v.schema = schema
		return nil
	}
}

// NewPostgresVerifier constructs a verifier backed by PostgreSQL.
func NewPostgresVerifier(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresVerifier, error) {
	v := &PostgresVerifier{
		pool:   pool,
		schema: "tasklane",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(v); err != nil {
			return nil, err
		}
	}
	if v.pool == nil {
		return nil, errors.New("access: nil pool")
	}
	return v, nil
}

// CanAccessProject reports whether rc.UserID is an active member of projectID.
func (v *PostgresVerifier) CanAccessProject(ctx context.Context, rc authapi.RequestContext, projectID string) (bool, error) {
	if v == nil || v.pool == nil {
		return false, errors.New("access: nil verifier")
	}
	userID := strings.TrimSpace(rc.UserID)
	projectID = strings.TrimSpace(projectID)
	if userID == "" || projectID == "" {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	members := pgIdent(v.schema, "project_members")

	var one int
	err := v.pool.QueryRow(ctx,
		`SELECT 1 FROM `+members+` WHERE project_id = $1 AND user_id = $2 AND removed_at IS NULL`,
		projectID, userID,
	).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func isValidPGIdent(s string) bool {
	return pgIdentRE.MatchString(s)
}

func pgIdent(schema, table string) string {
	return pgx.Identifier{schema, table}.Sanitize()
}
