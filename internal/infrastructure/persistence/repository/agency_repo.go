package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/pmajay-coordination/internal/application/port"
	"github.com/garyjia/pmajay-coordination/internal/domain/entity"
	"github.com/garyjia/pmajay-coordination/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// AgencyRepository implements port.AgencyRepository
type AgencyRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewAgencyRepository creates a new agency repository
func NewAgencyRepository(db *sqlite.DB, logger *zap.Logger) port.AgencyRepository {
	return &AgencyRepository{
		db:     db,
		logger: logger,
	}
}

const agencyColumns = `id, name, type, region, chat_open_id, created_at`

// Create adds an agency to the directory. A zero CreatedAt is set to now.
func (r *AgencyRepository) Create(ctx context.Context, agency *entity.Agency) error {
	if agency.ID == "" {
		return fmt.Errorf("agency id is required")
	}
	if !agency.Type.IsValid() {
		return fmt.Errorf("invalid agency type %q", agency.Type)
	}
	if agency.CreatedAt.IsZero() {
		agency.CreatedAt = time.Now()
	}

	query := `INSERT INTO agencies (` + agencyColumns + `) VALUES (?, ?, ?, ?, ?, ?)`
	_, err := r.db.Executor(ctx).ExecContext(ctx, query,
		agency.ID,
		agency.Name,
		string(agency.Type),
		agency.Region,
		agency.ChatOpenID,
		agency.CreatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to create agency", zap.String("agency_id", agency.ID), zap.Error(err))
		return fmt.Errorf("failed to create agency: %w", err)
	}
	return nil
}

// GetByID retrieves an agency by ID
func (r *AgencyRepository) GetByID(ctx context.Context, id string) (*entity.Agency, error) {
	query := `SELECT ` + agencyColumns + ` FROM agencies WHERE id = ?`

	agency, err := scanAgency(r.db.Executor(ctx).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get agency", zap.String("agency_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get agency: %w", err)
	}
	return agency, nil
}

// Find returns the first match by creation order
func (r *AgencyRepository) Find(ctx context.Context, criteria entity.AgencyCriteria) (*entity.Agency, error) {
	matches, err := r.FindAll(ctx, criteria, 1)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}
	return matches[0], nil
}

// FindAll returns up to limit matches. A limit <= 0 returns all of them.
func (r *AgencyRepository) FindAll(ctx context.Context, criteria entity.AgencyCriteria, limit int) ([]*entity.Agency, error) {
	var (
		clauses []string
		args    []interface{}
	)
	if criteria.Type != "" {
		clauses = append(clauses, "type = ?")
		args = append(args, string(criteria.Type))
	}
	if criteria.Region != "" {
		clauses = append(clauses, "region = ?")
		args = append(args, criteria.Region)
	}

	query := `SELECT ` + agencyColumns + ` FROM agencies`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY created_at, id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to find agencies",
			zap.String("type", string(criteria.Type)),
			zap.String("region", criteria.Region),
			zap.Error(err))
		return nil, fmt.Errorf("failed to find agencies: %w", err)
	}
	defer rows.Close()

	var agencies []*entity.Agency
	for rows.Next() {
		agency, err := scanAgency(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agency: %w", err)
		}
		agencies = append(agencies, agency)
	}
	return agencies, rows.Err()
}

func scanAgency(row rowScanner) (*entity.Agency, error) {
	var (
		agency    entity.Agency
		agencyTyp string
	)
	if err := row.Scan(
		&agency.ID,
		&agency.Name,
		&agencyTyp,
		&agency.Region,
		&agency.ChatOpenID,
		&agency.CreatedAt,
	); err != nil {
		return nil, err
	}
	agency.Type = entity.AgencyType(agencyTyp)
	return &agency, nil
}
