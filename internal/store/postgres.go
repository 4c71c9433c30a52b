package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Cymoe/Estimate-Wave-App-sub001/pkg/models"
)

// activeJobConstraint is the partial unique index that allows at most one
// pending/processing job per organization.
const activeJobConstraint = "pricing_jobs_one_active_per_org"

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Organizations ---

func (s *PostgresStore) GetDefaultOrganization(ctx context.Context) (*models.Organization, error) {
	var o models.Organization
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, created_at, updated_at FROM organizations WHERE name = 'default' LIMIT 1`,
	).Scan(&o.ID, &o.Name, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get default organization: %w", err)
	}
	return &o, nil
}

func (s *PostgresStore) GetOrganization(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	var o models.Organization
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, created_at, updated_at FROM organizations WHERE id = $1`, id,
	).Scan(&o.ID, &o.Name, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get organization: %w", err)
	}
	return &o, nil
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, organization_id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.OrganizationID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, organization_id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		key.ID, key.OrganizationID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context, orgID uuid.UUID) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, organization_id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE organization_id = $1 AND deleted_at IS NULL ORDER BY created_at DESC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.OrganizationID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID, orgID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND organization_id = $2 AND deleted_at IS NULL`, id, orgID)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Pricing Modes ---

func (s *PostgresStore) CreatePricingMode(ctx context.Context, mode *models.PricingMode) error {
	adjustments, err := json.Marshal(mode.Adjustments)
	if err != nil {
		return fmt.Errorf("marshal adjustments: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO pricing_modes (id, organization_id, name, adjustments, is_preset, use_count, success_count, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		mode.ID, mode.OrganizationID, mode.Name, adjustments, mode.IsPreset,
		mode.UseCount, mode.SuccessCount, mode.CreatedAt, mode.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create pricing mode: %w", err)
	}
	return nil
}

// GetPricingMode returns the mode with the given id when it is a preset or
// belongs to the organization.
func (s *PostgresStore) GetPricingMode(ctx context.Context, id uuid.UUID, orgID uuid.UUID) (*models.PricingMode, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, organization_id, name, adjustments, is_preset, use_count, success_count, created_at, updated_at
		 FROM pricing_modes WHERE id = $1 AND (is_preset OR organization_id = $2)`, id, orgID)
	mode, err := scanPricingMode(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get pricing mode: %w", err)
	}
	return mode, nil
}

func (s *PostgresStore) ListPricingModes(ctx context.Context, orgID uuid.UUID) ([]*models.PricingMode, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, organization_id, name, adjustments, is_preset, use_count, success_count, created_at, updated_at
		 FROM pricing_modes WHERE is_preset OR organization_id = $1
		 ORDER BY is_preset DESC, name ASC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list pricing modes: %w", err)
	}
	defer rows.Close()

	var modes []*models.PricingMode
	for rows.Next() {
		mode, err := scanPricingMode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pricing mode: %w", err)
		}
		modes = append(modes, mode)
	}
	return modes, rows.Err()
}

func (s *PostgresStore) RecordModeUsage(ctx context.Context, id uuid.UUID, success bool) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE pricing_modes
		 SET use_count = use_count + 1,
		     success_count = success_count + CASE WHEN $2 THEN 1 ELSE 0 END,
		     updated_at = NOW()
		 WHERE id = $1`, id, success)
	if err != nil {
		return fmt.Errorf("record mode usage: %w", err)
	}
	return nil
}

// --- Line Items ---

// ListLineItems returns the organization's items. When ids is non-empty, only
// those items are returned, in the order the ids were given (the snapshot
// order of a job); ids that match no row are simply absent from the result.
func (s *PostgresStore) ListLineItems(ctx context.Context, orgID uuid.UUID, ids []uuid.UUID) ([]*models.LineItem, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if len(ids) == 0 {
		rows, err = s.pool.Query(ctx,
			`SELECT id, organization_id, name, category, base_price, floor_price, ceiling_price, price, applied_mode_id, created_at, updated_at
			 FROM line_items WHERE organization_id = $1 ORDER BY created_at ASC, id ASC`, orgID)
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT id, organization_id, name, category, base_price, floor_price, ceiling_price, price, applied_mode_id, created_at, updated_at
			 FROM line_items WHERE organization_id = $1 AND id = ANY($2)`, orgID, ids)
	}
	if err != nil {
		return nil, fmt.Errorf("list line items: %w", err)
	}
	defer rows.Close()

	var items []*models.LineItem
	for rows.Next() {
		var it models.LineItem
		if err := rows.Scan(&it.ID, &it.OrganizationID, &it.Name, &it.Category, &it.BasePrice,
			&it.Floor, &it.Ceiling, &it.Price, &it.AppliedModeID, &it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan line item: %w", err)
		}
		items = append(items, &it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		return items, nil
	}

	// Restore the caller's ordering; ANY($2) returns rows in table order.
	byID := make(map[uuid.UUID]*models.LineItem, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}
	ordered := make([]*models.LineItem, 0, len(items))
	for _, id := range ids {
		if it, ok := byID[id]; ok {
			ordered = append(ordered, it)
		}
	}
	return ordered, nil
}

func (s *PostgresStore) GetLineItem(ctx context.Context, id uuid.UUID, orgID uuid.UUID) (*models.LineItem, error) {
	var it models.LineItem
	err := s.pool.QueryRow(ctx,
		`SELECT id, organization_id, name, category, base_price, floor_price, ceiling_price, price, applied_mode_id, created_at, updated_at
		 FROM line_items WHERE id = $1 AND organization_id = $2`, id, orgID,
	).Scan(&it.ID, &it.OrganizationID, &it.Name, &it.Category, &it.BasePrice,
		&it.Floor, &it.Ceiling, &it.Price, &it.AppliedModeID, &it.CreatedAt, &it.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get line item: %w", err)
	}
	return &it, nil
}

func (s *PostgresStore) SetLineItemPrice(ctx context.Context, id uuid.UUID, orgID uuid.UUID, price float64, appliedModeID *uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE line_items SET price = $3, applied_mode_id = $4, updated_at = NOW()
		 WHERE id = $1 AND organization_id = $2`, id, orgID, price, appliedModeID)
	if err != nil {
		if isWriteConflictError(err) {
			return ErrWriteConflict
		}
		return fmt.Errorf("set line item price: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Pricing Jobs ---

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.PricingJob) error {
	snapshot, err := json.Marshal(job.Snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO pricing_jobs (id, organization_id, operation_type, status, mode_id, mode_name,
		                           target_item_ids, snapshot, processed_count, total_count, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		job.ID, job.OrganizationID, job.OperationType, job.Status, job.ModeID, job.ModeName,
		job.TargetItemIDs, snapshot, job.ProcessedCount, job.TotalCount, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == activeJobConstraint {
			return ErrActiveJobExists
		}
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

const jobColumns = `id, organization_id, operation_type, status, mode_id, mode_name,
	target_item_ids, snapshot, processed_count, total_count, result, error_message,
	started_at, completed_at, created_at, updated_at`

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID, orgID uuid.UUID) (*models.PricingJob, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM pricing_jobs WHERE id = $1 AND organization_id = $2`, id, orgID)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) GetLatestJob(ctx context.Context, orgID uuid.UUID) (*models.PricingJob, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM pricing_jobs WHERE organization_id = $1
		 ORDER BY created_at DESC LIMIT 1`, orgID)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get latest job: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) ListActiveJobs(ctx context.Context, orgID uuid.UUID) ([]*models.PricingJob, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM pricing_jobs
		 WHERE organization_id = $1 AND status IN ('pending', 'processing')
		 ORDER BY created_at DESC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list active jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.PricingJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (s *PostgresStore) ListUnfinishedJobs(ctx context.Context) ([]*models.PricingJob, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM pricing_jobs
		 WHERE status IN ('pending', 'processing')
		 ORDER BY organization_id, created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list unfinished jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.PricingJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// UpdateJobProgress upserts the progress counters. It no-ops when the job is
// already terminal or when the update would move the counter backwards, so a
// straggling write racing a complete/fail call cannot corrupt the record.
func (s *PostgresStore) UpdateJobProgress(ctx context.Context, id uuid.UUID, processed, total int) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE pricing_jobs SET processed_count = $2, total_count = $3, updated_at = NOW()
		 WHERE id = $1 AND status IN ('pending', 'processing') AND processed_count <= $2`,
		id, processed, total)
	if err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateJobStatus(ctx context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) error {
	params := &jobUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}

	var currentStatus string
	err := s.pool.QueryRow(ctx, `SELECT status FROM pricing_jobs WHERE id = $1`, id).Scan(&currentStatus)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get job status: %w", err)
	}

	if !transitionAllowed(currentStatus, status) {
		return fmt.Errorf("invalid job status transition: %s -> %s", currentStatus, status)
	}

	query := `UPDATE pricing_jobs SET status = $2, updated_at = NOW()`
	args := []any{id, status}
	argIdx := 3

	if status == models.JobStatusProcessing {
		query += ", started_at = NOW()"
	}
	if status == models.JobStatusCompleted || status == models.JobStatusFailed {
		query += ", completed_at = NOW()"
	}
	if params.ErrorMessage != nil {
		query += fmt.Sprintf(", error_message = $%d", argIdx)
		args = append(args, *params.ErrorMessage)
		argIdx++
	}
	if params.Result != nil {
		result, err := json.Marshal(params.Result)
		if err != nil {
			return fmt.Errorf("marshal job result: %w", err)
		}
		query += fmt.Sprintf(", result = $%d", argIdx)
		args = append(args, result)
		argIdx++
	}

	query += ` WHERE id = $1 AND status = $` + fmt.Sprint(argIdx)
	args = append(args, currentStatus)

	_, err = s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	return nil
}

// --- scan helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPricingMode(row rowScanner) (*models.PricingMode, error) {
	var (
		m           models.PricingMode
		adjustments []byte
	)
	if err := row.Scan(&m.ID, &m.OrganizationID, &m.Name, &adjustments, &m.IsPreset,
		&m.UseCount, &m.SuccessCount, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(adjustments, &m.Adjustments); err != nil {
		return nil, fmt.Errorf("unmarshal adjustments: %w", err)
	}
	return &m, nil
}

func scanJob(row rowScanner) (*models.PricingJob, error) {
	var (
		j        models.PricingJob
		snapshot []byte
		result   []byte
	)
	if err := row.Scan(&j.ID, &j.OrganizationID, &j.OperationType, &j.Status, &j.ModeID, &j.ModeName,
		&j.TargetItemIDs, &snapshot, &j.ProcessedCount, &j.TotalCount, &result, &j.ErrorMessage,
		&j.StartedAt, &j.CompletedAt, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	if len(snapshot) > 0 {
		if err := json.Unmarshal(snapshot, &j.Snapshot); err != nil {
			return nil, fmt.Errorf("unmarshal snapshot: %w", err)
		}
	}
	if len(result) > 0 {
		if err := json.Unmarshal(result, &j.Result); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
	}
	return &j, nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

// isWriteConflictError checks for rejected writes: serialization failures
// from concurrent transactions and check-constraint violations.
func isWriteConflictError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "23514"
	}
	return false
}
