package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/immodesk/leadengine/internal/domain/model"
)

// Production-safe pragmas applied on open.
const sqlPragmas = `
PRAGMA foreign_keys = ON;
PRAGMA journal_mode = WAL;
PRAGMA busy_timeout = 10000;
PRAGMA synchronous = NORMAL;
`

const sqlSchema = `
CREATE TABLE IF NOT EXISTS leads (
	id                 TEXT PRIMARY KEY,
	tenant_id          TEXT NOT NULL,
	email              TEXT NOT NULL DEFAULT '',
	phone              TEXT NOT NULL DEFAULT '',
	first_name         TEXT NOT NULL DEFAULT '',
	last_name          TEXT NOT NULL DEFAULT '',
	source             TEXT NOT NULL DEFAULT 'OTHER',
	status             TEXT NOT NULL DEFAULT 'NEW',
	time_frame         TEXT NOT NULL DEFAULT '',
	financing_status   TEXT NOT NULL DEFAULT 'NOT_CLARIFIED',
	has_down_payment   INTEGER NOT NULL DEFAULT 0,
	budget_min         REAL NOT NULL DEFAULT 0,
	budget_max         REAL NOT NULL DEFAULT 0,
	preferred_location TEXT NOT NULL DEFAULT '',
	preferred_type     TEXT NOT NULL DEFAULT '',
	notes              TEXT NOT NULL DEFAULT '',
	property_id        TEXT NOT NULL DEFAULT '',
	assigned_user_id   TEXT NOT NULL DEFAULT '',
	message_count      INTEGER NOT NULL DEFAULT 0,
	score              INTEGER NOT NULL DEFAULT 0,
	score_factors      TEXT NOT NULL DEFAULT '[]',
	created_at         INTEGER NOT NULL,
	updated_at         INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_leads_tenant ON leads(tenant_id, status);
CREATE INDEX IF NOT EXISTS idx_leads_email ON leads(tenant_id, email);

CREATE TABLE IF NOT EXISTS lead_activities (
	id          TEXT PRIMARY KEY,
	lead_id     TEXT NOT NULL REFERENCES leads(id),
	type        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	metadata    TEXT NOT NULL DEFAULT '{}',
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_activities_lead ON lead_activities(lead_id, created_at);

CREATE TABLE IF NOT EXISTS properties (
	id            TEXT PRIMARY KEY,
	tenant_id     TEXT NOT NULL,
	title         TEXT NOT NULL DEFAULT '',
	city          TEXT NOT NULL DEFAULT '',
	zip_code      TEXT NOT NULL DEFAULT '',
	property_type TEXT NOT NULL DEFAULT '',
	rooms         REAL NOT NULL DEFAULT 0,
	living_area   REAL NOT NULL DEFAULT 0,
	price         REAL NOT NULL DEFAULT 0,
	sale_price    REAL NOT NULL DEFAULT 0,
	created_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_properties_tenant ON properties(tenant_id, city, zip_code);
`

// SQLStore is the durable Store implementation backed by SQLite.
type SQLStore struct {
	db    *sql.DB
	clock func() time.Time
}

// SQLOption applies a configuration option to the SQLStore.
type SQLOption func(*SQLStore)

// WithSQLClock overrides the store's time source.
func WithSQLClock(clock func() time.Time) SQLOption {
	return func(s *SQLStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// OpenSQLStore opens (and if needed bootstraps) a SQLite-backed store
// at path. Use ":memory:" for an ephemeral database.
func OpenSQLStore(path string, opts ...SQLOption) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	if _, err := db.Exec(sqlPragmas); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if _, err := db.Exec(sqlSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	s := &SQLStore{db: db, clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// CreateLead inserts a new lead record.
func (s *SQLStore) CreateLead(ctx context.Context, lead model.Lead) error {
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = s.clock()
	}
	if lead.UpdatedAt.IsZero() {
		lead.UpdatedAt = lead.CreatedAt
	}
	factors, err := json.Marshal(lead.ScoreFactors)
	if err != nil {
		return fmt.Errorf("marshal score factors: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO leads (
			id, tenant_id, email, phone, first_name, last_name, source, status,
			time_frame, financing_status, has_down_payment, budget_min, budget_max,
			preferred_location, preferred_type, notes, property_id, assigned_user_id,
			message_count, score, score_factors, created_at, updated_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		lead.ID, lead.TenantID, lead.Email, lead.Phone, lead.FirstName, lead.LastName,
		string(lead.Source), string(lead.Status), string(lead.TimeFrame),
		string(lead.FinancingStatus), boolToInt(lead.HasDownPayment),
		lead.BudgetMin, lead.BudgetMax, lead.PreferredLocation, lead.PreferredType,
		lead.Notes, lead.PropertyID, lead.AssignedUserID, lead.MessageCount,
		lead.Score, string(factors), lead.CreatedAt.Unix(), lead.UpdatedAt.Unix(),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE") {
		return ErrDuplicate
	}
	return err
}

const leadColumns = `id, tenant_id, email, phone, first_name, last_name, source, status,
	time_frame, financing_status, has_down_payment, budget_min, budget_max,
	preferred_location, preferred_type, notes, property_id, assigned_user_id,
	message_count, score, score_factors, created_at, updated_at`

// GetLead returns the lead with the given id.
func (s *SQLStore) GetLead(ctx context.Context, id string) (model.Lead, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = ?`, id)
	return scanLead(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLead(row rowScanner) (model.Lead, error) {
	var lead model.Lead
	var source, status, timeFrame, financing, factors string
	var downPayment int
	var created, updated int64
	err := row.Scan(
		&lead.ID, &lead.TenantID, &lead.Email, &lead.Phone, &lead.FirstName,
		&lead.LastName, &source, &status, &timeFrame, &financing, &downPayment,
		&lead.BudgetMin, &lead.BudgetMax, &lead.PreferredLocation,
		&lead.PreferredType, &lead.Notes, &lead.PropertyID, &lead.AssignedUserID,
		&lead.MessageCount, &lead.Score, &factors, &created, &updated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Lead{}, ErrNotFound
	}
	if err != nil {
		return model.Lead{}, fmt.Errorf("scan lead: %w", err)
	}
	lead.Source = model.LeadSource(source)
	lead.Status = model.LeadStatus(status)
	lead.TimeFrame = model.LeadTimeFrame(timeFrame)
	lead.FinancingStatus = model.FinancingStatus(financing)
	lead.HasDownPayment = downPayment != 0
	lead.CreatedAt = time.Unix(created, 0)
	lead.UpdatedAt = time.Unix(updated, 0)
	if err := json.Unmarshal([]byte(factors), &lead.ScoreFactors); err != nil {
		return model.Lead{}, fmt.Errorf("unmarshal score factors: %w", err)
	}
	return lead, nil
}

// UpdateLead applies a partial update to a lead record.
func (s *SQLStore) UpdateLead(ctx context.Context, id string, update model.LeadUpdate) error {
	sets := []string{"updated_at = ?"}
	args := []any{s.clock().Unix()}

	appendSet := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}
	if update.Email != nil {
		appendSet("email", *update.Email)
	}
	if update.Phone != nil {
		appendSet("phone", *update.Phone)
	}
	if update.FirstName != nil {
		appendSet("first_name", *update.FirstName)
	}
	if update.LastName != nil {
		appendSet("last_name", *update.LastName)
	}
	if update.Status != nil {
		appendSet("status", string(*update.Status))
	}
	if update.Score != nil {
		appendSet("score", *update.Score)
	}
	if update.ScoreFactors != nil {
		factors, err := json.Marshal(update.ScoreFactors)
		if err != nil {
			return fmt.Errorf("marshal score factors: %w", err)
		}
		appendSet("score_factors", string(factors))
	}

	args = append(args, id)
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update lead %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListLeads returns leads matching the filter, newest first.
func (s *SQLStore) ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error) {
	where := []string{"1=1"}
	var args []any
	if filter.TenantID != "" {
		where = append(where, "tenant_id = ?")
		args = append(args, filter.TenantID)
	}
	if filter.Email != "" {
		where = append(where, "email = ?")
		args = append(args, filter.Email)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.NotStatus != "" {
		where = append(where, "status != ?")
		args = append(args, string(filter.NotStatus))
	}
	if filter.ExcludeID != "" {
		where = append(where, "id != ?")
		args = append(args, filter.ExcludeID)
	}
	query := `SELECT ` + leadColumns + ` FROM leads WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()

	var out []model.Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, lead)
	}
	return out, rows.Err()
}

// CountLeads counts a tenant's leads, optionally restricted to a status.
func (s *SQLStore) CountLeads(ctx context.Context, tenantID string, status model.LeadStatus) (int, error) {
	query := `SELECT COUNT(*) FROM leads WHERE tenant_id = ?`
	args := []any{tenantID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count leads: %w", err)
	}
	return count, nil
}

// MeanDaysToConvert averages the created-to-updated age of booked leads.
func (s *SQLStore) MeanDaysToConvert(ctx context.Context, tenantID string) (float64, bool, error) {
	var days sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT AVG((updated_at - created_at) / 86400.0)
		FROM leads WHERE tenant_id = ? AND status = ?`,
		tenantID, string(model.StatusBooked)).Scan(&days)
	if err != nil {
		return 0, false, fmt.Errorf("mean days to convert: %w", err)
	}
	if !days.Valid {
		return 0, false, nil
	}
	return days.Float64, true, nil
}

// AppendActivity adds an activity to a lead's event log.
func (s *SQLStore) AppendActivity(ctx context.Context, activity model.LeadActivity) error {
	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = s.clock()
	}
	if activity.Metadata == nil {
		activity.Metadata = map[string]any{}
	}
	metadata, err := json.Marshal(activity.Metadata)
	if err != nil {
		return fmt.Errorf("marshal activity metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO lead_activities (id, lead_id, type, description, metadata, created_at)
		VALUES (?,?,?,?,?,?)`,
		activity.ID, activity.LeadID, string(activity.Type), activity.Description,
		string(metadata), activity.CreatedAt.Unix(),
	)
	if err != nil && strings.Contains(err.Error(), "FOREIGN KEY") {
		return ErrNotFound
	}
	return err
}

func typePlaceholders(types []model.ActivityType) (string, []any) {
	marks := make([]string, len(types))
	args := make([]any, len(types))
	for i, t := range types {
		marks[i] = "?"
		args[i] = string(t)
	}
	return strings.Join(marks, ","), args
}

// ListActivities returns matching activities, newest first.
func (s *SQLStore) ListActivities(ctx context.Context, filter ActivityFilter) ([]model.LeadActivity, error) {
	query := `SELECT a.id, a.lead_id, a.type, a.description, a.metadata, a.created_at
		FROM lead_activities a`
	where := []string{"1=1"}
	var args []any

	if filter.TenantID != "" {
		query += ` JOIN leads l ON l.id = a.lead_id`
		where = append(where, "l.tenant_id = ?")
		args = append(args, filter.TenantID)
	}
	if filter.LeadID != "" {
		where = append(where, "a.lead_id = ?")
		args = append(args, filter.LeadID)
	}
	if len(filter.Types) > 0 {
		marks, typeArgs := typePlaceholders(filter.Types)
		where = append(where, "a.type IN ("+marks+")")
		args = append(args, typeArgs...)
	}
	if !filter.Since.IsZero() {
		where = append(where, "a.created_at >= ?")
		args = append(args, filter.Since.Unix())
	}
	query += ` WHERE ` + strings.Join(where, " AND ") + ` ORDER BY a.created_at DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	var out []model.LeadActivity
	for rows.Next() {
		activity, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, activity)
	}
	return out, rows.Err()
}

func scanActivity(row rowScanner) (model.LeadActivity, error) {
	var activity model.LeadActivity
	var activityType, metadata string
	var created int64
	err := row.Scan(&activity.ID, &activity.LeadID, &activityType,
		&activity.Description, &metadata, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return model.LeadActivity{}, ErrNotFound
	}
	if err != nil {
		return model.LeadActivity{}, fmt.Errorf("scan activity: %w", err)
	}
	activity.Type = model.ActivityType(activityType)
	activity.CreatedAt = time.Unix(created, 0)
	if err := json.Unmarshal([]byte(metadata), &activity.Metadata); err != nil {
		return model.LeadActivity{}, fmt.Errorf("unmarshal activity metadata: %w", err)
	}
	return activity, nil
}

// CountActivities counts a lead's activities of the given types.
func (s *SQLStore) CountActivities(ctx context.Context, leadID string, types []model.ActivityType) (int, error) {
	query := `SELECT COUNT(*) FROM lead_activities WHERE lead_id = ?`
	args := []any{leadID}
	if len(types) > 0 {
		marks, typeArgs := typePlaceholders(types)
		query += ` AND type IN (` + marks + `)`
		args = append(args, typeArgs...)
	}
	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count activities: %w", err)
	}
	return count, nil
}

// FirstActivity returns the earliest activity of the given types.
func (s *SQLStore) FirstActivity(ctx context.Context, leadID string, types []model.ActivityType) (model.LeadActivity, error) {
	query := `SELECT id, lead_id, type, description, metadata, created_at
		FROM lead_activities WHERE lead_id = ?`
	args := []any{leadID}
	if len(types) > 0 {
		marks, typeArgs := typePlaceholders(types)
		query += ` AND type IN (` + marks + `)`
		args = append(args, typeArgs...)
	}
	query += ` ORDER BY created_at ASC LIMIT 1`
	return scanActivity(s.db.QueryRowContext(ctx, query, args...))
}

// CreateProperty inserts a property record.
func (s *SQLStore) CreateProperty(ctx context.Context, property model.Property) error {
	if property.CreatedAt.IsZero() {
		property.CreatedAt = s.clock()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO properties (id, tenant_id, title, city, zip_code, property_type,
			rooms, living_area, price, sale_price, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		property.ID, property.TenantID, property.Title, property.City,
		property.ZipCode, property.PropertyType, property.Rooms,
		property.LivingArea, property.Price, property.SalePrice,
		property.CreatedAt.Unix(),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE") {
		return ErrDuplicate
	}
	return err
}

// GetProperty returns the property with the given id.
func (s *SQLStore) GetProperty(ctx context.Context, id string) (model.Property, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, title, city, zip_code, property_type, rooms,
			living_area, price, sale_price, created_at
		FROM properties WHERE id = ?`, id)

	var p model.Property
	var created int64
	err := row.Scan(&p.ID, &p.TenantID, &p.Title, &p.City, &p.ZipCode,
		&p.PropertyType, &p.Rooms, &p.LivingArea, &p.Price, &p.SalePrice, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Property{}, ErrNotFound
	}
	if err != nil {
		return model.Property{}, fmt.Errorf("scan property: %w", err)
	}
	p.CreatedAt = time.Unix(created, 0)
	return p, nil
}

// ListProperties returns properties matching the filter.
func (s *SQLStore) ListProperties(ctx context.Context, filter PropertyFilter) ([]model.Property, error) {
	where := []string{"1=1"}
	var args []any
	if filter.TenantID != "" {
		where = append(where, "tenant_id = ?")
		args = append(args, filter.TenantID)
	}
	if filter.City != "" {
		where = append(where, "city = ?")
		args = append(args, filter.City)
	}
	if filter.ZipCode != "" {
		where = append(where, "zip_code = ?")
		args = append(args, filter.ZipCode)
	}
	if filter.PropertyType != "" {
		where = append(where, "property_type = ?")
		args = append(args, filter.PropertyType)
	}
	if filter.SoldOnly {
		where = append(where, "sale_price > 0")
	}
	query := `SELECT id, tenant_id, title, city, zip_code, property_type, rooms,
		living_area, price, sale_price, created_at
		FROM properties WHERE ` + strings.Join(where, " AND ") + ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list properties: %w", err)
	}
	defer rows.Close()

	var out []model.Property
	for rows.Next() {
		var p model.Property
		var created int64
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Title, &p.City, &p.ZipCode,
			&p.PropertyType, &p.Rooms, &p.LivingArea, &p.Price, &p.SalePrice,
			&created); err != nil {
			return nil, fmt.Errorf("scan property: %w", err)
		}
		p.CreatedAt = time.Unix(created, 0)
		out = append(out, p)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
