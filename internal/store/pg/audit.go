package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"kitahub.org/internal/audit"
)

var _ audit.Store = (*Store)(nil)

func (s *Store) Append(ctx context.Context, e audit.Entry) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	details, err := audit.MarshalDetails(e.Details)
	if err != nil {
		return fmt.Errorf("marshal details: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		insert into audit_log (id, person_id, action, resource_type, resource_id, details, ip_address, user_agent, success, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, e.ID, nullString(e.PersonID), string(e.Action), nullString(e.ResourceType), nullString(e.ResourceID),
		details, nullString(e.IPAddress), nullString(e.UserAgent), e.Success, e.CreatedAt)
	return err
}

func (s *Store) List(ctx context.Context, q audit.Query) ([]audit.Entry, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if !q.From.IsZero() {
		where = append(where, "created_at >= "+arg(q.From))
	}
	if !q.To.IsZero() {
		where = append(where, "created_at < "+arg(q.To))
	}
	if q.Action != "" {
		where = append(where, "action = "+arg(string(q.Action)))
	}
	if q.Success != nil {
		where = append(where, "success = "+arg(*q.Success))
	}

	query := `select id, person_id, action, resource_type, resource_id, details, ip_address, user_agent, success, created_at from audit_log`
	if len(where) > 0 {
		query += " where " + strings.Join(where, " and ")
	}
	query += " order by created_at desc limit " + arg(q.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []audit.Entry
	for rows.Next() {
		var (
			e          audit.Entry
			personID   sql.NullString
			resType    sql.NullString
			resID      sql.NullString
			rawDetails []byte
			ip         sql.NullString
			ua         sql.NullString
		)
		if err := rows.Scan(&e.ID, &personID, &e.Action, &resType, &resID, &rawDetails, &ip, &ua, &e.Success, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.PersonID = personID.String
		e.ResourceType = resType.String
		e.ResourceID = resID.String
		e.IPAddress = ip.String
		e.UserAgent = ua.String
		if len(rawDetails) > 0 {
			d, err := audit.UnmarshalDetails(e.Action, rawDetails)
			if err != nil {
				return nil, fmt.Errorf("decode details for entry %s: %w", e.ID, err)
			}
			e.Details = d
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
