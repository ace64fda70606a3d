package repository

import (
	"context"
	"encoding/json"

	"tidebase/internal/conn"
	"tidebase/internal/model"
)

type UserInterface interface {
	List(ctx context.Context, limit int) ([]model.User, error)
	Create(ctx context.Context, u *model.User) (*model.User, error)
	Update(ctx context.Context, p UserPatch) (*model.User, error)
	Delete(ctx context.Context, userID int64) (int64, error)
}

// UserPatch carries a partial update. Zero-value fields keep the stored value.
type UserPatch struct {
	UserID      int64
	Email       string
	FullName    string
	IsActive    *bool
	Preferences json.RawMessage
}

type UserRepository struct {
	runner Runner
}

func NewUserRepository(runner Runner) *UserRepository {
	return &UserRepository{runner: runner}
}

const userColumns = "user_id, email, username, full_name, created_at, updated_at, is_active, metadata, preferences"

func (r *UserRepository) List(ctx context.Context, limit int) ([]model.User, error) {
	if limit <= 0 {
		limit = 100
	}
	res, err := r.runner.Execute(ctx, conn.Statement{
		Kind: conn.Read,
		SQL:  "SELECT " + userColumns + " FROM ecommerce.users ORDER BY user_id DESC LIMIT $1",
		Args: []any{limit},
	})
	if err != nil {
		return nil, err
	}
	return userRows(res.Rows), nil
}

func (r *UserRepository) Create(ctx context.Context, u *model.User) (*model.User, error) {
	preferences := u.Preferences
	if len(preferences) == 0 {
		preferences = []byte("{}")
	}
	res, err := r.runner.Execute(ctx, conn.Statement{
		Kind: conn.WriteReturning,
		SQL: `INSERT INTO ecommerce.users (email, username, full_name, metadata, preferences)
		      VALUES ($1, $2, $3, $4, $5)
		      RETURNING ` + userColumns,
		Args: []any{u.Email, u.Username, u.FullName, emptyToNil(u.Metadata), preferences},
	})
	if err != nil {
		return nil, err
	}
	rows := userRows(res.Rows)
	if len(rows) == 0 {
		return nil, conn.ErrNoRows
	}
	return &rows[0], nil
}

func (r *UserRepository) Update(ctx context.Context, p UserPatch) (*model.User, error) {
	res, err := r.runner.Execute(ctx, conn.Statement{
		Kind: conn.WriteReturning,
		SQL: `UPDATE ecommerce.users
		         SET email = COALESCE(NULLIF($2, ''), email),
		             full_name = COALESCE(NULLIF($3, ''), full_name),
		             is_active = COALESCE($4, is_active),
		             preferences = COALESCE($5, preferences),
		             updated_at = CURRENT_TIMESTAMP
		       WHERE user_id = $1
		      RETURNING ` + userColumns,
		Args: []any{p.UserID, p.Email, p.FullName, p.IsActive, emptyToNil(p.Preferences)},
	})
	if err != nil {
		return nil, err
	}
	rows := userRows(res.Rows)
	if len(rows) == 0 {
		return nil, conn.ErrNoRows
	}
	return &rows[0], nil
}

func (r *UserRepository) Delete(ctx context.Context, userID int64) (int64, error) {
	res, err := r.runner.Execute(ctx, conn.Statement{
		Kind: conn.Write,
		SQL:  "DELETE FROM ecommerce.users WHERE user_id = $1",
		Args: []any{userID},
	})
	if err != nil {
		return 0, err
	}
	return res.RowsAffected, nil
}

// emptyToNil keeps absent jsonb values as SQL NULL instead of empty strings.
func emptyToNil(j []byte) []byte {
	if len(j) == 0 {
		return nil
	}
	return j
}

func userRows(rows []map[string]any) []model.User {
	out := make([]model.User, 0, len(rows))
	for _, row := range rows {
		out = append(out, model.User{
			UserID:      asInt64(row["user_id"]),
			Email:       asString(row["email"]),
			Username:    asString(row["username"]),
			FullName:    asString(row["full_name"]),
			CreatedAt:   asTime(row["created_at"]),
			UpdatedAt:   asTime(row["updated_at"]),
			IsActive:    asBool(row["is_active"]),
			Metadata:    asRawJSON(row["metadata"]),
			Preferences: asRawJSON(row["preferences"]),
		})
	}
	return out
}
