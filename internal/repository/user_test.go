package repository

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"tidebase/internal/conn"
	"tidebase/internal/model"
)

func TestUserCreateDefaults(t *testing.T) {
	runner := &fakeRunner{results: []conn.Result{
		{Rows: []map[string]any{{
			"user_id":     int64(7),
			"email":       "a@example.com",
			"username":    "alice",
			"full_name":   "Alice Johnson",
			"is_active":   true,
			"preferences": "{}",
		}}},
	}}
	repo := NewUserRepository(runner)

	u, err := repo.Create(context.Background(), &model.User{
		Email:    "a@example.com",
		Username: "alice",
		FullName: "Alice Johnson",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if u.UserID != 7 || !u.IsActive {
		t.Errorf("unexpected user: %+v", u)
	}

	args := runner.stmts[0].Args
	// No metadata submitted stays NULL, preferences fall back to the empty doc.
	if b, ok := args[3].([]byte); !ok || b != nil {
		t.Errorf("metadata = %v, want nil bytes", args[3])
	}
	if string(args[4].(json.RawMessage)) != "{}" {
		t.Errorf("preferences = %v, want {}", args[4])
	}
}

func TestUserUpdateIsPartial(t *testing.T) {
	runner := &fakeRunner{results: []conn.Result{
		{Rows: []map[string]any{{"user_id": int64(7), "email": "a@example.com"}}},
	}}
	repo := NewUserRepository(runner)

	inactive := false
	if _, err := repo.Update(context.Background(), UserPatch{UserID: 7, IsActive: &inactive}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	sql := runner.stmts[0].SQL
	// Omitted fields must keep their stored values.
	for _, want := range []string{
		"COALESCE(NULLIF($2, ''), email)",
		"COALESCE(NULLIF($3, ''), full_name)",
		"COALESCE($4, is_active)",
		"COALESCE($5, preferences)",
	} {
		if !strings.Contains(sql, want) {
			t.Errorf("update statement missing %q", want)
		}
	}
	if got := runner.stmts[0].Args[3].(*bool); got == nil || *got {
		t.Errorf("is_active arg = %v, want false", got)
	}
	if b, ok := runner.stmts[0].Args[4].([]byte); !ok || b != nil {
		t.Errorf("preferences arg = %v, want nil bytes to keep current", runner.stmts[0].Args[4])
	}
}
