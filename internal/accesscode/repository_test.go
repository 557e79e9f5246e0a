package accesscode

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"
)

func TestCreateAndGetByCode(t *testing.T) {
	db := testDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	expires := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second)
	code := &AccessCode{
		Code:      "A7K2M9XR4T",
		CodeType:  TypeUser,
		IsActive:  true,
		MaxUses:   intPtr(5),
		ExpiresAt: &expires,
	}
	if err := repo.Create(ctx, code); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := repo.GetByCode(ctx, "A7K2M9XR4T")
	if err != nil {
		t.Fatalf("GetByCode failed: %v", err)
	}
	if got.CodeType != TypeUser {
		t.Errorf("expected code type user, got %s", got.CodeType)
	}
	if !got.IsActive {
		t.Error("expected code to be active")
	}
	if got.MaxUses == nil || *got.MaxUses != 5 {
		t.Errorf("expected max uses 5, got %v", got.MaxUses)
	}
	if got.ExpiresAt == nil || !got.ExpiresAt.Equal(expires) {
		t.Errorf("expected expiry %v, got %v", expires, got.ExpiresAt)
	}
	if got.CurrentUses != 0 {
		t.Errorf("expected zero uses, got %d", got.CurrentUses)
	}
}

func TestCreateRejectsInvalidType(t *testing.T) {
	db := testDB(t)
	repo := NewSQLiteRepository(db)

	err := repo.Create(context.Background(), &AccessCode{Code: "A7K2M9XR4T", CodeType: "root"})
	if !errors.Is(err, ErrInvalidCodeType) {
		t.Errorf("expected ErrInvalidCodeType, got %v", err)
	}
}

func TestGetByCodeNotFound(t *testing.T) {
	db := testDB(t)
	repo := NewSQLiteRepository(db)

	_, err := repo.GetByCode(context.Background(), "ZZZZZZZZZZ")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestExists(t *testing.T) {
	db := testDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	seedCode(t, db, &AccessCode{Code: "A7K2M9XR4T", CodeType: TypeUser, IsActive: false})

	exists, err := repo.Exists(ctx, "A7K2M9XR4T")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if !exists {
		t.Error("expected inactive code to still count as taken")
	}

	exists, err = repo.Exists(ctx, "ZZZZZZZZZZ")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if exists {
		t.Error("expected unknown code to not exist")
	}
}

func TestConsumeTxIncrementsAndStamps(t *testing.T) {
	db := testDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	seedCode(t, db, &AccessCode{Code: "A7K2M9XR4T", CodeType: TypeAdmin, IsActive: true, MaxUses: intPtr(2)})

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("BeginTx failed: %v", err)
	}
	now := time.Now().UTC()
	ac, err := repo.ConsumeTx(ctx, tx, "A7K2M9XR4T", now)
	if err != nil {
		t.Fatalf("ConsumeTx failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	if ac.CurrentUses != 1 {
		t.Errorf("expected current uses 1, got %d", ac.CurrentUses)
	}
	if ac.LastUsedAt == nil {
		t.Error("expected last used timestamp to be stamped")
	}
	if ac.CodeType != TypeAdmin {
		t.Errorf("expected code type admin, got %s", ac.CodeType)
	}
}

func TestConsumeTxUnknownCode(t *testing.T) {
	db := testDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("BeginTx failed: %v", err)
	}
	defer tx.Rollback() //nolint:errcheck // test cleanup

	_, err = repo.ConsumeTx(ctx, tx, "ZZZZZZZZZZ", time.Now().UTC())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestConsumeTxGuards(t *testing.T) {
	past := time.Now().UTC().Add(-time.Hour)

	tests := []struct {
		name string
		code AccessCode
	}{
		{"deactivated", AccessCode{Code: "A7K2M9XR4T", CodeType: TypeUser, IsActive: false}},
		{"expired", AccessCode{Code: "B8M3N7YW5U", CodeType: TypeUser, IsActive: true, ExpiresAt: &past}},
		{"exhausted", AccessCode{Code: "C9N4P8ZT6V", CodeType: TypeUser, IsActive: true, CurrentUses: 1, MaxUses: intPtr(1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := testDB(t)
			repo := NewSQLiteRepository(db)
			ctx := context.Background()
			seedCode(t, db, &tt.code)

			tx, err := db.BeginTx(ctx, nil)
			if err != nil {
				t.Fatalf("BeginTx failed: %v", err)
			}
			defer tx.Rollback() //nolint:errcheck // test cleanup

			_, err = repo.ConsumeTx(ctx, tx, tt.code.Code, time.Now().UTC())
			if !errors.Is(err, ErrNoLongerValid) {
				t.Errorf("expected ErrNoLongerValid, got %v", err)
			}
		})
	}
}

func TestConsumeTxNeverExceedsMaxUses(t *testing.T) {
	db := testDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	seedCode(t, db, &AccessCode{Code: "A7K2M9XR4T", CodeType: TypeUser, IsActive: true, MaxUses: intPtr(3)})

	var succeeded int
	for i := 0; i < 5; i++ {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			t.Fatalf("BeginTx failed: %v", err)
		}
		_, err = repo.ConsumeTx(ctx, tx, "A7K2M9XR4T", time.Now().UTC())
		switch {
		case err == nil:
			succeeded++
			if err := tx.Commit(); err != nil {
				t.Fatalf("Commit failed: %v", err)
			}
		case errors.Is(err, ErrNoLongerValid):
			tx.Rollback() //nolint:errcheck // test cleanup
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if succeeded != 3 {
		t.Errorf("expected exactly 3 successful consumes, got %d", succeeded)
	}

	got, err := repo.GetByCode(ctx, "A7K2M9XR4T")
	if err != nil {
		t.Fatalf("GetByCode failed: %v", err)
	}
	if got.CurrentUses != 3 {
		t.Errorf("expected current uses 3, got %d", got.CurrentUses)
	}
}

func TestDeactivateAndResetUses(t *testing.T) {
	db := testDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	seedCode(t, db, &AccessCode{Code: "A7K2M9XR4T", CodeType: TypeUser, IsActive: true, CurrentUses: 1, MaxUses: intPtr(1)})

	inTx := func(t *testing.T, op func(*sql.Tx) error) {
		t.Helper()
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			t.Fatalf("BeginTx failed: %v", err)
		}
		if err := op(tx); err != nil {
			t.Fatalf("operation failed: %v", err)
		}
		if err := tx.Commit(); err != nil {
			t.Fatalf("Commit failed: %v", err)
		}
	}

	inTx(t, func(tx *sql.Tx) error { return repo.ResetUsesTx(ctx, tx, "A7K2M9XR4T") })

	got, err := repo.GetByCode(ctx, "A7K2M9XR4T")
	if err != nil {
		t.Fatalf("GetByCode failed: %v", err)
	}
	if got.CurrentUses != 0 {
		t.Errorf("expected uses reset to 0, got %d", got.CurrentUses)
	}
	if got.LastUsedAt != nil {
		t.Error("expected last used timestamp cleared")
	}

	inTx(t, func(tx *sql.Tx) error { return repo.DeactivateTx(ctx, tx, "A7K2M9XR4T") })

	got, err = repo.GetByCode(ctx, "A7K2M9XR4T")
	if err != nil {
		t.Fatalf("GetByCode failed: %v", err)
	}
	if got.IsActive {
		t.Error("expected code to be deactivated")
	}
}

func TestAssignUsedByTx(t *testing.T) {
	db := testDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	if _, err := db.Exec(`INSERT INTO principals (id, display_name) VALUES ('prn-11111111', 'Ada')`); err != nil {
		t.Fatalf("failed to seed principal: %v", err)
	}
	seedCode(t, db, &AccessCode{Code: "A7K2M9XR4T", CodeType: TypeUser, IsActive: true})

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("beginning transaction: %v", err)
	}
	if err := repo.AssignUsedByTx(ctx, tx, "A7K2M9XR4T", "prn-11111111"); err != nil {
		t.Fatalf("AssignUsedByTx failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("committing: %v", err)
	}

	got, err := repo.GetByCode(ctx, "A7K2M9XR4T")
	if err != nil {
		t.Fatalf("GetByCode failed: %v", err)
	}
	if got.UsedBy != "prn-11111111" {
		t.Errorf("expected used by prn-11111111, got %s", got.UsedBy)
	}

	tx, err = db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("beginning transaction: %v", err)
	}
	defer tx.Rollback() //nolint:errcheck // cleanup only
	if err := repo.AssignUsedByTx(ctx, tx, "ZZZZZZZZZZ", "prn-11111111"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestList(t *testing.T) {
	db := testDB(t)
	repo := NewSQLiteRepository(db)

	seedCode(t, db, &AccessCode{Code: "A7K2M9XR4T", CodeType: TypeUser, IsActive: true})
	seedCode(t, db, &AccessCode{Code: "B8M3N7YW5U", CodeType: TypeAdmin, IsActive: false})

	codes, err := repo.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(codes) != 2 {
		t.Fatalf("expected 2 codes, got %d", len(codes))
	}
}
