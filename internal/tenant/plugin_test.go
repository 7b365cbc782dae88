package tenant

import (
	"context"
	"errors"
	"testing"

	"grc-core/internal/domain"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.Use(NewPlugin()); err != nil {
		t.Fatalf("use plugin: %v", err)
	}
	if err := db.AutoMigrate(&domain.Tenant{}, &domain.Policy{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	sys := db.WithContext(AsSystem(context.Background()))
	for _, tn := range []domain.Tenant{
		{ID: "t1", Name: "Acme", Subdomain: "acme", Status: domain.TenantActive},
		{ID: "t2", Name: "Globex", Subdomain: "globex", Status: domain.TenantActive},
		{ID: "t3", Name: "Frozen", Subdomain: "frozen", Status: domain.TenantSuspended},
	} {
		tn := tn
		if err := sys.Create(&tn).Error; err != nil {
			t.Fatalf("seed tenant: %v", err)
		}
	}
	return db
}

func seedPolicy(t *testing.T, db *gorm.DB, tenantID, name string) *domain.Policy {
	t.Helper()
	p := &domain.Policy{ID: domain.NewID(), Name: name}
	if err := db.WithContext(WithTenant(context.Background(), tenantID)).Create(p).Error; err != nil {
		t.Fatalf("create policy: %v", err)
	}
	return p
}

func TestPlugin_CreateStampsTenant(t *testing.T) {
	db := openTestDB(t)
	p := seedPolicy(t, db, "t1", "P-A")
	if p.TenantID != "t1" {
		t.Fatalf("tenant not stamped: %q", p.TenantID)
	}
}

func TestPlugin_CreateRejections(t *testing.T) {
	db := openTestDB(t)

	err := db.WithContext(WithTenant(context.Background(), "t1")).
		Create(&domain.Policy{ID: domain.NewID(), TenantID: "t2", Name: "x"}).Error
	if !errors.Is(err, domain.ErrTenantMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}

	err = db.WithContext(context.Background()).Create(&domain.Policy{ID: domain.NewID(), Name: "x"}).Error
	if !errors.Is(err, domain.ErrTenantRequired) {
		t.Fatalf("expected tenant required, got %v", err)
	}

	err = db.WithContext(WithTenant(context.Background(), "t3")).Create(&domain.Policy{ID: domain.NewID(), Name: "x"}).Error
	if !errors.Is(err, domain.ErrTenantRequired) {
		t.Fatalf("suspended tenant must be rejected, got %v", err)
	}

	err = db.WithContext(AsSystem(context.Background())).
		Create(&domain.Policy{ID: domain.NewID(), TenantID: "missing", Name: "x"}).Error
	if !errors.Is(err, domain.ErrTenantRequired) {
		t.Fatalf("unknown tenant must be rejected, got %v", err)
	}
}

func TestPlugin_ReadIsolation(t *testing.T) {
	db := openTestDB(t)
	a := seedPolicy(t, db, "t1", "P-A")
	seedPolicy(t, db, "t1", "P-A2")
	b := seedPolicy(t, db, "t2", "P-B")

	ctx2 := WithTenant(context.Background(), "t2")

	var list []domain.Policy
	if err := db.WithContext(ctx2).Find(&list).Error; err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(list) != 1 || list[0].ID != b.ID {
		t.Fatalf("expected only tenant 2 rows, got %+v", list)
	}

	// Caller supplied OR conditions cannot widen the result.
	list = nil
	err := db.WithContext(ctx2).Where("id = ?", a.ID).Or("name LIKE ?", "P-%").Find(&list).Error
	if err != nil {
		t.Fatalf("find with or: %v", err)
	}
	for _, p := range list {
		if p.TenantID != "t2" {
			t.Fatalf("leaked row from tenant %q", p.TenantID)
		}
	}

	var got domain.Policy
	err = db.WithContext(ctx2).First(&got, "id = ?", a.ID).Error
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("cross-tenant get must miss, got %v", err)
	}

	var n int64
	if err := db.WithContext(ctx2).Model(&domain.Policy{}).Count(&n).Error; err != nil || n != 1 {
		t.Fatalf("count = %d, %v", n, err)
	}
}

func TestPlugin_UnboundReadsFailClosed(t *testing.T) {
	db := openTestDB(t)
	seedPolicy(t, db, "t1", "P-A")

	var list []domain.Policy
	if err := db.WithContext(context.Background()).Find(&list).Error; err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("unbound read returned %d rows", len(list))
	}

	list = nil
	if err := db.WithContext(AsSystem(context.Background())).Find(&list).Error; err != nil {
		t.Fatalf("system find: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("system read should see every row, got %d", len(list))
	}
}

func TestPlugin_UpdateAndDelete(t *testing.T) {
	db := openTestDB(t)
	a := seedPolicy(t, db, "t1", "P-A")
	ctx1 := WithTenant(context.Background(), "t1")
	ctx2 := WithTenant(context.Background(), "t2")

	err := db.WithContext(ctx2).Model(a).Update("name", "hijack").Error
	if !errors.Is(err, domain.ErrTenantMismatch) {
		t.Fatalf("expected mismatch on foreign row update, got %v", err)
	}

	res := db.WithContext(ctx2).Model(&domain.Policy{}).Where("id = ?", a.ID).Update("name", "hijack")
	if res.Error != nil || res.RowsAffected != 0 {
		t.Fatalf("filtered update touched rows: %d %v", res.RowsAffected, res.Error)
	}

	err = db.WithContext(ctx1).Model(a).Updates(map[string]any{"tenant_id": "t2"}).Error
	if !errors.Is(err, domain.ErrTenantMismatch) {
		t.Fatalf("expected mismatch on tenant move, got %v", err)
	}

	if err := db.WithContext(ctx1).Model(a).Update("name", "renamed").Error; err != nil {
		t.Fatalf("own update: %v", err)
	}

	err = db.WithContext(ctx1).Model(&domain.Policy{}).Update("name", "all").Error
	if !errors.Is(err, gorm.ErrMissingWhereClause) {
		t.Fatalf("expected missing where guard, got %v", err)
	}

	if err := db.WithContext(ctx2).Delete(a).Error; !errors.Is(err, domain.ErrTenantMismatch) {
		t.Fatalf("expected mismatch on foreign delete, got %v", err)
	}
	if err := db.WithContext(ctx1).Delete(a).Error; err != nil {
		t.Fatalf("own delete: %v", err)
	}

	var n int64
	db.WithContext(AsSystem(context.Background())).Model(&domain.Policy{}).Count(&n)
	if n != 0 {
		t.Fatalf("expected row deleted, %d remain", n)
	}
}

func TestPlugin_TenantsTableIsNotScoped(t *testing.T) {
	db := openTestDB(t)
	var list []domain.Tenant
	if err := db.WithContext(context.Background()).Find(&list).Error; err != nil {
		t.Fatalf("find tenants: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("tenants lookup must not be filtered, got %d", len(list))
	}
}
