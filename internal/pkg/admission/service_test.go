package admission

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/trendit-hq/trendit/app/models"
	"github.com/trendit-hq/trendit/internal/pkg/billing"
	"github.com/trendit-hq/trendit/internal/pkg/plans"
	"github.com/trendit-hq/trendit/internal/pkg/ratelimit"
	"github.com/trendit-hq/trendit/internal/pkg/usage"
)

func newTestService(t *testing.T, burstLimit int) (*Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Account{},
		&models.AccountSettings{},
		&models.Subscription{},
		&models.UsageRecord{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := db.Create(&models.Account{ID: 1, Name: "tester", Email: "tester@example.com", Password: "x", Status: models.STATUS_ACTIVE}).Error; err != nil {
		t.Fatalf("seed account: %v", err)
	}

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter := ratelimit.NewLimiter(client, ratelimit.NewMemoryLimiter(), burstLimit)
	return New(billing.NewRepository(db), usage.NewLedgerFromDB(db), limiter, plans.Default()), db
}

func seedSubscription(t *testing.T, db *gorm.DB, tier string, exportsLimit int) {
	t.Helper()

	start := time.Now().UTC().Add(-24 * time.Hour)
	end := time.Now().UTC().Add(24 * time.Hour)
	sub := &models.Subscription{
		AccountID:              1,
		ProviderSubscriptionID: "sub_test",
		Tier:                   tier,
		Status:                 models.SubscriptionStatusActive,
		CurrentPeriodStart:     &start,
		CurrentPeriodEnd:       &end,
		MonthlyAPICallsLimit:   1000,
		MonthlyExportsLimit:    exportsLimit,
		MonthlySentimentLimit:  500,
	}
	if err := db.Create(sub).Error; err != nil {
		t.Fatalf("seed subscription: %v", err)
	}
}

func TestEvaluatePermitsAndRecords(t *testing.T) {
	svc, db := newTestService(t, 20)
	ctx := context.Background()

	dec, err := svc.Evaluate(ctx, 1, "query", models.UsageTypeAPICalls)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !dec.Permitted || dec.Reason != "" {
		t.Fatalf("expected permitted, got %+v", dec)
	}
	if dec.Tier != models.TierFree || dec.Limit != 100 || dec.Used != 1 || dec.Remaining != 99 {
		t.Fatalf("unexpected quota view: %+v", dec)
	}

	var count int64
	db.Model(&models.UsageRecord{}).Where("account_id = ?", 1).Count(&count)
	if count != 1 {
		t.Fatalf("recorded %d usage rows, want 1", count)
	}

	h := dec.Headers()
	if h["X-User-Tier"] != models.TierFree || h["X-RateLimit-Limit"] != "100" || h["X-RateLimit-Remaining"] != "99" {
		t.Fatalf("unexpected headers: %v", h)
	}
	if _, err := time.Parse(time.RFC3339, h["X-RateLimit-Reset"]); err != nil {
		t.Fatalf("reset header not a timestamp: %v", err)
	}
}

func TestEvaluateMonthlyLimitDenied(t *testing.T) {
	svc, db := newTestService(t, 20)
	seedSubscription(t, db, models.TierPro, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		dec, err := svc.Evaluate(ctx, 1, "export", models.UsageTypeExports)
		if err != nil || !dec.Permitted {
			t.Fatalf("request %d: %+v err=%v", i, dec, err)
		}
	}

	dec, err := svc.Evaluate(ctx, 1, "export", models.UsageTypeExports)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if dec.Permitted || dec.Reason != ReasonMonthlyLimit {
		t.Fatalf("expected monthly denial, got %+v", dec)
	}
	if dec.Used != 2 || dec.Limit != 2 || dec.Remaining != 0 {
		t.Fatalf("unexpected denial numbers: %+v", dec)
	}

	// Denied requests leave no trace in the ledger.
	var count int64
	db.Model(&models.UsageRecord{}).Count(&count)
	if count != 2 {
		t.Fatalf("ledger has %d rows after denial, want 2", count)
	}

	h := dec.Headers()
	if h["X-RateLimit-Remaining"] != "0" || h["X-User-Tier"] != models.TierPro {
		t.Fatalf("unexpected denial headers: %v", h)
	}
}

func TestEvaluateBurstLimitDenied(t *testing.T) {
	svc, db := newTestService(t, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		dec, err := svc.Evaluate(ctx, 1, "query", models.UsageTypeAPICalls)
		if err != nil || !dec.Permitted {
			t.Fatalf("request %d: %+v err=%v", i, dec, err)
		}
	}

	dec, err := svc.Evaluate(ctx, 1, "query", models.UsageTypeAPICalls)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if dec.Permitted || dec.Reason != ReasonBurstLimit {
		t.Fatalf("expected burst denial, got %+v", dec)
	}
	if dec.CurrentBurst != 3 || dec.BurstLimit != 3 || dec.RetryAfter <= 0 {
		t.Fatalf("unexpected burst numbers: %+v", dec)
	}

	// Burst denials are rejected before the ledger write.
	var count int64
	db.Model(&models.UsageRecord{}).Count(&count)
	if count != 3 {
		t.Fatalf("ledger has %d rows, want 3", count)
	}

	h := dec.Headers()
	if h["X-RateLimit-Type"] != "burst" || h["X-RateLimit-Window"] != "5_minutes" {
		t.Fatalf("unexpected burst headers: %v", h)
	}
	if h["Retry-After"] == "" || h["Retry-After"] == "0" {
		t.Fatalf("Retry-After must advertise a positive wait: %v", h)
	}
}

func TestEvaluateBurstKeysIndependentPerClass(t *testing.T) {
	svc, _ := newTestService(t, 1)
	ctx := context.Background()

	if dec, _ := svc.Evaluate(ctx, 1, "query", models.UsageTypeAPICalls); !dec.Permitted {
		t.Fatalf("first query denied: %+v", dec)
	}
	if dec, _ := svc.Evaluate(ctx, 1, "query", models.UsageTypeAPICalls); dec.Permitted {
		t.Fatalf("second query should hit the burst cap")
	}
	// A different endpoint class has its own window.
	if dec, _ := svc.Evaluate(ctx, 1, "export", models.UsageTypeExports); !dec.Permitted {
		t.Fatalf("export denied by unrelated query burst: %+v", dec)
	}
}

func TestEvaluateUnlimitedTier(t *testing.T) {
	svc, db := newTestService(t, 20)
	seedSubscription(t, db, models.TierEnterprise, models.UnlimitedUsage)
	ctx := context.Background()

	dec, err := svc.Evaluate(ctx, 1, "export", models.UsageTypeExports)
	if err != nil || !dec.Permitted {
		t.Fatalf("unlimited tier denied: %+v err=%v", dec, err)
	}
	if dec.Remaining != models.UnlimitedUsage {
		t.Fatalf("remaining = %d, want unlimited sentinel", dec.Remaining)
	}

	// Unlimited tiers still write exact ledger rows for billing visibility.
	var count int64
	db.Model(&models.UsageRecord{}).Count(&count)
	if count != 1 {
		t.Fatalf("ledger has %d rows, want 1", count)
	}
}

func TestEvaluateUnknownUsageType(t *testing.T) {
	svc, _ := newTestService(t, 20)

	if _, err := svc.Evaluate(context.Background(), 1, "query", "video_renders"); err == nil {
		t.Fatalf("expected error for unknown usage type")
	}
}

func TestEvaluateUsageRecordCarriesPeriodBounds(t *testing.T) {
	svc, db := newTestService(t, 20)
	seedSubscription(t, db, models.TierPro, 50)

	if _, err := svc.Evaluate(context.Background(), 1, "export", models.UsageTypeExports); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	var rec models.UsageRecord
	if err := db.First(&rec).Error; err != nil {
		t.Fatalf("usage row missing: %v", err)
	}
	if rec.SubscriptionID == nil {
		t.Fatalf("subscription link not stamped")
	}
	if !rec.BillingPeriodEnd.After(rec.BillingPeriodStart) {
		t.Fatalf("bad period bounds: %+v", rec)
	}
	if rec.EndpointClass != "export" || rec.CostUnits != 1 {
		t.Fatalf("unexpected row: %+v", rec)
	}
}
