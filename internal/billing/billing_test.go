package billing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-support-chat/internal/domain"
	"github.com/tbourn/go-support-chat/internal/repo"
	"github.com/tbourn/go-support-chat/internal/usage"
)

func newBillingDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func subscription(t *testing.T, db *gorm.DB, tenantID string) domain.Subscription {
	t.Helper()
	var s domain.Subscription
	if err := db.First(&s, "tenant_id = ?", tenantID).Error; err != nil {
		t.Fatalf("load subscription: %v", err)
	}
	return s
}

func countEvents(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&domain.WebhookEvent{}).Count(&n).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	return n
}

func TestProcess_RepeatedDeliveryAppliesOnce(t *testing.T) {
	db := newBillingDB(t)
	rec := NewRecorder(db, usage.New(db))
	ctx := context.Background()

	db.Create(&domain.Subscription{TenantID: "t1", Plan: "starter", MessagesCount: 1500, MessageLimit: 2000, ChatbotLimit: 3})

	start := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	ev := Event{Provider: "generic", ID: "evt_1", Type: TypeUsageReset, RawType: TypeUsageReset, TenantID: "t1",
		PeriodStart: start, PeriodEnd: start.AddDate(0, 1, 0)}

	for k := 1; k <= 4; k++ {
		res, err := rec.Process(ctx, ev, []byte(`{"id":"evt_1"}`))
		if err != nil {
			t.Fatalf("delivery %d: %v", k, err)
		}
		if res.Duplicate != (k > 1) || res.Applied != (k == 1) {
			t.Fatalf("delivery %d: result %+v", k, res)
		}
		if k == 1 {
			// usage accrues between deliveries; a replay must not reset it again
			db.Model(&domain.Subscription{}).Where("tenant_id = ?", "t1").Update("messages_count", 7)
		}
	}
	s := subscription(t, db, "t1")
	if s.MessagesCount != 7 || !s.PeriodStart.Equal(start) {
		t.Fatalf("subscription = %+v", s)
	}
	if n := countEvents(t, db); n != 1 {
		t.Fatalf("recorded events = %d, want 1", n)
	}
}

func TestProcess_ConcurrentDuplicates(t *testing.T) {
	db := newBillingDB(t)
	rec := NewRecorder(db, usage.New(db))
	db.Create(&domain.Subscription{TenantID: "t1", Plan: "free", MessageLimit: 100, ChatbotLimit: 1})

	ev := Event{Provider: "stripe", ID: "evt_c", Type: TypePlanChanged, RawType: "customer.subscription.updated", TenantID: "t1", Plan: "pro"}
	var wg sync.WaitGroup
	var mu sync.Mutex
	applied := 0
	for range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := rec.Process(context.Background(), ev, nil)
			if err != nil {
				t.Errorf("Process: %v", err)
				return
			}
			if res.Applied {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if applied != 1 || countEvents(t, db) != 1 {
		t.Fatalf("applied=%d events=%d", applied, countEvents(t, db))
	}
	if s := subscription(t, db, "t1"); s.Plan != "pro" || s.ChatbotLimit != 10 {
		t.Fatalf("subscription = %+v", s)
	}
}

func TestProcess_SameIDDifferentProvider(t *testing.T) {
	db := newBillingDB(t)
	rec := NewRecorder(db, usage.New(db))
	for _, p := range []string{"stripe", "generic"} {
		res, err := rec.Process(context.Background(), Event{Provider: p, ID: "evt_x", Type: TypeUnrecognised, RawType: "charge.refunded"}, nil)
		if err != nil || res.Duplicate || res.Applied {
			t.Fatalf("%s: %+v %v", p, res, err)
		}
	}
	if n := countEvents(t, db); n != 2 {
		t.Fatalf("events = %d", n)
	}
}

func TestProcess_BlockedDowngradeIsNotRecorded(t *testing.T) {
	db := newBillingDB(t)
	rec := NewRecorder(db, usage.New(db))
	db.Create(&domain.Subscription{TenantID: "t1", Plan: "pro", ChatbotsCount: 4, MessageLimit: 10000, ChatbotLimit: 10})

	ev := Event{Provider: "generic", ID: "evt_down", Type: TypeSubCanceled, RawType: TypeSubCanceled, TenantID: "t1"}
	_, err := rec.Process(context.Background(), ev, nil)
	var pce *usage.PlanChangeError
	if !errors.As(err, &pce) || pce.To != usage.PlanFree || pce.Current != 4 || pce.Limit != 1 {
		t.Fatalf("want PlanChangeError, got %v", err)
	}
	if n := countEvents(t, db); n != 0 {
		t.Fatalf("blocked event must not be recorded, got %d", n)
	}
	if s := subscription(t, db, "t1"); s.Plan != "pro" {
		t.Fatalf("plan changed despite rejection: %+v", s)
	}

	db.Model(&domain.Subscription{}).Where("tenant_id = ?", "t1").Update("chatbots_count", 1)
	res, err := rec.Process(context.Background(), ev, nil)
	if err != nil || !res.Applied {
		t.Fatalf("retry after freeing quota: %+v %v", res, err)
	}
	if s := subscription(t, db, "t1"); s.Plan != usage.PlanFree || s.MessageLimit != 100 {
		t.Fatalf("subscription = %+v", s)
	}
}

func TestProcess_CreatesMissingSubscription(t *testing.T) {
	db := newBillingDB(t)
	rec := NewRecorder(db, usage.New(db))
	ev := Event{Provider: "generic", ID: "evt_new", Type: TypePlanChanged, RawType: TypePlanChanged, TenantID: "fresh", Plan: "starter"}
	if _, err := rec.Process(context.Background(), ev, nil); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if s := subscription(t, db, "fresh"); s.Plan != "starter" || s.ChatbotLimit != 3 {
		t.Fatalf("subscription = %+v", s)
	}

	bad := Event{Provider: "generic", ID: "evt_bad", Type: TypePlanChanged, TenantID: "fresh", Plan: "platinum"}
	if _, err := rec.Process(context.Background(), bad, nil); !errors.Is(err, ErrMalformed) {
		t.Fatalf("unknown plan: want ErrMalformed, got %v", err)
	}
}

func TestSweep(t *testing.T) {
	db := newBillingDB(t)
	now := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)
	rec := NewRecorder(db, usage.New(db))
	rec.Now = func() time.Time { return now }

	db.Create(&domain.WebhookEvent{ID: "a", Provider: "p", EventID: "old", EventType: "x", ProcessedAt: now.AddDate(0, 0, -100)})
	db.Create(&domain.WebhookEvent{ID: "b", Provider: "p", EventID: "new", EventType: "x", ProcessedAt: now.AddDate(0, 0, -1)})

	n, err := rec.Sweep(context.Background(), 90*24*time.Hour)
	if err != nil || n != 1 {
		t.Fatalf("Sweep = %d, %v", n, err)
	}
	if countEvents(t, db) != 1 {
		t.Fatalf("want one record left")
	}
}

func TestGenericParser(t *testing.T) {
	g := Generic{Secret: "s3cret"}
	body := []byte(`{"id":"evt_9","type":"plan.changed","tenant_id":"t1","plan":"pro"}`)
	h := http.Header{}
	h.Set("X-Signature", "sha256="+Sign("s3cret", body))

	ev, err := NewParsers(g).Parse("Generic", h, body, time.Now())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if ev.Provider != "generic" || ev.ID != "evt_9" || ev.Type != TypePlanChanged || ev.Plan != "pro" {
		t.Fatalf("event = %+v", ev)
	}

	h.Set("X-Signature", "sha256="+Sign("other", body))
	if _, err := g.Parse(h, body, time.Now()); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("wrong secret: %v", err)
	}
	if _, err := (Generic{}).Parse(h, body, time.Now()); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("empty secret must never verify: %v", err)
	}

	unsigned := []byte(`{"type":"plan.changed","tenant_id":"t1"}`)
	h.Set("X-Signature", Sign("s3cret", unsigned))
	if _, err := g.Parse(h, unsigned, time.Now()); !errors.Is(err, ErrMalformed) {
		t.Fatalf("missing id: %v", err)
	}
	if _, err := NewParsers(g).Parse("paypal", h, body, time.Now()); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("unknown provider: %v", err)
	}
}

func TestStripeParser(t *testing.T) {
	s := Stripe{Secret: "whsec", Tolerance: 5 * time.Minute}
	now := time.Unix(1_760_000_000, 0)
	body := []byte(`{"id":"evt_s","type":"invoice.paid","data":{"object":{"period_start":1759000000,"period_end":1761600000,"metadata":{"tenant_id":"t7"}}}}`)
	sign := func(ts int64) http.Header {
		h := http.Header{}
		stamp := strconv.FormatInt(ts, 10)
		h.Set("Stripe-Signature", "t="+stamp+",v0=zz,v1="+Sign("whsec", []byte(stamp+"."+string(body))))
		return h
	}

	ev, err := s.Parse(sign(now.Unix()), body, now)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if ev.Type != TypeUsageReset || ev.TenantID != "t7" || ev.PeriodStart.Unix() != 1759000000 || ev.RawType != "invoice.paid" {
		t.Fatalf("event = %+v", ev)
	}

	if _, err := s.Parse(sign(now.Add(-10*time.Minute).Unix()), body, now); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("stale timestamp: %v", err)
	}
	if _, err := s.Parse(http.Header{}, body, now); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("missing header: %v", err)
	}

	other := []byte(`{"id":"evt_o","type":"charge.refunded","data":{"object":{}}}`)
	h := http.Header{}
	h.Set("Stripe-Signature", fmt.Sprintf("t=%d,v1=%s", now.Unix(), Sign("whsec", []byte(fmt.Sprintf("%d.%s", now.Unix(), other)))))
	ev, err = s.Parse(h, other, now)
	if err != nil || ev.Type != TypeUnrecognised {
		t.Fatalf("unrecognised type: %+v %v", ev, err)
	}
}
