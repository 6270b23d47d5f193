package plans

import (
	"testing"

	"github.com/trendit-hq/trendit/app/models"
)

func TestNormalizeTier(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "free", want: "free"},
		{in: "pro", want: "pro"},
		{in: "enterprise", want: "enterprise"},
		{in: " Enterprise ", want: "enterprise"},
		{in: "invalid", want: "free"},
		{in: "", want: "free"},
	}

	for _, tt := range tests {
		if got := NormalizeTier(tt.in); got != tt.want {
			t.Fatalf("NormalizeTier(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTierRank(t *testing.T) {
	if TierRank("free") >= TierRank("pro") {
		t.Fatalf("expected pro to outrank free")
	}
	if TierRank("pro") >= TierRank("enterprise") {
		t.Fatalf("expected enterprise to outrank pro")
	}
}

func TestLimitFor(t *testing.T) {
	cfg := Default()

	if got := cfg.LimitFor("free", models.UsageTypeAPICalls); got != 100 {
		t.Fatalf("free api_calls limit = %d, want 100", got)
	}
	if got := cfg.LimitFor("enterprise", models.UsageTypeExports); got != models.UnlimitedUsage {
		t.Fatalf("enterprise exports limit = %d, want unlimited sentinel", got)
	}
	if got := cfg.LimitFor("bogus", models.UsageTypeAPICalls); got != 100 {
		t.Fatalf("unknown tier should fall back to free limits, got %d", got)
	}
	if got := cfg.LimitFor("pro", "bogus_type"); got != 0 {
		t.Fatalf("unknown usage type limit = %d, want 0", got)
	}
}

func TestApplySnapshot(t *testing.T) {
	cfg := Default()
	sub := &models.Subscription{}

	cfg.ApplySnapshot(sub, "pro")

	if sub.Tier != models.TierPro {
		t.Fatalf("tier = %q, want pro", sub.Tier)
	}
	if sub.MonthlyAPICallsLimit != 1000 || sub.MonthlyExportsLimit != 50 || sub.MonthlySentimentLimit != 500 {
		t.Fatalf("unexpected limit snapshot: %+v", sub)
	}
	if sub.PlanVersion != cfg.Version {
		t.Fatalf("plan version %q not stamped from config %q", sub.PlanVersion, cfg.Version)
	}
}
