package scheduler

import "testing"

func TestValidateCronExpr(t *testing.T) {
	valid := []string{"*/5 * * * *", "0 3 * * 1", "15 */2 * * *"}
	for _, expr := range valid {
		if err := ValidateCronExpr(expr); err != nil {
			t.Errorf("ValidateCronExpr(%q) = %v, want nil", expr, err)
		}
	}

	invalid := []string{"", "   ", "not a cron", "* * * *", "61 * * * *"}
	for _, expr := range invalid {
		if err := ValidateCronExpr(expr); err == nil {
			t.Errorf("ValidateCronExpr(%q) = nil, want error", expr)
		}
	}
}
