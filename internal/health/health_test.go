package health

import (
	"context"
	"errors"
	"testing"
)

type fakePinger struct {
	err error
}

func (f fakePinger) Ping(ctx context.Context) error {
	return f.err
}

func TestCheck(t *testing.T) {
	t.Run("healthy database", func(t *testing.T) {
		report := NewChecker(fakePinger{}).Check(context.Background())
		if report.Status != StatusHealthy {
			t.Errorf("expected healthy, got %s", report.Status)
		}
		if report.Components["database"].Status != StatusHealthy {
			t.Errorf("expected healthy database, got %+v", report.Components["database"])
		}
	})

	t.Run("failing database", func(t *testing.T) {
		report := NewChecker(fakePinger{err: errors.New("disk I/O error")}).Check(context.Background())
		if report.Status != StatusUnhealthy {
			t.Errorf("expected unhealthy, got %s", report.Status)
		}
		db := report.Components["database"]
		if db.Status != StatusUnhealthy || db.Error != "disk I/O error" {
			t.Errorf("unexpected component report %+v", db)
		}
	})

	t.Run("no dependencies", func(t *testing.T) {
		report := NewChecker(nil).Check(context.Background())
		if report.Status != StatusHealthy || len(report.Components) != 0 {
			t.Errorf("unexpected report %+v", report)
		}
	})
}

func TestLiveness(t *testing.T) {
	report := NewChecker(fakePinger{err: errors.New("down")}).Liveness()
	if report.Status != StatusHealthy {
		t.Errorf("liveness must not depend on the database, got %s", report.Status)
	}
	if report.Components != nil {
		t.Error("liveness should not include components")
	}
	if report.Timestamp.IsZero() {
		t.Error("expected a timestamp")
	}
}
