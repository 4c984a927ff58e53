package db

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/zen2281488/gayOfDay/contest"
)

func TestLedgerSettleOnce(t *testing.T) {
	l := &Ledger{DB: openTestDB(t)}
	ctx := context.Background()

	v := contest.Verdict{ChatID: "chan", Day: "2024-03-01", WinnerID: 42, Reason: "loudest"}
	if err := l.Settle(ctx, v); err != nil {
		t.Fatalf("Settle: %v", err)
	}
	v2 := v
	v2.WinnerID = 43
	if err := l.Settle(ctx, v2); !errors.Is(err, contest.ErrAlreadySettled) {
		t.Fatalf("second Settle = %v, want ErrAlreadySettled", err)
	}

	got, err := l.GetVerdict(ctx, "chan", "2024-03-01")
	if err != nil || got == nil {
		t.Fatalf("GetVerdict = %v, %v", got, err)
	}
	if got.WinnerID != 42 || got.Reason != "loudest" || got.Day != "2024-03-01" {
		t.Errorf("verdict = %+v", got)
	}
	if id, ok, _ := l.PreviousWinner(ctx, "chan"); !ok || id != 42 {
		t.Errorf("PreviousWinner = %d,%v; the conflicting settle must not move the hint", id, ok)
	}
	if miss, err := l.GetVerdict(ctx, "chan", "2024-03-02"); err != nil || miss != nil {
		t.Errorf("missing verdict = %v, %v", miss, err)
	}
}

func TestLedgerConcurrentSettle(t *testing.T) {
	l := &Ledger{DB: openTestDB(t)}
	ctx := context.Background()

	var ok, conflicts atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := l.Settle(ctx, contest.Verdict{ChatID: "race", Day: "2024-05-05", WinnerID: int64(100 + i), Reason: "r"})
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, contest.ErrAlreadySettled):
				conflicts.Add(1)
			default:
				t.Errorf("Settle: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if ok.Load() != 1 || conflicts.Load() != 11 {
		t.Fatalf("settled %d, conflicts %d", ok.Load(), conflicts.Load())
	}
	vs, err := l.Verdicts(ctx, "race")
	if err != nil || len(vs) != 1 {
		t.Fatalf("Verdicts = %v, %v", vs, err)
	}
	if id, _, _ := l.PreviousWinner(ctx, "race"); id != vs[0].WinnerID {
		t.Errorf("last winner %d does not match verdict %d", id, vs[0].WinnerID)
	}
}

func TestLedgerResetAllowsResettle(t *testing.T) {
	l := &Ledger{DB: openTestDB(t)}
	ctx := context.Background()

	_ = l.Settle(ctx, contest.Verdict{ChatID: "c", Day: "2024-06-01", WinnerID: 1})
	removed, err := l.DeleteVerdict(ctx, "c", "2024-06-01")
	if err != nil || !removed {
		t.Fatalf("DeleteVerdict = %v, %v", removed, err)
	}
	if removed, _ := l.DeleteVerdict(ctx, "c", "2024-06-01"); removed {
		t.Error("second delete reported a removal")
	}
	if err := l.Settle(ctx, contest.Verdict{ChatID: "c", Day: "2024-06-01", WinnerID: 2}); err != nil {
		t.Fatalf("re-settle: %v", err)
	}
	if id, _, _ := l.PreviousWinner(ctx, "c"); id != 2 {
		t.Errorf("PreviousWinner = %d, want 2", id)
	}
}

func TestLedgerPreviousWinnerFallsBackToVerdicts(t *testing.T) {
	db := openTestDB(t)
	l := &Ledger{DB: db}
	ctx := context.Background()

	if _, ok, err := l.PreviousWinner(ctx, "fresh"); err != nil || ok {
		t.Fatalf("fresh chat PreviousWinner ok=%v err=%v", ok, err)
	}
	_ = l.Settle(ctx, contest.Verdict{ChatID: "old", Day: "2024-01-01", WinnerID: 5})
	_ = l.Settle(ctx, contest.Verdict{ChatID: "old", Day: "2024-01-03", WinnerID: 6})
	if _, err := db.ExecContext(ctx, `DELETE FROM last_winners`); err != nil {
		t.Fatal(err)
	}
	if id, ok, err := l.PreviousWinner(ctx, "old"); err != nil || !ok || id != 6 {
		t.Errorf("PreviousWinner = %d,%v,%v want latest verdict 6", id, ok, err)
	}
}

func TestLedgerTriggers(t *testing.T) {
	l := &Ledger{DB: openTestDB(t)}
	ctx := context.Background()

	if err := l.SetDailyTrigger(ctx, "a", "09:00"); err != nil {
		t.Fatal(err)
	}
	_ = l.SetDailyTrigger(ctx, "b", "09:00")
	_ = l.SetDailyTrigger(ctx, "b", "10:30")

	at9, err := l.DailyTriggersAt(ctx, "09:00")
	if err != nil || len(at9) != 1 || at9[0].ChatID != "a" {
		t.Fatalf("DailyTriggersAt(09:00) = %v, %v", at9, err)
	}

	if err := l.SetLeaderboardTrigger(ctx, "a", 31, "21:00"); err != nil {
		t.Fatal(err)
	}
	if err := l.MarkLeaderboardFired(ctx, "a", "2024-11"); err != nil {
		t.Fatal(err)
	}
	lb, _ := l.LeaderboardTriggersAt(ctx, "21:00")
	if len(lb) != 1 || lb[0].LastFiredMonth != "2024-11" || lb[0].DayOfMonth != 31 {
		t.Fatalf("LeaderboardTriggersAt = %+v", lb)
	}
	// reconfiguring re-arms the month
	_ = l.SetLeaderboardTrigger(ctx, "a", 15, "21:00")
	lb, _ = l.LeaderboardTriggersAt(ctx, "21:00")
	if lb[0].LastFiredMonth != "" || lb[0].DayOfMonth != 15 {
		t.Errorf("after reconfigure = %+v", lb[0])
	}
	if err := l.SetLeaderboardTrigger(ctx, "a", 32, "21:00"); err == nil {
		t.Error("day 32 accepted")
	}

	daily, monthly, err := l.Triggers(ctx)
	if err != nil || len(daily) != 2 || len(monthly) != 1 {
		t.Fatalf("Triggers = %v %v %v", daily, monthly, err)
	}
	if removed, _ := l.ClearDailyTrigger(ctx, "b"); !removed {
		t.Error("ClearDailyTrigger(b) removed nothing")
	}
	if removed, _ := l.ClearLeaderboardTrigger(ctx, "zzz"); removed {
		t.Error("ClearLeaderboardTrigger on unknown chat removed something")
	}
}
