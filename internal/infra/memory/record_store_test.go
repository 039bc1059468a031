package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"quiz-battle/internal/app"
	"quiz-battle/internal/domain"
)

func TestRecordStoreSubmissionIsWriteOnce(t *testing.T) {
	ctx := context.Background()
	store := NewRecordStore()
	store.PutContest(sampleContest())

	first := domain.Submission{ContestID: "contest-1", UserID: "u1", QuestionID: "q1", OptionIDs: []string{"q1o2"}, Score: 10}
	if err := store.CreateSubmissionIfAbsent(ctx, first); err != nil {
		t.Fatalf("first submission: %v", err)
	}
	second := first
	second.Score = 0
	if err := store.CreateSubmissionIfAbsent(ctx, second); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	subs, _ := store.FindSubmissions(ctx, "contest-1", "q1")
	if len(subs) != 1 || subs[0].Score != 10 {
		t.Fatalf("expected original submission kept, got %+v", subs)
	}
}

func TestRecordStoreConditionalStatusUpdate(t *testing.T) {
	ctx := context.Background()
	store := NewRecordStore()
	store.PutContest(sampleContest())

	rows, _ := store.UpdateContestStatusIf(ctx, "contest-1", domain.StatusFinished, domain.StatusFinished)
	if rows != 1 {
		t.Fatalf("expected first update to affect 1 row, got %d", rows)
	}
	rows, _ = store.UpdateContestStatusIf(ctx, "contest-1", domain.StatusFinished, domain.StatusFinished)
	if rows != 0 {
		t.Fatalf("expected second update to affect 0 rows, got %d", rows)
	}
	rows, _ = store.UpdateContestStatusIf(ctx, "missing", domain.StatusFinished, domain.StatusFinished)
	if rows != 0 {
		t.Fatalf("expected missing contest to affect 0 rows, got %d", rows)
	}
}

func TestRecordStoreInTxRollsBack(t *testing.T) {
	ctx := context.Background()
	store := NewRecordStore()
	store.PutContest(sampleContest())

	boom := errors.New("boom")
	err := store.InTx(ctx, func(tx app.FinalizeTx) error {
		if _, err := tx.UpdateContestStatusIf(ctx, "contest-1", domain.StatusFinished, domain.StatusFinished); err != nil {
			return err
		}
		_ = tx.UpsertResult(ctx, domain.Result{ContestID: "contest-1", UserID: "u1", FinalScore: 3, Rank: 1})
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	status, _ := store.GetContestStatus(ctx, "contest-1")
	if status != domain.StatusPublished {
		t.Fatalf("expected status unchanged, got %s", status)
	}
	if results, _ := store.ListResults(ctx, "contest-1"); len(results) != 0 {
		t.Fatalf("expected no results, got %+v", results)
	}
}

func TestRecordStorePromotions(t *testing.T) {
	ctx := context.Background()
	store := NewRecordStore()
	contest := sampleContest()
	store.PutContest(contest)
	start := contest.StartTime

	if n, _ := store.PromoteWaiting(ctx, start.Add(-time.Minute)); n != 0 {
		t.Fatalf("expected nothing inside lead window yet, got %d", n)
	}
	if n, _ := store.PromoteWaiting(ctx, start); n != 1 {
		t.Fatalf("expected promotion to waiting, got %d", n)
	}
	if n, _ := store.PromoteLive(ctx, start.Add(-time.Second)); n != 0 {
		t.Fatalf("expected no live promotion before start, got %d", n)
	}
	if n, _ := store.PromoteLive(ctx, start); n != 1 {
		t.Fatalf("expected promotion to live, got %d", n)
	}

	end := contest.EndTime()
	if ids, _ := store.ListEnded(ctx, end.Add(-time.Millisecond)); len(ids) != 0 {
		t.Fatalf("expected nothing ended yet, got %v", ids)
	}
	if ids, _ := store.ListEnded(ctx, end); len(ids) != 1 || ids[0] != "contest-1" {
		t.Fatalf("expected contest-1 ended, got %v", ids)
	}
}

func TestRecordStoreAddParticipantIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewRecordStore()
	store.PutContest(sampleContest())

	for i := 0; i < 2; i++ {
		if err := store.AddParticipant(ctx, "contest-1", "u1"); err != nil {
			t.Fatalf("add participant: %v", err)
		}
	}
	if got := store.Participants("contest-1"); len(got) != 1 {
		t.Fatalf("expected one participant, got %+v", got)
	}
	if err := store.AddParticipant(ctx, "missing", "u1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for missing contest, got %v", err)
	}
}
