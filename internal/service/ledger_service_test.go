package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/otonoha/academy-backend/internal/model"
)

func newTestLedger(welcome int64) (LedgerService, *fakeStore) {
	s := newFakeStore()
	return NewLedgerService(s, fakePoints{s}, welcome), s
}

// replaySum reconstructs the available balance from the log alone.
func replaySum(s *fakeStore, uid string) int64 {
	var sum int64
	for _, t := range s.txns {
		if t.UserUID == uid {
			sum += t.PointsChange
		}
	}
	return sum
}

func checkAccount(t *testing.T, s *fakeStore, uid string) model.UserPoints {
	t.Helper()
	p, ok := s.accounts[uid]
	if !ok {
		t.Fatalf("no account row for %s", uid)
	}
	if !p.CheckInvariant() {
		t.Fatalf("accounting identity broken: total=%d available=%d used=%d expired=%d",
			p.TotalPoints, p.AvailablePoints, p.UsedPoints, p.ExpiredPoints)
	}
	if got := replaySum(s, uid); got != p.AvailablePoints {
		t.Fatalf("log replay = %d, cached available = %d", got, p.AvailablePoints)
	}
	return p
}

func TestWelcomeGrantOnFirstContact(t *testing.T) {
	ledger, store := newTestLedger(100)
	ctx := context.Background()

	p, err := ledger.Balance(ctx, "student-1")
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if p.AvailablePoints != 100 || p.TotalPoints != 100 {
		t.Errorf("balance = %+v, want 100 available and total", p)
	}
	if len(store.txns) != 1 {
		t.Fatalf("txn count = %d, want 1", len(store.txns))
	}
	first := store.txns[0]
	if first.TransactionType != model.TxEarnEvent || first.SourceType != model.SourceWelcome {
		t.Errorf("welcome entry = %s/%s, want earn_event/welcome_bonus", first.TransactionType, first.SourceType)
	}

	// A second read must not grant again.
	if _, err := ledger.Balance(ctx, "student-1"); err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if len(store.txns) != 1 {
		t.Errorf("second Balance appended a transaction")
	}
	checkAccount(t, store, "student-1")
}

func TestEarnSpendSequence(t *testing.T) {
	ledger, store := newTestLedger(100)
	ctx := context.Background()

	if _, err := ledger.Earn(ctx, "u1", 50, model.TxEarnTask, "practice_task", "practice goal met", nil, nil); err != nil {
		t.Fatalf("Earn: %v", err)
	}
	res, err := ledger.Spend(ctx, "u1", 30, model.SourceGachaDraw, "melody-capsule", "single draw")
	if err != nil {
		t.Fatalf("Spend: %v", err)
	}
	if res.Balance != 120 {
		t.Errorf("balance after spend = %d, want 120", res.Balance)
	}

	p := checkAccount(t, store, "u1")
	if p.TotalPoints != 150 || p.UsedPoints != 30 {
		t.Errorf("account = %+v, want total 150 used 30", p)
	}

	spend, err := fakePoints{store}.FindTransaction(ctx, res.TransactionID)
	if err != nil {
		t.Fatalf("FindTransaction: %v", err)
	}
	if spend.TransactionType != model.TxSpendGacha {
		t.Errorf("spend type = %s, want spend_gacha", spend.TransactionType)
	}
	if spend.PointsChange != -30 || spend.BalanceAfter != 120 {
		t.Errorf("spend entry = change %d after %d, want -30 and 120", spend.PointsChange, spend.BalanceAfter)
	}
}

func TestSpendFromStartingBalance(t *testing.T) {
	ledger, store := newTestLedger(100)
	ctx := context.Background()

	res, err := ledger.Spend(ctx, "u1", 30, model.SourceGachaDraw, "melody-capsule", "single draw")
	if err != nil {
		t.Fatalf("Spend: %v", err)
	}
	if res.Balance != 70 {
		t.Errorf("balance = %d, want 70", res.Balance)
	}
	p := checkAccount(t, store, "u1")
	if p.AvailablePoints != 70 || p.UsedPoints != 30 || p.TotalPoints != 100 {
		t.Errorf("account = %+v, want 70 available, 30 used, 100 total", p)
	}
}

func TestSpendInsufficientBalance(t *testing.T) {
	ledger, store := newTestLedger(20)
	ctx := context.Background()

	_, err := ledger.Spend(ctx, "u1", 30, model.SourceChatMessage, "m1", "chat")
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
	// The rejected spend must leave no trace; the rollback also discards the
	// welcome grant, which the next successful operation re-seeds.
	if len(store.txns) != 0 {
		t.Errorf("failed spend left %d transactions", len(store.txns))
	}
}

func TestEarnRejectsBadInput(t *testing.T) {
	ledger, _ := newTestLedger(0)
	ctx := context.Background()

	if _, err := ledger.Earn(ctx, "u1", 0, model.TxEarnTask, "t", "", nil, nil); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("zero amount: err = %v, want ErrInvalidAmount", err)
	}
	if _, err := ledger.Earn(ctx, "u1", -5, model.TxEarnTask, "t", "", nil, nil); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("negative amount: err = %v, want ErrInvalidAmount", err)
	}
	if _, err := ledger.Earn(ctx, "u1", 10, model.TxSpendGacha, "t", "", nil, nil); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("spend type on earn path: err = %v, want ErrInvalidAmount", err)
	}
}

func TestRefundIsIdempotent(t *testing.T) {
	ledger, store := newTestLedger(100)
	ctx := context.Background()

	spend, err := ledger.Spend(ctx, "u1", 40, model.SourceChatMessage, "m1", "chat")
	if err != nil {
		t.Fatalf("Spend: %v", err)
	}
	res, err := ledger.Refund(ctx, "u1", 40, spend.TransactionID)
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if res.Balance != 100 {
		t.Errorf("balance after refund = %d, want 100", res.Balance)
	}
	p := checkAccount(t, store, "u1")
	if p.UsedPoints != 0 {
		t.Errorf("used after refund = %d, want 0", p.UsedPoints)
	}

	if _, err := ledger.Refund(ctx, "u1", 40, spend.TransactionID); !errors.Is(err, ErrAlreadyRefunded) {
		t.Fatalf("second refund err = %v, want ErrAlreadyRefunded", err)
	}
	checkAccount(t, store, "u1")
}

func TestRefundValidation(t *testing.T) {
	ledger, _ := newTestLedger(100)
	ctx := context.Background()

	earn, err := ledger.Earn(ctx, "u1", 10, model.TxEarnTask, "t", "", nil, nil)
	if err != nil {
		t.Fatalf("Earn: %v", err)
	}
	spend, err := ledger.Spend(ctx, "u1", 40, model.SourceChatMessage, "m1", "chat")
	if err != nil {
		t.Fatalf("Spend: %v", err)
	}

	if _, err := ledger.Refund(ctx, "u1", 0, 99999); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown txn: err = %v, want ErrNotFound", err)
	}
	if _, err := ledger.Refund(ctx, "someone-else", 40, spend.TransactionID); !errors.Is(err, ErrNotFound) {
		t.Errorf("foreign txn: err = %v, want ErrNotFound", err)
	}
	if _, err := ledger.Refund(ctx, "u1", 10, earn.TransactionID); !errors.Is(err, ErrNotRefundable) {
		t.Errorf("refunding an earn: err = %v, want ErrNotRefundable", err)
	}
	if _, err := ledger.Refund(ctx, "u1", 41, spend.TransactionID); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("over-refund: err = %v, want ErrInvalidAmount", err)
	}
}

func TestExpireCapsAtAvailable(t *testing.T) {
	ledger, store := newTestLedger(0)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	grant, err := ledger.Earn(ctx, "u1", 100, model.TxEarnEvent, "campaign", "spring campaign", nil, &past)
	if err != nil {
		t.Fatalf("Earn: %v", err)
	}
	if _, err := ledger.Spend(ctx, "u1", 40, model.SourceGachaDraw, "m", "draw"); err != nil {
		t.Fatalf("Spend: %v", err)
	}

	res, err := ledger.Expire(ctx, "u1", 100, grant.TransactionID)
	if err != nil {
		t.Fatalf("Expire: %v", err)
	}
	if res.Balance != 0 {
		t.Errorf("balance after expire = %d, want 0", res.Balance)
	}
	p := checkAccount(t, store, "u1")
	if p.ExpiredPoints != 60 || p.UsedPoints != 40 {
		t.Errorf("account = %+v, want expired 60 used 40", p)
	}
}

func TestExpireDueIsIdempotent(t *testing.T) {
	ledger, store := newTestLedger(0)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)
	if _, err := ledger.Earn(ctx, "u1", 50, model.TxEarnEvent, "campaign", "", nil, &past); err != nil {
		t.Fatalf("Earn: %v", err)
	}
	if _, err := ledger.Earn(ctx, "u1", 30, model.TxEarnEvent, "campaign", "", nil, &future); err != nil {
		t.Fatalf("Earn: %v", err)
	}

	n, err := ledger.ExpireDue(ctx, time.Now())
	if err != nil {
		t.Fatalf("ExpireDue: %v", err)
	}
	if n != 1 {
		t.Fatalf("expired %d grants, want 1", n)
	}
	p := checkAccount(t, store, "u1")
	if p.AvailablePoints != 30 || p.ExpiredPoints != 50 {
		t.Errorf("account = %+v, want available 30 expired 50", p)
	}

	n, err = ledger.ExpireDue(ctx, time.Now())
	if err != nil {
		t.Fatalf("second ExpireDue: %v", err)
	}
	if n != 0 {
		t.Errorf("second sweep expired %d grants, want 0", n)
	}
}

func TestConcurrentRefundsAppendOneEntry(t *testing.T) {
	ledger, store := newTestLedger(100)
	ctx := context.Background()

	spend, err := ledger.Spend(ctx, "u1", 40, model.SourceChatMessage, "m1", "chat")
	if err != nil {
		t.Fatalf("Spend: %v", err)
	}

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = ledger.Refund(ctx, "u1", 40, spend.TransactionID)
		}(i)
	}
	wg.Wait()

	ok, dup := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrAlreadyRefunded):
			dup++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || dup != workers-1 {
		t.Errorf("outcomes = %d ok / %d already-refunded, want 1/%d", ok, dup, workers-1)
	}
	refunds := 0
	for _, txn := range store.txns {
		if txn.TransactionType == model.TxRefund {
			refunds++
		}
	}
	if refunds != 1 {
		t.Errorf("refund entries = %d, want exactly 1", refunds)
	}
	p := checkAccount(t, store, "u1")
	if p.AvailablePoints != 100 || p.UsedPoints != 0 {
		t.Errorf("account = %+v, want the single 40-point credit", p)
	}
}

func TestConcurrentExpiresDeductOnce(t *testing.T) {
	ledger, store := newTestLedger(0)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	grant, err := ledger.Earn(ctx, "u1", 50, model.TxEarnEvent, "campaign", "", nil, &past)
	if err != nil {
		t.Fatalf("Earn: %v", err)
	}

	// Overlapping reaper instances hitting the same grant.
	const workers = 4
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ledger.Expire(ctx, "u1", 50, grant.TransactionID); err != nil {
				t.Errorf("Expire: %v", err)
			}
		}()
	}
	wg.Wait()

	expires := 0
	for _, txn := range store.txns {
		if txn.TransactionType == model.TxExpire {
			expires++
		}
	}
	if expires != 1 {
		t.Errorf("expire entries = %d, want exactly 1", expires)
	}
	p := checkAccount(t, store, "u1")
	if p.ExpiredPoints != 50 || p.AvailablePoints != 0 {
		t.Errorf("account = %+v, want a single 50-point deduction", p)
	}
}

func TestBalanceReadPathDoesNotWrite(t *testing.T) {
	ledger, store := newTestLedger(100)
	ctx := context.Background()

	if _, err := ledger.Balance(ctx, "u1"); err != nil {
		t.Fatalf("Balance: %v", err)
	}
	seeded := store.txCalls
	if seeded == 0 {
		t.Fatal("first contact did not open a transaction")
	}
	for i := 0; i < 3; i++ {
		if _, err := ledger.Balance(ctx, "u1"); err != nil {
			t.Fatalf("Balance: %v", err)
		}
	}
	if store.txCalls != seeded {
		t.Errorf("repeat reads opened %d extra transactions, want 0", store.txCalls-seeded)
	}
}

func TestConcurrentSpends(t *testing.T) {
	ledger, store := newTestLedger(0)
	ctx := context.Background()

	if _, err := ledger.Earn(ctx, "u1", 100, model.TxEarnTask, "t", "", nil, nil); err != nil {
		t.Fatalf("Earn: %v", err)
	}

	const workers = 20
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = ledger.Spend(ctx, "u1", 10, model.SourceChatMessage, "m", "chat")
		}(i)
	}
	wg.Wait()

	ok, insufficient := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrInsufficientBalance):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 10 || insufficient != 10 {
		t.Errorf("outcomes = %d ok / %d insufficient, want 10/10", ok, insufficient)
	}
	p := checkAccount(t, store, "u1")
	if p.AvailablePoints != 0 || p.UsedPoints != 100 {
		t.Errorf("account = %+v, want available 0 used 100", p)
	}
}

func TestListTransactionsPaging(t *testing.T) {
	ledger, _ := newTestLedger(0)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := ledger.Earn(ctx, "u1", 10, model.TxEarnTask, "t", "", nil, nil); err != nil {
			t.Fatalf("Earn: %v", err)
		}
	}

	page, err := ledger.ListTransactions(ctx, "u1", 2, 0)
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(page) != 2 || page[0].ID <= page[1].ID {
		t.Fatalf("first page = %+v, want 2 rows newest first", page)
	}

	next, err := ledger.ListTransactions(ctx, "u1", 10, page[1].ID)
	if err != nil {
		t.Fatalf("ListTransactions (cursor): %v", err)
	}
	if len(next) != 3 {
		t.Errorf("second page has %d rows, want 3", len(next))
	}
	for _, txn := range next {
		if txn.ID >= page[1].ID {
			t.Errorf("cursor page leaked row %d at or past cursor %d", txn.ID, page[1].ID)
		}
	}
}
