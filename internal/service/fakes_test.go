package service

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/otonoha/academy-backend/internal/model"
	"github.com/otonoha/academy-backend/internal/repository"
	"gorm.io/gorm"
)

// fakeStore is an in-memory stand-in for the MySQL-backed repositories. Its
// TxRunner serializes transactions with one mutex (modeling the row locks)
// and restores a snapshot when the callback errors, so rollback semantics
// match the real store. Repository methods themselves do not lock; mutations
// only happen inside Transaction.
type fakeStore struct {
	mu sync.Mutex

	accounts    map[string]model.UserPoints
	txns        []model.PointTransaction
	machines    []model.GachaMachine
	pools       map[uint64][]model.MachineReward
	rewards     map[uint64]model.GachaReward
	userRewards map[uint64]model.UserReward
	histories   []model.DrawHistory

	nextTxnID  uint64
	nextURID   uint64
	nextHistID uint64

	txCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts:    map[string]model.UserPoints{},
		pools:       map[uint64][]model.MachineReward{},
		rewards:     map[uint64]model.GachaReward{},
		userRewards: map[uint64]model.UserReward{},
	}
}

type storeSnapshot struct {
	accounts    map[string]model.UserPoints
	txns        []model.PointTransaction
	pools       map[uint64][]model.MachineReward
	rewards     map[uint64]model.GachaReward
	userRewards map[uint64]model.UserReward
	histories   []model.DrawHistory
	nextTxnID   uint64
	nextURID    uint64
	nextHistID  uint64
}

func (s *fakeStore) snapshot() storeSnapshot {
	snap := storeSnapshot{
		accounts:    make(map[string]model.UserPoints, len(s.accounts)),
		txns:        append([]model.PointTransaction(nil), s.txns...),
		pools:       make(map[uint64][]model.MachineReward, len(s.pools)),
		rewards:     make(map[uint64]model.GachaReward, len(s.rewards)),
		userRewards: make(map[uint64]model.UserReward, len(s.userRewards)),
		histories:   append([]model.DrawHistory(nil), s.histories...),
		nextTxnID:   s.nextTxnID,
		nextURID:    s.nextURID,
		nextHistID:  s.nextHistID,
	}
	for k, v := range s.accounts {
		snap.accounts[k] = v
	}
	for k, v := range s.pools {
		snap.pools[k] = append([]model.MachineReward(nil), v...)
	}
	for k, v := range s.rewards {
		snap.rewards[k] = v
	}
	for k, v := range s.userRewards {
		snap.userRewards[k] = v
	}
	return snap
}

func (s *fakeStore) restore(snap storeSnapshot) {
	s.accounts = snap.accounts
	s.txns = snap.txns
	s.pools = snap.pools
	s.rewards = snap.rewards
	s.userRewards = snap.userRewards
	s.histories = snap.histories
	s.nextTxnID = snap.nextTxnID
	s.nextURID = snap.nextURID
	s.nextHistID = snap.nextHistID
}

func (s *fakeStore) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txCalls++
	snap := s.snapshot()
	if err := fn(nil); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

var _ repository.TxRunner = (*fakeStore)(nil)

// --- points ---

type fakePoints struct{ s *fakeStore }

var _ repository.PointsRepository = fakePoints{}

func (f fakePoints) WithTx(tx *gorm.DB) repository.PointsRepository { return f }

func (f fakePoints) GetForUpdate(ctx context.Context, uid string) (*model.UserPoints, bool, error) {
	if p, ok := f.s.accounts[uid]; ok {
		cp := p
		return &cp, false, nil
	}
	p := model.UserPoints{UserUID: uid}
	f.s.accounts[uid] = p
	cp := p
	return &cp, true, nil
}

func (f fakePoints) Get(ctx context.Context, uid string) (*model.UserPoints, error) {
	if p, ok := f.s.accounts[uid]; ok {
		cp := p
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f fakePoints) Save(ctx context.Context, p *model.UserPoints) error {
	f.s.accounts[p.UserUID] = *p
	return nil
}

func (f fakePoints) AppendTransaction(ctx context.Context, t *model.PointTransaction) error {
	f.s.nextTxnID++
	t.ID = f.s.nextTxnID
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	f.s.txns = append(f.s.txns, *t)
	return nil
}

func (f fakePoints) FindTransaction(ctx context.Context, id uint64) (*model.PointTransaction, error) {
	for i := range f.s.txns {
		if f.s.txns[i].ID == id {
			cp := f.s.txns[i]
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f fakePoints) HasRefundFor(ctx context.Context, originalTxnID uint64) (bool, error) {
	want := strconv.FormatUint(originalTxnID, 10)
	for i := range f.s.txns {
		t := &f.s.txns[i]
		if t.TransactionType == model.TxRefund && t.SourceType == model.SourceRefundOf && t.SourceID == want {
			return true, nil
		}
	}
	return false, nil
}

func (f fakePoints) HasExpireFor(ctx context.Context, grantTxnID uint64) (bool, error) {
	want := strconv.FormatUint(grantTxnID, 10)
	for i := range f.s.txns {
		t := &f.s.txns[i]
		if t.TransactionType == model.TxExpire && t.SourceType == model.SourceExpireOf && t.SourceID == want {
			return true, nil
		}
	}
	return false, nil
}

func (f fakePoints) ListTransactions(ctx context.Context, uid string, limit int, cursor uint64) ([]model.PointTransaction, error) {
	var out []model.PointTransaction
	for i := len(f.s.txns) - 1; i >= 0; i-- {
		t := f.s.txns[i]
		if t.UserUID != uid {
			continue
		}
		if cursor > 0 && t.ID >= cursor {
			continue
		}
		out = append(out, t)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f fakePoints) ListExpirableGrants(ctx context.Context, now time.Time, limit int) ([]model.PointTransaction, error) {
	var out []model.PointTransaction
	for _, t := range f.s.txns {
		if t.PointsChange <= 0 || t.ExpiresAt == nil || !t.ExpiresAt.Before(now) {
			continue
		}
		if done, _ := f.HasExpireFor(ctx, t.ID); done {
			continue
		}
		out = append(out, t)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// --- machines ---

type fakeMachines struct{ s *fakeStore }

var _ repository.MachineRepository = fakeMachines{}

func (f fakeMachines) WithTx(tx *gorm.DB) repository.MachineRepository { return f }

func (f fakeMachines) FindBySlug(ctx context.Context, slug string) (*model.GachaMachine, error) {
	for i := range f.s.machines {
		if f.s.machines[i].MachineSlug == slug {
			cp := f.s.machines[i]
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f fakeMachines) List(ctx context.Context, activeOnly bool) ([]model.GachaMachine, error) {
	var out []model.GachaMachine
	for _, m := range f.s.machines {
		if activeOnly && !m.IsActive {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (f fakeMachines) LoadPool(ctx context.Context, machineID uint64) ([]model.MachineReward, error) {
	var out []model.MachineReward
	for _, row := range f.s.pools[machineID] {
		if !row.IsActive {
			continue
		}
		if rw, ok := f.s.rewards[row.RewardID]; ok {
			cp := rw
			row.Reward = &cp
		}
		out = append(out, row)
	}
	return out, nil
}

// --- rewards ---

type fakeRewards struct{ s *fakeStore }

var _ repository.RewardRepository = fakeRewards{}

func (f fakeRewards) WithTx(tx *gorm.DB) repository.RewardRepository { return f }

func (f fakeRewards) FindByID(ctx context.Context, id uint64) (*model.GachaReward, error) {
	if rw, ok := f.s.rewards[id]; ok {
		cp := rw
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f fakeRewards) DecrementStock(ctx context.Context, rewardID uint64) (bool, error) {
	rw, ok := f.s.rewards[rewardID]
	if !ok {
		return false, gorm.ErrRecordNotFound
	}
	if rw.StockRemaining == nil {
		return true, nil
	}
	if *rw.StockRemaining <= 0 {
		return false, nil
	}
	n := *rw.StockRemaining - 1
	rw.StockRemaining = &n
	f.s.rewards[rewardID] = rw
	return true, nil
}

// --- user rewards ---

type fakeUserRewards struct{ s *fakeStore }

var _ repository.UserRewardRepository = fakeUserRewards{}

func (f fakeUserRewards) WithTx(tx *gorm.DB) repository.UserRewardRepository { return f }

func (f fakeUserRewards) Create(ctx context.Context, ur *model.UserReward) error {
	f.s.nextURID++
	ur.ID = f.s.nextURID
	f.s.userRewards[ur.ID] = *ur
	return nil
}

func (f fakeUserRewards) FindByID(ctx context.Context, id uint64) (*model.UserReward, error) {
	return f.FindByIDForUpdate(ctx, id)
}

func (f fakeUserRewards) FindByIDForUpdate(ctx context.Context, id uint64) (*model.UserReward, error) {
	if ur, ok := f.s.userRewards[id]; ok {
		cp := ur
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f fakeUserRewards) Save(ctx context.Context, ur *model.UserReward) error {
	f.s.userRewards[ur.ID] = *ur
	return nil
}

func (f fakeUserRewards) ListByUser(ctx context.Context, uid string, status model.UserRewardStatus, limit int) ([]model.UserReward, error) {
	var out []model.UserReward
	for _, ur := range f.s.userRewards {
		if ur.UserUID != uid {
			continue
		}
		if status != "" && ur.Status != status {
			continue
		}
		if rw, ok := f.s.rewards[ur.RewardID]; ok {
			cp := rw
			ur.Reward = &cp
		}
		out = append(out, ur)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f fakeUserRewards) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	for id, ur := range f.s.userRewards {
		if ur.Status == model.UserRewardActive && ur.ExpiresAt != nil && ur.ExpiresAt.Before(now) {
			ur.Status = model.UserRewardExpired
			f.s.userRewards[id] = ur
			n++
		}
	}
	return n, nil
}

func (f fakeUserRewards) CodeExists(ctx context.Context, code string) (bool, error) {
	for _, ur := range f.s.userRewards {
		if ur.RewardCode == code {
			return true, nil
		}
	}
	return false, nil
}

// --- draw history ---

type fakeHistory struct{ s *fakeStore }

var _ repository.DrawHistoryRepository = fakeHistory{}

func (f fakeHistory) WithTx(tx *gorm.DB) repository.DrawHistoryRepository { return f }

func (f fakeHistory) Create(ctx context.Context, h *model.DrawHistory) error {
	f.s.nextHistID++
	h.ID = f.s.nextHistID
	f.s.histories = append(f.s.histories, *h)
	return nil
}

func (f fakeHistory) ListByUser(ctx context.Context, uid string, limit int) ([]model.DrawHistory, error) {
	var out []model.DrawHistory
	for i := len(f.s.histories) - 1; i >= 0; i-- {
		if f.s.histories[i].UserUID == uid {
			out = append(out, f.s.histories[i])
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}
