package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/modengine-api/internal/models"
	"github.com/noah-isme/modengine-api/internal/repository"
)

// memStore is an in-memory ModerationStore whose transactions are serialized
// and rolled back by restoring a snapshot.
type memStore struct {
	mu    *sync.Mutex
	state *memState
	inTx  bool
}

type memContent struct {
	owner   uint
	removed bool
}

type memState struct {
	cases       map[uint]models.ModerationCase
	users       map[uint]models.User
	content     map[string]map[uint]memContent
	audit       []models.AuditLogEntry
	nextCaseID  uint
	nextAuditID uint
}

func newMemStore() *memStore {
	return &memStore{
		mu: &sync.Mutex{},
		state: &memState{
			cases:   map[uint]models.ModerationCase{},
			users:   map[uint]models.User{},
			content: map[string]map[uint]memContent{},
		},
	}
}

func (s *memState) clone() *memState {
	out := &memState{
		cases:       make(map[uint]models.ModerationCase, len(s.cases)),
		users:       make(map[uint]models.User, len(s.users)),
		content:     make(map[string]map[uint]memContent, len(s.content)),
		audit:       append([]models.AuditLogEntry(nil), s.audit...),
		nextCaseID:  s.nextCaseID,
		nextAuditID: s.nextAuditID,
	}
	for id, c := range s.cases {
		out.cases[id] = c
	}
	for id, u := range s.users {
		out.users[id] = u
	}
	for targetType, items := range s.content {
		copied := make(map[uint]memContent, len(items))
		for id, item := range items {
			copied[id] = item
		}
		out.content[targetType] = copied
	}
	return out
}

func (s *memStore) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *memStore) addUser(u models.User) models.User {
	defer s.lock()()
	if u.ID == 0 {
		u.ID = uint(len(s.state.users) + 1)
	}
	s.state.users[u.ID] = u
	return u
}

func (s *memStore) addContent(targetType string, id, owner uint) {
	defer s.lock()()
	if s.state.content[targetType] == nil {
		s.state.content[targetType] = map[uint]memContent{}
	}
	s.state.content[targetType][id] = memContent{owner: owner}
}

func (s *memStore) auditFor(targetID string) []models.AuditLogEntry {
	defer s.lock()()
	var out []models.AuditLogEntry
	for _, entry := range s.state.audit {
		if entry.TargetID == targetID {
			out = append(out, entry)
		}
	}
	return out
}

func (s *memStore) Cases() repository.CaseRepository { return memCases{s} }
func (s *memStore) Audit() repository.AuditLogRepository { return memAudit{s} }
func (s *memStore) Accounts() repository.AccountRepository { return memAccounts{s} }
func (s *memStore) Content() repository.ContentRepository { return memContentRepo{s} }

func (s *memStore) Transaction(ctx context.Context, fn func(tx repository.ModerationStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	if err := fn(&memStore{mu: s.mu, state: s.state, inTx: true}); err != nil {
		*s.state = *snapshot
		return err
	}
	return nil
}

type memCases struct{ s *memStore }

func (r memCases) Create(_ context.Context, c *models.ModerationCase) error {
	defer r.s.lock()()
	if c.OpenKey != nil {
		for _, existing := range r.s.state.cases {
			if existing.OpenKey != nil && *existing.OpenKey == *c.OpenKey {
				return gorm.ErrDuplicatedKey
			}
		}
	}
	r.s.state.nextCaseID++
	c.ID = r.s.state.nextCaseID
	now := time.Now()
	c.CreatedAt, c.UpdatedAt = now, now
	r.s.state.cases[c.ID] = *c
	return nil
}

func (r memCases) GetByID(_ context.Context, id uint) (models.ModerationCase, error) {
	defer r.s.lock()()
	c, ok := r.s.state.cases[id]
	if !ok {
		return models.ModerationCase{}, gorm.ErrRecordNotFound
	}
	return c, nil
}

func (r memCases) GetForUpdate(ctx context.Context, id uint) (models.ModerationCase, error) {
	return r.GetByID(ctx, id)
}

func (r memCases) Transition(_ context.Context, id uint, t repository.CaseTransition) (bool, error) {
	defer r.s.lock()()
	c, ok := r.s.state.cases[id]
	if !ok {
		return false, nil
	}
	allowed := false
	for _, from := range t.From {
		if c.Status == from {
			allowed = true
		}
	}
	if !allowed {
		return false, nil
	}

	c.Status = t.To
	reviewer := t.ReviewerID
	c.ReviewerID = &reviewer
	if t.Resolution != nil {
		resolution := *t.Resolution
		c.Resolution = &resolution
	}
	if t.Notes != nil {
		c.Notes = *t.Notes
	}
	if t.ReviewedAt != nil {
		at := *t.ReviewedAt
		c.ReviewedAt = &at
	}
	if t.ClearOpenKey {
		c.OpenKey = nil
	}
	c.UpdatedAt = time.Now()
	r.s.state.cases[id] = c
	return true, nil
}

func (r memCases) HasOpen(_ context.Context, openKey string) (bool, error) {
	defer r.s.lock()()
	for _, c := range r.s.state.cases {
		if c.OpenKey != nil && *c.OpenKey == openKey {
			return true, nil
		}
	}
	return false, nil
}

func (r memCases) List(_ context.Context, filter repository.CaseFilter) ([]models.ModerationCase, int64, error) {
	defer r.s.lock()()
	var out []models.ModerationCase
	for _, c := range r.s.state.cases {
		if filter.Kind != "" && string(c.Kind) != filter.Kind {
			continue
		}
		if filter.Status != "" && string(c.Status) != filter.Status {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, int64(len(out)), nil
}

func (r memCases) CountByStatus(_ context.Context, kind string) ([]repository.CaseCount, error) {
	return r.countBy(kind, func(c models.ModerationCase) string { return string(c.Status) }), nil
}

func (r memCases) CountByReason(_ context.Context, kind string) ([]repository.CaseCount, error) {
	return r.countBy(kind, func(c models.ModerationCase) string { return c.Reason }), nil
}

func (r memCases) countBy(kind string, key func(models.ModerationCase) string) []repository.CaseCount {
	defer r.s.lock()()
	counts := map[string]int64{}
	for _, c := range r.s.state.cases {
		if kind != "" && string(c.Kind) != kind {
			continue
		}
		counts[key(c)]++
	}
	out := make([]repository.CaseCount, 0, len(counts))
	for k, v := range counts {
		out = append(out, repository.CaseCount{Key: k, Count: v})
	}
	return out
}

type memAudit struct{ s *memStore }

func (r memAudit) Create(_ context.Context, entry *models.AuditLogEntry) error {
	defer r.s.lock()()
	r.s.state.nextAuditID++
	entry.ID = r.s.state.nextAuditID
	r.s.state.audit = append(r.s.state.audit, *entry)
	return nil
}

func (r memAudit) Latest(_ context.Context, targetType, targetID string) (models.AuditLogEntry, error) {
	defer r.s.lock()()
	for i := len(r.s.state.audit) - 1; i >= 0; i-- {
		entry := r.s.state.audit[i]
		if entry.TargetType == targetType && entry.TargetID == targetID {
			return entry, nil
		}
	}
	return models.AuditLogEntry{}, gorm.ErrRecordNotFound
}

func (r memAudit) Chain(_ context.Context, targetType, targetID string) ([]models.AuditLogEntry, error) {
	defer r.s.lock()()
	var out []models.AuditLogEntry
	for _, entry := range r.s.state.audit {
		if entry.TargetType == targetType && entry.TargetID == targetID {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (r memAudit) List(_ context.Context, _ repository.AuditLogFilter) ([]models.AuditLogEntry, int64, error) {
	defer r.s.lock()()
	out := append([]models.AuditLogEntry(nil), r.s.state.audit...)
	return out, int64(len(out)), nil
}

type memAccounts struct{ s *memStore }

func (r memAccounts) GetByID(_ context.Context, id uint) (models.User, error) {
	defer r.s.lock()()
	u, ok := r.s.state.users[id]
	if !ok {
		return models.User{}, gorm.ErrRecordNotFound
	}
	return u, nil
}

func (r memAccounts) Suspend(_ context.Context, id uint, reason string, at time.Time) (bool, error) {
	return r.update(id, func(u *models.User) bool {
		if u.IsSuspended {
			return false
		}
		u.IsSuspended = true
		u.SuspensionReason = reason
		u.SuspendedAt = &at
		return true
	})
}

func (r memAccounts) Unsuspend(_ context.Context, id uint) (bool, error) {
	return r.update(id, func(u *models.User) bool {
		if !u.IsSuspended {
			return false
		}
		u.IsSuspended = false
		u.SuspensionReason = ""
		u.SuspendedAt = nil
		return true
	})
}

func (r memAccounts) SetVerified(_ context.Context, id uint, verified bool, at time.Time) (bool, error) {
	return r.update(id, func(u *models.User) bool {
		if u.IsVerified == verified {
			return false
		}
		u.IsVerified = verified
		if verified {
			u.VerifiedAt = &at
		} else {
			u.VerifiedAt = nil
		}
		return true
	})
}

func (r memAccounts) update(id uint, mutate func(*models.User) bool) (bool, error) {
	defer r.s.lock()()
	u, ok := r.s.state.users[id]
	if !ok {
		return false, gorm.ErrRecordNotFound
	}
	changed := mutate(&u)
	r.s.state.users[id] = u
	return changed, nil
}

type memContentRepo struct{ s *memStore }

func (r memContentRepo) Owner(_ context.Context, targetType string, id uint) (uint, error) {
	defer r.s.lock()()
	item, ok := r.s.state.content[targetType][id]
	if !ok {
		return 0, gorm.ErrRecordNotFound
	}
	return item.owner, nil
}

func (r memContentRepo) SoftDelete(_ context.Context, targetType string, id uint) (bool, error) {
	return r.setRemoved(targetType, id, true)
}

func (r memContentRepo) Restore(_ context.Context, targetType string, id uint) (bool, error) {
	return r.setRemoved(targetType, id, false)
}

func (r memContentRepo) setRemoved(targetType string, id uint, removed bool) (bool, error) {
	defer r.s.lock()()
	item, ok := r.s.state.content[targetType][id]
	if !ok || item.removed == removed {
		return false, nil
	}
	item.removed = removed
	r.s.state.content[targetType][id] = item
	return true, nil
}
