package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/arturkryukov/claims-admin/internal/domain/claims"
	"github.com/arturkryukov/claims-admin/internal/domain/model"
	"github.com/arturkryukov/claims-admin/internal/idp"
)

// Общие stub'ы сервисных тестов: IdentityStore и репозитории в памяти.

var errIDPDown = errors.New("connection refused")

// stubStore — IdentityStore в памяти.
type stubStore struct {
	mu    sync.Mutex
	users map[string]*idp.User
	// setCalls — история записей claims (uid → наборы в порядке записи).
	setCalls []stubSetCall
	// failGet/failSet/failList имитируют недоступность IdP.
	failGet  bool
	failSet  bool
	failList bool
	// nextPageToken возвращается из ListUsers.
	nextPageToken string
	// pages — постраничный режим ListUsers: ключ — запрошенный
	// pageToken. Если nil, все пользователи отдаются одной страницей.
	pages map[string]*idp.UserPage
}

type stubSetCall struct {
	uid    string
	claims claims.Set
}

func newStubStore(users ...*idp.User) *stubStore {
	s := &stubStore{users: make(map[string]*idp.User)}
	for _, u := range users {
		s.users[u.UID] = u
	}
	return s
}

func (s *stubStore) GetUser(_ context.Context, uid string) (*idp.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet {
		return nil, errIDPDown
	}
	u, ok := s.users[uid]
	if !ok {
		return nil, idp.ErrUserNotFound
	}
	return u, nil
}

func (s *stubStore) GetUserByEmail(_ context.Context, email string) (*idp.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet {
		return nil, errIDPDown
	}
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, idp.ErrUserNotFound
}

func (s *stubStore) SetClaims(_ context.Context, uid string, cl map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSet {
		return errIDPDown
	}
	u, ok := s.users[uid]
	if !ok {
		return idp.ErrUserNotFound
	}
	u.Claims = claims.Set(cl)
	s.setCalls = append(s.setCalls, stubSetCall{uid: uid, claims: claims.Set(cl)})
	return nil
}

func (s *stubStore) ListUsers(_ context.Context, _ int, pageToken string) (*idp.UserPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failList {
		return nil, errIDPDown
	}
	if s.pages != nil {
		page, ok := s.pages[pageToken]
		if !ok {
			return &idp.UserPage{}, nil
		}
		return page, nil
	}
	page := &idp.UserPage{NextPageToken: s.nextPageToken}
	for _, u := range s.users {
		page.Users = append(page.Users, *u)
	}
	return page, nil
}

// writes возвращает количество выполненных записей claims.
func (s *stubStore) writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.setCalls)
}

// lastWrite возвращает последнюю запись claims (или nil).
func (s *stubStore) lastWrite() *stubSetCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.setCalls) == 0 {
		return nil
	}
	return &s.setCalls[len(s.setCalls)-1]
}

// stubAuditRepo — AuditRepository в памяти.
type stubAuditRepo struct {
	mu      sync.Mutex
	records []*model.AuditRecord
	// failAppend имитирует недоступность БД при записи аудита.
	failAppend bool
}

func (r *stubAuditRepo) Append(_ context.Context, rec *model.AuditRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAppend {
		return errors.New("база данных недоступна")
	}
	rec.CreatedAt = time.Now()
	r.records = append(r.records, rec)
	return nil
}

func (r *stubAuditRepo) List(_ context.Context, action string, limit, offset int) ([]*model.AuditRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*model.AuditRecord
	for i := len(r.records) - 1; i >= 0; i-- {
		if action != "" && r.records[i].Action != action {
			continue
		}
		result = append(result, r.records[i])
	}
	if offset >= len(result) {
		return nil, nil
	}
	result = result[offset:]
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *stubAuditRepo) CountByAction(_ context.Context, action string) (int, error) {
	recs, _ := r.List(context.Background(), action, len(r.records)+1, 0)
	return len(recs), nil
}

// stubBootstrapRepo — BootstrapRepository в памяти с атомарным захватом.
type stubBootstrapRepo struct {
	mu          sync.Mutex
	initialized bool
	acquires    int
}

func (r *stubBootstrapRepo) IsInitialized(_ context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.initialized, nil
}

func (r *stubBootstrapRepo) TryAcquire(_ context.Context, _, _ string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.initialized {
		return false, nil
	}
	r.initialized = true
	r.acquires++
	return true, nil
}

func (r *stubBootstrapRepo) Release(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.initialized = false
	return nil
}

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// Тестовые пользователи.

func superAdminUser(uid string) *idp.User {
	return &idp.User{
		UID: uid,
		Claims: claims.Set{
			claims.KeyAdmin:      true,
			claims.KeyAdminLevel: claims.AdminLevelSuper,
			claims.KeyRole:       claims.RoleSuperAdmin,
		},
	}
}

func adminUser(uid string) *idp.User {
	return &idp.User{
		UID: uid,
		Claims: claims.Set{
			claims.KeyAdmin:      true,
			claims.KeyAdminLevel: claims.AdminLevelAdmin,
			claims.KeyRole:       claims.RoleAdmin,
		},
	}
}

func plainUser(uid string) *idp.User {
	return &idp.User{
		UID:    uid,
		Claims: claims.Set{claims.KeyRole: claims.RoleUser, claims.KeyAdmin: false},
	}
}
