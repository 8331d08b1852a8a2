package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/arturkryukov/claims-admin/internal/domain/claims"
	"github.com/arturkryukov/claims-admin/internal/domain/model"
	"github.com/arturkryukov/claims-admin/internal/idp"
)

// newTestClaimsService собирает сервис на stub'ах.
func newTestClaimsService(store *stubStore, audit *stubAuditRepo) *ClaimsService {
	logger := testLogger()
	return NewClaimsService(store, NewGuard(store, logger), audit, logger)
}

// TestGrantAdmin_Success — назначение админа супер-админом.
func TestGrantAdmin_Success(t *testing.T) {
	store := newStubStore(superAdminUser("root-1"), plainUser("user-1"))
	audit := &stubAuditRepo{}
	svc := newTestClaimsService(store, audit)

	newClaims, err := svc.GrantAdmin(context.Background(), "root-1", "user-1", claims.AdminLevelAdmin)
	if err != nil {
		t.Fatalf("GrantAdmin: %v", err)
	}

	if !newClaims.IsAdmin() {
		t.Error("ожидался admin == true")
	}
	if newClaims.Role() != claims.RoleAdmin {
		t.Errorf("role = %q, ожидалось admin", newClaims.Role())
	}
	if newClaims[claims.KeyAssignedBy] != "root-1" {
		t.Errorf("assignedBy = %v, ожидалось root-1", newClaims[claims.KeyAssignedBy])
	}

	// Запись ушла в IdP
	last := store.lastWrite()
	if last == nil || last.uid != "user-1" {
		t.Fatal("ожидалась запись claims для user-1")
	}

	// Аудит
	if len(audit.records) != 1 || audit.records[0].Action != model.ActionMakeAdmin {
		t.Errorf("ожидалась одна запись аудита make_admin, получено %+v", audit.records)
	}
	if audit.records[0].PerformedBy != "root-1" {
		t.Errorf("performedBy = %q, ожидалось root-1", audit.records[0].PerformedBy)
	}
}

// TestGrantAdmin_SuperLevelKeepsRoleAdmin — grantAdmin уровня super
// даёт role "admin", а не "super_admin".
func TestGrantAdmin_SuperLevelKeepsRoleAdmin(t *testing.T) {
	store := newStubStore(superAdminUser("root-1"), plainUser("user-1"))
	svc := newTestClaimsService(store, &stubAuditRepo{})

	newClaims, err := svc.GrantAdmin(context.Background(), "root-1", "user-1", claims.AdminLevelSuper)
	if err != nil {
		t.Fatalf("GrantAdmin: %v", err)
	}

	if newClaims.Role() != claims.RoleAdmin {
		t.Errorf("role = %q, ожидалось admin", newClaims.Role())
	}
	if newClaims.AdminLevel() != claims.AdminLevelSuper {
		t.Errorf("adminLevel = %q, ожидалось super", newClaims.AdminLevel())
	}
	if !newClaims.IsSuperAdmin() {
		t.Error("ожидались супер-админ права")
	}
}

// TestGrantAdmin_Denied — отказ не оставляет побочных эффектов.
func TestGrantAdmin_Denied(t *testing.T) {
	tests := []struct {
		name    string
		caller  string
		target  string
		level   string
		wantErr error
	}{
		{
			name:    "обычный пользователь",
			caller:  "user-1",
			target:  "user-2",
			level:   "admin",
			wantErr: ErrPermissionDenied,
		},
		{
			name:    "админ без уровня super",
			caller:  "admin-1",
			target:  "user-1",
			level:   "admin",
			wantErr: ErrPermissionDenied,
		},
		{
			name:    "без идентичности",
			caller:  "",
			target:  "user-1",
			level:   "admin",
			wantErr: ErrUnauthenticated,
		},
		{
			name:    "недопустимый уровень",
			caller:  "root-1",
			target:  "user-1",
			level:   "godmode",
			wantErr: ErrInvalidArgument,
		},
		{
			name:    "пустой target",
			caller:  "root-1",
			target:  "",
			level:   "admin",
			wantErr: ErrInvalidArgument,
		},
		{
			name:    "несуществующий target",
			caller:  "root-1",
			target:  "ghost",
			level:   "admin",
			wantErr: ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newStubStore(superAdminUser("root-1"), adminUser("admin-1"),
				plainUser("user-1"), plainUser("user-2"))
			audit := &stubAuditRepo{}
			svc := newTestClaimsService(store, audit)

			_, err := svc.GrantAdmin(context.Background(), tt.caller, tt.target, tt.level)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("GrantAdmin() err = %v, ожидалось %v", err, tt.wantErr)
			}
			if store.writes() != 0 {
				t.Error("отказ не должен записывать claims")
			}
			if len(audit.records) != 0 {
				t.Error("отказ не должен создавать записи аудита")
			}
		})
	}
}

// TestRevokeAdmin — снятие admin-статуса с последующим чтением.
func TestRevokeAdmin(t *testing.T) {
	store := newStubStore(superAdminUser("root-1"), adminUser("admin-1"))
	audit := &stubAuditRepo{}
	svc := newTestClaimsService(store, audit)
	ctx := context.Background()

	newClaims, err := svc.RevokeAdmin(ctx, "root-1", "admin-1")
	if err != nil {
		t.Fatalf("RevokeAdmin: %v", err)
	}

	if newClaims.IsAdmin() {
		t.Error("после revoke admin должен быть снят")
	}
	if newClaims.Role() != claims.RoleUser {
		t.Errorf("role = %q, ожидалось user", newClaims.Role())
	}
	if _, ok := newClaims[claims.KeyAdminLevel]; ok {
		t.Error("adminLevel должен быть удалён")
	}

	// После revoke бывший админ не проходит guard
	if _, err := svc.GetClaims(ctx, "admin-1", "root-1"); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("бывший админ не должен читать чужие claims, получено %v", err)
	}

	if len(audit.records) != 1 || audit.records[0].Action != model.ActionRemoveAdmin {
		t.Errorf("ожидалась запись аудита remove_admin, получено %+v", audit.records)
	}
}

// TestSetRole — установка роли админом.
func TestSetRole(t *testing.T) {
	tests := []struct {
		name      string
		role      string
		wantAdmin bool
	}{
		{name: "роль moderator", role: claims.RoleModerator, wantAdmin: false},
		{name: "роль editor", role: claims.RoleEditor, wantAdmin: false},
		{name: "роль user", role: claims.RoleUser, wantAdmin: false},
		{name: "роль admin включает admin-флаг", role: claims.RoleAdmin, wantAdmin: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newStubStore(adminUser("admin-1"), plainUser("user-1"))
			svc := newTestClaimsService(store, &stubAuditRepo{})

			newClaims, err := svc.SetRole(context.Background(), "admin-1", "user-1", tt.role)
			if err != nil {
				t.Fatalf("SetRole: %v", err)
			}
			if newClaims.Role() != tt.role {
				t.Errorf("role = %q, ожидалось %q", newClaims.Role(), tt.role)
			}
			if newClaims.IsAdmin() != tt.wantAdmin {
				t.Errorf("admin = %v, ожидалось %v", newClaims.IsAdmin(), tt.wantAdmin)
			}
		})
	}
}

// TestSetRole_SuperAdminRejected — super_admin недоступен через setRole.
func TestSetRole_SuperAdminRejected(t *testing.T) {
	store := newStubStore(adminUser("admin-1"), plainUser("user-1"))
	svc := newTestClaimsService(store, &stubAuditRepo{})

	_, err := svc.SetRole(context.Background(), "admin-1", "user-1", claims.RoleSuperAdmin)
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("ожидался ErrInvalidArgument, получено %v", err)
	}
	if store.writes() != 0 {
		t.Error("отклонённая роль не должна записываться")
	}
}

// TestSetPermissions — валидация по словарю с перечислением нарушителей.
func TestSetPermissions(t *testing.T) {
	store := newStubStore(adminUser("admin-1"), plainUser("user-1"))
	audit := &stubAuditRepo{}
	svc := newTestClaimsService(store, audit)
	ctx := context.Background()

	// Неизвестные токены — отказ без записи, все нарушители в сообщении
	_, err := svc.SetPermissions(ctx, "admin-1", "user-1",
		[]string{"export_data", "fire_missiles", "bake_bread"})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("ожидался ErrInvalidArgument, получено %v", err)
	}
	if !strings.Contains(err.Error(), "fire_missiles") || !strings.Contains(err.Error(), "bake_bread") {
		t.Errorf("сообщение должно перечислять все неизвестные токены: %v", err)
	}
	if store.writes() != 0 {
		t.Error("невалидные permissions не должны записываться")
	}

	// Валидный список заменяет permissions целиком
	newClaims, err := svc.SetPermissions(ctx, "admin-1", "user-1",
		[]string{"export_data", "manage_users"})
	if err != nil {
		t.Fatalf("SetPermissions: %v", err)
	}
	perms := newClaims.Permissions()
	if len(perms) != 2 || perms[0] != "export_data" || perms[1] != "manage_users" {
		t.Errorf("permissions = %v", perms)
	}

	// Пустой список допустим
	newClaims, err = svc.SetPermissions(ctx, "admin-1", "user-1", []string{})
	if err != nil {
		t.Fatalf("SetPermissions(пустой): %v", err)
	}
	if perms := newClaims.Permissions(); len(perms) != 0 {
		t.Errorf("permissions = %v, ожидался пустой список", perms)
	}
}

// TestSetClaims_FullReplace — setClaims заменяет объект целиком, без merge.
func TestSetClaims_FullReplace(t *testing.T) {
	target := plainUser("user-1")
	target.Claims["customKey"] = "keep-me"
	store := newStubStore(superAdminUser("root-1"), target)
	audit := &stubAuditRepo{}
	svc := newTestClaimsService(store, audit)

	newClaims, err := svc.SetClaims(context.Background(), "root-1", "user-1",
		claims.Set{"tenant": "acme"})
	if err != nil {
		t.Fatalf("SetClaims: %v", err)
	}

	if _, ok := newClaims["customKey"]; ok {
		t.Error("setClaims должен заменять объект целиком, без merge")
	}
	if newClaims["tenant"] != "acme" {
		t.Errorf("tenant = %v", newClaims["tenant"])
	}

	if len(audit.records) != 1 || audit.records[0].Action != model.ActionSetClaims {
		t.Errorf("ожидалась запись аудита set_claims, получено %+v", audit.records)
	}
}

// TestSetClaims_RequiresSuperAdmin — обычному админу отказано.
func TestSetClaims_RequiresSuperAdmin(t *testing.T) {
	store := newStubStore(adminUser("admin-1"), plainUser("user-1"))
	svc := newTestClaimsService(store, &stubAuditRepo{})

	_, err := svc.SetClaims(context.Background(), "admin-1", "user-1", claims.Set{"x": 1})
	if !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("ожидался ErrPermissionDenied, получено %v", err)
	}
	if store.writes() != 0 {
		t.Error("отказ не должен записывать claims")
	}
}

// TestGetClaims — чтение claims: сам пользователь либо админ.
func TestGetClaims(t *testing.T) {
	store := newStubStore(adminUser("admin-1"), plainUser("user-1"), plainUser("user-2"))
	svc := newTestClaimsService(store, &stubAuditRepo{})
	ctx := context.Background()

	// Свои claims без admin-прав
	user, err := svc.GetClaims(ctx, "user-1", "user-1")
	if err != nil {
		t.Fatalf("GetClaims(self): %v", err)
	}
	if user.UID != "user-1" {
		t.Errorf("uid = %q", user.UID)
	}

	// Чужие claims обычному пользователю запрещены
	if _, err := svc.GetClaims(ctx, "user-1", "user-2"); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("ожидался ErrPermissionDenied, получено %v", err)
	}

	// Админ читает чужие claims
	if _, err := svc.GetClaims(ctx, "admin-1", "user-2"); err != nil {
		t.Errorf("GetClaims(admin): %v", err)
	}

	// Несуществующий target
	if _, err := svc.GetClaims(ctx, "admin-1", "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ожидался ErrNotFound, получено %v", err)
	}
}

// TestListAdmins — фильтрация страницы по admin == true.
func TestListAdmins(t *testing.T) {
	store := newStubStore(
		superAdminUser("root-1"),
		adminUser("admin-1"),
		plainUser("user-1"),
		plainUser("user-2"),
	)
	store.nextPageToken = "token-2"
	svc := newTestClaimsService(store, &stubAuditRepo{})

	admins, nextToken, err := svc.ListAdmins(context.Background(), "admin-1", 100, "")
	if err != nil {
		t.Fatalf("ListAdmins: %v", err)
	}

	if len(admins) != 2 {
		t.Fatalf("получено %d админов, ожидалось 2", len(admins))
	}
	for _, a := range admins {
		if !a.Claims.IsAdmin() {
			t.Errorf("в списке не-админ: %s", a.UID)
		}
	}
	if nextToken != "token-2" {
		t.Errorf("nextPageToken = %q, ожидалось token-2", nextToken)
	}
}

// TestListAdmins_MultiPage — админов больше одной страницы IdP:
// второй вызов с полученным токеном возвращает остаток.
func TestListAdmins_MultiPage(t *testing.T) {
	root := superAdminUser("root-1")
	admin1 := adminUser("admin-1")
	admin2 := adminUser("admin-2")
	store := newStubStore(root, admin1, admin2, plainUser("user-1"), plainUser("user-2"))
	store.pages = map[string]*idp.UserPage{
		"": {
			Users:         []idp.User{*root, *admin1, *plainUser("user-1")},
			NextPageToken: "page-2",
		},
		"page-2": {
			Users: []idp.User{*admin2, *plainUser("user-2")},
		},
	}
	svc := newTestClaimsService(store, &stubAuditRepo{})

	first, nextToken, err := svc.ListAdmins(context.Background(), "root-1", 2, "")
	if err != nil {
		t.Fatalf("ListAdmins первая страница: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("первая страница: %d админов, ожидалось 2", len(first))
	}
	if nextToken != "page-2" {
		t.Fatalf("nextPageToken = %q, ожидалось page-2", nextToken)
	}

	second, lastToken, err := svc.ListAdmins(context.Background(), "root-1", 2, nextToken)
	if err != nil {
		t.Fatalf("ListAdmins вторая страница: %v", err)
	}
	if len(second) != 1 || second[0].UID != "admin-2" {
		t.Fatalf("вторая страница: %+v, ожидался только admin-2", second)
	}
	if lastToken != "" {
		t.Errorf("после последней страницы nextPageToken = %q, ожидался пустой", lastToken)
	}

	got := map[string]bool{}
	for _, a := range append(first, second...) {
		got[a.UID] = true
	}
	for _, uid := range []string{"root-1", "admin-1", "admin-2"} {
		if !got[uid] {
			t.Errorf("админ %s не попал ни в одну страницу", uid)
		}
	}
}

// TestListAdmins_Denied — список только для админов.
func TestListAdmins_Denied(t *testing.T) {
	store := newStubStore(plainUser("user-1"))
	svc := newTestClaimsService(store, &stubAuditRepo{})

	if _, _, err := svc.ListAdmins(context.Background(), "user-1", 100, ""); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("ожидался ErrPermissionDenied, получено %v", err)
	}
}

// TestApplyDefaultClaims — стартовые claims новой identity.
func TestApplyDefaultClaims(t *testing.T) {
	store := newStubStore(&idp.User{UID: "new-user"})
	audit := &stubAuditRepo{}
	svc := newTestClaimsService(store, audit)

	if err := svc.ApplyDefaultClaims(context.Background(), "new-user"); err != nil {
		t.Fatalf("ApplyDefaultClaims: %v", err)
	}

	last := store.lastWrite()
	if last == nil {
		t.Fatal("ожидалась запись claims")
	}
	if last.claims.Role() != claims.RoleUser {
		t.Errorf("role = %q, ожидалось user", last.claims.Role())
	}
	if last.claims.IsAdmin() {
		t.Error("новая identity не должна быть админом")
	}
	if perms := last.claims.Permissions(); perms == nil || len(perms) != 0 {
		t.Errorf("permissions = %v, ожидался пустой список", perms)
	}

	if len(audit.records) != 1 || audit.records[0].Action != model.ActionDefaultClaims {
		t.Errorf("ожидалась запись аудита default_claims, получено %+v", audit.records)
	}
	if audit.records[0].PerformedBy != claims.AssignedBySystem {
		t.Errorf("performedBy = %q, ожидалось system_init", audit.records[0].PerformedBy)
	}
}

// TestAuditFailureDoesNotFailOperation — claims применены, аудит упал.
func TestAuditFailureDoesNotFailOperation(t *testing.T) {
	store := newStubStore(superAdminUser("root-1"), plainUser("user-1"))
	audit := &stubAuditRepo{failAppend: true}
	svc := newTestClaimsService(store, audit)

	newClaims, err := svc.GrantAdmin(context.Background(), "root-1", "user-1", claims.AdminLevelAdmin)
	if err != nil {
		t.Fatalf("операция не должна падать из-за аудита: %v", err)
	}
	if !newClaims.IsAdmin() {
		t.Error("claims должны быть применены")
	}
	if store.writes() != 1 {
		t.Errorf("записей claims = %d, ожидалась 1", store.writes())
	}
}

// TestMutation_IDPDown — недоступность IdP транслируется в ErrIDPUnavailable.
func TestMutation_IDPDown(t *testing.T) {
	store := newStubStore(superAdminUser("root-1"), plainUser("user-1"))
	svc := newTestClaimsService(store, &stubAuditRepo{})

	store.failSet = true
	_, err := svc.GrantAdmin(context.Background(), "root-1", "user-1", claims.AdminLevelAdmin)
	if !errors.Is(err, ErrIDPUnavailable) {
		t.Errorf("ожидался ErrIDPUnavailable, получено %v", err)
	}
}
