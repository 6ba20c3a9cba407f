package members

import (
	"context"
	"io"
	"testing"

	"github.com/angelmondragon/utilitysplit/pkg/db/dbtest"
	"github.com/angelmondragon/utilitysplit/pkg/enums"
	pkgerrors "github.com/angelmondragon/utilitysplit/pkg/errors"
	"github.com/angelmondragon/utilitysplit/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAdminID = "1000"

func newTestService(t *testing.T) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Repo:    NewRepository(dbtest.Open(t)),
		AdminID: testAdminID,
		Logger:  logger.New(logger.Options{ServiceName: "members-test", Output: io.Discard}),
	})
	require.NoError(t, err)
	return svc
}

func register(t *testing.T, svc Service, id, name, handle string) {
	t.Helper()
	_, err := svc.Register(context.Background(), RegisterInput{MemberID: id, DisplayName: name, Handle: handle})
	require.NoError(t, err)
}

func TestRegisterAssignsRoles(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	admin, err := svc.Register(ctx, RegisterInput{MemberID: testAdminID, DisplayName: "Landlord", Handle: "@Landlord"})
	require.NoError(t, err)
	assert.True(t, admin.Created)
	assert.Equal(t, enums.MemberRoleAdmin, admin.Member.Role)
	require.NotNil(t, admin.Member.Handle)
	assert.Equal(t, "landlord", *admin.Member.Handle)

	tenant, err := svc.Register(ctx, RegisterInput{MemberID: "2000", DisplayName: "Ada"})
	require.NoError(t, err)
	assert.Equal(t, enums.MemberRoleTenant, tenant.Member.Role)
	assert.True(t, tenant.Member.IsActive)
	assert.Nil(t, tenant.Member.Handle)
}

func TestRegisterExistingRefreshesProfile(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	register(t, svc, "2000", "Ada", "ada")

	again, err := svc.Register(ctx, RegisterInput{MemberID: "2000", DisplayName: "Ada L.", Handle: "ada_l"})
	require.NoError(t, err)
	assert.False(t, again.Created)

	stored, err := svc.Get(ctx, "2000")
	require.NoError(t, err)
	assert.Equal(t, "Ada L.", stored.DisplayName)
	require.NotNil(t, stored.Handle)
	assert.Equal(t, "ada_l", *stored.Handle)
}

func TestRegisterRequiresIdentity(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Register(context.Background(), RegisterInput{DisplayName: "nobody"})
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestSetActive(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	register(t, svc, testAdminID, "Landlord", "landlord")
	register(t, svc, "2000", "Ada", "ada")

	member, err := svc.SetActive(ctx, "2000", false)
	require.NoError(t, err)
	assert.False(t, member.IsActive)

	member, err = svc.SetActive(ctx, "2000", false)
	require.NoError(t, err, "deactivating twice is a no-op")
	assert.False(t, member.IsActive)

	active, err := svc.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, testAdminID, active[0].MemberID)

	all, err := svc.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = svc.SetActive(ctx, "9999", true)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))

	_, err = svc.SetActive(ctx, testAdminID, false)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeForbidden))
}

func TestResolveByHandles(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	register(t, svc, "2000", "Ada", "ada")
	register(t, svc, "3000", "Bola", "bola")
	register(t, svc, "4000", "Chidi", "chidi")
	_, err := svc.SetActive(ctx, "4000", false)
	require.NoError(t, err)

	resolved, err := svc.ResolveByHandles(ctx, []string{"@Bola", "ada", "@bola"})
	require.NoError(t, err)
	require.Len(t, resolved, 2)
	assert.Equal(t, "3000", resolved[0].MemberID)
	assert.Equal(t, "2000", resolved[1].MemberID)

	_, err = svc.ResolveByHandles(ctx, []string{"@ada", "@ghost", "@chidi"})
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
	assert.ElementsMatch(t, []string{"@ghost", "@chidi"}, UnresolvedHandles(err))

	_, err = svc.ResolveByHandles(ctx, nil)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	_, err = svc.ResolveByHandles(ctx, []string{"@!!"})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
	assert.Nil(t, UnresolvedHandles(err))
}

func TestIsAdmin(t *testing.T) {
	svc := newTestService(t)
	assert.True(t, svc.IsAdmin(testAdminID))
	assert.False(t, svc.IsAdmin("2000"))
	assert.False(t, svc.IsAdmin(""))
}

func TestNormalizeHandle(t *testing.T) {
	cases := map[string]string{
		"@Ada_L": "ada_l",
		" bola ": "bola",
	}
	for in, want := range cases {
		got, ok := NormalizeHandle(in)
		require.True(t, ok, in)
		assert.Equal(t, want, got)
	}
	for _, bad := range []string{"", "@", "@a", "has space", "@dash-name"} {
		_, ok := NormalizeHandle(bad)
		assert.False(t, ok, bad)
	}
}
