package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campus-rides/internal/apitest"
	"campus-rides/internal/notify"
	"campus-rides/pkg/apiclient"
	"campus-rides/pkg/jwt"
)

type fixture struct {
	backend *apitest.Backend
	api     *apiclient.Client
	creds   *MemoryStore
	toasts  *notify.Recorder
	store   *Store
}

func newFixture(t *testing.T, storedToken string) *fixture {
	t.Helper()
	b := apitest.New()
	t.Cleanup(b.Close)

	f := &fixture{
		backend: b,
		api:     apiclient.New(b.URL(), 2*time.Second),
		creds:   NewMemoryStore(storedToken),
		toasts:  &notify.Recorder{},
	}
	f.store = NewStore(f.api, f.creds, f.toasts)
	return f
}

func (f *fixture) stored(t *testing.T) string {
	t.Helper()
	tok, err := f.creds.Load(context.Background())
	require.NoError(t, err)
	return tok
}

func TestInitializeWithoutTokenMakesNoRequest(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	f := newFixture(t, "")
	assert.True(f.store.Snapshot().Loading)

	require.NoError(f.store.Initialize(context.Background()))

	s := f.store.Snapshot()
	assert.False(s.Loading)
	assert.False(s.IsAuthenticated())
	assert.Nil(s.User)
	assert.Empty(f.backend.Requests())
}

func TestInitializeRestoresSession(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	f := newFixture(t, "")
	id := f.backend.AddUser("ana@campus.edu", "secret1", "Ana")
	require.NoError(f.creds.Save(context.Background(), f.backend.TokenFor("ana@campus.edu")))

	require.NoError(f.store.Initialize(context.Background()))

	s := f.store.Snapshot()
	assert.True(s.IsAuthenticated())
	assert.False(s.Loading)
	assert.Equal(id, s.User.ID())
	assert.True(f.api.HasBearer())

	req, ok := f.backend.LastRequest(http.MethodGet, "/api/auth/profile")
	require.True(ok)
	assert.Equal("Bearer "+s.Token, req.Authorization)
	assert.Empty(f.toasts.All())
}

func TestInitializeRunsOnce(t *testing.T) {
	f := newFixture(t, "")
	f.backend.AddUser("ana@campus.edu", "secret1", "Ana")
	require.NoError(t, f.creds.Save(context.Background(), f.backend.TokenFor("ana@campus.edu")))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.store.Initialize(context.Background()))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, f.backend.Count(http.MethodGet, "/api/auth/profile"))
}

func TestInitializeWithRejectedTokenClearsSession(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	f := newFixture(t, "stale-token")

	err := f.store.Initialize(context.Background())
	require.Error(err)
	assert.True(errors.Is(err, ErrSessionInvalid))

	s := f.store.Snapshot()
	assert.False(s.IsAuthenticated())
	assert.Nil(s.User)
	assert.Equal("Token is not valid", s.Err)
	assert.Empty(f.stored(t))
	assert.False(f.api.HasBearer())
	assert.Empty(f.toasts.All(), "profile load failures are silent")
}

func TestLoginSuccess(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)
	ctx := context.Background()

	f := newFixture(t, "")
	id := f.backend.AddUser("ana@campus.edu", "secret1", "Ana")
	require.NoError(f.store.Initialize(ctx))

	user, err := f.store.Login(ctx, "ana@campus.edu", "secret1")
	require.NoError(err)
	assert.Equal(id, user.ID())

	s := f.store.Snapshot()
	assert.True(s.IsAuthenticated())
	assert.False(s.Loading)
	assert.Empty(s.Err)
	assert.Equal(s.Token, f.stored(t))
	assert.True(f.api.HasBearer())
	assert.Equal([]string{"Login successful!"}, f.toasts.Messages())

	claims, err := f.store.Claims()
	require.NoError(err)
	assert.Equal(id, claims.SubjectID())
	assert.Equal("ana@campus.edu", claims.Email)

	_, err = f.store.LoadUser(ctx)
	require.NoError(err)
	req, _ := f.backend.LastRequest(http.MethodGet, "/api/auth/profile")
	assert.Equal("Bearer "+s.Token, req.Authorization)
}

func TestLoginFailureUsesServerMessage(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)
	ctx := context.Background()

	f := newFixture(t, "")
	f.backend.AddUser("ana@campus.edu", "secret1", "Ana")

	_, err := f.store.Login(ctx, "ana@campus.edu", "wrong")
	require.Error(err)

	var sessErr *Error
	require.True(errors.As(err, &sessErr))
	assert.Equal("Invalid credentials", sessErr.Message)
	assert.Equal(http.StatusUnauthorized, apiclient.StatusCode(err))

	s := f.store.Snapshot()
	assert.False(s.IsAuthenticated())
	assert.False(s.Loading)
	assert.Equal("Invalid credentials", s.Err)
	assert.Equal([]string{"Invalid credentials"}, f.toasts.Messages())
	assert.Equal(notify.LevelError, f.toasts.All()[0].Level)
}

func TestLoginFailureFallbackMessage(t *testing.T) {
	f := newFixture(t, "")
	f.backend.Fail(http.MethodPost, "/api/auth/login", http.StatusInternalServerError, "")

	_, err := f.store.Login(context.Background(), "ana@campus.edu", "secret1")
	require.Error(t, err)
	assert.Equal(t, "Login failed", f.store.Snapshot().Err)
}

func TestLoginTransportFailure(t *testing.T) {
	f := newFixture(t, "")
	f.backend.Close()

	_, err := f.store.Login(context.Background(), "ana@campus.edu", "secret1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apiclient.ErrTransport))
	assert.Equal(t, "Login failed", f.store.Snapshot().Err)
}

func TestLoginFailureClearsExistingSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "")
	f.backend.AddUser("ana@campus.edu", "secret1", "Ana")

	_, err := f.store.Login(ctx, "ana@campus.edu", "secret1")
	require.NoError(t, err)

	_, err = f.store.Login(ctx, "ana@campus.edu", "nope")
	require.Error(t, err)

	assert.False(t, f.store.Snapshot().IsAuthenticated())
	assert.Empty(t, f.stored(t))
	assert.False(t, f.api.HasBearer())
}

func TestRegister(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)
	ctx := context.Background()

	f := newFixture(t, "")
	user, err := f.store.Register(ctx, map[string]any{
		"name":       "Bea",
		"email":      "bea@campus.edu",
		"password":   "secret1",
		"studentId":  "S-1001",
		"department": "Physics",
	})
	require.NoError(err)
	assert.Equal("Bea", user.Name())
	assert.Equal("Physics", user["department"])
	assert.True(f.store.Snapshot().IsAuthenticated())
	assert.Equal([]string{"Registration successful!"}, f.toasts.Messages())

	_, err = f.store.Register(ctx, map[string]any{"email": "bea@campus.edu", "password": "secret1"})
	require.Error(err)
	assert.Equal("User already exists with this email", f.store.Snapshot().Err)
	assert.False(f.store.Snapshot().IsAuthenticated())
}

func TestRegisterFallbackMessage(t *testing.T) {
	f := newFixture(t, "")
	f.backend.Fail(http.MethodPost, "/api/auth/register", http.StatusBadGateway, "")

	_, err := f.store.Register(context.Background(), map[string]any{"email": "x@campus.edu"})
	require.Error(t, err)
	assert.Equal(t, "Registration failed", f.store.Snapshot().Err)
}

func TestUpdateProfileMergesFields(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)
	ctx := context.Background()

	f := newFixture(t, "")
	id := f.backend.AddUser("ana@campus.edu", "secret1", "Ana")
	_, err := f.store.Login(ctx, "ana@campus.edu", "secret1")
	require.NoError(err)

	user, err := f.store.UpdateProfile(ctx, map[string]any{"name": "Ana Maria", "phone": "555-0100"})
	require.NoError(err)
	assert.Equal("Ana Maria", user.Name())
	assert.Equal("555-0100", user["phone"])
	assert.Equal(id, user.ID())
	assert.Equal([]string{"Login successful!", "Profile updated successfully!"}, f.toasts.Messages())

	req, _ := f.backend.LastRequest(http.MethodPut, "/api/auth/profile")
	assert.Equal("Bearer "+f.store.Snapshot().Token, req.Authorization)
}

func TestUpdateProfileFailureLeavesSession(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)
	ctx := context.Background()

	f := newFixture(t, "")
	f.backend.AddUser("ana@campus.edu", "secret1", "Ana")
	_, err := f.store.Login(ctx, "ana@campus.edu", "secret1")
	require.NoError(err)
	before := f.store.Snapshot()

	_, err = f.store.UpdateProfile(ctx, map[string]any{"email": "other@campus.edu"})
	require.Error(err)

	assert.Equal(before, f.store.Snapshot())
	assert.Equal("Email cannot be changed", f.toasts.Messages()[1])

	f.backend.Fail(http.MethodPut, "/api/auth/profile", http.StatusInternalServerError, "")
	_, err = f.store.UpdateProfile(ctx, map[string]any{"name": "X"})
	require.Error(err)
	assert.Equal("Failed to update profile", f.toasts.Messages()[2])
	assert.Equal(before, f.store.Snapshot())
}

func TestLogout(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)
	ctx := context.Background()

	f := newFixture(t, "")
	f.backend.AddUser("ana@campus.edu", "secret1", "Ana")
	_, err := f.store.Login(ctx, "ana@campus.edu", "secret1")
	require.NoError(err)
	requests := len(f.backend.Requests())

	f.store.Logout(ctx)

	s := f.store.Snapshot()
	assert.False(s.IsAuthenticated())
	assert.Nil(s.User)
	assert.Empty(f.stored(t))
	assert.False(f.api.HasBearer())
	assert.Len(f.backend.Requests(), requests, "logout is local only")

	last := f.toasts.All()[len(f.toasts.All())-1]
	assert.Equal("Logged out successfully", last.Message)
	assert.Equal(notify.LevelInfo, last.Level)

	claims, err := f.store.Claims()
	assert.NoError(err)
	assert.Nil(claims)
}

func TestClearError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "")

	_, err := f.store.Login(ctx, "nobody@campus.edu", "x")
	require.Error(t, err)
	require.NotEmpty(t, f.store.Snapshot().Err)

	f.store.ClearError(ctx)
	assert.Empty(t, f.store.Snapshot().Err)
}

func TestSubscribeSeesTransitions(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)
	ctx := context.Background()

	f := newFixture(t, "")
	f.backend.AddUser("ana@campus.edu", "secret1", "Ana")

	var mu sync.Mutex
	var events []string
	unsubscribe := f.store.Subscribe(func(c Change) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, c.Event)
		if c.Event == "auth_succeeded" {
			assert.True(c.State.IsAuthenticated())
		}
	})

	_, err := f.store.Login(ctx, "ana@campus.edu", "secret1")
	require.NoError(err)
	unsubscribe()
	unsubscribe()
	f.store.Logout(ctx)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal([]string{"load_started", "auth_succeeded"}, events)
}

func TestSnapshotIsACopy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "")
	f.backend.AddUser("ana@campus.edu", "secret1", "Ana")
	_, err := f.store.Login(ctx, "ana@campus.edu", "secret1")
	require.NoError(t, err)

	s := f.store.Snapshot()
	s.User["name"] = "mutated"

	assert.Equal(t, "Ana", f.store.Snapshot().User.Name())
}

func TestClaimsOpaqueToken(t *testing.T) {
	f := newFixture(t, "")
	f.store.dispatch(context.Background(), TokenRestored{Token: "opaque"})

	_, err := f.store.Claims()
	assert.True(t, errors.Is(err, jwt.ErrNotJWT))
}

// slowCreds blocks Save until release is closed.
type slowCreds struct {
	*MemoryStore
	saving  chan struct{}
	release chan struct{}
}

func (c *slowCreds) Save(ctx context.Context, token string) error {
	close(c.saving)
	<-c.release
	return c.MemoryStore.Save(ctx, token)
}

func TestSlowCredentialSaveKeepsOrderWithoutBlockingReads(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)
	ctx := context.Background()

	b := apitest.New()
	t.Cleanup(b.Close)
	b.AddUser("ana@campus.edu", "secret1", "Ana")
	api := apiclient.New(b.URL(), 2*time.Second)
	creds := &slowCreds{MemoryStore: NewMemoryStore(""), saving: make(chan struct{}), release: make(chan struct{})}
	store := NewStore(api, creds, nil)
	require.NoError(store.Initialize(ctx))

	var mu sync.Mutex
	var changes []Change
	store.Subscribe(func(c Change) {
		mu.Lock()
		defer mu.Unlock()
		changes = append(changes, c)
	})

	login := make(chan error, 1)
	go func() {
		_, err := store.Login(ctx, "ana@campus.edu", "secret1")
		login <- err
	}()
	<-creds.saving

	read := make(chan State, 1)
	go func() { read <- store.Snapshot() }()
	select {
	case s := <-read:
		assert.True(s.IsAuthenticated())
	case <-time.After(time.Second):
		t.Fatal("Snapshot blocked on credential save")
	}

	logout := make(chan struct{})
	go func() {
		store.Logout(ctx)
		close(logout)
	}()
	require.Eventually(func() bool { return !store.Snapshot().IsAuthenticated() }, time.Second, 5*time.Millisecond)

	close(creds.release)
	require.NoError(<-login)
	<-logout

	tok, err := creds.Load(ctx)
	require.NoError(err)
	assert.Empty(tok, "clear ran before the earlier save")
	assert.False(api.HasBearer())

	mu.Lock()
	defer mu.Unlock()
	var names []string
	for _, c := range changes {
		names = append(names, c.Event)
	}
	assert.Equal([]string{"load_started", "auth_succeeded", "logged_out"}, names)
	assert.Equal(store.Snapshot(), changes[len(changes)-1].State)
}
