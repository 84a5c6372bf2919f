package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quickchat/internal/app/chat"
	"quickchat/internal/app/presence"
	"quickchat/internal/app/storage"
	"quickchat/internal/app/store"
	"quickchat/internal/app/user"
	"quickchat/internal/configs"
	"quickchat/internal/pkg/errs"
	"quickchat/internal/pkg/logx"
	"quickchat/internal/pkg/pow"
	"quickchat/internal/protocol"
)

const testSecret = "test-secret"

func TestMain(m *testing.M) {
	logx.SetOutput(io.Discard)
	os.Exit(m.Run())
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	*httptest.Server
	deps *AppDeps
	st   *store.Memory
}

func newTestServer(t *testing.T, storageService storage.StorageService) *testServer {
	t.Helper()

	st := store.NewMemory()
	hub := chat.NewHub(st, presence.NewRegistry())
	go hub.Run()

	powManager := pow.NewManager(1)

	deps := &AppDeps{
		Hub:     hub,
		Config:  &configs.AppConfig{Environment: "development", JWTSecret: testSecret},
		Store:   st,
		Pow:     powManager,
		Storage: storageService,
	}

	srv := httptest.NewServer(Router(deps))
	t.Cleanup(func() {
		srv.CloseClientConnections()
		srv.Close()
		hub.Stop()
		powManager.Close()
	})

	return &testServer{Server: srv, deps: deps, st: st}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) (int, envelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	res, err := client.Do(httpReq)
	require.NoError(t, err)
	defer res.Body.Close()

	var env envelope
	if strings.HasPrefix(res.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(res.Body).Decode(&env))
	}
	return res.StatusCode, env
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func register(t *testing.T, s *testServer, name, email string) AuthResult {
	t.Helper()
	status, env := s.do(t, http.MethodPost, "/api/auth/register",
		RegisterInput{DisplayName: name, Email: email, Password: "secret123"}, nil)
	require.Equal(t, http.StatusCreated, status, env.Message)

	var result AuthResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	return result
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)

	for _, path := range []string{"/health", "/api/health"} {
		status, env := s.do(t, http.MethodGet, path, nil, nil)
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, 0, env.Code)
		assert.Contains(t, string(env.Data), `"status":"ok"`)
	}
}

func TestRegisterAndLogin(t *testing.T) {
	s := newTestServer(t, nil)

	created := register(t, s, "  Alice  ", "Alice@Example.com")
	assert.Equal(t, "Alice", created.User.DisplayName)
	assert.Equal(t, user.DefaultBio, created.User.Bio)
	assert.NotEmpty(t, created.Token)

	status, env := s.do(t, http.MethodPost, "/api/auth/register",
		RegisterInput{DisplayName: "Other", Email: "alice@example.com", Password: "secret123"}, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, errs.ErrEmailAlreadyExists, env.Code)

	status, env = s.do(t, http.MethodPost, "/api/auth/login", LoginInput{Email: "alice@example.com", Password: "secret123"}, nil)
	require.Equal(t, http.StatusOK, status)
	var loggedIn AuthResult
	require.NoError(t, json.Unmarshal(env.Data, &loggedIn))
	assert.Equal(t, created.User.ID, loggedIn.User.ID)

	status, env = s.do(t, http.MethodPost, "/api/auth/login", LoginInput{Email: "alice@example.com", Password: "wrong-pass"}, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, errs.ErrInvalidCredentials, env.Code)
}

func TestRegisterValidation(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name  string
		input RegisterInput
		code  int
	}{
		{name: "blank name", input: RegisterInput{DisplayName: "   ", Email: "a@example.com", Password: "secret123"}, code: errs.ErrInvalidDisplayName},
		{name: "bad email", input: RegisterInput{DisplayName: "A", Email: "not-an-email", Password: "secret123"}, code: errs.ErrInvalidEmail},
		{name: "short password", input: RegisterInput{DisplayName: "A", Email: "a@example.com", Password: "123"}, code: errs.ErrInvalidPassword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := s.do(t, http.MethodPost, "/api/auth/register", tt.input, nil)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, tt.code, env.Code)
		})
	}
}

func TestGuestFlow(t *testing.T) {
	s := newTestServer(t, nil)

	status, env := s.do(t, http.MethodPost, "/api/guest", struct{}{}, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, errs.ErrPowChallengeRequired, env.Code)

	status, env = s.do(t, http.MethodGet, "/api/guest/challenge", nil, nil)
	require.Equal(t, http.StatusOK, status)
	var challenge pow.Challenge
	require.NoError(t, json.Unmarshal(env.Data, &challenge))
	assert.Equal(t, 1, challenge.Difficulty)

	status, env = s.do(t, http.MethodPost, "/api/guest/verify", VerifyChallengeInput{
		Nonce:   challenge.Nonce,
		Counter: pow.Solve(challenge.Nonce, challenge.Difficulty),
	}, nil)
	require.Equal(t, http.StatusOK, status)
	var proof struct {
		PowToken string `json:"powToken"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &proof))

	status, env = s.do(t, http.MethodPost, "/api/guest", struct{}{}, map[string]string{pow.TokenHeaderKey: proof.PowToken})
	require.Equal(t, http.StatusCreated, status)
	var guest AuthResult
	require.NoError(t, json.Unmarshal(env.Data, &guest))
	assert.True(t, strings.HasPrefix(guest.User.DisplayName, "Guest "))

	status, env = s.do(t, http.MethodPost, "/api/guest", struct{}{}, map[string]string{pow.TokenHeaderKey: proof.PowToken})
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, errs.ErrRateLimitExceeded, env.Code)
}

func TestVerifyRejectsBadProof(t *testing.T) {
	s := newTestServer(t, nil)

	challenge := s.deps.Pow.Issue()
	counter := "0"
	for pow.Satisfies(challenge.Nonce, counter, 1) {
		counter += "0"
	}

	status, env := s.do(t, http.MethodPost, "/api/guest/verify", VerifyChallengeInput{Nonce: challenge.Nonce, Counter: counter}, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, errs.ErrPowChallengeInvalid, env.Code)
}

func TestListUsersExcludesCaller(t *testing.T) {
	s := newTestServer(t, nil)

	alice := register(t, s, "Alice", "alice@example.com")
	bob := register(t, s, "Bob", "bob@example.com")

	status, env := s.do(t, http.MethodGet, "/api/users?exclude="+alice.User.ID, nil, nil)
	require.Equal(t, http.StatusOK, status)

	var data struct {
		Users []user.User `json:"users"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Len(t, data.Users, 1)
	assert.Equal(t, bob.User.ID, data.Users[0].ID)
}

func TestListMessagesRequiresBothIDs(t *testing.T) {
	s := newTestServer(t, nil)

	status, env := s.do(t, http.MethodGet, "/api/messages?userId=a", nil, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, errs.ErrInvalidParams, env.Code)

	status, env = s.do(t, http.MethodGet, "/api/messages?userId=a&peerId=b", nil, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"messages":[]}`, string(env.Data))
}

func TestUpdateProfile(t *testing.T) {
	s := newTestServer(t, nil)
	alice := register(t, s, "Alice", "alice@example.com")

	status, env := s.do(t, http.MethodPatch, "/api/profile", map[string]string{"displayName": "Al"}, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, errs.ErrUnauthorized, env.Code)

	status, env = s.do(t, http.MethodPatch, "/api/profile",
		map[string]string{"displayName": " Al ", "bio": "   ", "avatarKey": "profile_enrique"}, bearer(alice.Token))
	require.Equal(t, http.StatusOK, status, env.Message)

	var data struct {
		User user.User `json:"user"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "Al", data.User.DisplayName)
	assert.Empty(t, data.User.Bio, "a blank bio clears it")
	assert.Equal(t, "profile_enrique", data.User.AvatarKey)

	status, env = s.do(t, http.MethodPatch, "/api/profile", map[string]string{"displayName": "  "}, bearer(alice.Token))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, errs.ErrInvalidDisplayName, env.Code)

	status, env = s.do(t, http.MethodPatch, "/api/profile", map[string]string{"avatarKey": "avatars/someone-else/x.png"}, bearer(alice.Token))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, errs.ErrInvalidAvatarKey, env.Code)
}

// fakeStorage records calls instead of talking to S3.
type fakeStorage struct {
	objects map[string]storage.ObjectInfo
	deleted chan string
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string]storage.ObjectInfo), deleted: make(chan string, 4)}
}

func (f *fakeStorage) PresignUpload(_ context.Context, key, _ string, _ int64, _ time.Duration) (string, error) {
	return "https://bucket.example.com/" + key + "?signed=put", nil
}

func (f *fakeStorage) PresignDownload(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://bucket.example.com/" + key + "?signed=get", nil
}

func (f *fakeStorage) Delete(_ context.Context, key string) error {
	f.deleted <- key
	return nil
}

func (f *fakeStorage) ObjectInfo(_ context.Context, key string) (storage.ObjectInfo, error) {
	info, ok := f.objects[key]
	if !ok {
		return storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return info, nil
}

func TestAvatarPresignDisabledWithoutStorage(t *testing.T) {
	s := newTestServer(t, nil)
	alice := register(t, s, "Alice", "alice@example.com")

	status, env := s.do(t, http.MethodPost, "/api/user/avatar/presign",
		PresignAvatarInput{FileName: "me.png", MimeType: "image/png", FileSize: 100}, bearer(alice.Token))
	assert.Equal(t, http.StatusNotImplemented, status)
	assert.Equal(t, errs.ErrFeatureDisabled, env.Code)
}

func TestAvatarUploadFlow(t *testing.T) {
	fake := newFakeStorage()
	s := newTestServer(t, fake)
	alice := register(t, s, "Alice", "alice@example.com")

	status, env := s.do(t, http.MethodPost, "/api/user/avatar/presign",
		PresignAvatarInput{FileName: "me.txt", MimeType: "text/plain", FileSize: 100}, bearer(alice.Token))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, errs.ErrFileTypeInvalid, env.Code)

	presign := func() string {
		status, env := s.do(t, http.MethodPost, "/api/user/avatar/presign",
			PresignAvatarInput{FileName: "me.png", MimeType: "image/png", FileSize: 100}, bearer(alice.Token))
		require.Equal(t, http.StatusOK, status)
		var data struct {
			PresignedURL string `json:"presignedUrl"`
			AvatarKey    string `json:"avatarKey"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &data))
		assert.Contains(t, data.PresignedURL, data.AvatarKey)
		return data.AvatarKey
	}

	first := presign()
	assert.True(t, strings.HasPrefix(first, "avatars/"+alice.User.ID+"/"))

	status, env = s.do(t, http.MethodPatch, "/api/profile", map[string]string{"avatarKey": first}, bearer(alice.Token))
	assert.Equal(t, http.StatusBadRequest, status, "the object was never uploaded")
	assert.Equal(t, errs.ErrInvalidAvatarKey, env.Code)

	fake.objects[first] = storage.ObjectInfo{ContentType: "image/png", Size: 100}
	status, _ = s.do(t, http.MethodPatch, "/api/profile", map[string]string{"avatarKey": first}, bearer(alice.Token))
	require.Equal(t, http.StatusOK, status)

	second := presign()
	fake.objects[second] = storage.ObjectInfo{ContentType: "image/png", Size: 100}
	status, _ = s.do(t, http.MethodPatch, "/api/profile", map[string]string{"avatarKey": second}, bearer(alice.Token))
	require.Equal(t, http.StatusOK, status)

	select {
	case key := <-fake.deleted:
		assert.Equal(t, first, key, "the replaced upload is removed")
	case <-time.After(2 * time.Second):
		t.Fatal("replaced avatar was not deleted")
	}

	res, err := (&http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}).
		Get(s.URL + "/api/user/avatar?k=" + second)
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusFound, res.StatusCode)
	assert.Contains(t, res.Header.Get("Location"), "signed=get")
}

func dial(t *testing.T, s *testServer) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func writeEvent(t *testing.T, conn *websocket.Conn, eventType protocol.EventType, payload any) {
	t.Helper()
	b, err := protocol.Encode(eventType, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, b))
}

// readUntil reads frames until one of eventType arrives and match accepts it.
func readUntil(t *testing.T, conn *websocket.Conn, eventType protocol.EventType, match func(protocol.Envelope) bool) protocol.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, b, err := conn.ReadMessage()
		require.NoError(t, err)
		env, err := protocol.Decode(b)
		require.NoError(t, err)
		if env.Type == eventType && (match == nil || match(env)) {
			return env
		}
	}
}

func onlineContains(ids ...string) func(protocol.Envelope) bool {
	return func(env protocol.Envelope) bool {
		var p protocol.PresencePayload
		if env.DecodePayload(&p) != nil {
			return false
		}
		for _, id := range ids {
			found := false
			for _, online := range p.OnlineUserIDs {
				found = found || online == id
			}
			if !found {
				return false
			}
		}
		return true
	}
}

func TestWebSocket_DirectMessageEndToEnd(t *testing.T) {
	s := newTestServer(t, nil)
	alice := register(t, s, "Alice", "alice@example.com")
	bob := register(t, s, "Bob", "bob@example.com")

	aliceConn := dial(t, s)
	bobConn := dial(t, s)

	writeEvent(t, aliceConn, protocol.EventRegister, protocol.RegisterPayload{UserID: alice.User.ID})
	writeEvent(t, bobConn, protocol.EventRegister, protocol.RegisterPayload{UserID: bob.User.ID})

	readUntil(t, aliceConn, protocol.EventPresenceUpdate, onlineContains(alice.User.ID, bob.User.ID))
	readUntil(t, bobConn, protocol.EventPresenceUpdate, onlineContains(alice.User.ID, bob.User.ID))

	writeEvent(t, aliceConn, protocol.EventMessageSend, protocol.SendPayload{
		FromUserID: alice.User.ID,
		ToUserID:   bob.User.ID,
		Text:       "hi",
	})

	for _, conn := range []*websocket.Conn{aliceConn, bobConn} {
		env := readUntil(t, conn, protocol.EventMessageNew, nil)
		var msg protocol.NewMessagePayload
		require.NoError(t, env.DecodePayload(&msg))
		assert.Equal(t, "hi", msg.Text)
		assert.Equal(t, alice.User.ID, msg.SenderID)
		assert.Equal(t, bob.User.ID, msg.ReceiverID)
	}

	status, env := s.do(t, http.MethodGet, "/api/messages?userId="+bob.User.ID+"&peerId="+alice.User.ID, nil, nil)
	require.Equal(t, http.StatusOK, status)
	var data struct {
		Messages []protocol.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Len(t, data.Messages, 1)
	assert.Equal(t, "hi", data.Messages[0].Text)

	require.NoError(t, bobConn.Close())
	readUntil(t, aliceConn, protocol.EventPresenceUpdate, func(env protocol.Envelope) bool {
		return !onlineContains(bob.User.ID)(env)
	})
}

func TestWebSocket_UnknownParticipantGetsError(t *testing.T) {
	s := newTestServer(t, nil)
	alice := register(t, s, "Alice", "alice@example.com")

	conn := dial(t, s)
	writeEvent(t, conn, protocol.EventRegister, protocol.RegisterPayload{UserID: alice.User.ID})
	readUntil(t, conn, protocol.EventPresenceUpdate, onlineContains(alice.User.ID))

	writeEvent(t, conn, protocol.EventMessageSend, protocol.SendPayload{
		FromUserID: alice.User.ID,
		ToUserID:   "no-such-user",
		Text:       "hello?",
	})

	env := readUntil(t, conn, protocol.EventMessageError, nil)
	var p protocol.ErrorPayload
	require.NoError(t, env.DecodePayload(&p))
	assert.Equal(t, errs.ErrInvalidParticipants, p.Code)
	assert.Equal(t, "Invalid sender/receiver. Please re-login and try again.", p.Error)
}
