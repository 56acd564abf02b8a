package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnshRaj112/mystery-message-backend/internal/middleware"
	"github.com/AnshRaj112/mystery-message-backend/internal/services"
	"github.com/AnshRaj112/mystery-message-backend/internal/testutil"
)

type handlerFixture struct {
	h        *Handler
	store    *testutil.UserStore
	mailer   *testutil.Mailer
	sessions *services.SessionStore
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()

	_, client := testutil.NewRedis(t)
	f := &handlerFixture{
		store:    testutil.NewUserStore(),
		mailer:   testutil.NewMailer(),
		sessions: services.NewSessionStore(client, time.Hour),
	}
	inbox := services.NewInbox(client)
	accounts := services.NewAccountService(services.AccountConfig{
		Store:       f.store,
		Mailer:      f.mailer,
		Hasher:      testutil.NewHasher(),
		Publisher:   inbox,
		FrontendURL: "http://localhost:3000",
	})
	f.h = New(accounts, f.sessions, inbox, nil)
	return f
}

func (f *handlerFixture) do(t *testing.T, h http.HandlerFunc, method, target string, body any, token string) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	r := httptest.NewRequest(method, target, &buf)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()

	var handler http.Handler = h
	if token != "" {
		handler = middleware.RequireSession(f.sessions)(h)
	}
	handler.ServeHTTP(w, r)

	var resp APIResponse
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	}
	return w, resp
}

func (f *handlerFixture) signUp(t *testing.T, username, email, password string) string {
	t.Helper()
	w, _ := f.do(t, f.h.SignUp, http.MethodPost, "/api/sign-up", SignUpRequest{username, email, password}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	code, ok := f.mailer.LastCode(strings.ToLower(email))
	require.True(t, ok)
	return code
}

func (f *handlerFixture) verifiedToken(t *testing.T, username, email, password string) string {
	t.Helper()
	code := f.signUp(t, username, email, password)
	w, _ := f.do(t, f.h.VerifyCode, http.MethodPost, "/api/verify-code", VerifyCodeRequest{username, code}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w, resp := f.do(t, f.h.SignIn, http.MethodPost, "/api/sign-in", SignInRequest{username, password}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func TestSignUp(t *testing.T) {
	f := newHandlerFixture(t)

	t.Run("field errors are listed", func(t *testing.T) {
		w, resp := f.do(t, f.h.SignUp, http.MethodPost, "/api/sign-up", SignUpRequest{"a!", "nope", "short"}, "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.False(t, resp.Success)
		require.Len(t, resp.Errors, 3)
		assert.Equal(t, "username", resp.Errors[0].Field)
		assert.Equal(t, "email", resp.Errors[1].Field)
		assert.Equal(t, "password", resp.Errors[2].Field)
	})

	t.Run("malformed body", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/api/sign-up", strings.NewReader("{"))
		w := httptest.NewRecorder()
		f.h.SignUp(w, r)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("created then taken", func(t *testing.T) {
		f.verifiedToken(t, "alice", "a@x.com", "pw123456")

		w, resp := f.do(t, f.h.SignUp, http.MethodPost, "/api/sign-up", SignUpRequest{"alice", "new@x.com", "pw123456"}, "")
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "Username already exists", resp.Message)

		w, resp = f.do(t, f.h.SignUp, http.MethodPost, "/api/sign-up", SignUpRequest{"bob", "a@x.com", "pw123456"}, "")
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "Email already exists", resp.Message)
	})

	t.Run("email failure", func(t *testing.T) {
		f.mailer.FailWith(errors.New("provider down"))
		defer f.mailer.FailWith(nil)

		w, resp := f.do(t, f.h.SignUp, http.MethodPost, "/api/sign-up", SignUpRequest{"carol", "c@x.com", "pw123456"}, "")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "Error sending verification email", resp.Message)
	})

	t.Run("store down", func(t *testing.T) {
		f.store.FailWith(testutil.ErrInjected)
		defer f.store.FailWith(nil)

		w, _ := f.do(t, f.h.SignUp, http.MethodPost, "/api/sign-up", SignUpRequest{"dave", "d@x.com", "pw123456"}, "")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestVerifyCode(t *testing.T) {
	f := newHandlerFixture(t)
	code := f.signUp(t, "alice", "a@x.com", "pw123456")
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	w, resp := f.do(t, f.h.VerifyCode, http.MethodPost, "/api/verify-code", VerifyCodeRequest{"alice", "12"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "code", resp.Errors[0].Field)

	w, resp = f.do(t, f.h.VerifyCode, http.MethodPost, "/api/verify-code", VerifyCodeRequest{"alice", wrong}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid code", resp.Message)

	w, _ = f.do(t, f.h.VerifyCode, http.MethodPost, "/api/verify-code", VerifyCodeRequest{"nobody", code}, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, resp = f.do(t, f.h.VerifyCode, http.MethodPost, "/api/verify-code", VerifyCodeRequest{"alice", code}, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)

	w, _ = f.do(t, f.h.VerifyCode, http.MethodPost, "/api/verify-code", VerifyCodeRequest{"alice", code}, "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSignIn(t *testing.T) {
	f := newHandlerFixture(t)
	f.verifiedToken(t, "alice", "a@x.com", "pw123456")
	f.signUp(t, "bob", "b@x.com", "pw123456")

	w, resp := f.do(t, f.h.SignIn, http.MethodPost, "/api/sign-in", SignInRequest{"a@x.com", "pw123456"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, resp.Token)
	require.NotNil(t, resp.User)
	assert.Equal(t, "alice", resp.User.Username)

	wrongPw, respWrong := f.do(t, f.h.SignIn, http.MethodPost, "/api/sign-in", SignInRequest{"alice", "wrongpw"}, "")
	unknown, respUnknown := f.do(t, f.h.SignIn, http.MethodPost, "/api/sign-in", SignInRequest{"nobody", "pw123456"}, "")
	assert.Equal(t, http.StatusUnauthorized, wrongPw.Code)
	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.Equal(t, respWrong, respUnknown, "unknown account and wrong password must be indistinguishable")

	w, _ = f.do(t, f.h.SignIn, http.MethodPost, "/api/sign-in", SignInRequest{"bob", "pw123456"}, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = f.do(t, f.h.SignIn, http.MethodPost, "/api/sign-in", SignInRequest{"", ""}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSignOut(t *testing.T) {
	f := newHandlerFixture(t)
	token := f.verifiedToken(t, "alice", "a@x.com", "pw123456")

	w, _ := f.do(t, f.h.SignOut, http.MethodPost, "/api/sign-out", nil, token)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = f.do(t, f.h.GetMessages, http.MethodGet, "/api/messages", nil, token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCheckUsername(t *testing.T) {
	f := newHandlerFixture(t)
	f.verifiedToken(t, "alice", "a@x.com", "pw123456")

	tests := []struct {
		query  string
		status int
	}{
		{"alice", http.StatusConflict},
		{"ALICE", http.StatusConflict},
		{"bob", http.StatusOK},
		{"x", http.StatusBadRequest},
		{"bad%20name", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w, resp := f.do(t, f.h.CheckUsername, http.MethodGet, "/api/check-username?username="+tt.query, nil, "")
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.status == http.StatusOK, resp.Success)
		})
	}
}

func TestSendMessage(t *testing.T) {
	f := newHandlerFixture(t)
	token := f.verifiedToken(t, "alice", "a@x.com", "pw123456")

	w, resp := f.do(t, f.h.SendMessage, http.MethodPost, "/api/send-message", SendMessageRequest{"alice", "hello"}, "")
	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "hello", resp.Messages[0].Content)

	w, _ = f.do(t, f.h.SendMessage, http.MethodPost, "/api/send-message", SendMessageRequest{"nobody", "hello"}, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = f.do(t, f.h.SendMessage, http.MethodPost, "/api/send-message", SendMessageRequest{"alice", strings.Repeat("x", 301)}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = f.do(t, f.h.SendMessage, http.MethodPost, "/api/send-message", SendMessageRequest{"", "hello"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	off := false
	w, resp = f.do(t, f.h.UpdateAcceptMessages, http.MethodPost, "/api/accept-messages", AcceptMessagesRequest{&off}, token)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, resp.IsAcceptingMessages)
	assert.False(t, *resp.IsAcceptingMessages)

	w, resp = f.do(t, f.h.SendMessage, http.MethodPost, "/api/send-message", SendMessageRequest{"alice", "hello again"}, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "User is not accepting messages", resp.Message)

	w, resp = f.do(t, f.h.GetMessages, http.MethodGet, "/api/messages", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp.Messages, 1)
}

func TestAcceptMessages(t *testing.T) {
	f := newHandlerFixture(t)
	token := f.verifiedToken(t, "alice", "a@x.com", "pw123456")

	w, resp := f.do(t, f.h.GetAcceptMessages, http.MethodGet, "/api/accept-messages", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, resp.IsAcceptingMessages)
	assert.True(t, *resp.IsAcceptingMessages)

	w, _ = f.do(t, f.h.UpdateAcceptMessages, http.MethodPost, "/api/accept-messages", map[string]any{}, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	r := httptest.NewRequest(http.MethodGet, "/api/accept-messages", nil)
	w = httptest.NewRecorder()
	f.h.GetAcceptMessages(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetMessages_EmptyInboxIsArray(t *testing.T) {
	f := newHandlerFixture(t)
	token := f.verifiedToken(t, "alice", "a@x.com", "pw123456")

	w, _ := f.do(t, f.h.GetMessages, http.MethodGet, "/api/messages", nil, token)
	require.Equal(t, http.StatusOK, w.Code)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	assert.JSONEq(t, "[]", string(raw["messages"]))
}

func TestGetMessages_NewestFirst(t *testing.T) {
	f := newHandlerFixture(t)
	token := f.verifiedToken(t, "alice", "a@x.com", "pw123456")

	for i := 0; i < 3; i++ {
		w, _ := f.do(t, f.h.SendMessage, http.MethodPost, "/api/send-message", SendMessageRequest{"alice", fmt.Sprintf("m%d", i)}, "")
		require.Equal(t, http.StatusCreated, w.Code)
		time.Sleep(2 * time.Millisecond)
	}

	w, resp := f.do(t, f.h.GetMessages, http.MethodGet, "/api/messages", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, resp.Messages, 3)
	assert.Equal(t, "m2", resp.Messages[0].Content)
	assert.Equal(t, "m0", resp.Messages[2].Content)
}

func TestHealth(t *testing.T) {
	h := New(nil, nil, nil, map[string]Pinger{
		"mongodb": func(context.Context) error { return nil },
	})
	w := httptest.NewRecorder()
	h.Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	h = New(nil, nil, nil, map[string]Pinger{
		"redis": func(context.Context) error { return errors.New("down") },
	})
	w = httptest.NewRecorder()
	h.Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestErrorStatus_WrappedErrors(t *testing.T) {
	status, _ := errorStatus(fmt.Errorf("lookup: %w: %w", services.ErrStoreUnavailable, errors.New("timeout")))
	assert.Equal(t, http.StatusServiceUnavailable, status)

	status, _ = errorStatus(errors.New("unexpected"))
	assert.Equal(t, http.StatusInternalServerError, status)
}
