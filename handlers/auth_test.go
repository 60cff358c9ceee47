package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ZhengyiNLP/sister-expense-tracker/types"
)

func (s *E2ETestSuite) TestRegisterReturnsTokenAndHidesHash() {
	res := s.request(http.MethodPost, "/register", "", map[string]string{
		"username": "owner", "email": "owner@example.com", "password": "ownerpass", "name": "Owner",
	})
	s.Require().Equal(http.StatusCreated, res.status)
	s.Equal(true, res.body["success"])

	data := res.data()
	s.NotEmpty(data["token"])
	s.Equal(float64(1), data["userId"])
	user := data["user"].(map[string]interface{})
	s.Equal("owner", user["username"])
	s.Equal("Owner", user["name"])
	s.NotContains(string(res.raw), "ownerpass")
	s.NotContains(user, "passwordHash")
	s.NotContains(user, "password")

	stored, err := s.store.GetUserByUsername(context.Background(), "owner")
	s.Require().NoError(err)
	s.NotEqual("ownerpass", stored.PasswordHash)
	s.True(s.hasher.Verify("ownerpass", stored.PasswordHash))
}

func (s *E2ETestSuite) TestRegisterOnAuthPrefix() {
	res := s.request(http.MethodPost, "/auth/register", "", map[string]string{
		"email": "prefixed@example.com", "password": "secret1",
	})
	s.Require().Equal(http.StatusCreated, res.status)

	// username falls back to the email
	s.Equal(http.StatusOK, s.request(http.MethodPost, "/auth/login", "", map[string]string{
		"email": "prefixed@example.com", "password": "secret1",
	}).status)
	s.Equal(http.StatusOK, s.login("prefixed@example.com", "secret1").status)
}

func (s *E2ETestSuite) TestRegisterValidation() {
	cases := map[string]interface{}{
		"missing email":  map[string]string{"username": "a", "password": "secret1"},
		"invalid email":  map[string]string{"username": "a", "email": "nope", "password": "secret1"},
		"short password": map[string]string{"username": "a", "email": "a@example.com", "password": "12345"},
		"no password":    map[string]string{"username": "a", "email": "a@example.com"},
		"not json":       "{",
	}
	for name, body := range cases {
		res := s.request(http.MethodPost, "/register", "", body)
		s.Equal(http.StatusBadRequest, res.status, name)
		s.Equal(types.ErrorCodeValidation, res.errorCode(), name)
	}
}

func (s *E2ETestSuite) TestRegisterConflict() {
	s.register("owner", "owner@example.com", "ownerpass")

	res := s.request(http.MethodPost, "/register", "", map[string]string{
		"username": "owner", "email": "other@example.com", "password": "ownerpass",
	})
	s.Equal(http.StatusConflict, res.status)
	s.Equal(types.ErrorCodeConflict, res.errorCode())

	res = s.request(http.MethodPost, "/register", "", map[string]string{
		"username": "other", "email": "owner@example.com", "password": "ownerpass",
	})
	s.Equal(http.StatusConflict, res.status)
}

func (s *E2ETestSuite) TestRegisterRejectsIdentifierUsedAsOtherField() {
	s.register("bob@example.com", "alice@example.com", "alicepass")

	res := s.request(http.MethodPost, "/register", "", map[string]string{
		"username": "bob", "email": "bob@example.com", "password": "bobpass1",
	})
	s.Equal(http.StatusConflict, res.status)
	s.Equal(types.ErrorCodeConflict, res.errorCode())

	res = s.request(http.MethodPost, "/register", "", map[string]string{
		"username": "alice@example.com", "email": "carol@example.com", "password": "carolpass",
	})
	s.Equal(http.StatusConflict, res.status)

	// the first account still logs in through both identifiers
	s.Equal(http.StatusOK, s.login("bob@example.com", "alicepass").status)
	s.Equal(http.StatusOK, s.login("alice@example.com", "alicepass").status)
}

func (s *E2ETestSuite) TestLoginFailuresAreIndistinguishable() {
	s.register("owner", "owner@example.com", "ownerpass")

	wrongPassword := s.login("owner", "invalid")
	unknownUser := s.login("ghost", "invalid")

	s.Equal(http.StatusUnauthorized, wrongPassword.status)
	s.Equal(wrongPassword.status, unknownUser.status)
	s.Equal(string(wrongPassword.raw), string(unknownUser.raw))
}

func (s *E2ETestSuite) TestLoginReturnsSessionAndUpdatesLastLogin() {
	s.register("owner", "owner@example.com", "ownerpass")

	res := s.login("owner", "ownerpass")
	s.Require().Equal(http.StatusOK, res.status)
	data := res.data()
	s.NotEmpty(data["token"])
	s.Equal(float64(s.clock().Add(24*time.Hour).Unix()), data["expiresAt"])
	user := data["user"].(map[string]interface{})
	s.Equal("owner@example.com", user["email"])
	s.NotEmpty(user["lastLogin"])

	byEmail := s.login("owner@example.com", "ownerpass")
	s.Equal(http.StatusOK, byEmail.status)

	s.Equal(http.StatusBadRequest, s.request(http.MethodPost, "/login", "", map[string]string{"password": "x"}).status)
}

func (s *E2ETestSuite) TestAuthMiddleware() {
	token := s.register("owner", "owner@example.com", "ownerpass")

	s.Equal(http.StatusUnauthorized, s.request(http.MethodGet, "/records", "", nil).status)

	req, err := http.NewRequest(http.MethodGet, s.baseURL+"/records", nil)
	s.Require().NoError(err)
	req.Header.Set("Authorization", "Basic abc")
	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	resp.Body.Close()
	s.Equal(http.StatusUnauthorized, resp.StatusCode)

	bad := s.request(http.MethodGet, "/records", "not-a-jwt", nil)
	s.Equal(http.StatusForbidden, bad.status)
	s.Equal(types.ErrorCodeForbidden, bad.errorCode())

	s.Equal(http.StatusOK, s.request(http.MethodGet, "/records", token, nil).status)

	s.advance(24*time.Hour + time.Second)
	expired := s.request(http.MethodGet, "/records", token, nil)
	s.Equal(http.StatusForbidden, expired.status)
}

func (s *E2ETestSuite) TestGetCurrentUser() {
	token := s.register("owner", "owner@example.com", "ownerpass")

	res := s.request(http.MethodGet, "/user", token, nil)
	s.Require().Equal(http.StatusOK, res.status)
	s.Equal("owner", res.data()["username"])
	s.NotContains(string(res.raw), "$2a$")
}

func (s *E2ETestSuite) TestForgotPasswordDoesNotRevealAccounts() {
	s.register("owner", "owner@example.com", "ownerpass")

	known := s.request(http.MethodPost, "/auth/forgot-password", "", map[string]string{"email": "owner@example.com"})
	unknown := s.request(http.MethodPost, "/auth/forgot-password", "", map[string]string{"email": "ghost@example.com"})

	s.Equal(http.StatusOK, known.status)
	s.Equal(string(known.raw), string(unknown.raw))
	s.Len(s.notifier.sent, 1)
	s.Equal("owner@example.com", s.notifier.last().email)
	s.Len(s.notifier.last().token, 64)

	missing := s.request(http.MethodPost, "/auth/forgot-password", "", map[string]string{})
	s.Equal(http.StatusBadRequest, missing.status)
}

func (s *E2ETestSuite) TestForgotPasswordMailFailure() {
	s.register("owner", "owner@example.com", "ownerpass")
	s.notifier.err = errors.New("relay down")

	res := s.request(http.MethodPost, "/auth/forgot-password", "", map[string]string{"email": "owner@example.com"})
	s.Equal(http.StatusInternalServerError, res.status)
	s.Equal(types.ErrorCodeInternal, res.errorCode())

	// the undelivered token does not linger
	purged, err := s.store.PurgeExpiredResetTokens(context.Background(), s.clock().Add(365*24*time.Hour))
	s.NoError(err)
	s.Zero(purged)
}

func (s *E2ETestSuite) TestResetPasswordFlow() {
	s.register("owner", "owner@example.com", "ownerpass")
	s.Require().Equal(http.StatusOK, s.request(http.MethodPost, "/auth/forgot-password", "", map[string]string{"email": "owner@example.com"}).status)
	token := s.notifier.last().token

	res := s.request(http.MethodPost, "/auth/reset-password", "", map[string]string{"token": token, "newPassword": "brandnew"})
	s.Require().Equal(http.StatusOK, res.status, string(res.raw))

	s.Equal(http.StatusOK, s.login("owner", "brandnew").status)
	s.Equal(http.StatusUnauthorized, s.login("owner", "ownerpass").status)

	replay := s.request(http.MethodPost, "/auth/reset-password", "", map[string]string{"token": token, "newPassword": "another1"})
	s.Equal(http.StatusBadRequest, replay.status)
	s.Equal(types.ErrorCodeInvalidToken, replay.errorCode())
	s.Equal(http.StatusOK, s.login("owner", "brandnew").status)
}

func (s *E2ETestSuite) TestResetPasswordTokenUsableOnceUnderParallelRequests() {
	s.register("owner", "owner@example.com", "ownerpass")
	s.Require().Equal(http.StatusOK, s.request(http.MethodPost, "/auth/forgot-password", "", map[string]string{"email": "owner@example.com"}).status)
	token := s.notifier.last().token

	const workers = 8
	statuses := make(chan int, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			body, _ := json.Marshal(map[string]string{"token": token, "newPassword": fmt.Sprintf("parallel-%d", i)})
			resp, err := http.Post(s.baseURL+"/auth/reset-password", "application/json", bytes.NewReader(body))
			if err != nil {
				statuses <- 0
				return
			}
			resp.Body.Close()
			statuses <- resp.StatusCode
		}(i)
	}
	wg.Wait()
	close(statuses)

	counts := map[int]int{}
	for status := range statuses {
		counts[status]++
	}
	s.Equal(1, counts[http.StatusOK])
	s.Equal(workers-1, counts[http.StatusBadRequest])
	s.Equal(http.StatusUnauthorized, s.login("owner", "ownerpass").status)
}

func (s *E2ETestSuite) TestResetPasswordExpiredToken() {
	s.register("owner", "owner@example.com", "ownerpass")
	s.request(http.MethodPost, "/auth/forgot-password", "", map[string]string{"email": "owner@example.com"})
	token := s.notifier.last().token
	s.Require().NotEmpty(token)

	s.advance(time.Hour + time.Second)
	res := s.request(http.MethodPost, "/auth/reset-password", "", map[string]string{"token": token, "newPassword": "brandnew"})
	s.Equal(http.StatusBadRequest, res.status)
	s.Equal(types.ErrorCodeInvalidToken, res.errorCode())
	s.Equal(http.StatusOK, s.login("owner", "ownerpass").status)
}

func (s *E2ETestSuite) TestResetPasswordValidation() {
	missing := s.request(http.MethodPost, "/auth/reset-password", "", map[string]string{"newPassword": "brandnew"})
	s.Equal(http.StatusBadRequest, missing.status)

	short := s.request(http.MethodPost, "/auth/reset-password", "", map[string]string{"token": "abc", "newPassword": "123"})
	s.Equal(http.StatusBadRequest, short.status)
	s.Equal(types.ErrorCodeValidation, short.errorCode())

	unknown := s.request(http.MethodPost, "/auth/reset-password", "", map[string]string{"token": "abc", "newPassword": "brandnew"})
	s.Equal(http.StatusBadRequest, unknown.status)
	s.Equal(types.ErrorCodeInvalidToken, unknown.errorCode())
}

func (s *E2ETestSuite) TestHealthCheck() {
	res := s.request(http.MethodGet, "/health", "", nil)
	s.Require().Equal(http.StatusOK, res.status)
	s.Equal("ok", res.body["status"])
	_, err := time.Parse(time.RFC3339, res.body["timestamp"].(string))
	s.NoError(err)
	s.NotContains(res.body, "success")
}

func (s *E2ETestSuite) TestUnknownRoute() {
	res := s.request(http.MethodGet, "/nope", "", nil)
	s.Equal(http.StatusNotFound, res.status)
	s.Equal(types.ErrorCodeNotFound, res.errorCode())
}
