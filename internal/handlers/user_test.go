package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cliphub/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func authedRequest(t *testing.T, env *testEnv, method, target string, body *bytes.Buffer, contentType, accessToken string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, body)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	return env.do(req)
}

func TestUpdateAccount(t *testing.T) {
	env := newTestEnv(t)
	registerAna(t, env)
	session := loginAna(t, env)

	body := bytes.NewBufferString(`{"full_name":"Ana L","email":"ana2@x.com"}`)
	rec := authedRequest(t, env, http.MethodPatch, "/users/update-account", body, "application/json", session.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var user types.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))
	assert.Equal(t, "Ana L", user.FullName)
	assert.Equal(t, "ana2@x.com", user.Email)

	t.Run("missing fields", func(t *testing.T) {
		body := bytes.NewBufferString(`{"full_name":"","email":""}`)
		rec := authedRequest(t, env, http.MethodPatch, "/users/update-account", body, "application/json", session.AccessToken)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPatch, "/users/update-account",
			strings.NewReader(`{"full_name":"x","email":"y@x.com"}`))
		rec := env.do(req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestChangePasswordEndpoint(t *testing.T) {
	env := newTestEnv(t)
	registerAna(t, env)
	session := loginAna(t, env)

	t.Run("wrong old password", func(t *testing.T) {
		body := bytes.NewBufferString(`{"old_password":"wrong","new_password":"p2"}`)
		rec := authedRequest(t, env, http.MethodPost, "/users/change-password", body, "application/json", session.AccessToken)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("success then login with new password", func(t *testing.T) {
		body := bytes.NewBufferString(`{"old_password":"p1","new_password":"p2"}`)
		rec := authedRequest(t, env, http.MethodPost, "/users/change-password", body, "application/json", session.AccessToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		req := httptest.NewRequest(http.MethodPost, "/users/login",
			strings.NewReader(`{"username":"ana","password":"p2"}`))
		assert.Equal(t, http.StatusOK, env.do(req).Code)

		req = httptest.NewRequest(http.MethodPost, "/users/login",
			strings.NewReader(`{"username":"ana","password":"p1"}`))
		assert.Equal(t, http.StatusUnauthorized, env.do(req).Code)
	})
}

func imageForm(t *testing.T, field, filename string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write([]byte("new image bytes"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestUpdateAvatar(t *testing.T) {
	env := newTestEnv(t)
	user := registerAna(t, env)
	session := loginAna(t, env)

	body, contentType := imageForm(t, "avatar", "new.png")
	rec := authedRequest(t, env, http.MethodPatch, "/users/avatar", body, contentType, session.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var updated types.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.NotEqual(t, user.AvatarURL, updated.AvatarURL)
	assert.Contains(t, updated.AvatarURL, "/avatars/")

	t.Run("missing file", func(t *testing.T) {
		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)
		require.NoError(t, writer.Close())
		rec := authedRequest(t, env, http.MethodPatch, "/users/avatar", body, writer.FormDataContentType(), session.AccessToken)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestUpdateCoverImage(t *testing.T) {
	env := newTestEnv(t)
	registerAna(t, env)
	session := loginAna(t, env)

	body, contentType := imageForm(t, "coverImage", "cover.jpg")
	rec := authedRequest(t, env, http.MethodPatch, "/users/cover-image", body, contentType, session.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var updated types.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Contains(t, updated.CoverImageURL, "/covers/")
}
