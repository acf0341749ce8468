package apiclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, Timeout: 5 * time.Second})
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u1", "exp": exp.Unix()})
	s, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func TestListSendsQueryPageAndBearer(t *testing.T) {
	var gotQuery, gotAuth string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, PathMedios, r.URL.Path)
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"data":[{"id":"m1","titulo":"Lluvias"}],"page":2,"per_page":20,"total":21,"total_pages":2}`)
	})

	ctx := WithCredentials(context.Background(), NewCredentials("u1", "tok-a", "ref-a"))
	page, err := List[Medio](ctx, client, PathMedios, "proyecto=abc&nombre=El+Tiempo", 2)
	require.NoError(t, err)

	assert.Equal(t, "proyecto=abc&nombre=El+Tiempo&page=2", gotQuery)
	assert.Equal(t, "Bearer tok-a", gotAuth)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "Lluvias", page.Data[0].Titulo)
	assert.Equal(t, 2, page.TotalPages)
}

func TestRefreshOnUnauthorizedRetriesOnce(t *testing.T) {
	var listCalls, refreshCalls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case refreshPath:
			refreshCalls.Add(1)
			body, _ := io.ReadAll(r.Body)
			assert.JSONEq(t, `{"refresh_token":"ref-old"}`, string(body))
			_, _ = io.WriteString(w, `{"access_token":"tok-new","refresh_token":"ref-new"}`)
		case PathProyectos:
			listCalls.Add(1)
			if r.Header.Get("Authorization") != "Bearer tok-new" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = io.WriteString(w, `{"data":[],"page":1,"total":0}`)
		}
	})

	creds := NewCredentials("u1", "tok-old", "ref-old")
	ctx := WithCredentials(context.Background(), creds)
	_, err := List[Proyecto](ctx, client, PathProyectos, "", 1)
	require.NoError(t, err)

	assert.EqualValues(t, 2, listCalls.Load())
	assert.EqualValues(t, 1, refreshCalls.Load())
	access, refresh := creds.Tokens()
	assert.Equal(t, "tok-new", access)
	assert.Equal(t, "ref-new", refresh)
	assert.True(t, creds.Changed())
}

func TestUnauthorizedAfterConcurrentRefreshReusesNewToken(t *testing.T) {
	var listCalls, refreshCalls atomic.Int32
	creds := NewCredentials("u1", "tok-old", "ref-old")
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case refreshPath:
			refreshCalls.Add(1)
			_, _ = io.WriteString(w, `{"access_token":"tok-other","refresh_token":"ref-other"}`)
		case PathProyectos:
			listCalls.Add(1)
			if r.Header.Get("Authorization") == "Bearer tok-old" {
				// another request swaps the pair while this one is in flight
				creds.Update("tok-new", "ref-new")
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			assert.Equal(t, "Bearer tok-new", r.Header.Get("Authorization"))
			_, _ = io.WriteString(w, `{"data":[],"page":1,"total":0}`)
		}
	})

	ctx := WithCredentials(context.Background(), creds)
	_, err := List[Proyecto](ctx, client, PathProyectos, "", 1)
	require.NoError(t, err)

	assert.EqualValues(t, 2, listCalls.Load())
	assert.Zero(t, refreshCalls.Load())
	access, _ := creds.Tokens()
	assert.Equal(t, "tok-new", access)
}

func TestSecondUnauthorizedIsTerminal(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == refreshPath {
			_, _ = io.WriteString(w, `{"access_token":"tok-new"}`)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":"token revoked"}`)
	})

	ctx := WithCredentials(context.Background(), NewCredentials("u1", "tok-old", "ref-old"))
	_, err := List[Red](ctx, client, PathRedes, "", 1)
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "token revoked", apiErr.Message)
}

func TestRefreshRejectedIsUnauthorized(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	ctx := WithCredentials(context.Background(), NewCredentials("u1", "tok", "ref"))
	err := client.Get(ctx, PathPlantillas, "", nil)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestProactiveRefreshBeforeExpiry(t *testing.T) {
	var refreshCalls atomic.Int32
	fresh := signedToken(t, time.Now().Add(time.Hour))
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == refreshPath {
			refreshCalls.Add(1)
			_, _ = io.WriteString(w, `{"access_token":"`+fresh+`"}`)
			return
		}
		assert.Equal(t, "Bearer "+fresh, r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `[]`)
	})

	creds := NewCredentials("u1", signedToken(t, time.Now().Add(5*time.Second)), "ref")
	ctx := WithCredentials(context.Background(), creds)
	_, err := client.ListPlantillas(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, refreshCalls.Load())

	_, refresh := creds.Tokens()
	assert.Equal(t, "ref", refresh, "missing refresh token in answer keeps the old one")
}

func TestNotFoundMapsToSentinel(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"code":"proyecto_no_encontrado","message":"no existe"}`)
	})
	err := client.DeleteProyecto(context.Background(), "p/1")
	assert.True(t, IsNotFound(err))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "proyecto_no_encontrado", apiErr.Code)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode())
}

func TestValidationErrors(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	})
	_, err := client.CreateProyecto(context.Background(), ProyectoInput{Nombre: "x"})
	assert.True(t, IsValidation(err))
	assert.False(t, IsUnauthorized(err))
}

func TestUploadSendsMultipart(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "p1", r.FormValue("proyecto_id"))
		file, header, err := r.FormFile("archivo")
		require.NoError(t, err)
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "alertas.csv", header.Filename)
		assert.Equal(t, "titulo,url\n", string(data))
		w.WriteHeader(http.StatusAccepted)
	})
	err := client.UploadMedios(context.Background(), "p1", "alertas.csv", strings.NewReader("titulo,url\n"))
	assert.NoError(t, err)
}

func TestLoginRequiresToken(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"user":{"id":"u1"}}`)
	})
	_, err := client.Login(context.Background(), "a@b.co", "secreto123")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestWithPage(t *testing.T) {
	assert.Equal(t, "", WithPage("", 1))
	assert.Equal(t, "page=3", WithPage("", 3))
	assert.Equal(t, "a=1&page=2", WithPage("a=1", 2))
	assert.Equal(t, "a=1", WithPage("a=1", 0))
}
