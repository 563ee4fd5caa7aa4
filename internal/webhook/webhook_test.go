package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSend_SetsMACAndContentType(t *testing.T) {
	key := []byte("tenant-secret")
	body := []byte(`{"hello":"world"}`)

	var gotMAC, gotContentType, gotUA string
	var gotBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMAC = r.Header.Get(MACHeader)
		gotContentType = r.Header.Get("Content-Type")
		gotUA = r.Header.Get("User-Agent")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(Config{Timeout: 2 * time.Second, ConnectTimeout: 2 * time.Second})
	err := c.Send(context.Background(), srv.URL, key, body)
	require.NoError(t, err)

	mac := hmac.New(sha256.New, key)
	mac.Write(body)
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	assert.Equal(t, want, gotMAC)
	assert.Equal(t, "application/json", gotContentType)
	assert.Contains(t, gotUA, ProductName)
	assert.Equal(t, body, gotBody)
}

func TestSend_NonOKStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(Config{Timeout: 2 * time.Second, ConnectTimeout: 2 * time.Second})
	err := c.Send(context.Background(), srv.URL, []byte("k"), []byte("b"))
	assert.Error(t, err)
}

func TestSend_ConnectTimeoutIsError(t *testing.T) {
	c := New(Config{Timeout: 200 * time.Millisecond, ConnectTimeout: 50 * time.Millisecond})
	err := c.Send(context.Background(), "http://10.255.255.1:81/unreachable", []byte("k"), []byte("b"))
	assert.Error(t, err)
}
