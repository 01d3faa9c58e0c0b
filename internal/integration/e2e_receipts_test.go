//go:build e2e
// +build e2e

package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"receipts-service/internal/bootstrap"
	"receipts-service/internal/domain"
	httpserver "receipts-service/internal/infrastructure/http"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

const (
	requestContentType = "application/json"
	idempotencyHeader  = "Idempotency-Key"
	receiptBody        = `{"title":"Team lunch","amount":48.20,"currency":"EUR"}`
)

type profile struct {
	name string
	env  func(t *testing.T) map[string]string
}

func profiles() []profile {
	return []profile{
		{name: "memory", env: func(*testing.T) map[string]string {
			return map[string]string{"STORAGE": "memory"}
		}},
		{name: "sqlite", env: func(t *testing.T) map[string]string {
			return map[string]string{"STORAGE": "sqlite", "SQLITE_PATH": filepath.Join(t.TempDir(), "e2e.db")}
		}},
		{name: "sqlite+redis", env: func(t *testing.T) map[string]string {
			mr := miniredis.RunT(t)
			return map[string]string{
				"STORAGE":             "sqlite",
				"SQLITE_PATH":         filepath.Join(t.TempDir(), "e2e.db"),
				"IDEMPOTENCY_BACKEND": "redis",
				"REDIS_ADDR":          mr.Addr(),
			}
		}},
		{name: "memory+coalescing", env: func(*testing.T) map[string]string {
			return map[string]string{"STORAGE": "memory", "IDEMPOTENCY_COALESCE": "true"}
		}},
	}
}

func startAPI(t *testing.T, env map[string]string) *httptest.Server {
	t.Helper()
	env["IDEMPOTENCY_WAIT_ATTEMPTS"] = "200"
	env["IDEMPOTENCY_WAIT_DELAY_MS"] = "10"
	for k, v := range env {
		t.Setenv(k, v)
	}
	srv, cleanup, err := bootstrap.InitAPI(context.Background())
	require.NoError(t, err)
	t.Cleanup(cleanup)

	ts := httptest.NewServer(httpserver.NewRouter(srv))
	t.Cleanup(ts.Close)
	return ts
}

func doPost(baseURL, key string) (int, domain.Receipt, error) {
	req, err := http.NewRequest(http.MethodPost, baseURL+"/api/receipts", strings.NewReader(receiptBody))
	if err != nil {
		return 0, domain.Receipt{}, err
	}
	req.Header.Set("Content-Type", requestContentType)
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, domain.Receipt{}, err
	}
	defer resp.Body.Close()

	var r domain.Receipt
	if resp.StatusCode == http.StatusCreated {
		err = json.NewDecoder(resp.Body).Decode(&r)
	}
	return resp.StatusCode, r, err
}

func postReceipt(t *testing.T, baseURL, key string) (int, domain.Receipt) {
	t.Helper()
	code, r, err := doPost(baseURL, key)
	require.NoError(t, err)
	return code, r
}

func TestE2E_Profiles(t *testing.T) {
	for _, p := range profiles() {
		p := p
		t.Run(p.name, func(t *testing.T) {
			ts := startAPI(t, p.env(t))

			resp, err := http.Get(ts.URL + "/readyz")
			require.NoError(t, err)
			resp.Body.Close()
			require.Equal(t, http.StatusOK, resp.StatusCode)

			const callers = 16
			var wg sync.WaitGroup
			ids := make([]string, callers)
			codes := make([]int, callers)
			errs := make([]error, callers)
			for i := 0; i < callers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					var r domain.Receipt
					codes[i], r, errs[i] = doPost(ts.URL, "e2e-"+p.name)
					ids[i] = r.ID
				}(i)
			}
			wg.Wait()
			for i := 0; i < callers; i++ {
				require.NoError(t, errs[i])
				require.Equal(t, http.StatusCreated, codes[i])
				require.Equal(t, ids[0], ids[i])
			}

			resp, err = http.Get(ts.URL + "/api/receipts/" + ids[0])
			require.NoError(t, err)
			defer resp.Body.Close()
			require.Equal(t, http.StatusOK, resp.StatusCode)

			_, a := postReceipt(t, ts.URL, "")
			_, b := postReceipt(t, ts.URL, "")
			require.NotEqual(t, a.ID, b.ID)
		})
	}
}
