package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aristath/yieldfund/internal/modules/consolidation"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeImporter struct {
	entries []consolidation.PurchaseEntry
	result  *consolidation.ImportResult
}

func (f *fakeImporter) Import(ctx context.Context, entries []consolidation.PurchaseEntry) (*consolidation.ImportResult, error) {
	f.entries = entries
	return f.result, nil
}

func serve(t *testing.T, importer Importer, body string) *httptest.ResponseRecorder {
	t.Helper()
	h := NewHandler(importer, zerolog.New(nil).Level(zerolog.Disabled))
	r := chi.NewRouter()
	h.RegisterRoutes(r)

	req := httptest.NewRequest(http.MethodPost, "/consolidation/import", strings.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandleImport(t *testing.T) {
	importer := &fakeImporter{result: &consolidation.ImportResult{
		BatchID: "batch-1",
		Investors: []consolidation.InvestorResult{
			{InvestorID: "inv-1", Success: true},
			{InvestorID: "inv-2", Success: false, Error: "constraint failed"},
		},
		Invalid: []consolidation.InvalidEntry{{Index: 2, ProductID: "Funding 3", Reason: "invalid product id"}},
	}}

	body := `{"entries":[
		{"investor_id":"inv-1","product_id":"funding-1","principal":"10000000","units":0,"purchase_date":"2026-05-01T00:00:00Z"},
		{"investor_id":"inv-2","product_id":"mining-1","principal":"0","units":77,"purchase_date":"2026-05-02T00:00:00Z","contract_signed":true},
		{"investor_id":"inv-2","product_id":"Funding 3","principal":"1","units":0,"purchase_date":"2026-05-02T00:00:00Z"}
	]}`
	w := serve(t, importer, body)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, importer.entries, 3)
	assert.Equal(t, "10000000", importer.entries[0].Principal.String())
	assert.Equal(t, int64(77), importer.entries[1].Units)
	assert.True(t, importer.entries[1].ContractSigned)

	var resp struct {
		Data struct {
			BatchID   string `json:"batch_id"`
			Succeeded int    `json:"succeeded"`
			Failed    int    `json:"failed"`
			Invalid   []consolidation.InvalidEntry
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "batch-1", resp.Data.BatchID)
	assert.Equal(t, 1, resp.Data.Succeeded)
	assert.Equal(t, 1, resp.Data.Failed)
	require.Len(t, resp.Data.Invalid, 1)
	assert.Equal(t, 2, resp.Data.Invalid[0].Index)
}

func TestHandleImport_BadRequests(t *testing.T) {
	for name, body := range map[string]string{
		"malformed json": `{"entries":`,
		"empty batch":    `{"entries":[]}`,
		"bad principal":  `{"entries":[{"investor_id":"inv-1","product_id":"funding-1","principal":"abc"}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			w := serve(t, &fakeImporter{}, body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}
