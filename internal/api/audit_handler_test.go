package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"tidebase/internal/conn"
	"tidebase/internal/model"
	"tidebase/internal/repository"
	"tidebase/internal/service"
	"tidebase/pkg/logger"

	"github.com/gin-gonic/gin"
)

func init() {
	logger.InitLogger("test")
	gin.SetMode(gin.TestMode)
}

type fakeAuditProvider struct {
	records []model.AuditRecord
	err     error

	gotTable, gotOp string
	gotLimit        int
}

func (f *fakeAuditProvider) Query(_ context.Context, table, operation string, limit int) ([]model.AuditRecord, error) {
	f.gotTable, f.gotOp, f.gotLimit = table, operation, limit
	return f.records, f.err
}

func (f *fakeAuditProvider) Summary(context.Context) ([]repository.OperationCount, error) {
	return []repository.OperationCount{{TableName: "products", Operation: "INSERT", Count: 3}}, f.err
}

func TestListAuditsParsesFilters(t *testing.T) {
	provider := &fakeAuditProvider{records: []model.AuditRecord{
		{AuditID: 2, TableName: "products", Operation: "UPDATE"},
		{AuditID: 1, TableName: "products", Operation: "INSERT"},
	}}
	h := NewAuditHandler(provider)

	r := gin.New()
	r.GET("/v1/audits", h.ListAudits)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/audits?table=products&operation=update&limit=50", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if provider.gotTable != "products" || provider.gotOp != "update" || provider.gotLimit != 50 {
		t.Errorf("filters = (%s, %s, %d)", provider.gotTable, provider.gotOp, provider.gotLimit)
	}

	var recs []model.AuditRecord
	if err := json.Unmarshal(w.Body.Bytes(), &recs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(recs) != 2 || recs[0].AuditID != 2 {
		t.Errorf("unexpected payload: %+v", recs)
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: bad operation", service.ErrValidation), http.StatusBadRequest},
		{conn.ErrNoRows, http.StatusNotFound},
		{conn.ErrEndpointNotFound, http.StatusServiceUnavailable},
		{&conn.ExhaustedError{Attempts: 3, Err: fmt.Errorf("refused")}, http.StatusServiceUnavailable},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		provider := &fakeAuditProvider{err: tc.err}
		h := NewAuditHandler(provider)
		r := gin.New()
		r.GET("/v1/audits", h.ListAudits)

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/v1/audits", nil)
		r.ServeHTTP(w, req)

		if w.Code != tc.want {
			t.Errorf("err %v mapped to %d, want %d", tc.err, w.Code, tc.want)
		}
	}
}
