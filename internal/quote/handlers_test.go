package quote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/inventario-pricing/internal/settings"
)

type stubSettings struct {
	value settings.TaxSettings
	err   error
	calls int
}

func (s *stubSettings) Current(context.Context) (settings.TaxSettings, error) {
	s.calls++
	return s.value, s.err
}

func newTestServer(t *testing.T, src settingsSource) http.Handler {
	t.Helper()
	h := &Handler{Settings: src, Logger: zerolog.Nop()}
	r := chi.NewRouter()
	r.Route("/api/v1/pricing", h.Routes)
	return r
}

func defaultSettings() *stubSettings {
	return &stubSettings{value: settings.Defaults(decimal.NewFromInt(15), decimal.Zero, decimal.NewFromInt(30))}
}

func post(t *testing.T, srv http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/pricing"+path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.NoError(t, json.Unmarshal(env.Data, dst))
}

func TestTaxBreakdownExplicitRates(t *testing.T) {
	src := defaultSettings()
	srv := newTestServer(t, src)

	rec := post(t, srv, "/tax-breakdown", `{"basePrice":"1.25","iva":{"percentage":"15"},"ice":{"percentage":"0"}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out struct {
		Breakdown breakdownView `json:"breakdown"`
	}
	decodeData(t, rec, &out)
	require.Equal(t, breakdownView{Base: "1.25", IVA: "0.19", ICE: "0.00", Final: "1.44"}, out.Breakdown)
	require.Zero(t, src.calls)
}

func TestTaxBreakdownUsesSettingsDefaults(t *testing.T) {
	src := defaultSettings()
	srv := newTestServer(t, src)

	rec := post(t, srv, "/tax-breakdown", `{"basePrice":"10"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Breakdown breakdownView `json:"breakdown"`
		IVA       rateView      `json:"iva"`
		ICE       rateView      `json:"ice"`
	}
	decodeData(t, rec, &out)
	require.Equal(t, "11.50", out.Breakdown.Final)
	require.Equal(t, "15.00", out.IVA.Percentage)
	require.False(t, out.ICE.Applies)
	require.Equal(t, 1, src.calls)
}

func TestTaxBreakdownDisabledRate(t *testing.T) {
	srv := newTestServer(t, defaultSettings())
	rec := post(t, srv, "/tax-breakdown", `{"basePrice":"1.25","iva":{"percentage":"15","applies":false},"ice":{"percentage":"0"}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Breakdown breakdownView `json:"breakdown"`
	}
	decodeData(t, rec, &out)
	require.Equal(t, "1.25", out.Breakdown.Final)
}

func TestTaxBreakdownValidation(t *testing.T) {
	srv := newTestServer(t, defaultSettings())

	rec := post(t, srv, "/tax-breakdown", `{"basePrice":"-1","iva":{"percentage":"120"}}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Contains(t, rec.Body.String(), "basePrice")
	require.Contains(t, rec.Body.String(), "iva.percentage")

	rec = post(t, srv, "/tax-breakdown", `{"basePrice":"1","unknown":1}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSuggestedPrice(t *testing.T) {
	src := defaultSettings()
	srv := newTestServer(t, src)

	rec := post(t, srv, "/suggested-price", `{"cost":"0.80","margin":"30"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var out map[string]string
	decodeData(t, rec, &out)
	require.Equal(t, "1.04", out["suggestedPrice"])
	require.Equal(t, "0.8000", out["cost"])
	require.Zero(t, src.calls)

	rec = post(t, srv, "/suggested-price", `{"cost":"2"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &out)
	require.Equal(t, "2.60", out["suggestedPrice"])
	require.Equal(t, "30.00", out["margin"])

	rec = post(t, srv, "/suggested-price", `{"cost":"0","margin":"30"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &out)
	require.Equal(t, "0.00", out["suggestedPrice"])
}

func TestProductAutomaticCostChange(t *testing.T) {
	srv := newTestServer(t, defaultSettings())

	body := `{"state":{"cost":"0.80","margin":"30","salePrice":"1.04","mode":"automatic"},"change":{"cost":"1.00"}}`
	rec := post(t, srv, "/product", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out productView
	decodeData(t, rec, &out)
	require.Equal(t, "1.30", out.SalePrice)
	require.Equal(t, "1.30", out.SuggestedPrice)
	require.Equal(t, "automatic", out.Mode)
	require.Equal(t, "1.50", out.Breakdown.Final)
}

func TestProductManualModeKeepsPrice(t *testing.T) {
	srv := newTestServer(t, defaultSettings())

	body := `{"state":{"cost":"0.80","margin":"30","salePrice":"1.04"},"change":{"mode":"manual","salePrice":"1.50","cost":"1.20"}}`
	rec := post(t, srv, "/product", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var out productView
	decodeData(t, rec, &out)
	require.Equal(t, "manual", out.Mode)
	require.Equal(t, "1.50", out.SalePrice)
	require.Equal(t, "1.56", out.SuggestedPrice)

	// Back to automatic: the price follows cost and margin again.
	body = `{"state":{"cost":"1.20","margin":"30","salePrice":"1.50","mode":"manual"},"change":{"mode":"automatic"}}`
	rec = post(t, srv, "/product", body)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &out)
	require.Equal(t, "1.56", out.SalePrice)
}

func TestProductSalePriceIgnoredInAutomaticMode(t *testing.T) {
	srv := newTestServer(t, defaultSettings())
	body := `{"state":{"cost":"1.00","margin":"30","mode":"automatic"},"change":{"salePrice":"9.99"}}`
	rec := post(t, srv, "/product", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var out productView
	decodeData(t, rec, &out)
	require.Equal(t, "1.30", out.SalePrice)
}

const receiptBody = `{"product":{"cost":"2.50","margin":"30","mode":"automatic"},"currentStock":100,"receipt":{"quantity":50,"unitCost":"3.00"}%s}`

func TestPreviewReceipt(t *testing.T) {
	srv := newTestServer(t, defaultSettings())

	rec := post(t, srv, "/stock-receipt/preview", strings.Replace(receiptBody, "%s", "", 1))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out previewView
	decodeData(t, rec, &out)
	require.Equal(t, int64(150), out.NewStock)
	require.Equal(t, "2.6667", out.NewAverageCost)
	require.Equal(t, "3.47", out.SuggestedPrice)
	require.Equal(t, "3.25", out.CurrentSalePrice)
	require.True(t, out.RequiresDecision)
}

func TestApplyReceiptRequiresDecision(t *testing.T) {
	srv := newTestServer(t, defaultSettings())

	rec := post(t, srv, "/stock-receipt/apply", strings.Replace(receiptBody, "%s", "", 1))
	require.Equal(t, http.StatusConflict, rec.Code)

	var env struct {
		Error struct {
			Code    string      `json:"code"`
			Details previewView `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.Equal(t, "DECISION_REQUIRED", env.Error.Code)
	require.Equal(t, "3.47", env.Error.Details.SuggestedPrice)
}

func TestApplyReceiptDecisions(t *testing.T) {
	srv := newTestServer(t, defaultSettings())

	rec := post(t, srv, "/stock-receipt/apply", strings.Replace(receiptBody, "%s", `,"decision":"apply_suggested"`, 1))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out receiptAppliedView
	decodeData(t, rec, &out)
	require.Equal(t, "3.47", out.Product.SalePrice)
	require.Equal(t, "2.6667", out.Product.Cost)
	require.Equal(t, "30.00", out.Product.Margin)
	require.Equal(t, int64(150), out.Stock.Stock)

	rec = post(t, srv, "/stock-receipt/apply", strings.Replace(receiptBody, "%s", `,"decision":"keep_current"`, 1))
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &out)
	require.Equal(t, "3.25", out.Product.SalePrice)
	require.Equal(t, "2.6667", out.Product.Cost)
	require.NotEqual(t, "30.00", out.Product.Margin)
	require.Equal(t, out.Product.SalePrice, out.Product.SuggestedPrice)

	rec = post(t, srv, "/stock-receipt/apply", strings.Replace(receiptBody, "%s", `,"decision":"maybe"`, 1))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestApplyReceiptManualUpdatesCostOnly(t *testing.T) {
	srv := newTestServer(t, defaultSettings())
	body := `{"product":{"cost":"2.50","margin":"30","salePrice":"4.00","mode":"manual"},"currentStock":100,"receipt":{"quantity":50,"unitCost":"3.00"}}`

	rec := post(t, srv, "/stock-receipt/apply", body)
	require.Equal(t, http.StatusOK, rec.Code)
	var out receiptAppliedView
	decodeData(t, rec, &out)
	require.Equal(t, "4.00", out.Product.SalePrice)
	require.Equal(t, "2.6667", out.Product.Cost)
}

func TestCartTotals(t *testing.T) {
	src := defaultSettings()
	srv := newTestServer(t, src)

	rec := post(t, srv, "/cart/totals", `{"lines":[{"quantity":2,"unitPrice":"1.25","taxApplies":true}],"ivaPercent":"15"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out cartView
	decodeData(t, rec, &out)
	require.Equal(t, "2.50", out.Subtotal)
	require.Equal(t, "0.38", out.TotalTax)
	require.Equal(t, "2.88", out.Total)
	require.Len(t, out.Lines, 1)
	require.Zero(t, src.calls)

	rec = post(t, srv, "/cart/totals", `{"lines":[{"quantity":1,"unitPrice":"10","taxApplies":true},{"quantity":1,"unitPrice":"5","lineDiscount":"1"}],"globalDiscount":"100"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &out)
	require.Equal(t, "14.00", out.Subtotal)
	require.Equal(t, "1.50", out.TotalTax)
	require.Equal(t, "0.00", out.Total)
	require.Equal(t, "15.00", out.IVAPercent)
	require.Equal(t, 1, src.calls)

	rec = post(t, srv, "/cart/totals", `{"lines":[]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &out)
	require.Equal(t, "0.00", out.Total)
}

func TestCartTotalsValidation(t *testing.T) {
	srv := newTestServer(t, defaultSettings())
	rec := post(t, srv, "/cart/totals", `{"lines":[{"quantity":0,"unitPrice":"abc"}],"ivaPercent":"15"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Contains(t, rec.Body.String(), "lines[0].quantity")
	require.Contains(t, rec.Body.String(), "lines[0].unitPrice")
}

func TestSettingsFailureIsInternalError(t *testing.T) {
	srv := newTestServer(t, &stubSettings{err: errors.New("db down")})

	rec := post(t, srv, "/tax-breakdown", `{"basePrice":"1"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "db down")

	rec = post(t, srv, "/tax-breakdown", `{"basePrice":"1","iva":{"percentage":"15"},"ice":{"percentage":"0"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
}
