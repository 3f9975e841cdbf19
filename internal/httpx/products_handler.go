package httpx

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ariefcatur/retail-checkout/internal/domain"
	"github.com/ariefcatur/retail-checkout/internal/port"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/text/currency"
)

type ProductsHandler struct {
	Catalog port.CatalogRepository
	// Currency prices new products that do not name one.
	Currency currency.Unit
	Logger   *zap.Logger
}

func (h *ProductsHandler) Register(r chi.Router) {
	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.listProducts)
		r.Post("/", h.createProduct)
		r.Get("/{id}", h.getProduct)
		r.Put("/{id}", h.updateProduct)
		r.Patch("/{id}", h.updateProduct)
		r.Delete("/{id}", h.deleteProduct)
		r.Post("/{id}/stock", h.adjustStock)
	})
}

func (h *ProductsHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := optionalInt(q.Get("page"))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "page must be a number")
		return
	}
	limit, err := optionalInt(q.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "limit must be a number")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	res, err := h.Catalog.ListProducts(ctx, domain.ProductFilter{Search: q.Get("search"), Page: page, Limit: limit})
	if err != nil {
		writeErr(w, h.logger(), err)
		return
	}

	items := make([]ProductResp, 0, len(res.Items))
	for _, p := range res.Items {
		items = append(items, toProductResp(p))
	}
	writeJSON(w, http.StatusOK, ProductPageResp{
		Items: items,
		Total: res.Total,
		Page:  res.Page,
		Pages: res.Pages,
		Limit: res.Limit,
	})
}

func (h *ProductsHandler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	p, err := h.Catalog.GetProduct(ctx, id)
	if err != nil {
		writeErr(w, h.logger(), err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResp(p))
}

func (h *ProductsHandler) createProduct(w http.ResponseWriter, r *http.Request) {
	p, ok := h.decodeProduct(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	created, err := h.Catalog.CreateProduct(ctx, p)
	if err != nil {
		writeErr(w, h.logger(), err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductResp(created))
}

// updateProduct applies a partial update. Stock is not accepted here.
func (h *ProductsHandler) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	patch, ok := h.decodePatch(ctx, w, r, id)
	if !ok {
		return
	}

	updated, err := h.Catalog.UpdateProduct(ctx, id, patch)
	if err != nil {
		writeErr(w, h.logger(), err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResp(updated))
}

func (h *ProductsHandler) adjustStock(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req StockAdjustReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}
	if req.Delta == 0 {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "delta must not be zero")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	p, err := h.Catalog.AdjustStock(ctx, id, req.Delta)
	if err != nil {
		writeErr(w, h.logger(), err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResp(p))
}

func (h *ProductsHandler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	deleted, err := h.Catalog.DeleteProduct(ctx, id)
	if err != nil {
		writeErr(w, h.logger(), err)
		return
	}
	if !deleted {
		writeErr(w, h.logger(), domain.ErrProductNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProductsHandler) decodeProduct(w http.ResponseWriter, r *http.Request) (domain.Product, bool) {
	var req ProductReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return domain.Product{}, false
	}

	price, ok := parsePrice(w, req.Price, req.Currency, h.Currency)
	if !ok {
		return domain.Product{}, false
	}

	return domain.Product{
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		Category:    strings.TrimSpace(req.Category),
		ImageURL:    strings.TrimSpace(req.ImageURL),
		Price:       price,
		Stock:       req.Stock,
	}, true
}

// decodePatch builds a patch from the fields present. A price sent without a
// currency keeps the product's currency, and the other way round.
func (h *ProductsHandler) decodePatch(ctx context.Context, w http.ResponseWriter, r *http.Request, id uuid.UUID) (domain.ProductPatch, bool) {
	var req ProductUpdateReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return domain.ProductPatch{}, false
	}

	patch := domain.ProductPatch{
		Name:        trimmed(req.Name),
		Description: trimmed(req.Description),
		Category:    trimmed(req.Category),
		ImageURL:    trimmed(req.ImageURL),
	}
	if req.Price == nil && req.Currency == nil {
		return patch, true
	}

	var amount, cur string
	if req.Price == nil || req.Currency == nil {
		current, err := h.Catalog.GetProduct(ctx, id)
		if err != nil {
			writeErr(w, h.logger(), err)
			return domain.ProductPatch{}, false
		}
		amount, cur = current.Price.Amount.String(), current.Price.Currency.String()
	}
	if req.Price != nil {
		amount = *req.Price
	}
	if req.Currency != nil {
		cur = *req.Currency
	}

	price, ok := parsePrice(w, amount, cur, h.Currency)
	if !ok {
		return domain.ProductPatch{}, false
	}
	patch.Price = &price
	return patch, true
}

func parsePrice(w http.ResponseWriter, amount, cur string, fallback currency.Unit) (domain.Money, bool) {
	price, err := decimal.NewFromString(amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidProduct, "price must be a decimal string")
		return domain.Money{}, false
	}
	unit := fallback
	if cur != "" {
		if unit, err = currency.ParseISO(strings.ToUpper(cur)); err != nil {
			writeError(w, http.StatusBadRequest, CodeInvalidProduct, "unknown currency "+cur)
			return domain.Money{}, false
		}
	}
	return domain.NewMoney(price.Round(2), unit), true
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

func (h *ProductsHandler) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, name+" must be a uuid")
		return uuid.Nil, false
	}
	return id, true
}

func optionalInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
