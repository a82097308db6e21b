package httpapi

import (
	"errors"
	"net/http"
	"time"

	"storekeep/backend/internal/authz"
	"storekeep/backend/internal/domain"
	"storekeep/backend/internal/service"
)

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"name": "storekeep", "version": Version})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		a.metrics.LoginRateLimited()
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	req, ok := decodeRequest[domain.LoginRequest](w, r)
	if !ok {
		return
	}
	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	identity, _ := service.IdentityFromContext(r.Context())
	user, err := a.auth.Me(r.Context(), identity)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":        user,
		"permissions": authz.PermissionsFor(identity.Role),
	})
}

func (a *API) handlePasswordChange(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest[domain.PasswordChangeRequest](w, r)
	if !ok {
		return
	}
	identity, _ := service.IdentityFromContext(r.Context())
	if err := a.auth.ChangePassword(r.Context(), identity, req); err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// ---- sales ----

func (a *API) handleSaleCreate(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest[domain.SaleCreateRequest](w, r)
	if !ok {
		return
	}
	identity, _ := service.IdentityFromContext(r.Context())
	sale, err := a.service.CreateSale(r.Context(), identity.UserID, req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"sale": sale})
}

func (a *API) handleSaleList(w http.ResponseWriter, r *http.Request) {
	filter, ok := decodeRequest[domain.SaleFilter](w, r)
	if !ok {
		return
	}
	sales, err := a.service.ListSales(r.Context(), filter)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sales": sales})
}

func (a *API) handleSaleGet(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest[domain.SaleRef](w, r)
	if !ok {
		return
	}
	sale, err := a.service.GetSale(r.Context(), req.SaleID)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
}

// ---- payments ----

func (a *API) handlePaymentCreate(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest[domain.PaymentCreateRequest](w, r)
	if !ok {
		return
	}
	payment, err := a.service.RecordPayment(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"payment": payment})
}

func (a *API) handlePaymentList(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest[domain.SaleRef](w, r)
	if !ok {
		return
	}
	payments, err := a.service.ListPayments(r.Context(), req.SaleID)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payments": payments})
}

// ---- returns ----

func (a *API) handleRMACreate(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest[domain.RMACreateRequest](w, r)
	if !ok {
		return
	}
	identity, _ := service.IdentityFromContext(r.Context())
	rma, err := a.service.CreateRMA(r.Context(), identity.UserID, req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"rma": rma})
}

func (a *API) handleRMAList(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest[domain.SaleRef](w, r)
	if !ok {
		return
	}
	rmas, err := a.service.ListRMAs(r.Context(), req.SaleID)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rmas": rmas})
}

// ---- products ----

func (a *API) handleProductList(w http.ResponseWriter, r *http.Request) {
	products, err := a.service.ListProducts(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleProductCritical(w http.ResponseWriter, r *http.Request) {
	products, err := a.service.ListCriticalProducts(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleProductCreate(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest[domain.ProductCreateRequest](w, r)
	if !ok {
		return
	}
	product, err := a.service.CreateProduct(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"product": product})
}

func (a *API) handleProductEdit(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest[domain.ProductUpdateRequest](w, r)
	if !ok {
		return
	}
	product, err := a.service.UpdateProduct(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (a *API) handleProductDelete(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest[domain.IDRequest](w, r)
	if !ok {
		return
	}
	product, err := a.service.DeleteProduct(r.Context(), req.ID)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

// ---- categories ----

func (a *API) handleCategoryList(w http.ResponseWriter, r *http.Request) {
	categories, err := a.service.ListCategories(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": categories})
}

func (a *API) handleCategoryCreate(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest[domain.CategoryRequest](w, r)
	if !ok {
		return
	}
	category, err := a.service.CreateCategory(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"category": category})
}

func (a *API) handleCategoryEdit(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest[domain.CategoryRequest](w, r)
	if !ok {
		return
	}
	category, err := a.service.UpdateCategory(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"category": category})
}

func (a *API) handleCategoryDelete(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest[domain.IDRequest](w, r)
	if !ok {
		return
	}
	if err := a.service.DeleteCategory(r.Context(), req.ID); err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// ---- suppliers ----

func (a *API) handleSupplierList(w http.ResponseWriter, r *http.Request) {
	suppliers, err := a.service.ListSuppliers(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"suppliers": suppliers})
}

func (a *API) handleSupplierCreate(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest[domain.SupplierRequest](w, r)
	if !ok {
		return
	}
	supplier, err := a.service.CreateSupplier(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"supplier": supplier})
}

func (a *API) handleSupplierEdit(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest[domain.SupplierRequest](w, r)
	if !ok {
		return
	}
	supplier, err := a.service.UpdateSupplier(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"supplier": supplier})
}

func (a *API) handleSupplierDelete(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest[domain.IDRequest](w, r)
	if !ok {
		return
	}
	if err := a.service.DeleteSupplier(r.Context(), req.ID); err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// ---- purchases ----

type purchaseListRequest struct {
	SupplierID string `json:"supplier_id"`
}

func (a *API) handlePurchaseList(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest[purchaseListRequest](w, r)
	if !ok {
		return
	}
	purchases, err := a.service.ListPurchases(r.Context(), req.SupplierID)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"purchases": purchases})
}

func (a *API) handlePurchaseCreate(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest[domain.PurchaseCreateRequest](w, r)
	if !ok {
		return
	}
	identity, _ := service.IdentityFromContext(r.Context())
	purchase, err := a.service.CreatePurchase(r.Context(), identity.UserID, req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"purchase": purchase})
}

// ---- users ----

func (a *API) handleUserList(w http.ResponseWriter, r *http.Request) {
	users, err := a.auth.ListUsers(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (a *API) handleUserCreate(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest[domain.UserCreateRequest](w, r)
	if !ok {
		return
	}
	user, err := a.auth.CreateUser(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": user})
}

func (a *API) handleUserEdit(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest[domain.UserUpdateRequest](w, r)
	if !ok {
		return
	}
	user, err := a.auth.UpdateUser(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

func (a *API) handleUserDelete(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest[domain.IDRequest](w, r)
	if !ok {
		return
	}
	identity, _ := service.IdentityFromContext(r.Context())
	if err := a.auth.DeleteUser(r.Context(), identity, req.ID); err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// ---- reports ----

func (a *API) handleReportSales(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest[domain.SalesReportRequest](w, r)
	if !ok {
		return
	}
	report, err := a.service.SalesReport(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handleReportPayments(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest[domain.PaymentsReportRequest](w, r)
	if !ok {
		return
	}
	report, err := a.service.PaymentsReport(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handleReportLowStock(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest[domain.LowStockReportRequest](w, r)
	if !ok {
		return
	}
	report, err := a.service.LowStockReport(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// ---- inventory ----

type stockLevelRequest struct {
	ProductID string `json:"product_id" validate:"required"`
}

func (a *API) handleStockLevel(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest[stockLevelRequest](w, r)
	if !ok {
		return
	}
	level, err := a.service.StockLevel(r.Context(), req.ProductID)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stock": level})
}

func (a *API) handleStockDebit(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest[domain.StockAdjustRequest](w, r)
	if !ok {
		return
	}
	level, err := a.service.DebitStock(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stock": level})
}

func (a *API) handleStockCredit(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest[domain.StockAdjustRequest](w, r)
	if !ok {
		return
	}
	level, err := a.service.CreditStock(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stock": level})
}
