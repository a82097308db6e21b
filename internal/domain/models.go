package domain

import "time"

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleManager  Role = "manager"
	RoleCashier  Role = "cashier"
	RoleStockist Role = "stockist"
	RoleViewer   Role = "viewer"
	RoleSupport  Role = "support"
)

var roles = []Role{RoleAdmin, RoleManager, RoleCashier, RoleStockist, RoleViewer, RoleSupport}

// Roles returns the closed set of roles in declaration order.
func Roles() []Role {
	out := make([]Role, len(roles))
	copy(out, roles)
	return out
}

// ParseRole maps raw input onto a known role. Unknown values are rejected.
func ParseRole(raw string) (Role, bool) {
	for _, r := range roles {
		if string(r) == raw {
			return r, true
		}
	}
	return "", false
}

func (r Role) Valid() bool {
	_, ok := ParseRole(string(r))
	return ok
}

// Operation is a fine-grained permission unit. The universe of operations is
// owned by package authz.
type Operation string

const (
	OpCreateSale    Operation = "createSale"
	OpCreateReturn  Operation = "createReturn"
	OpCreatePayment Operation = "createPayment"
	OpListSales     Operation = "listSales"
	OpListPayment   Operation = "listPayment"
	OpListReturn    Operation = "listReturn"

	OpCreateProduct Operation = "createProduct"
	OpEditProduct   Operation = "editProduct"
	OpDeleteProduct Operation = "deleteProduct"
	OpListProduct   Operation = "listProduct"

	OpCreateCategory Operation = "createCategory"
	OpEditCategory   Operation = "editCategory"
	OpDeleteCategory Operation = "deleteCategory"
	OpListCategory   Operation = "listCategory"

	OpCreatePurchase Operation = "createPurchase"
	OpListPurchase   Operation = "listPurchase"

	OpCreateSupplier Operation = "createSupplier"
	OpEditSupplier   Operation = "editSupplier"
	OpDeleteSupplier Operation = "deleteSupplier"
	OpListSupplier   Operation = "listSupplier"

	OpCreateUser Operation = "createUser"
	OpEditUser   Operation = "editUser"
	OpDeleteUser Operation = "deleteUser"
	OpListUsers  Operation = "listUsers"

	OpGenerateReport Operation = "generateReport"
	OpViewInventory  Operation = "viewInventory"
)

// Identity is the authenticated caller. It is only built by the auth layer
// after the token has been verified and the role parsed.
type Identity struct {
	UserID string
	Email  string
	Role   Role
}

const (
	PaymentMethodCash        = "cash"
	PaymentMethodCredit      = "credit"
	PaymentMethodDebit       = "debit"
	PaymentMethodMercadoPago = "mercado_pago"
	PaymentMethodCuentaDNI   = "cuenta_dni"
)

func IsSupportedPaymentMethod(method string) bool {
	switch method {
	case PaymentMethodCash, PaymentMethodCredit, PaymentMethodDebit, PaymentMethodMercadoPago, PaymentMethodCuentaDNI:
		return true
	default:
		return false
	}
}

const (
	PurchaseStatusPending   = "pending"
	PurchaseStatusCompleted = "completed"
	PurchaseStatusCancelled = "cancelled"
)

type Product struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	PriceCents    int64     `json:"price_cents"`
	Stock         int       `json:"stock"`
	CriticalStock int       `json:"critical_stock"`
	CategoryID    string    `json:"category_id,omitempty"`
	SupplierID    string    `json:"supplier_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (p Product) IsCritical() bool {
	return p.Stock <= p.CriticalStock
}

type ProductCreateRequest struct {
	Name          string `json:"name" validate:"required,max=120"`
	Description   string `json:"description" validate:"max=1000"`
	PriceCents    int64  `json:"price_cents" validate:"gte=0"`
	Stock         int    `json:"stock" validate:"gte=0"`
	CriticalStock *int   `json:"critical_stock,omitempty" validate:"omitempty,gte=0"`
	CategoryID    string `json:"category_id"`
	SupplierID    string `json:"supplier_id"`
}

// ProductUpdateRequest never carries stock; stock only moves through the ledger.
type ProductUpdateRequest struct {
	ID            string  `json:"id" validate:"required"`
	Name          *string `json:"name,omitempty" validate:"omitempty,min=1,max=120"`
	Description   *string `json:"description,omitempty" validate:"omitempty,max=1000"`
	PriceCents    *int64  `json:"price_cents,omitempty" validate:"omitempty,gte=0"`
	CriticalStock *int    `json:"critical_stock,omitempty" validate:"omitempty,gte=0"`
	CategoryID    *string `json:"category_id,omitempty"`
	SupplierID    *string `json:"supplier_id,omitempty"`
}

type StockAdjustRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
}

type StockLevel struct {
	ProductID     string `json:"product_id"`
	Name          string `json:"name"`
	Stock         int    `json:"stock"`
	CriticalStock int    `json:"critical_stock"`
	Critical      bool   `json:"critical"`
}

type SaleLine struct {
	ProductID  string `json:"product_id" validate:"required"`
	Quantity   int    `json:"quantity" validate:"gt=0,lte=1000000"`
	PriceCents int64  `json:"price_cents" validate:"gte=0,lte=100000000000"`
}

type Sale struct {
	ID            string     `json:"id"`
	CashierID     string     `json:"cashier_id"`
	Items         []SaleLine `json:"items"`
	TotalCents    int64      `json:"total_cents"`
	PaymentMethod string     `json:"payment_method"`
	Paid          bool       `json:"paid"`
	CreatedAt     time.Time  `json:"created_at"`
}

type SaleCreateRequest struct {
	Items         []SaleLine `json:"items" validate:"required,min=1,dive"`
	PaymentMethod string     `json:"payment_method" validate:"required,oneof=cash credit debit mercado_pago cuenta_dni"`
}

type SaleFilter struct {
	CashierID string `json:"cashier_id"`
	Paid      *bool  `json:"paid,omitempty"`
	Limit     int    `json:"limit" validate:"gte=0,lte=500"`
	Offset    int    `json:"offset" validate:"gte=0"`
}

type Payment struct {
	ID          string    `json:"id"`
	SaleID      string    `json:"sale_id"`
	Method      string    `json:"method"`
	AmountCents int64     `json:"amount_cents"`
	Note        string    `json:"note,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type PaymentCreateRequest struct {
	SaleID      string `json:"sale_id" validate:"required"`
	Method      string `json:"method" validate:"required,oneof=cash credit debit mercado_pago cuenta_dni"`
	AmountCents int64  `json:"amount_cents" validate:"gte=0,lte=100000000000"`
	Note        string `json:"note" validate:"max=500"`
}

type RMAItem struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
	Reason    string `json:"reason,omitempty" validate:"max=500"`
}

type RMA struct {
	ID          string    `json:"id"`
	SaleID      string    `json:"sale_id"`
	Items       []RMAItem `json:"items"`
	Reason      string    `json:"reason,omitempty"`
	ProcessedBy string    `json:"processed_by"`
	Date        time.Time `json:"date"`
	CreatedAt   time.Time `json:"created_at"`
}

type RMACreateRequest struct {
	SaleID string     `json:"sale_id" validate:"required"`
	Items  []RMAItem  `json:"items" validate:"required,min=1,dive"`
	Reason string     `json:"reason" validate:"max=500"`
	Date   *time.Time `json:"date,omitempty"`
}

type SaleRef struct {
	SaleID string `json:"sale_id" validate:"required"`
}

type IDRequest struct {
	ID string `json:"id" validate:"required"`
}

type Category struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type CategoryRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name" validate:"required,max=80"`
	Description string `json:"description" validate:"max=500"`
}

type Supplier struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ContactName string    `json:"contact_name,omitempty"`
	Email       string    `json:"email,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	Address     string    `json:"address,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type SupplierRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name" validate:"required,max=120"`
	ContactName string `json:"contact_name" validate:"max=120"`
	Email       string `json:"email" validate:"omitempty,email"`
	Phone       string `json:"phone" validate:"max=40"`
	Address     string `json:"address" validate:"max=250"`
}

type PurchaseLine struct {
	ProductID     string `json:"product_id" validate:"required"`
	Quantity      int    `json:"quantity" validate:"gt=0,lte=1000000"`
	UnitCostCents int64  `json:"unit_cost_cents" validate:"gte=0,lte=100000000000"`
}

type Purchase struct {
	ID            string         `json:"id"`
	SupplierID    string         `json:"supplier_id"`
	Items         []PurchaseLine `json:"items"`
	TotalCents    int64          `json:"total_cents"`
	Status        string         `json:"status"`
	PaymentMethod string         `json:"payment_method"`
	Date          time.Time      `json:"date"`
	CreatedBy     string         `json:"created_by"`
	CreatedAt     time.Time      `json:"created_at"`
}

type PurchaseCreateRequest struct {
	SupplierID    string         `json:"supplier_id" validate:"required"`
	Items         []PurchaseLine `json:"items" validate:"required,min=1,dive"`
	Status        string         `json:"status" validate:"omitempty,oneof=pending completed cancelled"`
	PaymentMethod string         `json:"payment_method" validate:"required,oneof=cash credit debit mercado_pago cuenta_dni"`
	Date          *time.Time     `json:"date,omitempty"`
}

type UserAccount struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type UserCreateRequest struct {
	Name     string `json:"name" validate:"required,max=120"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Role     string `json:"role" validate:"required,oneof=admin manager cashier stockist viewer support"`
}

type UserUpdateRequest struct {
	ID       string  `json:"id" validate:"required"`
	Name     *string `json:"name,omitempty" validate:"omitempty,min=1,max=120"`
	Email    *string `json:"email,omitempty" validate:"omitempty,email"`
	Password *string `json:"password,omitempty" validate:"omitempty,min=8,max=72"`
	Role     *string `json:"role,omitempty" validate:"omitempty,oneof=admin manager cashier stockist viewer support"`
	Active   *bool   `json:"active,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        Role   `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type PasswordChangeRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=72"`
}

type AuditLog struct {
	ID        string    `json:"id"`
	Endpoint  string    `json:"endpoint"`
	Method    string    `json:"method"`
	UserID    string    `json:"user_id"`
	UserEmail string    `json:"user_email"`
	Payload   string    `json:"payload,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	ReportGroupDay   = "day"
	ReportGroupWeek  = "week"
	ReportGroupMonth = "month"
)

type SalesReportRequest struct {
	From    time.Time `json:"from" validate:"required"`
	To      time.Time `json:"to" validate:"required,gtfield=From"`
	GroupBy string    `json:"group_by" validate:"required,oneof=day week month"`
}

type TimeSeriesPoint struct {
	Date       string `json:"date"`
	TotalCents int64  `json:"total_cents"`
	Count      int    `json:"count"`
}

type SalesReport struct {
	Series []TimeSeriesPoint `json:"series"`
}

type PaymentsReportRequest struct {
	From time.Time `json:"from" validate:"required"`
	To   time.Time `json:"to" validate:"required,gtfield=From"`
}

type PaymentSummary struct {
	Method     string `json:"method"`
	TotalCents int64  `json:"total_cents"`
	Count      int    `json:"count"`
}

type PaymentsReport struct {
	Summary []PaymentSummary `json:"summary"`
}

type LowStockReportRequest struct {
	Threshold int `json:"threshold" validate:"gte=0"`
}

type LowStockItem struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Stock     int    `json:"stock"`
}

type LowStockReport struct {
	Items []LowStockItem `json:"items"`
	Total int            `json:"total"`
}
