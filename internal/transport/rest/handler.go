package rest

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"debtster/internal/domain"
	"debtster/internal/repository"
	"debtster/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
)

// LifecycleEngine is every debt/payment mutation the API exposes.
type LifecycleEngine interface {
	CreateDebt(ctx context.Context, actorID int64, in service.CreateDebtInput) (*service.TransitionResult, error)
	EditDebt(ctx context.Context, actorID, debtID int64, in service.EditDebtInput) (*service.TransitionResult, error)
	ConfirmDebt(ctx context.Context, actorID, debtID int64) (*service.TransitionResult, error)
	RejectDebt(ctx context.Context, actorID, debtID int64) (*service.TransitionResult, error)
	UploadReleaseProof(ctx context.Context, actorID, debtID int64, proofKey string) (*service.TransitionResult, error)
	SubmitPayment(ctx context.Context, actorID, debtID int64, in service.SubmitPaymentInput) (*service.TransitionResult, error)
	ConfirmCashPayment(ctx context.Context, actorID, paymentID int64) (*service.TransitionResult, error)
	RejectCashPayment(ctx context.Context, actorID, paymentID int64) (*service.TransitionResult, error)
	MarkAsPaid(ctx context.Context, actorID, debtID int64, in service.MarkAsPaidInput) (*service.TransitionResult, error)
	SendReminder(ctx context.Context, actorID, debtID int64) (*service.TransitionResult, error)
	DeleteDebt(ctx context.Context, actorID, debtID int64) (*service.TransitionResult, error)
}

type DebtReader interface {
	List(ctx context.Context, actorID int64, in service.ListDebtsInput) ([]domain.Debt, error)
	Detail(ctx context.Context, actorID, debtID int64) (*service.DebtDetail, error)
}

type PaymentReader interface {
	List(ctx context.Context, actorID int64, in service.ListPaymentsInput) ([]domain.Payment, error)
	ReceiptFile(ctx context.Context, actorID, paymentID int64) (string, error)
	BeginGcashCheckout(ctx context.Context, actorID, debtID int64, amount decimal.Decimal, reference *string) (*service.Checkout, error)
	ConfirmGcashCheckout(ctx context.Context, actorID int64, checkoutID string) (*service.TransitionResult, error)
}

type AccountService interface {
	Register(ctx context.Context, in service.RegisterInput) (*domain.User, error)
	Login(ctx context.Context, username, password string) (*domain.User, string, error)
	Logout(ctx context.Context, tokenID int64) error
	Profile(ctx context.Context, userID int64) (*service.Profile, error)
	UpdateProfile(ctx context.Context, userID int64, in service.UpdateProfileInput) (*domain.User, error)
	ListUsers(ctx context.Context, actorID int64, f repository.UsersFilter) ([]domain.User, error)
	UserDetail(ctx context.Context, actorID, userID int64) (*service.Profile, error)
}

type NotificationManager interface {
	Inbox(ctx context.Context, userID int64, unreadOnly bool, limit int64) (*service.Inbox, error)
	MarkRead(ctx context.Context, userID, id int64) error
	MarkAllRead(ctx context.Context, userID int64) error
	Delete(ctx context.Context, userID, id int64) error
	DeleteAll(ctx context.Context, userID int64) error
}

type AdminConsole interface {
	Dashboard(ctx context.Context, actorID int64, timeframe service.Timeframe, meta service.RequestMeta) (*service.Dashboard, error)
	ListDebts(ctx context.Context, actorID int64, f repository.DebtsFilter, meta service.RequestMeta) ([]domain.Debt, error)
	ListPayments(ctx context.Context, actorID int64, f repository.PaymentsFilter, meta service.RequestMeta) ([]domain.Payment, error)
	ApprovePayment(ctx context.Context, actorID, paymentID int64, meta service.RequestMeta) (*service.TransitionResult, error)
	RejectPayment(ctx context.Context, actorID, paymentID int64, meta service.RequestMeta) (*service.TransitionResult, error)
	Reconcile(ctx context.Context, actorID, debtID int64, meta service.RequestMeta) (*service.Reconciliation, error)
	RenumberDebts(ctx context.Context, actorID int64, meta service.RequestMeta) (int64, error)
	ListActivity(ctx context.Context, actorID int64, f repository.ActivitiesFilter, meta service.RequestMeta) ([]domain.Activity, error)
	LogLogin(ctx context.Context, userID int64, meta service.RequestMeta)
}

type Exporter interface {
	StartDebtsExport(ctx context.Context, actorID int64, f repository.DebtsFilter) (string, error)
	StartPaymentsExport(ctx context.Context, actorID int64, f repository.PaymentsFilter) (string, error)
	StartUsersExport(ctx context.Context, actorID int64, f repository.UsersFilter) (string, error)
	StartActivityExport(ctx context.Context, actorID int64, f repository.ActivitiesFilter) (string, error)
	GetExports(ctx context.Context, actorID int64) ([]service.ExportStatus, error)
	GetExport(ctx context.Context, actorID int64, exportID string) (*service.ExportStatus, error)
}

// ProofUploader puts uploaded proof files into object storage.
type ProofUploader interface {
	Upload(ctx context.Context, fileName string, data []byte, contentType string) (string, error)
}

// ReceiptStore resolves locally stored receipt PDFs for download.
type ReceiptStore interface {
	Path(fileName string) string
	Exists(fileName string) bool
}

type Handler struct {
	engine        LifecycleEngine
	debts         DebtReader
	payments      PaymentReader
	accounts      AccountService
	notifications NotificationManager
	admin         AdminConsole
	exports       Exporter
	uploads       ProofUploader
	receipts      ReceiptStore
}

func NewHandler(
	engine LifecycleEngine,
	debts DebtReader,
	payments PaymentReader,
	accounts AccountService,
	notifications NotificationManager,
	admin AdminConsole,
	exports Exporter,
	uploads ProofUploader,
	receipts ReceiptStore,
) *Handler {
	return &Handler{
		engine:        engine,
		debts:         debts,
		payments:      payments,
		accounts:      accounts,
		notifications: notifications,
		admin:         admin,
		exports:       exports,
		uploads:       uploads,
		receipts:      receipts,
	}
}

// InitRouter builds the /api router. Register and login stay outside the
// auth middleware; everything else requires a bearer token.
func (h *Handler) InitRouter(authMiddleware func(http.Handler) http.Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
		middleware.Timeout(60*time.Second),
	)

	r.Post("/register", h.register)
	r.Post("/login", h.login)

	r.Group(func(r chi.Router) {
		if authMiddleware != nil {
			r.Use(authMiddleware)
		}

		r.Post("/logout", h.logout)
		r.Get("/profile", h.getProfile)
		r.Patch("/profile", h.updateProfile)

		r.Route("/debts", func(r chi.Router) {
			r.Get("/", h.listDebts)
			r.Post("/", h.createDebt)
			r.Get("/{id}", h.debtDetail)
			r.Patch("/{id}", h.editDebt)
			r.Delete("/{id}", h.deleteDebt)
			r.Post("/{id}/confirm", h.confirmDebt)
			r.Post("/{id}/reject", h.rejectDebt)
			r.Post("/{id}/proof", h.uploadReleaseProof)
			r.Post("/{id}/payments", h.submitPayment)
			r.Post("/{id}/mark-paid", h.markAsPaid)
			r.Post("/{id}/remind", h.sendReminder)
		})

		r.Route("/payments", func(r chi.Router) {
			r.Get("/", h.listPayments)
			r.Post("/{id}/confirm", h.confirmCashPayment)
			r.Post("/{id}/reject", h.rejectCashPayment)
			r.Get("/{id}/receipt", h.downloadReceipt)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", h.listNotifications)
			r.Post("/read", h.markAllNotificationsRead)
			r.Post("/{id}/read", h.markNotificationRead)
			r.Delete("/{id}", h.deleteNotification)
			r.Delete("/", h.deleteAllNotifications)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Get("/dashboard", h.adminDashboard)
			r.Get("/users", h.adminListUsers)
			r.Get("/users/{id}", h.adminUserDetail)
			r.Get("/debts", h.adminListDebts)
			r.Get("/payments", h.adminListPayments)
			r.Post("/payments/{id}/approve", h.adminApprovePayment)
			r.Post("/payments/{id}/reject", h.adminRejectPayment)
			r.Get("/debts/{id}/reconcile", h.adminReconcile)
			r.Post("/debts/renumber", h.adminRenumber)
			r.Get("/activity", h.adminActivity)

			r.Route("/exports", func(r chi.Router) {
				r.Get("/", h.listExports)
				r.Get("/{export_id}", h.getExport)
				r.Post("/debts", h.exportDebts)
				r.Post("/payments", h.exportPayments)
				r.Post("/users", h.exportUsers)
				r.Post("/activity", h.exportActivity)
			})
		})
	})

	return r
}

func urlID(r *http.Request, param string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		return 0, &ValidationError{Field: param, Message: "must be a positive integer"}
	}
	return id, nil
}

func requestMeta(r *http.Request) service.RequestMeta {
	return service.RequestMeta{
		IPAddress: r.RemoteAddr,
		UserAgent: r.UserAgent(),
	}
}
