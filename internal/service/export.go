package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"debtster/internal/clients"
	"debtster/internal/domain"
	"debtster/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

type ExportDebtLister interface {
	List(ctx context.Context, f repository.DebtsFilter) ([]domain.Debt, error)
	HasMoreThan(ctx context.Context, limit int64, f repository.DebtsFilter) (bool, error)
}

type ExportPaymentLister interface {
	List(ctx context.Context, f repository.PaymentsFilter) ([]domain.Payment, error)
	HasMoreThan(ctx context.Context, limit int64, f repository.PaymentsFilter) (bool, error)
}

type ExportUserLister interface {
	List(ctx context.Context, f repository.UsersFilter) ([]domain.User, error)
}

type ExportActivityLister interface {
	List(ctx context.Context, f repository.ActivitiesFilter) ([]domain.Activity, error)
	HasMoreThan(ctx context.Context, limit int64, f repository.ActivitiesFilter) (bool, error)
}

type ExportStatus struct {
	Key      string    `json:"key"`
	Type     string    `json:"type"`
	UserID   int64     `json:"user_id"`
	Filters  any       `json:"filters"`
	Progress float64   `json:"progress"`
	FileURL  *string   `json:"file_url"`
	Created  time.Time `json:"created_at"`
}

const (
	exportSetKey = "export_ids"
	exportTTL    = 20 * time.Minute

	// maxExportRows caps how many rows one XLSX file may carry; bigger
	// result sets are refused before anything is enqueued.
	maxExportRows = 500_000
)

func guardExportSize(tooMany bool, err error) error {
	if err != nil {
		return domain.Persistence("count export rows", err)
	}
	if tooMany {
		return domain.Validation("filter", fmt.Sprintf("too many rows to export (over %d), narrow the filter", maxExportRows))
	}
	return nil
}

// ExportService builds admin XLSX exports in the background: status lives in
// Redis, the artifact goes to S3, progress is pushed over the socket.
type ExportService struct {
	users UserFinder

	debts    ExportDebtLister
	payments ExportPaymentLister
	userList ExportUserLister
	activity ExportActivityLister

	redis *clients.RedisClient
	s3    *clients.S3Client
	ws    *clients.WebSocketClient
}

func NewExportService(
	users UserFinder,
	debts ExportDebtLister,
	payments ExportPaymentLister,
	userList ExportUserLister,
	activity ExportActivityLister,
	redis *clients.RedisClient,
	s3 *clients.S3Client,
	ws *clients.WebSocketClient,
) *ExportService {
	return &ExportService{
		users:    users,
		debts:    debts,
		payments: payments,
		userList: userList,
		activity: activity,
		redis:    redis,
		s3:       s3,
		ws:       ws,
	}
}

func (s *ExportService) requireAdmin(ctx context.Context, actorID int64) error {
	actor, err := loadActiveUser(ctx, s.users, actorID)
	if err != nil {
		return err
	}
	if actor.Role != domain.RoleAdmin {
		return domain.Forbidden("admin access required")
	}
	return nil
}

// column pairs an XLSX header with a cell value extractor over a row index.
type column struct {
	Header string
	Value  func(i int) any
}

// rowSource loads the rows once and exposes them as columns for the runner.
type rowSource func(ctx context.Context) (cols []column, total int, err error)

func strOrEmpty(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func moneyCell(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func timeCell(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02 15:04:05")
}

func debtColumnSet(debts []domain.Debt) []column {
	return []column{
		{"ID", func(i int) any { return debts[i].ID }},
		{"Creditor", func(i int) any { return strOrEmpty(debts[i].CreditorUsername) }},
		{"Debtor", func(i int) any { return strOrEmpty(debts[i].DebtorUsername) }},
		{"Type", func(i int) any { return string(debts[i].Type) }},
		{"Product", func(i int) any { return strOrEmpty(debts[i].ProductName) }},
		{"Amount", func(i int) any { return moneyCell(debts[i].Amount) }},
		{"Paid", func(i int) any { return moneyCell(debts[i].PaidAmount) }},
		{"Balance", func(i int) any { return moneyCell(debts[i].Balance()) }},
		{"Status", func(i int) any { return string(debts[i].Status) }},
		{"Created", func(i int) any { return debts[i].CreatedAt.Format("2006-01-02 15:04:05") }},
		{"Paid At", func(i int) any { return timeCell(debts[i].PaidAt) }},
	}
}

func paymentColumnSet(payments []domain.Payment) []column {
	return []column{
		{"ID", func(i int) any { return payments[i].ID }},
		{"Debt ID", func(i int) any { return payments[i].DebtID }},
		{"Payer", func(i int) any { return strOrEmpty(payments[i].PayerUsername) }},
		{"Amount", func(i int) any { return moneyCell(payments[i].Amount) }},
		{"Method", func(i int) any { return string(payments[i].Method) }},
		{"Status", func(i int) any { return string(payments[i].Status) }},
		{"Receipt No", func(i int) any { return payments[i].ReceiptNo }},
		{"Transaction ID", func(i int) any { return strOrEmpty(payments[i].TransactionID) }},
		{"Payment Date", func(i int) any { return timeCell(payments[i].PaymentDate) }},
		{"Verified At", func(i int) any { return timeCell(payments[i].VerifiedAt) }},
	}
}

func userColumnSet(users []domain.User) []column {
	return []column{
		{"ID", func(i int) any { return users[i].ID }},
		{"Username", func(i int) any { return users[i].Username }},
		{"Full Name", func(i int) any { return users[i].FullName }},
		{"Email", func(i int) any { return strOrEmpty(users[i].Email) }},
		{"Role", func(i int) any { return string(users[i].Role) }},
		{"Active", func(i int) any { return users[i].IsActive }},
		{"Total Loaned", func(i int) any {
			if users[i].TotalLoaned == nil {
				return ""
			}
			return moneyCell(*users[i].TotalLoaned)
		}},
		{"Total Owed", func(i int) any {
			if users[i].TotalOwed == nil {
				return ""
			}
			return moneyCell(*users[i].TotalOwed)
		}},
		{"Registered", func(i int) any { return users[i].CreatedAt.Format("2006-01-02 15:04:05") }},
	}
}

func activityColumnSet(rows []domain.Activity) []column {
	return []column{
		{"ID", func(i int) any { return rows[i].ID }},
		{"Admin", func(i int) any { return strOrEmpty(rows[i].Username) }},
		{"Action", func(i int) any { return string(rows[i].Action) }},
		{"Description", func(i int) any { return rows[i].Description }},
		{"IP", func(i int) any { return strOrEmpty(rows[i].IPAddress) }},
		{"When", func(i int) any { return rows[i].CreatedAt.Format("2006-01-02 15:04:05") }},
	}
}

func (s *ExportService) StartDebtsExport(ctx context.Context, actorID int64, f repository.DebtsFilter) (string, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return "", err
	}
	if err := guardExportSize(s.debts.HasMoreThan(ctx, maxExportRows, f)); err != nil {
		return "", err
	}
	return s.start(ctx, actorID, "debts", f, func(ctx context.Context) ([]column, int, error) {
		rows, err := s.debts.List(ctx, f)
		if err != nil {
			return nil, 0, err
		}
		return debtColumnSet(rows), len(rows), nil
	})
}

func (s *ExportService) StartPaymentsExport(ctx context.Context, actorID int64, f repository.PaymentsFilter) (string, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return "", err
	}
	if err := guardExportSize(s.payments.HasMoreThan(ctx, maxExportRows, f)); err != nil {
		return "", err
	}
	return s.start(ctx, actorID, "payments", f, func(ctx context.Context) ([]column, int, error) {
		rows, err := s.payments.List(ctx, f)
		if err != nil {
			return nil, 0, err
		}
		return paymentColumnSet(rows), len(rows), nil
	})
}

func (s *ExportService) StartUsersExport(ctx context.Context, actorID int64, f repository.UsersFilter) (string, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return "", err
	}
	return s.start(ctx, actorID, "users", f, func(ctx context.Context) ([]column, int, error) {
		rows, err := s.userList.List(ctx, f)
		if err != nil {
			return nil, 0, err
		}
		return userColumnSet(rows), len(rows), nil
	})
}

func (s *ExportService) StartActivityExport(ctx context.Context, actorID int64, f repository.ActivitiesFilter) (string, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return "", err
	}
	if err := guardExportSize(s.activity.HasMoreThan(ctx, maxExportRows, f)); err != nil {
		return "", err
	}
	return s.start(ctx, actorID, "activity", f, func(ctx context.Context) ([]column, int, error) {
		rows, err := s.activity.List(ctx, f)
		if err != nil {
			return nil, 0, err
		}
		return activityColumnSet(rows), len(rows), nil
	})
}

func (s *ExportService) start(ctx context.Context, userID int64, typ string, filters any, source rowSource) (string, error) {
	exportID := fmt.Sprintf("exports:%s", uuid.NewString())

	status := &ExportStatus{
		Key:     exportID,
		Type:    typ,
		UserID:  userID,
		Filters: filters,
		Created: time.Now(),
	}
	if err := s.saveStatus(ctx, status); err != nil {
		return "", domain.Persistence("store export status", err)
	}

	// The request only enqueues; generation runs detached from it.
	go s.run(context.Background(), status, source)

	return exportID, nil
}

func (s *ExportService) run(ctx context.Context, status *ExportStatus, source rowSource) {
	cols, total, err := source(ctx)
	if err != nil {
		log.Printf("[EXPORT] %s load failed: %v", status.Key, err)
		s.fail(ctx, status, "failed to load rows")
		return
	}

	f := excelize.NewFile()
	sheet := "Export"
	f.SetSheetName(f.GetSheetName(0), sheet)

	_ = f.SetDocProps(&excelize.DocProperties{
		Creator: fmt.Sprintf("user_%d", status.UserID),
	})

	for c, col := range cols {
		cell, _ := excelize.CoordinatesToCellName(c+1, 1)
		_ = f.SetCellValue(sheet, cell, col.Header)
	}

	const chunkSize = 1000
	for i := 0; i < total; i++ {
		for c, col := range cols {
			cell, _ := excelize.CoordinatesToCellName(c+1, i+2)
			_ = f.SetCellValue(sheet, cell, col.Value(i))
		}

		if (i+1)%chunkSize == 0 || i == total-1 {
			progress := math.Round(float64(i+1) / float64(total) * 100.0)
			// 100 is reserved for an uploaded, downloadable file.
			if progress >= 100 {
				progress = 95
			}
			s.progress(ctx, status, progress, "generating")
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		log.Printf("[EXPORT] %s write failed: %v", status.Key, err)
		s.fail(ctx, status, "failed to build spreadsheet")
		return
	}

	fileName := fmt.Sprintf("%s_%s.xlsx", status.Type, time.Now().Format("20060102_150405"))

	s.progress(ctx, status, 95, "uploading")

	key, err := s.s3.UploadXLSX(ctx, fileName, buf.Bytes())
	if err != nil {
		log.Printf("[EXPORT] %s upload failed: %v", status.Key, err)
		s.fail(ctx, status, "failed to upload file")
		return
	}

	url, err := s.s3.GetTemporaryURL(ctx, key, 48*time.Hour)
	if err != nil {
		log.Printf("[EXPORT] %s presign failed: %v", status.Key, err)
		s.fail(ctx, status, "failed to publish file")
		return
	}

	status.FileURL = &url
	status.Progress = 100
	if err := s.saveStatus(ctx, status); err != nil {
		log.Printf("[EXPORT] %s status save failed: %v", status.Key, err)
	}

	if s.ws != nil {
		_ = s.ws.NotifyExportProgress(ctx, status.UserID, status.Key, 100, "ready")
		_ = s.ws.NotifyExportComplete(ctx, status.UserID, status.Key, url, fileName)
	}
}

func (s *ExportService) progress(ctx context.Context, status *ExportStatus, progress float64, stage string) {
	status.Progress = progress
	if err := s.saveStatus(ctx, status); err != nil {
		log.Printf("[EXPORT] %s status save failed: %v", status.Key, err)
	}
	if s.ws != nil {
		_ = s.ws.NotifyExportProgress(ctx, status.UserID, status.Key, progress, stage)
	}
}

func (s *ExportService) fail(ctx context.Context, status *ExportStatus, msg string) {
	if err := s.saveStatus(ctx, status); err != nil {
		log.Printf("[EXPORT] %s status save failed: %v", status.Key, err)
	}
	if s.ws != nil {
		_ = s.ws.NotifyExportFailed(ctx, status.UserID, status.Key, msg)
	}
}

func (s *ExportService) saveStatus(ctx context.Context, status *ExportStatus) error {
	if s.redis == nil {
		return errors.New("redis client not configured")
	}

	data, err := json.Marshal(status)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, status.Key, string(data), exportTTL); err != nil {
		return err
	}
	return s.redis.SAdd(ctx, exportSetKey, status.Key)
}

// GetExports lists the caller's exports, newest first.
func (s *ExportService) GetExports(ctx context.Context, actorID int64) ([]ExportStatus, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}

	keys, err := s.redis.SMembers(ctx, exportSetKey)
	if err != nil {
		return nil, domain.Persistence("list exports", err)
	}

	var statuses []ExportStatus
	for _, key := range keys {
		data, err := s.redis.Get(ctx, key)
		if err != nil {
			continue // expired
		}

		var status ExportStatus
		if err := json.Unmarshal([]byte(data), &status); err != nil {
			continue
		}
		if status.UserID == actorID {
			statuses = append(statuses, status)
		}
	}

	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Created.After(statuses[j].Created)
	})

	return statuses, nil
}

func (s *ExportService) GetExport(ctx context.Context, actorID int64, exportID string) (*ExportStatus, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}

	data, err := s.redis.Get(ctx, exportID)
	if errors.Is(err, clients.ErrCacheMiss) {
		return nil, domain.NotFound("export")
	}
	if err != nil {
		return nil, domain.Persistence("load export status", err)
	}

	var status ExportStatus
	if err := json.Unmarshal([]byte(data), &status); err != nil {
		return nil, domain.Persistence("decode export status", err)
	}
	if status.UserID != actorID {
		return nil, domain.NotFound("export")
	}

	return &status, nil
}
