package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/uma-arai/sbcntr-reminder/internal/model"
	"github.com/uma-arai/sbcntr-reminder/internal/scheduler"
)

// newMockDB はsqlmockを使ったテスト用のDBを作成します
func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()

	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled expectations: %v", err)
		}
		conn.Close()
	})

	return NewDB(sqlx.NewDb(conn, "postgres")), mock
}

func testContext(t *testing.T) context.Context {
	ctx, seg := xray.BeginSegment(context.Background(), t.Name())
	t.Cleanup(func() { seg.Close(nil) })
	return ctx
}

func TestDeviceQueueRepository_EnsureDeviceQueue(t *testing.T) {
	ctx := testContext(t)
	db, mock := newMockDB(t)

	// インデックスが参照する列はすべてテーブル定義に含まれていること
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS scheduled_local_notifications \(\s+id UUID PRIMARY KEY,\s+user_id TEXT NOT NULL,` +
		`(?s:.*)CREATE INDEX IF NOT EXISTS idx_scheduled_local_notifications_pending\s+ON scheduled_local_notifications \(user_id, fire_at\)`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	queue := NewDeviceQueueRepository(db, scheduler.DefaultPresentation())
	if err := queue.EnsureDeviceQueue(ctx); err != nil {
		t.Fatalf("EnsureDeviceQueue() error = %v", err)
	}
}

func TestDeviceQueueRepository_Schedule(t *testing.T) {
	ctx := testContext(t)
	db, mock := newMockDB(t)
	at := time.Date(2025, 1, 5, 19, 30, 0, 0, time.FixedZone("JST", 9*60*60))

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO scheduled_local_notifications (`)).
		WithArgs(sqlmock.AnyArg(), "user1", "ワクチン", "病院に行く", at.UTC(), true, false, true, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	queue := NewDeviceQueueRepository(db, scheduler.Presentation{ShowAlert: true, PlaySound: false, SetBadge: true})
	id, err := queue.ForUser("user1").Schedule(ctx, scheduler.Content{Title: "ワクチン", Body: "病院に行く"}, at)
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	if id == "" {
		t.Error("Schedule() returned an empty ID")
	}
}

func TestDeviceQueueRepository_Cancel(t *testing.T) {
	tests := []struct {
		name         string
		rowsAffected int64
		wantNotFound bool
	}{
		{name: "通知を取り消す", rowsAffected: 1},
		{name: "存在しない通知", rowsAffected: 0, wantNotFound: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := testContext(t)
			db, mock := newMockDB(t)

			mock.ExpectExec(regexp.QuoteMeta(`UPDATE scheduled_local_notifications`)).
				WithArgs("n1", "user1").
				WillReturnResult(sqlmock.NewResult(0, tt.rowsAffected))

			err := NewDeviceQueueRepository(db, scheduler.DefaultPresentation()).ForUser("user1").Cancel(ctx, "n1")
			if tt.wantNotFound {
				if !errors.Is(err, scheduler.ErrNotFound) {
					t.Errorf("Cancel() error = %v, want ErrNotFound", err)
				}
				return
			}
			if err != nil {
				t.Errorf("Cancel() error = %v", err)
			}
		})
	}
}

func TestDeviceQueueRepository_ListScheduled(t *testing.T) {
	ctx := testContext(t)
	db, mock := newMockDB(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id::text`) + `(?s:.*)` + regexp.QuoteMeta(`WHERE user_id = $1`)).
		WithArgs("user1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("n1").AddRow("n2"))

	ids, err := NewDeviceQueueRepository(db, scheduler.DefaultPresentation()).ForUser("user1").ListScheduled(ctx)
	if err != nil {
		t.Fatalf("ListScheduled() error = %v", err)
	}
	if len(ids) != 2 || ids[0] != "n1" || ids[1] != "n2" {
		t.Errorf("ListScheduled() = %v, want [n1 n2]", ids)
	}
}

func TestReminderRepository_GetByUserID(t *testing.T) {
	ctx := testContext(t)
	db, mock := newMockDB(t)
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	created := time.Date(2024, 12, 1, 10, 0, 0, 0, time.UTC)

	columns := []string{
		"id", "user_id", "pet_id", "type", "title", "notes", "frequency", "interval",
		"start_date", "end_date", "time", "next_due", "last_completed", "is_active", "created_at",
	}
	mock.ExpectQuery(regexp.QuoteMeta(`"time"::text AS "time"`)).
		WithArgs("user1").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("r1", "user1", "pet1", "feeding_dry", "ごはん", "カリカリ", "daily", nil,
				start, start.AddDate(0, 0, 2), "08:30:00", nil, nil, true, created).
			AddRow("r2", "user1", "pet2", "vet_checkup", "健康診断", nil, "once", nil,
				start, nil, nil, nil, nil, false, created))

	reminders, err := NewReminderRepository(db).GetByUserID(ctx, "user1")
	if err != nil {
		t.Fatalf("GetByUserID() error = %v", err)
	}
	if len(reminders) != 2 {
		t.Fatalf("GetByUserID() returned %d reminders, want 2", len(reminders))
	}

	daily := reminders[0]
	if daily.Frequency != model.FrequencyDaily || daily.Time == nil || *daily.Time != "08:30:00" {
		t.Errorf("reminders[0] = %+v", daily)
	}
	if daily.Notes == nil || *daily.Notes != "カリカリ" {
		t.Errorf("reminders[0].Notes = %v, want カリカリ", daily.Notes)
	}
	if daily.EndDate == nil || !daily.EndDate.Equal(start.AddDate(0, 0, 2)) {
		t.Errorf("reminders[0].EndDate = %v", daily.EndDate)
	}

	once := reminders[1]
	if once.Time != nil || once.EndDate != nil || once.Notes != nil {
		t.Errorf("reminders[1] nullable columns = %v %v %v, want nil", once.Time, once.EndDate, once.Notes)
	}
}

func TestNotificationRepository_Create(t *testing.T) {
	ctx := testContext(t)
	db, mock := newMockDB(t)
	at := time.Date(2025, 1, 5, 10, 30, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO notifications (`) + `(?s:.*)` + regexp.QuoteMeta(`RETURNING id`)).
		WithArgs("n1", "r1", "user1", "pet1", "vet_checkup", "ワクチン", "メモ", at, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	entry := model.NewLedgerEntry(model.Reminder{
		ID:     "r1",
		UserID: "user1",
		PetID:  "pet1",
		Type:   model.ReminderTypeVetCheckup,
		Title:  "ワクチン",
		Notes:  func() *string { s := "メモ"; return &s }(),
	}, "n1", at)

	if err := NewNotificationRepository(db).Create(ctx, &entry); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if entry.ID != 42 {
		t.Errorf("entry.ID = %d, want 42", entry.ID)
	}
	if entry.CreatedAt.IsZero() {
		t.Error("entry.CreatedAt should be set")
	}
}

func TestNotificationRepository_Create_Error(t *testing.T) {
	ctx := testContext(t)
	db, mock := newMockDB(t)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO notifications (`)).
		WillReturnError(errors.New("connection reset"))

	entry := model.LedgerEntry{NotificationID: "n1", ReminderID: "r1", UserID: "user1", Time: time.Now()}
	if err := NewNotificationRepository(db).Create(ctx, &entry); err == nil {
		t.Error("Create() error = nil, want error")
	}
}

func TestNotificationRepository_Create_ScanError(t *testing.T) {
	ctx := testContext(t)
	db, mock := newMockDB(t)

	// RETURNING id が数値に変換できない場合は読み込みエラーを返す
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO notifications (`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("not-a-number"))

	entry := model.LedgerEntry{NotificationID: "n1", ReminderID: "r1", UserID: "user1", Time: time.Now()}
	if err := NewNotificationRepository(db).Create(ctx, &entry); err == nil {
		t.Error("Create() error = nil, want scan error")
	}
	if entry.ID != 0 {
		t.Errorf("entry.ID = %d, want 0", entry.ID)
	}
}

func TestNotificationRepository_GetDeliveredByUserID(t *testing.T) {
	ctx := testContext(t)
	db, mock := newMockDB(t)
	now := time.Date(2025, 1, 5, 12, 0, 0, 0, time.UTC)

	columns := []string{"id", "notification_id", "reminder_id", "user_id", "pet_id", "type", "title", "body", "time", "created_at"}
	mock.ExpectQuery(regexp.QuoteMeta(`AND time <= $2`) + `(?s:.*)` + regexp.QuoteMeta(`ORDER BY time DESC`)).
		WithArgs("user1", now).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(int64(2), "n2", "r1", "user1", "pet1", "feeding_dry", "ごはん", "", now.Add(-time.Hour), now).
			AddRow(int64(1), "n1", "r2", "user1", nil, "other", "買い物", "", now.Add(-2*time.Hour), now))

	entries, err := NewNotificationRepository(db).GetDeliveredByUserID(ctx, "user1", now)
	if err != nil {
		t.Fatalf("GetDeliveredByUserID() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("GetDeliveredByUserID() returned %d entries, want 2", len(entries))
	}
	if entries[0].PetID == nil || *entries[0].PetID != "pet1" || entries[1].PetID != nil {
		t.Errorf("unexpected pet ids: %v, %v", entries[0].PetID, entries[1].PetID)
	}
}

func TestPetRepository_GetNamesByIDs(t *testing.T) {
	ctx := testContext(t)
	db, mock := newMockDB(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM pets WHERE id IN ($1, $2)`)).
		WithArgs("pet1", "pet2").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow("pet1", "ポチ"))

	names, err := NewPetRepository(db).GetNamesByIDs(ctx, []string{"pet1", "pet2"})
	if err != nil {
		t.Fatalf("GetNamesByIDs() error = %v", err)
	}
	if len(names) != 1 || names["pet1"] != "ポチ" {
		t.Errorf("GetNamesByIDs() = %v, want map[pet1:ポチ]", names)
	}

	// 空の場合は問い合わせない
	names, err = NewPetRepository(db).GetNamesByIDs(ctx, nil)
	if err != nil || len(names) != 0 {
		t.Errorf("GetNamesByIDs(nil) = %v, %v", names, err)
	}
}

func TestProfileRepository_NotificationsEnabled(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(mock sqlmock.Sqlmock)
		want    bool
		wantErr bool
	}{
		{
			name: "通知を許可",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT notifications_enabled`).WithArgs("user1").
					WillReturnRows(sqlmock.NewRows([]string{"notifications_enabled"}).AddRow(true))
			},
			want: true,
		},
		{
			name: "通知を拒否",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT notifications_enabled`).WithArgs("user1").
					WillReturnRows(sqlmock.NewRows([]string{"notifications_enabled"}).AddRow(false))
			},
			want: false,
		},
		{
			name: "プロフィールなしは許可",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT notifications_enabled`).WithArgs("user1").
					WillReturnError(sql.ErrNoRows)
			},
			want: true,
		},
		{
			name: "列が無いスキーマは許可",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT notifications_enabled`).WithArgs("user1").
					WillReturnError(&pq.Error{Code: "42703", Message: `column "notifications_enabled" does not exist`})
			},
			want: true,
		},
		{
			name: "その他のエラー",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT notifications_enabled`).WithArgs("user1").
					WillReturnError(errors.New("connection reset"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := testContext(t)
			db, mock := newMockDB(t)
			tt.setup(mock)

			got, err := NewProfileRepository(db).NotificationsEnabled(ctx, "user1")
			if (err != nil) != tt.wantErr {
				t.Fatalf("NotificationsEnabled() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("NotificationsEnabled() = %v, want %v", got, tt.want)
			}
		})
	}
}
