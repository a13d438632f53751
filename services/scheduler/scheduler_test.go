package scheduler

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	pgdriver "gorm.io/driver/postgres"
	"gorm.io/gorm"

	coordinator_constants "github.com/brandonscholten/capstone-spring-2025/constants/coordinator"
	models "github.com/brandonscholten/capstone-spring-2025/models/postgres"
	redis_models "github.com/brandonscholten/capstone-spring-2025/models/redis"
	"github.com/brandonscholten/capstone-spring-2025/services/backend"
)

type fakeRegistry struct {
	session *redis_models.Session
	deleted []string
}

func (r *fakeRegistry) GetSession(sessionId string) (*redis_models.Session, error) {
	if r.session != nil && r.session.Id == sessionId {
		return r.session, nil
	}
	return nil, nil
}

func (r *fakeRegistry) DeleteSession(session *redis_models.Session) error {
	r.deleted = append(r.deleted, session.Id)
	return nil
}

type fakeSurface struct {
	notices         []string
	deletedMessages []string
}

func (s *fakeSurface) Notify(member, text string) error {
	s.notices = append(s.notices, member+": "+text)
	return nil
}

func (s *fakeSurface) DeleteMessage(messageID string) error {
	s.deletedMessages = append(s.deletedMessages, messageID)
	return nil
}

type fakeBackend struct {
	deleted   []string
	deleteErr error

	// Signals immediately-armed fires running on their own goroutine
	fired chan string
}

func (b *fakeBackend) DeleteSession(kind, sessionID string) error {
	b.deleted = append(b.deleted, kind+":"+sessionID)
	if b.fired != nil {
		b.fired <- kind + ":" + sessionID
	}
	return b.deleteErr
}

func liveSession() *redis_models.Session {
	return &redis_models.Session{
		Id:             "42",
		Kind:           coordinator_constants.KIND_GAME,
		Title:          "Catan Night",
		StartTime:      time.Date(2025, 3, 14, 23, 0, 0, 0, time.UTC),
		EndTime:        time.Date(2025, 3, 15, 2, 0, 0, 0, time.UTC),
		Roster:         []string{"organizer", "alice"},
		AnnouncementID: "msg-42",
	}
}

func reminderAction(member string, late bool) models.ScheduledAction {
	payload, _ := json.Marshal(actionPayload{
		AnnouncementID: "msg-42",
		Kind:           coordinator_constants.KIND_GAME,
		Title:          "Catan Night",
		StartTime:      time.Date(2025, 3, 14, 23, 0, 0, 0, time.UTC),
		Late:           late,
	})
	return models.ScheduledAction{
		ID:        1,
		SessionID: "42",
		Kind:      coordinator_constants.ACTION_REMINDER,
		MemberID:  member,
		Payload:   datatypes.JSON(payload),
	}
}

func TestFireReminder(t *testing.T) {
	t.Run("Attending member gets the notice", func(t *testing.T) {
		registry := &fakeRegistry{session: liveSession()}
		surface := &fakeSurface{}
		s := &Scheduler{registry: registry, surface: surface, backend: &fakeBackend{}}

		action := reminderAction("alice", false)
		var payload actionPayload
		require.NoError(t, json.Unmarshal(action.Payload, &payload))

		s.fireReminder(action, payload)

		assert.Len(t, surface.notices, 1)
		assert.Contains(t, surface.notices[0], "alice: ")
		assert.Contains(t, surface.notices[0], "starts in one hour")
		assert.Contains(t, surface.notices[0], "7:00 PM")
	})

	t.Run("Late reminders say starting soon", func(t *testing.T) {
		registry := &fakeRegistry{session: liveSession()}
		surface := &fakeSurface{}
		s := &Scheduler{registry: registry, surface: surface, backend: &fakeBackend{}}

		action := reminderAction("alice", true)
		var payload actionPayload
		require.NoError(t, json.Unmarshal(action.Payload, &payload))

		s.fireReminder(action, payload)

		assert.Len(t, surface.notices, 1)
		assert.Contains(t, surface.notices[0], "starting soon")
	})

	t.Run("Suppressed when the member no longer attends", func(t *testing.T) {
		registry := &fakeRegistry{session: liveSession()}
		surface := &fakeSurface{}
		s := &Scheduler{registry: registry, surface: surface, backend: &fakeBackend{}}

		action := reminderAction("bob", false)
		var payload actionPayload
		require.NoError(t, json.Unmarshal(action.Payload, &payload))

		s.fireReminder(action, payload)

		assert.Empty(t, surface.notices)
	})

	t.Run("Suppressed when the session is gone", func(t *testing.T) {
		surface := &fakeSurface{}
		s := &Scheduler{registry: &fakeRegistry{}, surface: surface, backend: &fakeBackend{}}

		action := reminderAction("alice", false)
		var payload actionPayload
		require.NoError(t, json.Unmarshal(action.Payload, &payload))

		s.fireReminder(action, payload)

		assert.Empty(t, surface.notices)
	})
}

func TestFireTeardown(t *testing.T) {
	teardownAction := func() (models.ScheduledAction, actionPayload) {
		payload := actionPayload{
			AnnouncementID: "msg-42",
			Kind:           coordinator_constants.KIND_GAME,
			Title:          "Catan Night",
		}
		data, _ := json.Marshal(payload)
		return models.ScheduledAction{
			ID:        2,
			SessionID: "42",
			Kind:      coordinator_constants.ACTION_TEARDOWN,
			Payload:   datatypes.JSON(data),
		}, payload
	}

	t.Run("Removes announcement, registry entry and record", func(t *testing.T) {
		registry := &fakeRegistry{session: liveSession()}
		surface := &fakeSurface{}
		be := &fakeBackend{}
		s := &Scheduler{registry: registry, surface: surface, backend: be}

		action, payload := teardownAction()
		s.fireTeardown(action, payload)

		assert.Equal(t, []string{"42"}, registry.deleted)
		assert.Equal(t, []string{"msg-42"}, surface.deletedMessages)
		assert.Equal(t, []string{"game:42"}, be.deleted)
	})

	t.Run("Already-deleted record is success", func(t *testing.T) {
		registry := &fakeRegistry{session: liveSession()}
		be := &fakeBackend{deleteErr: backend.ErrNotFound}
		s := &Scheduler{registry: registry, surface: &fakeSurface{}, backend: be}

		action, payload := teardownAction()
		s.fireTeardown(action, payload)

		assert.Equal(t, []string{"42"}, registry.deleted)
	})

	t.Run("Vanished registry entry still cleans up from the payload", func(t *testing.T) {
		surface := &fakeSurface{}
		be := &fakeBackend{}
		s := &Scheduler{registry: &fakeRegistry{}, surface: surface, backend: be}

		action, payload := teardownAction()
		s.fireTeardown(action, payload)

		assert.Equal(t, []string{"msg-42"}, surface.deletedMessages)
		assert.Equal(t, []string{"game:42"}, be.deleted)
	})
}

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(pgdriver.New(pgdriver.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	}), &gorm.Config{})
	require.NoError(t, err)
	return db, mock
}

func TestScheduleReminder(t *testing.T) {
	t.Run("Pending reminder is not scheduled twice", func(t *testing.T) {
		db, mock := newMockDB(t)
		s := New(db, &fakeRegistry{}, &fakeSurface{}, &fakeBackend{})

		session := liveSession()
		payload, _ := json.Marshal(actionPayload{})
		mock.ExpectQuery(`SELECT \* FROM "scheduled_actions"`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "session_id", "kind", "member_id", "fire_at", "payload"}).
				AddRow(1, session.Id, coordinator_constants.ACTION_REMINDER, "alice", session.StartTime, payload))

		err := s.ScheduleReminder(session, "alice")
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Query failure is surfaced", func(t *testing.T) {
		db, mock := newMockDB(t)
		s := New(db, &fakeRegistry{}, &fakeSurface{}, &fakeBackend{})

		mock.ExpectQuery(`SELECT \* FROM "scheduled_actions"`).
			WillReturnError(fmt.Errorf("connection reset"))

		err := s.ScheduleReminder(liveSession(), "alice")
		assert.Error(t, err)
	})
}

func awaitFire(t *testing.T, fired <-chan string) string {
	t.Helper()
	select {
	case id := <-fired:
		return id
	case <-time.After(2 * time.Second):
		t.Fatal("scheduled action never fired")
		return ""
	}
}

func TestScheduleTeardown(t *testing.T) {
	t.Run("Past end time persists the row and fires immediately", func(t *testing.T) {
		db, mock := newMockDB(t)
		registry := &fakeRegistry{session: liveSession()}
		surface := &fakeSurface{}
		be := &fakeBackend{fired: make(chan string, 1)}
		s := New(db, registry, surface, be)

		session := liveSession()
		session.EndTime = time.Now().Add(-time.Minute)

		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO "scheduled_actions"`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
		mock.ExpectCommit()
		// Fire-once: the row is deleted after the immediate fire
		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM "scheduled_actions"`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, s.ScheduleTeardown(session))

		assert.Equal(t, "game:42", awaitFire(t, be.fired))
		assert.Equal(t, []string{"42"}, registry.deleted)
		assert.Equal(t, []string{"msg-42"}, surface.deletedMessages)
		assert.Eventually(t, func() bool { return mock.ExpectationsWereMet() == nil },
			time.Second, 10*time.Millisecond)
	})

	t.Run("Already-deleted record still clears the row", func(t *testing.T) {
		db, mock := newMockDB(t)
		registry := &fakeRegistry{session: liveSession()}
		be := &fakeBackend{fired: make(chan string, 1), deleteErr: backend.ErrNotFound}
		s := New(db, registry, &fakeSurface{}, be)

		session := liveSession()
		session.EndTime = time.Now().Add(-time.Minute)

		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO "scheduled_actions"`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(8))
		mock.ExpectCommit()
		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM "scheduled_actions"`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, s.ScheduleTeardown(session))

		awaitFire(t, be.fired)
		assert.Equal(t, []string{"42"}, registry.deleted)
		assert.Eventually(t, func() bool { return mock.ExpectationsWereMet() == nil },
			time.Second, 10*time.Millisecond)
	})

	t.Run("Insert failure is surfaced", func(t *testing.T) {
		db, mock := newMockDB(t)
		s := New(db, &fakeRegistry{}, &fakeSurface{}, &fakeBackend{})

		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO "scheduled_actions"`).
			WillReturnError(fmt.Errorf("connection reset"))
		mock.ExpectRollback()

		err := s.ScheduleTeardown(liveSession())
		assert.Error(t, err)
	})
}

func TestRestorePending(t *testing.T) {
	t.Run("Past-due rows are re-armed and fire", func(t *testing.T) {
		db, mock := newMockDB(t)
		registry := &fakeRegistry{session: liveSession()}
		surface := &fakeSurface{}
		be := &fakeBackend{fired: make(chan string, 1)}
		s := New(db, registry, surface, be)

		payload, _ := json.Marshal(actionPayload{
			AnnouncementID: "msg-42",
			Kind:           coordinator_constants.KIND_GAME,
			Title:          "Catan Night",
		})
		mock.ExpectQuery(`SELECT \* FROM "scheduled_actions"`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "session_id", "kind", "member_id", "fire_at", "payload"}).
				AddRow(3, "42", coordinator_constants.ACTION_TEARDOWN, "", time.Now().Add(-time.Minute), payload))
		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM "scheduled_actions"`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, s.RestorePending())

		assert.Equal(t, "game:42", awaitFire(t, be.fired))
		assert.Equal(t, []string{"msg-42"}, surface.deletedMessages)
		assert.Eventually(t, func() bool { return mock.ExpectationsWereMet() == nil },
			time.Second, 10*time.Millisecond)
	})

	t.Run("Empty table restores nothing", func(t *testing.T) {
		db, mock := newMockDB(t)
		be := &fakeBackend{}
		s := New(db, &fakeRegistry{}, &fakeSurface{}, be)

		mock.ExpectQuery(`SELECT \* FROM "scheduled_actions"`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "session_id", "kind", "member_id", "fire_at", "payload"}))

		require.NoError(t, s.RestorePending())
		assert.Empty(t, be.deleted)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Load failure is surfaced", func(t *testing.T) {
		db, mock := newMockDB(t)
		s := New(db, &fakeRegistry{}, &fakeSurface{}, &fakeBackend{})

		mock.ExpectQuery(`SELECT \* FROM "scheduled_actions"`).
			WillReturnError(fmt.Errorf("connection reset"))

		assert.Error(t, s.RestorePending())
	})
}
