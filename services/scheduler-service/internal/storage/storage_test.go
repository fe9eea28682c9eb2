package storage

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/apptflow/services/scheduler-service/internal/model"
)

func newMock(t *testing.T) (pgxmock.PgxPoolIface, *Store) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, New(mock)
}

func TestClaimJob_Exclusive(t *testing.T) {
	mock, store := newMock(t)
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectExec("UPDATE message_jobs SET status = 'CLAIMED'").
		WithArgs("job-1", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE message_jobs SET status = 'CLAIMED'").
		WithArgs("job-1", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	first, err := store.ClaimJob(ctx, "job-1", now)
	require.NoError(t, err)
	second, err := store.ClaimJob(ctx, "job-1", now)
	require.NoError(t, err)

	assert.True(t, first)
	assert.False(t, second)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIncrementUsage_SingleStatement(t *testing.T) {
	mock, store := newMock(t)
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectExec("UPDATE billing SET messages_used_this_month = CASE WHEN").
		WithArgs("biz-1", 1, now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE billing").
		WithArgs("missing", 1, now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, store.IncrementUsage(context.Background(), "biz-1", 1, now))
	assert.ErrorIs(t, store.IncrementUsage(context.Background(), "missing", 1, now), ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSupersedeJob_SkipsThenInsertsInOneTx(t *testing.T) {
	mock, store := newMock(t)
	sendAt := time.Date(2026, 6, 2, 9, 0, 0, 0, time.UTC)
	job := model.MessageJob{
		ID: "job-2", BusinessID: "biz-1", CustomerID: "cust-1", AppointmentID: "appt-1",
		RuleType: model.RuleReminder24h, Channel: model.ChannelSMS, SendAt: sendAt,
	}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE message_jobs SET status = 'SKIPPED'").
		WithArgs("appt-1", "REMINDER_24H", "SMS", "superseded").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO message_jobs").
		WithArgs("job-2", "biz-1", "cust-1", "appt-1", "REMINDER_24H", "SMS", sendAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, store.SupersedeJob(context.Background(), job, "superseded"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertJobIfAbsent(t *testing.T) {
	mock, store := newMock(t)
	job := model.MessageJob{ID: "job-3", AppointmentID: "appt-1", RuleType: model.RuleFeedback1h, Channel: model.ChannelEmail}

	mock.ExpectExec("INSERT INTO message_jobs").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO message_jobs").WillReturnResult(pgxmock.NewResult("INSERT", 0))

	inserted, err := store.InsertJobIfAbsent(context.Background(), job)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = store.InsertJobIfAbsent(context.Background(), job)
	require.NoError(t, err)
	assert.False(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchDueJobs(t *testing.T) {
	mock, store := newMock(t)
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

	rows := pgxmock.NewRows([]string{"id", "business_id", "customer_id", "appointment_id", "rule_type", "channel", "send_at", "status"}).
		AddRow("j1", "biz-1", "cust-1", "appt-1", model.RuleReminder24h, model.ChannelSMS, now.Add(-time.Hour), model.JobQueued).
		AddRow("j2", "biz-1", "cust-1", "appt-1", model.RuleReminder2h, model.ChannelEmail, now.Add(-time.Minute), model.JobQueued)
	mock.ExpectQuery("SELECT (.+) FROM message_jobs WHERE status = 'QUEUED' AND send_at <= \\$1 ORDER BY send_at ASC").
		WithArgs(now, 50).
		WillReturnRows(rows)

	jobs, err := store.FetchDueJobs(context.Background(), now, 50)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "j1", jobs[0].ID)
	assert.Equal(t, model.ChannelEmail, jobs[1].Channel)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFinish_RequiresClaim(t *testing.T) {
	mock, store := newMock(t)
	sentAt := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectExec("UPDATE message_jobs SET status = \\$2").
		WithArgs("j1", "SENT", "SM1", "", &sentAt).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE message_jobs SET status = \\$2").
		WithArgs("j2", "FAILED", "", "timeout", (*time.Time)(nil)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, store.MarkJobSent(context.Background(), "j1", "SM1", sentAt))
	assert.ErrorIs(t, store.MarkJobFailed(context.Background(), "j2", "timeout"), ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

// utf8Within matches a string argument that is valid UTF-8 and at most max bytes.
type utf8Within struct{ max int }

func (m utf8Within) Match(v any) bool {
	s, ok := v.(string)
	return ok && utf8.ValidString(s) && len(s) <= m.max && len(s) > 0
}

func TestMarkJobFailed_TruncatesOnRuneBoundary(t *testing.T) {
	mock, store := newMock(t)
	reason := "a" + strings.Repeat("é", 1500)

	mock.ExpectExec("UPDATE message_jobs SET status = \\$2").
		WithArgs("j1", "FAILED", "", utf8Within{max: 1000}, (*time.Time)(nil)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, store.MarkJobFailed(context.Background(), "j1", reason))
	require.NoError(t, mock.ExpectationsWereMet())

	got := truncate(reason, 1000)
	assert.True(t, utf8.ValidString(got))
	assert.Len(t, got, 999)
	assert.Equal(t, "abc", truncate("abc", 1000))
	assert.Equal(t, "", truncate("é", 1))
}

func TestGetRule_NoneEnabled(t *testing.T) {
	mock, store := newMock(t)
	mock.ExpectQuery("FROM automation_rules").
		WithArgs("biz-1", "FEEDBACK_1H").
		WillReturnRows(pgxmock.NewRows([]string{"id", "business_id", "type", "enabled", "channel", "template_id", "delay_minutes"}))

	rule, err := store.GetRule(context.Background(), "biz-1", model.RuleFeedback1h)
	require.NoError(t, err)
	assert.Nil(t, rule)
}

func TestSubmitFeedback(t *testing.T) {
	mock, store := newMock(t)
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectExec("UPDATE feedback").WithArgs("tok", 5, "great", now).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, store.SubmitFeedback(context.Background(), "tok", 5, "great", now))

	mock.ExpectExec("UPDATE feedback").WithArgs("tok", 4, "", now).WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT EXISTS").WithArgs("tok").WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	assert.ErrorIs(t, store.SubmitFeedback(context.Background(), "tok", 4, "", now), ErrAlreadySubmitted)

	mock.ExpectExec("UPDATE feedback").WithArgs("nope", 4, "", now).WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT EXISTS").WithArgs("nope").WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	assert.ErrorIs(t, store.SubmitFeedback(context.Background(), "nope", 4, "", now), ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUnsubscribeEmail(t *testing.T) {
	mock, store := newMock(t)
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE customers SET opted_out_email = true").
		WithArgs("utok", now).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("cust-1"))
	mock.ExpectExec("UPDATE message_jobs").
		WithArgs("cust-1", "EMAIL", "customer opted out of email").
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	mock.ExpectCommit()

	res, err := store.UnsubscribeEmail(context.Background(), "utok", now)
	require.NoError(t, err)
	assert.Equal(t, []string{"cust-1"}, res.CustomerIDs)
	assert.EqualValues(t, 2, res.JobsSkipped)
	require.NoError(t, mock.ExpectationsWereMet())
}
