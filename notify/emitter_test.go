package notify_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sacavia/guide-ledger/ledger"
	"github.com/sacavia/guide-ledger/ledger/store"
	"github.com/sacavia/guide-ledger/notify"
)

var now = time.Date(2025, time.March, 15, 12, 0, 0, 0, time.UTC)

type sentEmail struct{ to, subject, body string }

type fakeMailer struct {
	sent []sentEmail
	err  error
}

func (m *fakeMailer) SendEmail(_ context.Context, to, subject, body string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentEmail{to, subject, body})
	return nil
}

func sale() (ledger.Guide, ledger.Purchase) {
	guide := ledger.Guide{ID: "lisbon", AuthorID: "creator-1", Title: "Lisbon Rooftops"}
	p := ledger.Purchase{
		ID: "p-1", UserID: "buyer-1", GuideID: "lisbon", CreatorID: "creator-1",
		Amount: 1000, Fees: ledger.CalculateFees(1000),
	}
	return guide, p
}

func TestSaleNotification_Message(t *testing.T) {
	guide, p := sale()
	n := notify.SaleNotification(guide, p, now)

	assert.Equal(t, ledger.UserID("creator-1"), n.RecipientID)
	assert.Equal(t, ledger.NotificationGuideSale, n.Type)
	assert.Equal(t, `Your guide "Lisbon Rooftops" sold for $10.00. You earned $7.91.`, n.Message)
	assert.Equal(t, ledger.PurchaseID("p-1"), n.PurchaseID)
	assert.NotEmpty(t, n.ID)

	r := notify.RefundNotification(guide, p, now)
	assert.Equal(t, ledger.NotificationGuideRefund, r.Type)
	assert.Contains(t, r.Message, "$7.91")
}

func TestEmit_StoresAndEmails(t *testing.T) {
	st := store.NewMemory()
	mailer := &fakeMailer{}
	e := notify.NewEmitter(st, mailer)
	ctx := context.Background()

	guide, p := sale()
	n := notify.SaleNotification(guide, p, now)
	require.NoError(t, e.Emit(ctx, n, &ledger.CreatorProfile{UserID: "creator-1", Email: "maya@example.com"}))

	notes, err := st.ListNotifications(ctx, "creator-1", 0)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "maya@example.com", mailer.sent[0].to)
	assert.Equal(t, "New guide sale", mailer.sent[0].subject)
}

func TestEmit_EmailFailureIsNotAnError(t *testing.T) {
	// GIVEN: A mailer that always fails
	// WHEN: A notification is emitted
	// THEN: It is still stored and Emit succeeds

	st := store.NewMemory()
	e := notify.NewEmitter(st, &fakeMailer{err: errors.New("smtp down")})
	ctx := context.Background()

	guide, p := sale()
	require.NoError(t, e.Emit(ctx, notify.SaleNotification(guide, p, now), &ledger.CreatorProfile{Email: "maya@example.com"}))

	notes, err := st.ListNotifications(ctx, "creator-1", 0)
	require.NoError(t, err)
	assert.Len(t, notes, 1)
}

func TestEmit_NoEmailAddressOrMailer(t *testing.T) {
	st := store.NewMemory()
	mailer := &fakeMailer{}
	ctx := context.Background()
	guide, p := sale()

	require.NoError(t, notify.NewEmitter(st, mailer).Emit(ctx, notify.SaleNotification(guide, p, now), &ledger.CreatorProfile{}))
	require.NoError(t, notify.NewEmitter(st, mailer).Emit(ctx, notify.SaleNotification(guide, p, now), nil))
	require.NoError(t, notify.NewEmitter(st, nil).Emit(ctx, notify.SaleNotification(guide, p, now), &ledger.CreatorProfile{Email: "x@example.com"}))
	assert.Empty(t, mailer.sent)

	notes, err := st.ListNotifications(ctx, "creator-1", 0)
	require.NoError(t, err)
	assert.Len(t, notes, 3)
}

func TestNewSMTPMailer_RequiresHostAndSender(t *testing.T) {
	assert.Nil(t, notify.NewSMTPMailer("", "587", "u", "p", "from@example.com"))
	assert.Nil(t, notify.NewSMTPMailer("smtp.example.com", "587", "u", "p", ""))
	assert.NotNil(t, notify.NewSMTPMailer("smtp.example.com", "587", "u", "p", "from@example.com"))
}

func TestRedeliver_IsIdempotent(t *testing.T) {
	st := store.NewMemory()
	e := notify.NewEmitter(st, nil)
	ctx := context.Background()

	guide, p := sale()
	n := notify.SaleNotification(guide, p, now)
	require.NoError(t, e.Redeliver(ctx, n))
	require.NoError(t, e.Redeliver(ctx, n))

	notes, err := st.ListNotifications(ctx, "creator-1", 0)
	require.NoError(t, err)
	assert.Len(t, notes, 1)
}
