package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnyanpeeth/fee-ledger/ledger"
	"github.com/dnyanpeeth/fee-ledger/rowstore"
	"github.com/dnyanpeeth/fee-ledger/rowstore/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var clock = time.Date(2025, time.January, 15, 10, 30, 0, 0, time.UTC)

type fixture struct {
	r        *ledger.Reconciler
	students *memory.Sheet
	payments *memory.Sheet
}

// ledgerSheet is the sheet that holds ledger rows for the fixture's layout.
func (f *fixture) ledgerSheet() *memory.Sheet {
	if f.r.Layout() == ledger.LayoutFlat {
		return f.students
	}
	return f.payments
}

type variant struct {
	name   string
	layout ledger.Layout
	scheme string
}

var variants = []variant{
	{"flat/composite", ledger.LayoutFlat, ledger.SchemeComposite},
	{"flat/derived", ledger.LayoutFlat, ledger.SchemeDerived},
	{"split/composite", ledger.LayoutSplit, ledger.SchemeComposite},
	{"split/derived", ledger.LayoutSplit, ledger.SchemeDerived},
}

func newFixture(t *testing.T, v variant) *fixture {
	t.Helper()
	students := memory.New("Student")
	payments := memory.New("Payments")
	logger, _ := test.NewNullLogger()

	r, err := ledger.NewReconciler(ledger.Config{
		Students: students,
		Payments: payments,
		Layout:   v.layout,
		Scheme:   v.scheme,
		Clock:    func() time.Time { return clock },
		Logger:   logger,
	})
	require.NoError(t, err)
	return &fixture{r: r, students: students, payments: payments}
}

func register(t *testing.T, f *fixture, id string, fee int64) ledger.Student {
	t.Helper()
	s, err := f.r.CreateStudent(context.Background(), ledger.NewStudent{
		ID:                id,
		Username:          "Student " + id,
		Mobile:            "9876543210",
		MonthlyFee:        decimal.NewFromInt(fee),
		SubscriptionStart: time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return s
}

func paymentsFor(t *testing.T, f *fixture, k ledger.Key) []ledger.Payment {
	t.Helper()
	all, err := f.r.ListPayments(context.Background())
	require.NoError(t, err)
	var out []ledger.Payment
	for _, p := range all {
		if p.Key() == k {
			out = append(out, p)
		}
	}
	return out
}

func forEachVariant(t *testing.T, fn func(t *testing.T, f *fixture)) {
	for _, v := range variants {
		v := v
		t.Run(v.name, func(t *testing.T) {
			fn(t, newFixture(t, v))
		})
	}
}

// =============================================================================
// UPSERT
// =============================================================================

func TestRecordPayment_Idempotent(t *testing.T) {
	// GIVEN: A registered student with a fee
	// WHEN: The same payment is recorded twice
	// THEN: Exactly one ledger row exists, Paid with the amount
	forEachVariant(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		register(t, f, "S1", 500)

		first, err := f.r.RecordPayment(ctx, "S1", 3, 2025, decimal.NewFromInt(500), true)
		require.NoError(t, err)
		assert.Equal(t, ledger.ActionInserted, first.Action)

		second, err := f.r.RecordPayment(ctx, "S1", 3, 2025, decimal.NewFromInt(500), true)
		require.NoError(t, err)
		assert.Equal(t, ledger.ActionUpdated, second.Action)

		rows := paymentsFor(t, f, ledger.Key{StudentID: "S1", Month: 3, Year: 2025})
		require.Len(t, rows, 1)
		assert.Equal(t, ledger.StatusPaid, rows[0].Status)
		assert.True(t, rows[0].Amount.Equal(decimal.NewFromInt(500)))
		assert.Equal(t, "S1#2025-04", rows[0].ID)
	})
}

func TestRecordPayment_EmptySearchTakesInsertBranch(t *testing.T) {
	// GIVEN: No ledger row for (S1, 6, 2025)
	// WHEN: Recording a payment for it
	// THEN: The search returns nothing, a row is inserted, no error
	forEachVariant(t, func(t *testing.T, f *fixture) {
		register(t, f, "S1", 500)
		before := f.ledgerSheet().Len()

		res, err := f.r.RecordPayment(context.Background(), "S1", 6, 2025, decimal.NewFromInt(500), false)
		require.NoError(t, err)

		assert.Equal(t, ledger.ActionInserted, res.Action)
		assert.Equal(t, ledger.StatusUnpaid, res.Payment.Status)
		assert.Equal(t, before+1, f.ledgerSheet().Len())
	})
}

func TestRecordPayment_MonthIsolation(t *testing.T) {
	// GIVEN: Rows for (S1, 4, 2025) and (S1, 3, 2024)
	// WHEN: Recording (S1, 3, 2025)
	// THEN: The other two rows are unchanged
	forEachVariant(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		register(t, f, "S1", 500)

		_, err := f.r.RecordPayment(ctx, "S1", 4, 2025, decimal.NewFromInt(500), true)
		require.NoError(t, err)
		_, err = f.r.RecordPayment(ctx, "S1", 3, 2024, decimal.NewFromInt(450), false)
		require.NoError(t, err)

		april := paymentsFor(t, f, ledger.Key{StudentID: "S1", Month: 4, Year: 2025})
		lastYear := paymentsFor(t, f, ledger.Key{StudentID: "S1", Month: 3, Year: 2024})

		_, err = f.r.RecordPayment(ctx, "S1", 3, 2025, decimal.NewFromInt(600), true)
		require.NoError(t, err)
		_, err = f.r.RecordPayment(ctx, "S1", 3, 2025, decimal.NewFromInt(600), false)
		require.NoError(t, err)

		assert.Equal(t, april, paymentsFor(t, f, ledger.Key{StudentID: "S1", Month: 4, Year: 2025}))
		assert.Equal(t, lastYear, paymentsFor(t, f, ledger.Key{StudentID: "S1", Month: 3, Year: 2024}))
	})
}

func TestRecordPayment_ZeroFeeIsFree(t *testing.T) {
	// GIVEN: A free student
	// WHEN: Recording with paid=true
	// THEN: The row is Free, with no payment date
	forEachVariant(t, func(t *testing.T, f *fixture) {
		register(t, f, "F1", 0)

		res, err := f.r.RecordPayment(context.Background(), "F1", 5, 2025, decimal.Zero, true)
		require.NoError(t, err)

		assert.Equal(t, ledger.StatusFree, res.Payment.Status)
		assert.True(t, res.Payment.PaymentDate.IsZero())
	})
}

func TestRecordPayment_UnknownStudent(t *testing.T) {
	forEachVariant(t, func(t *testing.T, f *fixture) {
		_, err := f.r.RecordPayment(context.Background(), "ghost", 0, 2025, decimal.NewFromInt(100), true)

		var nf *ledger.NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, "ghost", nf.ID)
		assert.True(t, ledger.IsNotFound(err))
		assert.Zero(t, f.ledgerSheet().Len())
	})
}

func TestRecordPayment_Validation(t *testing.T) {
	// GIVEN: Out-of-range input
	// WHEN: Recording
	// THEN: ValidationError before any store call
	f := newFixture(t, variants[0])
	register(t, f, "S1", 500)
	rowsBefore := f.students.Len()

	cases := []struct {
		name   string
		month  int
		year   int
		amount int64
		field  string
	}{
		{"month too large", 12, 2025, 500, "month"},
		{"negative month", -1, 2025, 500, "month"},
		{"zero year", 0, 0, 500, "year"},
		{"negative amount", 0, 2025, -1, "amount"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f.students.FailNext("search", errors.New("store must not be called"))
			defer f.students.FailNext("search", nil)

			_, err := f.r.RecordPayment(context.Background(), "S1", tc.month, tc.year, decimal.NewFromInt(tc.amount), true)

			var ve *ledger.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tc.field, ve.Field)
			assert.True(t, ledger.IsClientError(err))
		})
	}
	assert.Equal(t, rowsBefore, f.students.Len())
}

func TestRecordPayment_DuplicateRowsIsIntegrityViolation(t *testing.T) {
	// GIVEN: Two ledger rows for the same key (a lost race)
	// WHEN: Recording that key again
	// THEN: IntegrityViolation, and neither row changes
	f := newFixture(t, variants[0])
	register(t, f, "S1", 500)
	ctx := context.Background()

	dup := rowstore.Row{"id": "S1", "username": "Student S1", "monthly_fee": "500", "month": "3", "year": "2025", "amount": "500", "status": "Unpaid"}
	require.NoError(t, f.students.Insert(ctx, dup))
	require.NoError(t, f.students.Insert(ctx, dup))

	_, err := f.r.RecordPayment(ctx, "S1", 3, 2025, decimal.NewFromInt(500), true)

	var iv *ledger.IntegrityViolation
	require.ErrorAs(t, err, &iv)
	assert.Equal(t, 2, iv.Matched)
	require.NotNil(t, iv.Key)
	assert.Equal(t, 3, iv.Key.Month)
	for _, p := range paymentsFor(t, f, ledger.Key{StudentID: "S1", Month: 3, Year: 2025}) {
		assert.Equal(t, ledger.StatusUnpaid, p.Status)
	}
}

func TestRecordPayment_StoreFailureSurfaces(t *testing.T) {
	// GIVEN: The ledger insert fails at the transport
	// WHEN: Recording a payment
	// THEN: The StoreError reaches the caller unchanged
	forEachVariant(t, func(t *testing.T, f *fixture) {
		register(t, f, "S1", 500)
		f.ledgerSheet().FailNext("insert", errors.New("connection reset"))

		_, err := f.r.RecordPayment(context.Background(), "S1", 8, 2025, decimal.NewFromInt(500), true)

		require.Error(t, err)
		assert.True(t, rowstore.IsStoreError(err))
		assert.Contains(t, err.Error(), "connection reset")
		assert.Empty(t, paymentsFor(t, f, ledger.Key{StudentID: "S1", Month: 8, Year: 2025}))
	})
}

// =============================================================================
// CREATE
// =============================================================================

func TestCreateStudent_FlatInsertsCurrentMonthRow(t *testing.T) {
	f := newFixture(t, variants[0])
	s := register(t, f, "S1", 500)

	assert.Equal(t, time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC), s.SubscriptionEnd)
	rows := paymentsFor(t, f, ledger.Key{StudentID: "S1", Month: 0, Year: 2025})
	require.Len(t, rows, 1)
	assert.Equal(t, ledger.StatusUnpaid, rows[0].Status)
	assert.True(t, rows[0].Amount.Equal(decimal.NewFromInt(500)))
}

func TestCreateStudent_SplitInsertsProfileOnly(t *testing.T) {
	f := newFixture(t, variants[2])
	register(t, f, "S1", 500)

	assert.Equal(t, 1, f.students.Len())
	assert.Zero(t, f.payments.Len())
}

func TestCreateStudent_FreeStudentStartsSettled(t *testing.T) {
	f := newFixture(t, variants[0])
	s := register(t, f, "F1", 0)

	assert.True(t, s.IsFree())
	assert.True(t, s.CurrentMonthPaid)
	rows := paymentsFor(t, f, ledger.Key{StudentID: "F1", Month: 0, Year: 2025})
	require.Len(t, rows, 1)
	assert.Equal(t, ledger.StatusFree, rows[0].Status)
}

func TestCreateStudent_GeneratesID(t *testing.T) {
	f := newFixture(t, variants[0])

	s, err := f.r.CreateStudent(context.Background(), ledger.NewStudent{Username: "Asha", MonthlyFee: decimal.NewFromInt(300)})
	require.NoError(t, err)

	assert.Regexp(t, `^STU-[0-9A-F]{8}$`, s.ID)
	assert.Equal(t, time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC), s.SubscriptionStart)
}

func TestCreateStudent_Rejects(t *testing.T) {
	yes, no := true, false
	cases := []struct {
		name  string
		in    ledger.NewStudent
		field string
	}{
		{"missing username", ledger.NewStudent{ID: "X1", MonthlyFee: decimal.NewFromInt(500)}, "username"},
		{"short aadhar", ledger.NewStudent{ID: "X1", Username: "A", AadharNumber: "12345"}, "aadhar_number"},
		{"negative fee", ledger.NewStudent{ID: "X1", Username: "A", MonthlyFee: decimal.NewFromInt(-5)}, "monthly_fee"},
		{"free with fee", ledger.NewStudent{ID: "X1", Username: "A", MonthlyFee: decimal.NewFromInt(500), IsFree: &yes}, "is_free"},
		{"not free without fee", ledger.NewStudent{ID: "X1", Username: "A", IsFree: &no}, "monthly_fee"},
		{"end before start", ledger.NewStudent{
			ID: "X1", Username: "A", MonthlyFee: decimal.NewFromInt(500),
			SubscriptionStart: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
			SubscriptionEnd:   time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		}, "subscription_end"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, variants[0])

			_, err := f.r.CreateStudent(context.Background(), tc.in)

			var ve *ledger.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tc.field, ve.Field)
			assert.Zero(t, f.students.Len())
		})
	}
}

func TestCreateStudent_DuplicateID(t *testing.T) {
	forEachVariant(t, func(t *testing.T, f *fixture) {
		register(t, f, "S1", 500)

		_, err := f.r.CreateStudent(context.Background(), ledger.NewStudent{ID: "S1", Username: "Other", MonthlyFee: decimal.NewFromInt(100)})

		assert.True(t, ledger.IsClientError(err))
		students, err := f.r.ListStudents(context.Background())
		require.NoError(t, err)
		assert.Len(t, students, 1)
	})
}

// =============================================================================
// UPDATE PROFILE
// =============================================================================

func TestUpdateProfile_PropagatesToEveryRow(t *testing.T) {
	// GIVEN: A student with several ledger months
	// WHEN: The username changes
	// THEN: The student and every row of that student carry the new name
	forEachVariant(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		register(t, f, "S1", 500)
		register(t, f, "S2", 400)
		for m := 1; m <= 3; m++ {
			_, err := f.r.RecordPayment(ctx, "S1", m, 2025, decimal.NewFromInt(500), m%2 == 1)
			require.NoError(t, err)
		}

		updated, err := f.r.UpdateProfile(ctx, "S1", map[string]any{"username": "X"})
		require.NoError(t, err)
		assert.Equal(t, "X", updated.Username)

		_, err = f.r.ListPayments(ctx)
		require.NoError(t, err)
		students, err := f.r.ListStudents(ctx)
		require.NoError(t, err)
		for _, s := range students {
			if s.ID == "S1" {
				assert.Equal(t, "X", s.Username)
			} else {
				assert.Equal(t, "Student S2", s.Username)
			}
		}

		raw, err := f.students.Search(ctx, rowstore.Predicate{"id": "S1"})
		require.NoError(t, err)
		require.NotEmpty(t, raw)
		for _, row := range raw {
			assert.Equal(t, "X", row["username"])
		}
	})
}

func TestUpdateProfile_NormalizesBooleans(t *testing.T) {
	// GIVEN: A paying student on the flat layout
	// WHEN: is_free arrives as a sheet-style string
	// THEN: It is read as true and every row of the student carries a zero fee
	f := newFixture(t, variants[0])
	register(t, f, "S1", 500)
	_, err := f.r.RecordPayment(context.Background(), "S1", 1, 2025, decimal.NewFromInt(500), true)
	require.NoError(t, err)

	s, err := f.r.UpdateProfile(context.Background(), "S1", map[string]any{"is_free": "yes"})
	require.NoError(t, err)
	assert.True(t, s.IsFree())

	raw, err := f.students.Search(context.Background(), rowstore.Predicate{"id": "S1"})
	require.NoError(t, err)
	require.Len(t, raw, 3)
	for _, row := range raw {
		assert.Equal(t, "0", row["monthly_fee"])
	}

	_, err = f.r.UpdateProfile(context.Background(), "S1", map[string]any{"is_free": "maybe"})
	var ve *ledger.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "is_free", ve.Field)
}

func TestUpdateProfile_FreeFlag(t *testing.T) {
	ctx := context.Background()

	t.Run("is_free true zeroes the fee", func(t *testing.T) {
		f := newFixture(t, variants[0])
		register(t, f, "S1", 500)

		s, err := f.r.UpdateProfile(ctx, "S1", map[string]any{"is_free": true})
		require.NoError(t, err)
		assert.True(t, s.IsFree())
		assert.Equal(t, "0", mustRow(t, f, "S1")["monthly_fee"])
	})

	t.Run("is_free true with a fee is rejected", func(t *testing.T) {
		f := newFixture(t, variants[0])
		register(t, f, "S1", 500)

		_, err := f.r.UpdateProfile(ctx, "S1", map[string]any{"is_free": true, "monthly_fee": 300})
		assert.True(t, ledger.IsClientError(err))
		assert.Equal(t, "500", mustRow(t, f, "S1")["monthly_fee"])
	})

	t.Run("is_free false needs a fee", func(t *testing.T) {
		f := newFixture(t, variants[0])
		register(t, f, "F1", 0)

		_, err := f.r.UpdateProfile(ctx, "F1", map[string]any{"is_free": "FALSE"})
		assert.True(t, ledger.IsClientError(err))

		s, err := f.r.UpdateProfile(ctx, "F1", map[string]any{"is_free": false, "monthly_fee": "350"})
		require.NoError(t, err)
		assert.True(t, s.MonthlyFee.Equal(decimal.NewFromInt(350)))
	})
}

func mustRow(t *testing.T, f *fixture, id string) rowstore.Row {
	t.Helper()
	rows, err := f.students.Search(context.Background(), rowstore.Predicate{"id": id, "month": "", "year": ""})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	return rows[0]
}

func TestUpdateProfile_RejectsLedgerAndUnknownKeys(t *testing.T) {
	f := newFixture(t, variants[0])
	register(t, f, "S1", 500)

	for _, key := range []string{"month", "year", "amount", "status", "payment_date", "row_key", "id", "current_month_paid", "nickname"} {
		t.Run(key, func(t *testing.T) {
			_, err := f.r.UpdateProfile(context.Background(), "S1", map[string]any{"username": "Y", key: "1"})

			var ve *ledger.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, key, ve.Field)
			assert.Equal(t, "Student S1", mustRow(t, f, "S1")["username"])
		})
	}
}

// noopUpdates reports zero rows for every update.
type noopUpdates struct {
	*memory.Sheet
}

func (noopUpdates) Update(context.Context, rowstore.Predicate, rowstore.Row) (int, error) {
	return 0, nil
}

func TestUpdateProfile_ZeroRowsIsIntegrityViolation(t *testing.T) {
	sheet := memory.New("Student")
	logger, _ := test.NewNullLogger()
	r, err := ledger.NewReconciler(ledger.Config{Students: noopUpdates{sheet}, Clock: func() time.Time { return clock }, Logger: logger})
	require.NoError(t, err)
	_, err = r.CreateStudent(context.Background(), ledger.NewStudent{ID: "S1", Username: "A", MonthlyFee: decimal.NewFromInt(100)})
	require.NoError(t, err)

	_, err = r.UpdateProfile(context.Background(), "S1", map[string]any{"email": "a@b.c"})

	var iv *ledger.IntegrityViolation
	require.ErrorAs(t, err, &iv)
	assert.Equal(t, "S1", iv.StudentID)
	assert.Nil(t, iv.Key)
}

// =============================================================================
// DELETE
// =============================================================================

func TestDeleteStudent_Cascades(t *testing.T) {
	// GIVEN: Two students with ledger rows
	// WHEN: One is deleted
	// THEN: No profile and no ledger row of that student remains, the other is intact
	forEachVariant(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		register(t, f, "S1", 500)
		register(t, f, "S2", 400)
		for m := 0; m < 3; m++ {
			_, err := f.r.RecordPayment(ctx, "S1", m, 2025, decimal.NewFromInt(500), true)
			require.NoError(t, err)
		}
		_, err := f.r.RecordPayment(ctx, "S2", 1, 2025, decimal.NewFromInt(400), true)
		require.NoError(t, err)

		res, err := f.r.DeleteStudent(ctx, "S1")
		require.NoError(t, err)
		assert.Equal(t, 1, res.ProfilesRemoved)
		assert.Equal(t, 3, res.LedgerRemoved)

		students, err := f.r.ListStudents(ctx)
		require.NoError(t, err)
		require.Len(t, students, 1)
		assert.Equal(t, "S2", students[0].ID)

		payments, err := f.r.ListPayments(ctx)
		require.NoError(t, err)
		assert.NotEmpty(t, payments)
		for _, p := range payments {
			assert.NotEqual(t, "S1", p.StudentID)
		}
	})
}

func TestDeleteStudent_Unknown(t *testing.T) {
	f := newFixture(t, variants[0])
	_, err := f.r.DeleteStudent(context.Background(), "ghost")
	assert.True(t, ledger.IsNotFound(err))
}

func TestDeleteStudent_SplitProfileFailureIsPartial(t *testing.T) {
	// GIVEN: Split layout; the profile delete fails after ledger rows are gone
	// WHEN: Deleting the student
	// THEN: PartialDeleteError naming what remains, wrapping the store failure
	f := newFixture(t, variants[2])
	ctx := context.Background()
	register(t, f, "S1", 500)
	_, err := f.r.RecordPayment(ctx, "S1", 0, 2025, decimal.NewFromInt(500), true)
	require.NoError(t, err)
	f.students.FailNext("delete", errors.New("quota exceeded"))

	res, err := f.r.DeleteStudent(ctx, "S1")

	var pd *ledger.PartialDeleteError
	require.ErrorAs(t, err, &pd)
	assert.Equal(t, 1, pd.ProfilesRemaining)
	assert.Equal(t, 0, pd.LedgerRemaining)
	assert.Equal(t, 1, res.LedgerRemoved)
	assert.True(t, ledger.IsPartialDelete(err))
	assert.True(t, rowstore.IsStoreError(err))
}

func TestDeleteStudent_FirstStepFailureIsStoreError(t *testing.T) {
	// GIVEN: The first delete call fails and removes nothing
	// THEN: The plain StoreError is returned, not a partial delete
	f := newFixture(t, variants[2])
	register(t, f, "S1", 500)
	_, err := f.r.RecordPayment(context.Background(), "S1", 0, 2025, decimal.NewFromInt(500), true)
	require.NoError(t, err)
	f.payments.FailNext("delete", errors.New("timeout"))

	_, err = f.r.DeleteStudent(context.Background(), "S1")

	require.Error(t, err)
	assert.True(t, rowstore.IsStoreError(err))
	assert.False(t, ledger.IsPartialDelete(err))
	assert.Equal(t, 1, f.students.Len())
	assert.Equal(t, 1, f.payments.Len())
}

// silentDelete claims success without removing anything.
type silentDelete struct {
	*memory.Sheet
}

func (silentDelete) Delete(context.Context, rowstore.Predicate) (int, error) {
	return 1, nil
}

func TestDeleteStudent_SilentSurvivorsAreReported(t *testing.T) {
	sheet := memory.New("Student")
	logger, _ := test.NewNullLogger()
	r, err := ledger.NewReconciler(ledger.Config{Students: silentDelete{sheet}, Clock: func() time.Time { return clock }, Logger: logger})
	require.NoError(t, err)
	_, err = r.CreateStudent(context.Background(), ledger.NewStudent{ID: "S1", Username: "A", MonthlyFee: decimal.NewFromInt(100)})
	require.NoError(t, err)

	_, err = r.DeleteStudent(context.Background(), "S1")

	var pd *ledger.PartialDeleteError
	require.ErrorAs(t, err, &pd)
	assert.Equal(t, 1, pd.ProfilesRemaining)
	assert.Equal(t, 1, pd.LedgerRemaining)
	assert.Nil(t, pd.Err)
}

// =============================================================================
// END TO END
// =============================================================================

func TestScenario_RegisterPayToggleFree(t *testing.T) {
	// GIVEN: Student 369, fee 500, start 2025-01-01
	// WHEN: Paid for January, toggled to unpaid, then made free
	// THEN: One January row follows each step; every month reads Free at the end
	forEachVariant(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		s := register(t, f, "369", 500)
		assert.Equal(t, "2025-02-01", ledger.EncodeDate(s.SubscriptionEnd))

		jan := ledger.Key{StudentID: "369", Month: 0, Year: 2025}

		_, err := f.r.RecordPayment(ctx, "369", 0, 2025, decimal.NewFromInt(500), true)
		require.NoError(t, err)
		rows := paymentsFor(t, f, jan)
		require.Len(t, rows, 1)
		assert.Equal(t, ledger.StatusPaid, rows[0].Status)
		assert.True(t, rows[0].PaymentDate.Equal(clock.Truncate(time.Second)))

		_, err = f.r.RecordPayment(ctx, "369", 0, 2025, decimal.NewFromInt(500), false)
		require.NoError(t, err)
		rows = paymentsFor(t, f, jan)
		require.Len(t, rows, 1)
		assert.Equal(t, ledger.StatusUnpaid, rows[0].Status)
		assert.True(t, rows[0].PaymentDate.IsZero())

		raw, err := f.ledgerSheet().Search(ctx, f.r.Scheme().Match(jan))
		require.NoError(t, err)
		require.Len(t, raw, 1)
		assert.Equal(t, "", raw[0]["payment_date"])
		assert.Equal(t, "Unpaid", raw[0]["status"])

		_, err = f.r.UpdateProfile(ctx, "369", map[string]any{"monthly_fee": 0})
		require.NoError(t, err)

		student, err := f.r.Student(ctx, "369")
		require.NoError(t, err)
		payments, err := f.r.ListPayments(ctx)
		require.NoError(t, err)
		for m := 0; m < 12; m++ {
			assert.Equal(t, ledger.StatusFree, ledger.StatusForMonth(student, m, 2025, payments))
		}
	})
}

func TestNewReconciler_Config(t *testing.T) {
	_, err := ledger.NewReconciler(ledger.Config{})
	assert.Error(t, err)

	_, err = ledger.NewReconciler(ledger.Config{Students: memory.New("s"), Layout: ledger.LayoutSplit})
	assert.Error(t, err, "split layout without payments sheet")

	_, err = ledger.NewReconciler(ledger.Config{Students: memory.New("s"), Scheme: "hash"})
	assert.Error(t, err)

	r, err := ledger.NewReconciler(ledger.Config{Students: memory.New("s")})
	require.NoError(t, err)
	assert.Equal(t, ledger.LayoutFlat, r.Layout())
	assert.Equal(t, ledger.SchemeComposite, r.Scheme().Name())
}
