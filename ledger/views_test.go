package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnyanpeeth/fee-ledger/ledger"
	"github.com/dnyanpeeth/fee-ledger/rowstore"
)

// =============================================================================
// LIST STUDENTS
// =============================================================================

func TestListStudents_FirstOccurrenceWins(t *testing.T) {
	// GIVEN: A flat sheet where a later ledger copy carries a stale name
	// WHEN: Listing students
	// THEN: One entry per id, taken from the first row in store order
	f := newFixture(t, variants[0])
	ctx := context.Background()

	rows := []rowstore.Row{
		{"id": "7", "username": "Ravi", "monthly_fee": "500", "subscription_start": "2025-01-01"},
		{"id": "7", "username": "Ravi (old)", "monthly_fee": "400", "month": "0", "year": "2025", "status": "Paid"},
		{"id": "8", "username": "Meera", "monthly_fee": "0"},
		{"id": "", "username": "no id"},
	}
	for _, r := range rows {
		if r["id"] == "" {
			continue
		}
		require.NoError(t, f.students.Insert(ctx, r))
	}

	students, err := f.r.ListStudents(ctx)
	require.NoError(t, err)

	require.Len(t, students, 2)
	assert.Equal(t, "Ravi", students[0].Username)
	assert.True(t, students[0].MonthlyFee.Equal(decimal.NewFromInt(500)))
	assert.False(t, students[0].IsFree())
	assert.Equal(t, "Meera", students[1].Username)
	assert.True(t, students[1].IsFree(), "is_free derives from a zero fee")
}

func TestListStudents_SkipsMalformedRows(t *testing.T) {
	f := newFixture(t, variants[0])
	ctx := context.Background()
	require.NoError(t, f.students.Insert(ctx, rowstore.Row{"id": "1", "username": "Bad", "monthly_fee": "five hundred"}))
	require.NoError(t, f.students.Insert(ctx, rowstore.Row{"id": "2", "username": "Good", "monthly_fee": "500"}))

	students, err := f.r.ListStudents(ctx)
	require.NoError(t, err)

	require.Len(t, students, 1)
	assert.Equal(t, "2", students[0].ID)
}

func TestListStudents_EmptyStore(t *testing.T) {
	forEachVariant(t, func(t *testing.T, f *fixture) {
		students, err := f.r.ListStudents(context.Background())
		require.NoError(t, err)
		assert.NotNil(t, students)
		assert.Empty(t, students)
	})
}

func TestListStudents_CurrentMonthPaidFollowsLedger(t *testing.T) {
	// GIVEN: A student registered in the clock's month
	// WHEN: That month is paid, then marked unpaid
	// THEN: The listed student's current month flag follows the ledger row
	forEachVariant(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		register(t, f, "S1", 500)

		students, err := f.r.ListStudents(ctx)
		require.NoError(t, err)
		require.Len(t, students, 1)
		assert.False(t, students[0].CurrentMonthPaid)

		_, err = f.r.RecordPayment(ctx, "S1", 0, 2025, decimal.NewFromInt(500), true)
		require.NoError(t, err)

		students, err = f.r.ListStudents(ctx)
		require.NoError(t, err)
		require.Len(t, students, 1)
		assert.True(t, students[0].CurrentMonthPaid)

		_, err = f.r.RecordPayment(ctx, "S1", 0, 2025, decimal.NewFromInt(500), false)
		require.NoError(t, err)

		students, err = f.r.ListStudents(ctx)
		require.NoError(t, err)
		assert.False(t, students[0].CurrentMonthPaid)
	})
}

func TestListStudents_OtherMonthDoesNotSettleCurrent(t *testing.T) {
	f := newFixture(t, variants[0])
	ctx := context.Background()
	register(t, f, "S1", 500)
	register(t, f, "F1", 0)

	_, err := f.r.RecordPayment(ctx, "S1", 1, 2025, decimal.NewFromInt(500), true)
	require.NoError(t, err)

	students, err := f.r.ListStudents(ctx)
	require.NoError(t, err)
	require.Len(t, students, 2)
	for _, s := range students {
		assert.Equal(t, s.IsFree(), s.CurrentMonthPaid, s.ID)
	}
}

// =============================================================================
// LIST PAYMENTS
// =============================================================================

func TestListPayments_OnlyRowsWithMonthAndYear(t *testing.T) {
	f := newFixture(t, variants[0])
	ctx := context.Background()
	require.NoError(t, f.students.Insert(ctx, rowstore.Row{"id": "7", "username": "Ravi", "monthly_fee": "500"}))
	require.NoError(t, f.students.Insert(ctx, rowstore.Row{"id": "7", "month": "2", "year": "", "status": "Paid"}))
	require.NoError(t, f.students.Insert(ctx, rowstore.Row{"id": "7", "month": "2", "year": "2025", "amount": "500", "status": "Paid"}))
	require.NoError(t, f.students.Insert(ctx, rowstore.Row{"id": "7", "month": "3.0", "year": "2025", "amount": "500", "status": "unpaid"}))

	payments, err := f.r.ListPayments(ctx)
	require.NoError(t, err)

	require.Len(t, payments, 2)
	assert.Equal(t, ledger.Payment{
		ID:        "7#2025-03",
		StudentID: "7",
		Month:     2,
		Year:      2025,
		Amount:    payments[0].Amount,
		Status:    ledger.StatusPaid,
	}, payments[0])
	assert.True(t, payments[0].Amount.Equal(decimal.NewFromInt(500)))
	assert.Equal(t, 3, payments[1].Month)
	assert.Equal(t, ledger.StatusUnpaid, payments[1].Status)
}

func TestListPayments_SplitReadsStudentIDColumn(t *testing.T) {
	f := newFixture(t, variants[3])
	ctx := context.Background()
	require.NoError(t, f.payments.Insert(ctx, rowstore.Row{"id": "x", "student_id": "9", "month": "11", "year": "2024", "amount": "250", "status": "Free"}))
	require.NoError(t, f.payments.Insert(ctx, rowstore.Row{"id": "y", "row_key": "A#1#2025-01", "month": "0", "year": "2025", "status": "Paid"}))

	payments, err := f.r.ListPayments(ctx)
	require.NoError(t, err)

	require.Len(t, payments, 2)
	assert.Equal(t, "9", payments[0].StudentID)
	assert.Equal(t, "9#2024-12", payments[0].ID)
	assert.Equal(t, ledger.StatusFree, payments[0].Status)
	assert.Equal(t, "A#1", payments[1].StudentID, "student recovered from row_key")
}

// =============================================================================
// STATUS FOR MONTH
// =============================================================================

func TestStatusForMonth(t *testing.T) {
	paying := ledger.Student{ID: "S", MonthlyFee: decimal.NewFromInt(500)}
	free := ledger.Student{ID: "F", MonthlyFee: decimal.Zero}
	payments := []ledger.Payment{
		{StudentID: "S", Month: 0, Year: 2025, Status: ledger.StatusPaid},
		{StudentID: "S", Month: 1, Year: 2025, Status: ledger.StatusUnpaid},
		{StudentID: "S", Month: 2, Year: 2025, Status: ledger.StatusFree},
		{StudentID: "F", Month: 0, Year: 2025, Status: ledger.StatusPaid},
		{StudentID: "F", Month: 1, Year: 2025, Status: ledger.StatusUnpaid},
	}

	assert.Equal(t, ledger.StatusPaid, ledger.StatusForMonth(paying, 0, 2025, payments))
	assert.Equal(t, ledger.StatusUnpaid, ledger.StatusForMonth(paying, 1, 2025, payments))
	assert.Equal(t, ledger.StatusUnpaid, ledger.StatusForMonth(paying, 2, 2025, payments), "a stale Free row on a paying student is not settled")
	assert.Equal(t, ledger.StatusUnpaid, ledger.StatusForMonth(paying, 0, 2024, payments), "no row means unpaid")
	for m := 0; m < 12; m++ {
		assert.Equal(t, ledger.StatusFree, ledger.StatusForMonth(free, m, 2025, payments))
	}
}

// =============================================================================
// IDENTITY
// =============================================================================

func TestFormatParseKey(t *testing.T) {
	cases := []struct {
		key  ledger.Key
		text string
	}{
		{ledger.Key{StudentID: "369", Month: 0, Year: 2025}, "369#2025-01"},
		{ledger.Key{StudentID: "D-12", Month: 11, Year: 999}, "D-12#0999-12"},
		{ledger.Key{StudentID: "a#b", Month: 4, Year: 2024}, "a#b#2024-05"},
	}
	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			assert.Equal(t, tc.text, ledger.FormatKey(tc.key))
			got, err := ledger.ParseKey(tc.text)
			require.NoError(t, err)
			assert.Equal(t, tc.key, got)
		})
	}

	for _, bad := range []string{"", "369", "#2025-01", "369#2025", "369#2025-13", "369#2025-00", "369#abcd-01"} {
		_, err := ledger.ParseKey(bad)
		assert.Error(t, err, bad)
	}
}

func TestSchemes_MatchAndStamp(t *testing.T) {
	k := ledger.Key{StudentID: "S1", Month: 3, Year: 2025}

	flat, err := ledger.NewScheme(ledger.SchemeComposite, ledger.LayoutFlat)
	require.NoError(t, err)
	assert.Equal(t, rowstore.Predicate{"id": "S1", "month": "3", "year": "2025"}, flat.Match(k))

	derived, err := ledger.NewScheme(ledger.SchemeDerived, ledger.LayoutSplit)
	require.NoError(t, err)
	assert.Equal(t, rowstore.Predicate{"row_key": "S1#2025-04"}, derived.Match(k))

	row := rowstore.Row{}
	derived.Stamp(k, row)
	assert.Equal(t, rowstore.Row{
		"student_id": "S1",
		"month":      "3",
		"year":       "2025",
		"id":         "S1#2025-04",
		"row_key":    "S1#2025-04",
	}, row)
	assert.True(t, derived.Match(k).Matches(row))

	splitComposite, err := ledger.NewScheme("", ledger.LayoutSplit)
	require.NoError(t, err)
	row = rowstore.Row{}
	splitComposite.Stamp(k, row)
	assert.True(t, splitComposite.Match(k).Matches(row))
	assert.Equal(t, "", row["row_key"])
}

// =============================================================================
// CODEC
// =============================================================================

func TestCodec_Literals(t *testing.T) {
	assert.Equal(t, "TRUE", ledger.EncodeBool(true))
	assert.Equal(t, "FALSE", ledger.EncodeBool(false))
	assert.True(t, ledger.DecodeBool("TRUE"))
	assert.True(t, ledger.DecodeBool(" true "))
	assert.False(t, ledger.DecodeBool("FALSE"))
	assert.False(t, ledger.DecodeBool(""))

	for _, s := range []ledger.Status{ledger.StatusPaid, ledger.StatusUnpaid, ledger.StatusFree} {
		got, err := ledger.ParseStatus(string(s))
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	_, err := ledger.ParseStatus("Partial")
	assert.Error(t, err)
}

func TestCodec_StudentRoundTrip(t *testing.T) {
	s := ledger.Student{
		ID:                "12",
		Username:          "Kiran",
		Email:             "kiran@example.com",
		Mobile:            "9876543210",
		AadharNumber:      "123412341234",
		MonthlyFee:        decimal.RequireFromString("499.5"),
		SubscriptionStart: time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC),
		SubscriptionEnd:   time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC),
		CurrentMonthPaid:  true,
	}

	row := ledger.StudentToRow(s)
	assert.Equal(t, "499.5", row["monthly_fee"])
	assert.Equal(t, "TRUE", row["current_month_paid"])
	assert.Equal(t, "2025-01-31", row["subscription_start"])

	back, err := ledger.StudentFromRow(row)
	require.NoError(t, err)
	assert.True(t, s.MonthlyFee.Equal(back.MonthlyFee))
	back.MonthlyFee = s.MonthlyFee
	assert.Equal(t, s, back)
}

func TestCodec_DecodeLeniency(t *testing.T) {
	n, err := ledger.DecodeInt("3.0")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	_, err = ledger.DecodeInt("3.5")
	assert.Error(t, err)

	d, err := ledger.DecodeDate("2025-02-01T18:30:00Z")
	require.NoError(t, err)
	assert.Equal(t, "2025-02-01", ledger.EncodeDate(d))

	m, err := ledger.DecodeMoney(" ")
	require.NoError(t, err)
	assert.True(t, m.IsZero())

	assert.NoError(t, ledger.ValidateAadhar(""))
	assert.NoError(t, ledger.ValidateAadhar("123456789012"))
	assert.Error(t, ledger.ValidateAadhar("12345678901a"))
}
