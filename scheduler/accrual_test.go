package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attendly/leave-engine/leave"
	"github.com/attendly/leave-engine/notify"
	"github.com/attendly/leave-engine/scheduler"
	"github.com/attendly/leave-engine/store/sqlite"
)

func newAccrualFixture(t *testing.T) (*scheduler.AccrualJob, *sqlite.Store) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return scheduler.NewAccrualJob(store, nil, nil), store
}

func saveEmployee(t *testing.T, store *sqlite.Store, id string, joined leave.Date) {
	t.Helper()
	require.NoError(t, store.SaveEmployee(context.Background(), leave.Employee{
		ID:            id,
		Name:          "Test " + id,
		Role:          leave.RoleEmployee,
		Status:        leave.StatusActive,
		DateOfJoining: joined,
	}))
}

func savePolicy(t *testing.T, store *sqlite.Store, p leave.PolicyConfig) {
	t.Helper()
	p.ID = uuid.NewString()
	require.NoError(t, store.SavePolicy(context.Background(), p))
}

func casualPolicy() leave.PolicyConfig {
	return leave.PolicyConfig{
		Role:              leave.RoleEmployee,
		LeaveType:         leave.LeaveCasual,
		AnnualCredit:      leave.NewDays(12),
		AnnualMax:         leave.NewDays(17),
		CarryForwardLimit: leave.NewDays(5),
		Anniversary3Bonus: leave.NewDays(2),
		Anniversary5Bonus: leave.NewDays(5),
		EffectiveFrom:     leave.NewDate(2020, time.January, 1),
	}
}

func casualBalance(t *testing.T, store *sqlite.Store, employeeID string) float64 {
	t.Helper()
	b, err := store.GetBalance(context.Background(), employeeID, leave.LeaveCasual)
	require.NoError(t, err)
	return b.Float64()
}

// =============================================================================
// MONTHLY CREDIT
// =============================================================================

func TestAccrual_MonthlyCredit_AppliedOnceAndClamped(t *testing.T) {
	// GIVEN: annual credit 12 (1.0/month), annual max 17
	// WHEN: the June 1 run executes twice
	// THEN: exactly one monthly credit lands
	job, store := newAccrualFixture(t)
	saveEmployee(t, store, "emp-1", leave.NewDate(2022, time.March, 15))
	savePolicy(t, store, casualPolicy())

	june1 := leave.NewDate(2025, time.June, 1)
	require.NoError(t, job.Run(context.Background(), june1))
	assert.Equal(t, 1.0, casualBalance(t, store, "emp-1"))

	require.NoError(t, job.Run(context.Background(), june1))
	assert.Equal(t, 1.0, casualBalance(t, store, "emp-1"), "rerun credits nothing")
}

func TestAccrual_MonthlyCredit_RespectsAnnualMax(t *testing.T) {
	job, store := newAccrualFixture(t)
	saveEmployee(t, store, "emp-1", leave.NewDate(2022, time.March, 15))
	savePolicy(t, store, casualPolicy())

	_, err := store.AdjustBalance(context.Background(), leave.BalanceEntry{
		ID: uuid.NewString(), EmployeeID: "emp-1", Type: leave.LeaveCasual,
		Delta: leave.NewDays(16.5), IdempotencyKey: "seed",
	})
	require.NoError(t, err)

	require.NoError(t, job.Run(context.Background(), leave.NewDate(2025, time.June, 1)))
	assert.Equal(t, 17.0, casualBalance(t, store, "emp-1"), "credit clamps to the annual max")
}

func TestAccrual_MidMonthRun_NoCredit(t *testing.T) {
	job, store := newAccrualFixture(t)
	saveEmployee(t, store, "emp-1", leave.NewDate(2022, time.March, 15))
	savePolicy(t, store, casualPolicy())

	require.NoError(t, job.Run(context.Background(), leave.NewDate(2025, time.June, 15)))
	assert.Equal(t, 0.0, casualBalance(t, store, "emp-1"))
}

// =============================================================================
// ANNIVERSARY BONUSES
// =============================================================================

func TestAccrual_ThreeYearAnniversary_CreditedOnce(t *testing.T) {
	// GIVEN: joined June 15 2022
	// WHEN: the June 15 2025 run executes (twice)
	// THEN: the 3-year bonus lands exactly once
	job, store := newAccrualFixture(t)
	saveEmployee(t, store, "emp-1", leave.NewDate(2022, time.June, 15))
	savePolicy(t, store, casualPolicy())

	anniversary := leave.NewDate(2025, time.June, 15)
	require.NoError(t, job.Run(context.Background(), anniversary))
	assert.Equal(t, 2.0, casualBalance(t, store, "emp-1"))

	require.NoError(t, job.Run(context.Background(), anniversary))
	assert.Equal(t, 2.0, casualBalance(t, store, "emp-1"))
}

func TestAccrual_FifteenYears_FiveYearBonusWins(t *testing.T) {
	// 15 is divisible by both 3 and 5: one credit, at the 5-year rate.
	job, store := newAccrualFixture(t)
	saveEmployee(t, store, "emp-1", leave.NewDate(2010, time.June, 15))
	savePolicy(t, store, casualPolicy())

	require.NoError(t, job.Run(context.Background(), leave.NewDate(2025, time.June, 15)))
	assert.Equal(t, 5.0, casualBalance(t, store, "emp-1"))
}

func TestAccrual_AnniversaryBonus_OnlyCasualPolicyPays(t *testing.T) {
	// GIVEN: bonus amounts configured on every leave type's policy
	// WHEN: the 3-year anniversary run executes
	// THEN: one credit lands, on the casual balance only
	job, store := newAccrualFixture(t)
	saveEmployee(t, store, "emp-1", leave.NewDate(2022, time.June, 15))
	savePolicy(t, store, casualPolicy())
	for _, typ := range []leave.LeaveType{leave.LeaveSick, leave.LeaveLOP} {
		p := casualPolicy()
		p.LeaveType = typ
		savePolicy(t, store, p)
	}

	require.NoError(t, job.Run(context.Background(), leave.NewDate(2025, time.June, 15)))

	assert.Equal(t, 2.0, casualBalance(t, store, "emp-1"))
	for _, typ := range []leave.LeaveType{leave.LeaveSick, leave.LeaveLOP} {
		b, err := store.GetBalance(context.Background(), "emp-1", typ)
		require.NoError(t, err)
		assert.True(t, b.IsZero(), "no bonus lands on %s", typ)
	}
}

func TestAccrual_NonAnniversaryDay_NoBonus(t *testing.T) {
	job, store := newAccrualFixture(t)
	saveEmployee(t, store, "emp-1", leave.NewDate(2022, time.June, 15))
	savePolicy(t, store, casualPolicy())

	require.NoError(t, job.Run(context.Background(), leave.NewDate(2025, time.June, 16)))
	assert.Equal(t, 0.0, casualBalance(t, store, "emp-1"))
}

// =============================================================================
// CARRY-FORWARD
// =============================================================================

func TestAccrual_YearStart_ForfeitsAboveCarryLimit(t *testing.T) {
	// GIVEN: 9.0 casual balance, carry-forward limit 5
	// WHEN: the Jan 1 run executes
	// THEN: 4.0 forfeits, then the January credit lands: 5.0 + 1.0
	job, store := newAccrualFixture(t)
	saveEmployee(t, store, "emp-1", leave.NewDate(2022, time.March, 15))
	savePolicy(t, store, casualPolicy())

	_, err := store.AdjustBalance(context.Background(), leave.BalanceEntry{
		ID: uuid.NewString(), EmployeeID: "emp-1", Type: leave.LeaveCasual,
		Delta: leave.NewDays(9), IdempotencyKey: "seed",
	})
	require.NoError(t, err)

	jan1 := leave.NewDate(2026, time.January, 1)
	require.NoError(t, job.Run(context.Background(), jan1))
	assert.Equal(t, 6.0, casualBalance(t, store, "emp-1"))

	require.NoError(t, job.Run(context.Background(), jan1))
	assert.Equal(t, 6.0, casualBalance(t, store, "emp-1"), "rerun forfeits and credits nothing")
}

func TestAccrual_YearStart_UnderLimitKeepsBalance(t *testing.T) {
	job, store := newAccrualFixture(t)
	saveEmployee(t, store, "emp-1", leave.NewDate(2022, time.March, 15))
	savePolicy(t, store, casualPolicy())

	_, err := store.AdjustBalance(context.Background(), leave.BalanceEntry{
		ID: uuid.NewString(), EmployeeID: "emp-1", Type: leave.LeaveCasual,
		Delta: leave.NewDays(3), IdempotencyKey: "seed",
	})
	require.NoError(t, err)

	require.NoError(t, job.Run(context.Background(), leave.NewDate(2026, time.January, 1)))
	assert.Equal(t, 4.0, casualBalance(t, store, "emp-1"), "3.0 carried + January credit")
}

func TestAccrual_YearStart_PrunesOldHolidays(t *testing.T) {
	job, store := newAccrualFixture(t)
	ctx := context.Background()

	old := leave.Holiday{ID: uuid.NewString(), Date: leave.NewDate(2024, time.August, 15), Name: "old"}
	recent := leave.Holiday{ID: uuid.NewString(), Date: leave.NewDate(2025, time.December, 25), Name: "recent"}
	require.NoError(t, store.SaveHoliday(ctx, old))
	require.NoError(t, store.SaveHoliday(ctx, recent))

	require.NoError(t, job.Run(ctx, leave.NewDate(2026, time.January, 1)))

	kept, err := store.HolidaysInRange(ctx, leave.NewDate(2020, time.January, 1), leave.NewDate(2030, time.January, 1))
	require.NoError(t, err)
	require.Len(t, kept, 1)
	assert.Equal(t, "recent", kept[0].Name)
}

// =============================================================================
// INACTIVE EMPLOYEES
// =============================================================================

func TestAccrual_SkipsInactiveEmployees(t *testing.T) {
	job, store := newAccrualFixture(t)
	savePolicy(t, store, casualPolicy())

	require.NoError(t, store.SaveEmployee(context.Background(), leave.Employee{
		ID:            "emp-gone",
		Name:          "Former Employee",
		Role:          leave.RoleEmployee,
		Status:        leave.StatusResigned,
		DateOfJoining: leave.NewDate(2020, time.June, 1),
	}))

	require.NoError(t, job.Run(context.Background(), leave.NewDate(2025, time.June, 1)))
	assert.Equal(t, 0.0, casualBalance(t, store, "emp-gone"))
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

func TestAccrual_NotifiesCreditedEmployee(t *testing.T) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	sink := &notify.CollectDispatcher{}
	job := scheduler.NewAccrualJob(store, sink, nil)

	require.NoError(t, store.SaveEmployee(context.Background(), leave.Employee{
		ID:            "emp-1",
		Name:          "Test emp-1",
		Email:         "emp-1@corp.test",
		Role:          leave.RoleEmployee,
		Status:        leave.StatusActive,
		DateOfJoining: leave.NewDate(2022, time.March, 15),
	}))
	savePolicy(t, store, casualPolicy())

	june1 := leave.NewDate(2025, time.June, 1)
	require.NoError(t, job.Run(context.Background(), june1))

	require.Len(t, sink.Sent, 1)
	assert.Equal(t, "emp-1@corp.test", sink.Sent[0].Recipient)
	assert.Equal(t, "balance_credited", sink.Sent[0].Payload["event"])

	// A rerun credits nothing and therefore notifies nobody.
	require.NoError(t, job.Run(context.Background(), june1))
	assert.Len(t, sink.Sent, 1)
}
