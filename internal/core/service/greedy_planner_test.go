package service

import (
	"errors"
	"testing"
	"time"

	"github.com/berfenger/spotcharge2mqtt/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var planDay = time.Date(2024, 10, 1, 0, 0, 0, 0, time.Local)

func newTestPlanner(t *testing.T) *GreedyPlanner {
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)
	return NewGreedyPlanner(logger)
}

func flatPrices(value float64) []float64 {
	values := make([]float64, domain.HOURS_PER_DAY)
	for i := range values {
		values[i] = value
	}
	return values
}

func peakValleyPrices() []float64 {
	values := flatPrices(10)
	values[2], values[3] = 1, 1
	values[4], values[5] = 100, 100
	return values
}

func TestPlanPeakValleyExample(t *testing.T) {

	require := require.New(t)
	planner := newTestPlanner(t)

	plan, err := planner.Plan(domain.PriceSeriesFromValues(planDay, peakValleyPrices()), domain.DefaultBatteryModel(), 10)
	require.NoError(err)

	assert.Equal(t, []int{2, 3}, plan.ChargeHours())
	assert.Equal(t, []int{4, 5}, plan.DischargeHours())
	assert.Equal(t, "--CCDD------------------", plan.Codes())
	assert.InDelta(t, 445.0, plan.ExpectedBenefit(), 1e-6)
	assert.InDelta(t, 60.0, plan.At(3).SocEndPct, 1e-6)
	assert.InDelta(t, 10.0, plan.FinalSocPct(), 1e-6)
	assert.InDelta(t, 5.0, plan.TotalChargedKWh(), 1e-6)
	assert.InDelta(t, 5.0, plan.TotalDischargedKWh(), 1e-6)
}

func TestPlanShapeInvariants(t *testing.T) {

	require := require.New(t)
	planner := newTestPlanner(t)

	curves := [][]float64{
		peakValleyPrices(),
		{30, 28, 25, 22, 20, 24, 35, 48, 55, 50, 42, 38, 33, 30, 31, 36, 44, 60, 72, 80, 66, 52, 41, 35},
		{5, 90, 5, 90, 5, 90, 5, 90, 5, 90, 5, 90, 5, 90, 5, 90, 5, 90, 5, 90, 5, 90, 5, 90},
		{-3, -2, -1, 0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20},
	}
	socs := []float64{0, 10, 45, 100}
	battery := domain.DefaultBatteryModel()
	battery.ChargeHoursTarget = 4
	battery.DischargeHoursTarget = 6

	for _, curve := range curves {
		for _, soc := range socs {
			plan, err := planner.Plan(domain.PriceSeriesFromValues(planDay, curve), battery, soc)
			require.NoError(err)
			require.Len(plan.Hours(), domain.HOURS_PER_DAY)
			assert.LessOrEqual(t, len(plan.ChargeHours()), battery.ChargeHoursTarget)
			assert.LessOrEqual(t, len(plan.DischargeHours()), battery.DischargeHoursTarget)
			charge := make(map[int]bool)
			for _, h := range plan.ChargeHours() {
				charge[h] = true
			}
			for _, h := range plan.DischargeHours() {
				assert.False(t, charge[h], "hour %d is both charge and discharge", h)
			}
			for _, h := range plan.Hours() {
				if h.Action == domain.ActionCharge {
					assert.LessOrEqual(t, h.SocEndPct, battery.MaxSocPct+1e-6)
				}
				if h.Action == domain.ActionDischarge {
					assert.GreaterOrEqual(t, h.SocEndPct, battery.MinSocPct-1e-6)
				}
			}
		}
	}
}

func TestPlanFlatPricesIsIdle(t *testing.T) {

	require := require.New(t)
	planner := newTestPlanner(t)

	plan, err := planner.Plan(domain.PriceSeriesFromValues(planDay, flatPrices(42)), domain.DefaultBatteryModel(), 50)
	require.NoError(err)
	assert.Empty(t, plan.ChargeHours())
	assert.Empty(t, plan.DischargeHours())
	assert.Equal(t, 0.0, plan.ExpectedBenefit())
	assert.InDelta(t, 50.0, plan.FinalSocPct(), 1e-9)
}

func TestPlanEmptySocWindowIsIdle(t *testing.T) {

	require := require.New(t)
	planner := newTestPlanner(t)

	battery := domain.DefaultBatteryModel()
	battery.MinSocPct = 50
	battery.MaxSocPct = 50

	plan, err := planner.Plan(domain.PriceSeriesFromValues(planDay, peakValleyPrices()), battery, 50)
	require.NoError(err)
	assert.Equal(t, "------------------------", plan.Codes())
	assert.Equal(t, 0.0, plan.ExpectedBenefit())
}

func TestPlanIsDeterministic(t *testing.T) {

	require := require.New(t)
	planner := newTestPlanner(t)
	prices := domain.PriceSeriesFromValues(planDay,
		[]float64{30, 28, 25, 22, 20, 24, 35, 48, 55, 50, 42, 38, 33, 30, 31, 36, 44, 60, 72, 80, 66, 52, 41, 35})

	first, err := planner.Plan(prices, domain.DefaultBatteryModel(), 35)
	require.NoError(err)
	for i := 0; i < 10; i++ {
		next, err := planner.Plan(prices, domain.DefaultBatteryModel(), 35)
		require.NoError(err)
		assert.Equal(t, first.View(), next.View())
	}
}

func TestPlanInsufficientData(t *testing.T) {

	planner := newTestPlanner(t)

	prices := make([]domain.Price, domain.HOURS_PER_DAY)
	for i := range prices {
		prices[i] = domain.KnownPrice(float64(i))
	}
	prices[17] = domain.UnknownPrice

	_, err := planner.Plan(domain.NewPriceSeries(planDay, prices), domain.DefaultBatteryModel(), 50)
	var insufficient *domain.InsufficientDataError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, 23, insufficient.Valid)
	assert.Equal(t, domain.HOURS_PER_DAY, insufficient.Required)

	_, err = planner.Plan(domain.PriceSeriesFromValues(planDay, []float64{1, 2, 3}), domain.DefaultBatteryModel(), 50)
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, 3, insufficient.Valid)
}

func TestPlanIgnoresMissingTomorrowHours(t *testing.T) {

	require := require.New(t)
	planner := newTestPlanner(t)

	prices := make([]domain.Price, 2*domain.HOURS_PER_DAY)
	for i, v := range peakValleyPrices() {
		prices[i] = domain.KnownPrice(v)
	}
	prices[30] = domain.KnownPrice(0.5)

	plan, err := planner.Plan(domain.NewPriceSeries(planDay, prices), domain.DefaultBatteryModel(), 10)
	require.NoError(err)
	assert.Equal(t, []int{2, 3}, plan.ChargeHours())
	assert.True(t, plan.IsFor(planDay.Add(5*time.Hour)))
}

func TestPlanRejectsInvalidBattery(t *testing.T) {

	planner := newTestPlanner(t)

	battery := domain.DefaultBatteryModel()
	battery.MinSocPct = 80
	battery.MaxSocPct = 20

	_, err := planner.Plan(domain.PriceSeriesFromValues(planDay, peakValleyPrices()), battery, 50)
	var violation *domain.ConstraintViolationError
	require.True(t, errors.As(err, &violation))

	battery = domain.DefaultBatteryModel()
	battery.RoundTripEfficiencyPct = 0
	_, err = planner.Plan(domain.PriceSeriesFromValues(planDay, peakValleyPrices()), battery, 50)
	require.True(t, errors.As(err, &violation))
}

func TestPlanTieBreaks(t *testing.T) {

	require := require.New(t)
	planner := newTestPlanner(t)

	values := flatPrices(20)
	values[3], values[7], values[11] = 1, 1, 1
	values[1], values[20], values[22] = 50, 50, 50

	battery := domain.DefaultBatteryModel()
	battery.ChargeHoursTarget = 2
	battery.DischargeHoursTarget = 2

	plan, err := planner.Plan(domain.PriceSeriesFromValues(planDay, values), battery, 40)
	require.NoError(err)
	// charge sooner
	assert.Equal(t, []int{3, 7}, plan.ChargeHours())
	// discharge later
	assert.Equal(t, []int{20, 22}, plan.DischargeHours())
}

func TestPlanStopsChargingAtMaxSoc(t *testing.T) {

	require := require.New(t)
	planner := newTestPlanner(t)

	plan, err := planner.Plan(domain.PriceSeriesFromValues(planDay, peakValleyPrices()), domain.DefaultBatteryModel(), 90)
	require.NoError(err)

	// 1 kWh of headroom fills up during the first cheap hour
	assert.Equal(t, []int{2}, plan.ChargeHours())
	assert.InDelta(t, 1.0, plan.At(2).EnergyKWh, 1e-9)
	assert.InDelta(t, 100.0, plan.At(2).SocEndPct, 1e-9)
}

func TestPlanNeverDischargesBelowMinSoc(t *testing.T) {

	require := require.New(t)
	planner := newTestPlanner(t)

	battery := domain.DefaultBatteryModel()
	battery.ChargeHoursTarget = 0

	plan, err := planner.Plan(domain.PriceSeriesFromValues(planDay, peakValleyPrices()), battery, battery.MinSocPct)
	require.NoError(err)
	assert.Empty(t, plan.DischargeHours())

	// 3 kWh above the floor: hour 5 takes a full hour, hour 4 gets the rest
	plan, err = planner.Plan(domain.PriceSeriesFromValues(planDay, peakValleyPrices()), battery, 40)
	require.NoError(err)
	assert.Equal(t, []int{4, 5}, plan.DischargeHours())
	assert.InDelta(t, 0.5, plan.At(4).EnergyKWh, 1e-9)
	assert.InDelta(t, 2.5, plan.At(5).EnergyKWh, 1e-9)
	assert.InDelta(t, battery.MinSocPct, plan.FinalSocPct(), 1e-9)
}

func TestPlanSkipsUnprofitableDischarge(t *testing.T) {

	require := require.New(t)
	planner := newTestPlanner(t)

	// 10 vs 10.5: the spread does not cover the round trip loss
	values := flatPrices(10.5)
	values[0], values[1] = 10, 10

	plan, err := planner.Plan(domain.PriceSeriesFromValues(planDay, values), domain.DefaultBatteryModel(), 10)
	require.NoError(err)
	assert.Equal(t, []int{0, 1}, plan.ChargeHours())
	assert.Empty(t, plan.DischargeHours())
}

func TestPlanWithoutProfitGuardDischargesTopHours(t *testing.T) {

	require := require.New(t)
	planner := newTestPlanner(t).WithProfitGuard(false)

	values := flatPrices(10.5)
	values[0], values[1] = 10, 10

	plan, err := planner.Plan(domain.PriceSeriesFromValues(planDay, values), domain.DefaultBatteryModel(), 10)
	require.NoError(err)
	assert.Equal(t, []int{0, 1}, plan.ChargeHours())
	// later hour wins the tie
	assert.Equal(t, []int{22, 23}, plan.DischargeHours())
	assert.InDelta(t, 10.0, plan.FinalSocPct(), 1e-6)
}
