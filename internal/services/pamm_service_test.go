package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnitPriceSeedsAtOne(t *testing.T) {
	assert.True(t, UnitPrice(dec("0"), dec("0")).Equal(dec("1")))
	assert.True(t, UnitPrice(dec("500"), dec("0")).Equal(dec("1")))
}

func TestUnitPrice(t *testing.T) {
	assert.True(t, UnitPrice(dec("1200"), dec("1000")).Equal(dec("1.2")))
	assert.True(t, UnitPrice(dec("1500"), dec("1000")).Equal(dec("1.5")))
}

func TestManagerFeeUnderWater(t *testing.T) {
	assert.True(t, ManagerFee(dec("900"), dec("1000"), dec("20")).IsZero())
	assert.True(t, ManagerFee(dec("1000"), dec("1000"), dec("20")).IsZero())
}

func TestManagerFeeAboveHighWaterMark(t *testing.T) {
	fee := ManagerFee(dec("1300"), dec("1000"), dec("20"))
	assert.True(t, fee.Equal(dec("60")), "fee %s", fee)
}

func TestDepositUnitsAtDriftedPrice(t *testing.T) {
	// Pool of 1000 units refreshed to 1500 equity: a 600 deposit buys 400
	// units at the approval-time price of 1.5.
	price := UnitPrice(dec("1500"), dec("1000"))
	unitsAdded := dec("600").DivRound(price, 8)

	assert.True(t, unitsAdded.Equal(dec("400")), "units %s", unitsAdded)
	assert.True(t, dec("1000").Add(unitsAdded).Equal(dec("1400")))
	assert.True(t, dec("1500").Add(dec("600")).Equal(dec("2100")))
}

func TestFeeUnitsWorthExactlyTheFee(t *testing.T) {
	equity := dec("1300")
	totalUnits := dec("1000")
	fee := dec("60")

	added := FeeUnits(fee, equity, totalUnits)
	newPrice := equity.DivRound(totalUnits.Add(added), 8)
	value := added.Mul(newPrice)

	diff := value.Sub(fee).Abs()
	assert.True(t, diff.LessThan(dec("0.000001")), "fee unit value off by %s", diff)
}

func TestRescaledUnitsPreservesDollarBalance(t *testing.T) {
	// Manager injection moves the unit price from 1.10 to 1.65; each investor
	// keeps their pre-injection value.
	oldPrice := dec("1.10")
	newPrice := dec("1.65")

	for _, units := range []string{"100", "2500.12345678", "0.00000001"} {
		oldUnits := dec(units)
		newUnits := RescaledUnits(oldUnits, oldPrice, newPrice)

		oldValue := oldUnits.Mul(oldPrice)
		newValue := newUnits.Mul(newPrice)
		diff := newValue.Sub(oldValue).Abs()
		assert.True(t, diff.LessThan(dec("0.000001")), "units %s value drift %s", units, diff)
	}
}

func TestRescaledUnitsGuardsZeroPrice(t *testing.T) {
	units := RescaledUnits(dec("100"), dec("1.10"), dec("0"))
	assert.True(t, units.Equal(dec("100")))
}
