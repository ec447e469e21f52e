package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"backoffice-service/internal/models"
	"backoffice-service/internal/mt5"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestNormalizeDealFlat(t *testing.T) {
	deal := mt5.Deal{
		DealID:     "D1",
		PositionID: "P1",
		Symbol:     "EURUSD",
		Type:       0,
		VolumeRaw:  20000,
		Commission: dec("7.00"),
		Profit:     dec("12.30"),
		TimeUnix:   1700000000,
	}

	nd := NormalizeDeal(deal, 10000, dec("8.00"))

	assert.True(t, nd.LotSize.Equal(dec("2")), "lot size %s", nd.LotSize)
	assert.True(t, nd.TotalCommission.Equal(dec("7.00")))
	assert.Equal(t, "buy", nd.PositionType)
	assert.Equal(t, "in", nd.Direction)
	assert.Equal(t, time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC), nd.CloseTime)
}

func TestNormalizeDealZeroCommissionFallback(t *testing.T) {
	deal := mt5.Deal{PositionID: "P1", Type: 1, VolumeRaw: 5000}

	nd := NormalizeDeal(deal, 10000, dec("8.00"))

	assert.True(t, nd.LotSize.Equal(dec("0.5")), "lot size %s", nd.LotSize)
	assert.True(t, nd.TotalCommission.Equal(dec("4.00")), "commission %s", nd.TotalCommission)
	assert.Equal(t, "sell", nd.PositionType)
}

func TestNormalizeDealPrefersClosedVolume(t *testing.T) {
	deal := mt5.Deal{PositionID: "P1", VolumeRaw: 20000, VolumeClosedRaw: 10000, Commission: dec("1.00")}

	nd := NormalizeDeal(deal, 10000, dec("8.00"))
	assert.True(t, nd.LotSize.Equal(dec("1")), "lot size %s", nd.LotSize)
}

func TestNormalizeDealNonPositiveVolume(t *testing.T) {
	deal := mt5.Deal{PositionID: "P1", VolumeRaw: -100}

	nd := NormalizeDeal(deal, 10000, dec("8.00"))
	assert.True(t, nd.LotSize.IsZero())
	assert.True(t, nd.TotalCommission.IsZero())
}

func TestNormalizeDealNegativeCommissionStoredAsMagnitude(t *testing.T) {
	deal := mt5.Deal{PositionID: "P1", VolumeRaw: 10000, Commission: dec("-3.20")}

	nd := NormalizeDeal(deal, 10000, dec("8.00"))
	assert.True(t, nd.TotalCommission.Equal(dec("3.20")))
}

func TestComputeLevelSharesFlatPerLot(t *testing.T) {
	levels := []models.CommissionProfileLevel{
		{Level: 1, Kind: models.LevelKindFlatPerLot, Rate: dec("3.5")},
	}

	shares := ComputeLevelShares(levels, dec("2"), dec("7.00"))
	require.Len(t, shares, 1)
	assert.Equal(t, 1, shares[0].Level)
	assert.True(t, shares[0].Share.Equal(dec("7.00")), "share %s", shares[0].Share)
}

func TestComputeLevelSharesPercentageTwoLevels(t *testing.T) {
	levels := []models.CommissionProfileLevel{
		{Level: 2, Kind: models.LevelKindPercentage, Pct: dec("20")},
		{Level: 1, Kind: models.LevelKindPercentage, Pct: dec("60")},
	}

	shares := ComputeLevelShares(levels, dec("1"), dec("10.00"))
	require.Len(t, shares, 2)
	assert.True(t, shares[0].Share.Equal(dec("6.00")), "L1 share %s", shares[0].Share)
	assert.True(t, shares[1].Share.Equal(dec("2.00")), "L2 share %s", shares[1].Share)
}

func TestComputeLevelSharesMissingLevelTerminates(t *testing.T) {
	levels := []models.CommissionProfileLevel{
		{Level: 1, Kind: models.LevelKindFlatPerLot, Rate: dec("1")},
		{Level: 3, Kind: models.LevelKindFlatPerLot, Rate: dec("1")},
	}

	shares := ComputeLevelShares(levels, dec("1"), dec("5.00"))
	require.Len(t, shares, 1)
	assert.Equal(t, 1, shares[0].Level)
}

func TestComputeLevelSharesDropsZero(t *testing.T) {
	levels := []models.CommissionProfileLevel{
		{Level: 1, Kind: models.LevelKindFlatPerLot, Rate: dec("0")},
		{Level: 2, Kind: models.LevelKindPercentage, Pct: dec("50")},
	}

	shares := ComputeLevelShares(levels, dec("1"), dec("10.00"))
	require.Len(t, shares, 1)
	assert.Equal(t, 2, shares[0].Level)
	assert.True(t, shares[0].Share.Equal(dec("5.00")))
}

func chainFetcher(users map[uint]*models.User) func(id uint) (*models.User, error) {
	return func(id uint) (*models.User, error) {
		u, ok := users[id]
		if !ok {
			return nil, gorm.ErrRecordNotFound
		}
		return u, nil
	}
}

func uintPtr(v uint) *uint { return &v }

func TestResolveIBChainTwoLevels(t *testing.T) {
	users := map[uint]*models.User{
		2: {ID: 2, ParentIBID: uintPtr(3)},
		3: {ID: 3},
	}
	client := &models.User{ID: 1, ParentIBID: uintPtr(2)}

	chain, err := ResolveIBChain(client, chainFetcher(users))
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, uint(2), chain[0].ID)
	assert.Equal(t, uint(3), chain[1].ID)
}

func TestResolveIBChainEmpty(t *testing.T) {
	client := &models.User{ID: 1}

	chain, err := ResolveIBChain(client, chainFetcher(nil))
	require.NoError(t, err)
	assert.Empty(t, chain)
}

func TestResolveIBChainBreaksCycle(t *testing.T) {
	users := map[uint]*models.User{
		2: {ID: 2, ParentIBID: uintPtr(3)},
		3: {ID: 3, ParentIBID: uintPtr(2)},
	}
	client := &models.User{ID: 1, ParentIBID: uintPtr(2)}

	chain, err := ResolveIBChain(client, chainFetcher(users))
	require.NoError(t, err)
	require.Len(t, chain, 2)
}

func TestResolveIBChainSelfParent(t *testing.T) {
	client := &models.User{ID: 1, ParentIBID: uintPtr(1)}

	chain, err := ResolveIBChain(client, chainFetcher(nil))
	require.NoError(t, err)
	assert.Empty(t, chain)
}

func TestResolveIBChainPropagatesFetchError(t *testing.T) {
	client := &models.User{ID: 1, ParentIBID: uintPtr(2)}
	boom := fmt.Errorf("connection refused")

	_, err := ResolveIBChain(client, func(id uint) (*models.User, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
}
