package services

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"backoffice-service/internal/models"
	"backoffice-service/internal/mt5"
)

// ErrInvariant marks writes that would corrupt the ledger (negative
// magnitudes, negative units). Fatal for the operation, surfaced to operators.
var ErrInvariant = errors.New("ledger invariant violation")

type IngestStatus string

const (
	StatusWritten         IngestStatus = "written"
	SkippedDuplicate      IngestStatus = "skipped_duplicate"
	SkippedNoIBChain      IngestStatus = "skipped_no_ib_chain"
	SkippedMissingProfile IngestStatus = "skipped_missing_profile"
	SkippedZeroPolicy     IngestStatus = "skipped_zero_policy"
)

type IngestResult struct {
	Status  IngestStatus
	Written int
}

// NormalizedDeal is a closed deal after orchestrator-side normalisation,
// joined with the owning client and trading account.
type NormalizedDeal struct {
	PositionID      string
	DealTicket      string
	Symbol          string
	PositionType    string
	Direction       string
	LotSize         decimal.Decimal
	Profit          decimal.Decimal
	TotalCommission decimal.Decimal
	CloseTime       time.Time
	TradingAccount  *models.TradingAccount
	ClientUser      *models.User
}

// NormalizeDeal converts a raw manager deal. The closed volume is preferred
// when present; raw volume divides by the group scale (ten-thousandths of a
// lot by default). A zero upstream commission falls back to the default
// per-lot rate, since some groups book fees elsewhere.
func NormalizeDeal(deal mt5.Deal, volumeScale int64, defaultPerLot decimal.Decimal) NormalizedDeal {
	if volumeScale <= 0 {
		volumeScale = 10000
	}

	raw := deal.VolumeRaw
	if deal.VolumeClosedRaw > 0 {
		raw = deal.VolumeClosedRaw
	}
	lotSize := decimal.Zero
	if raw > 0 {
		lotSize = decimal.NewFromInt(raw).Div(decimal.NewFromInt(volumeScale))
	}

	commission := deal.Commission.Abs()
	if commission.IsZero() {
		commission = lotSize.Mul(defaultPerLot)
	}

	positionType := "sell"
	if deal.Type == 0 {
		positionType = "buy"
	}

	return NormalizedDeal{
		PositionID:      deal.PositionID,
		DealTicket:      deal.DealID,
		Symbol:          deal.Symbol,
		PositionType:    positionType,
		Direction:       "in",
		LotSize:         lotSize,
		Profit:          deal.Profit,
		TotalCommission: commission,
		CloseTime:       deal.CloseTime(),
	}
}

// ResolveIBChain walks parent_ib pointers from the client, level 1 first.
// Cycles are broken at the repeating node and logged; ingestion never loops.
func ResolveIBChain(client *models.User, fetch func(id uint) (*models.User, error)) ([]*models.User, error) {
	var chain []*models.User
	visited := map[uint]bool{client.ID: true}

	next := client.ParentIBID
	for next != nil {
		if visited[*next] {
			log.Printf("parent_ib cycle detected at user %d, breaking chain walk", *next)
			break
		}
		ib, err := fetch(*next)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				break
			}
			return nil, err
		}
		visited[ib.ID] = true
		chain = append(chain, ib)
		next = ib.ParentIBID
	}
	return chain, nil
}

type LevelShare struct {
	Level int
	Share decimal.Decimal
}

// ComputeLevelShares applies the profile's level entries in level order.
// A missing level terminates the walk for payout purposes; zero shares are
// dropped. Results are magnitudes.
func ComputeLevelShares(levels []models.CommissionProfileLevel, lotSize, totalCommission decimal.Decimal) []LevelShare {
	byLevel := make(map[int]models.CommissionProfileLevel, len(levels))
	for _, l := range levels {
		byLevel[l.Level] = l
	}

	var shares []LevelShare
	for level := 1; ; level++ {
		entry, ok := byLevel[level]
		if !ok {
			break
		}
		var share decimal.Decimal
		switch entry.Kind {
		case models.LevelKindFlatPerLot:
			share = entry.Rate.Mul(lotSize)
		case models.LevelKindPercentage:
			share = entry.Pct.Div(decimal.NewFromInt(100)).Mul(totalCommission)
		default:
			log.Printf("unknown profile level kind %q at level %d, skipping", entry.Kind, level)
			continue
		}
		share = share.Abs().Round(2)
		if share.IsZero() {
			continue
		}
		shares = append(shares, LevelShare{Level: level, Share: share})
	}

	sort.Slice(shares, func(i, j int) bool { return shares[i].Level < shares[j].Level })
	return shares
}

// CommissionService computes and persists multi-level IB commissions.
type CommissionService struct {
	DB *gorm.DB
}

func NewCommissionService(db *gorm.DB) *CommissionService {
	return &CommissionService{DB: db}
}

// activeProfile returns the latest active profile attached to the level-1 IB.
// A single profile governs all levels of the chain.
func (s *CommissionService) activeProfile(ibUserID uint) (*models.CommissionProfile, error) {
	var profile models.CommissionProfile
	err := s.DB.Preload("Levels").
		Where("ib_user_id = ? AND is_active = ?", ibUserID, true).
		Order("version DESC").
		First(&profile).Error
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// ProcessClosedDeal writes one commission row per non-zero level share under
// the 4-tuple uniqueness contract. Row inserts and the IB earnings increments
// commit in a single transaction; duplicate keys downgrade to a skip.
func (s *CommissionService) ProcessClosedDeal(nd NormalizedDeal) (IngestResult, error) {
	if nd.ClientUser == nil || nd.TradingAccount == nil {
		return IngestResult{Status: SkippedNoIBChain}, nil
	}
	if nd.TotalCommission.IsNegative() {
		return IngestResult{}, fmt.Errorf("%w: negative total commission for position %s", ErrInvariant, nd.PositionID)
	}

	chain, err := ResolveIBChain(nd.ClientUser, func(id uint) (*models.User, error) {
		var u models.User
		if err := s.DB.First(&u, id).Error; err != nil {
			return nil, err
		}
		return &u, nil
	})
	if err != nil {
		return IngestResult{}, err
	}
	if len(chain) == 0 {
		return IngestResult{Status: SkippedNoIBChain}, nil
	}

	profile, err := s.activeProfile(chain[0].ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return IngestResult{Status: SkippedMissingProfile}, nil
		}
		return IngestResult{}, err
	}

	shares := ComputeLevelShares(profile.Levels, nd.LotSize, nd.TotalCommission)
	if len(shares) == 0 {
		return IngestResult{Status: SkippedZeroPolicy}, nil
	}

	written := 0
	duplicates := 0
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		earned := make(map[uint]decimal.Decimal)
		for _, share := range shares {
			if share.Level > len(chain) {
				break
			}
			ib := chain[share.Level-1]

			var dealTicket *string
			if nd.DealTicket != "" {
				t := nd.DealTicket
				dealTicket = &t
			}
			row := models.CommissionTransaction{
				PositionID:             nd.PositionID,
				ClientTradingAccountID: nd.TradingAccount.ID,
				ClientUserID:           nd.ClientUser.ID,
				IBUserID:               ib.ID,
				IBLevel:                share.Level,
				ProfileID:              profile.ID,
				PositionSymbol:         nd.Symbol,
				PositionType:           nd.PositionType,
				PositionDirection:      nd.Direction,
				LotSize:                nd.LotSize,
				Profit:                 nd.Profit,
				TotalCommission:        nd.TotalCommission,
				CommissionToIB:         share.Share,
				DealTicket:             dealTicket,
				MT5CloseTime:           nd.CloseTime,
			}
			if err := tx.Create(&row).Error; err != nil {
				if isDuplicateKey(err) {
					duplicates++
					continue
				}
				return err
			}
			written++
			earned[ib.ID] = earned[ib.ID].Add(share.Share)
		}

		for ibID, amount := range earned {
			if err := tx.Model(&models.User{}).Where("id = ?", ibID).
				UpdateColumn("total_earnings", gorm.Expr("total_earnings + ?", amount)).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return IngestResult{}, err
	}

	switch {
	case written > 0:
		return IngestResult{Status: StatusWritten, Written: written}, nil
	case duplicates > 0:
		return IngestResult{Status: SkippedDuplicate}, nil
	default:
		return IngestResult{Status: SkippedZeroPolicy}, nil
	}
}

// isDuplicateKey recognises a unique-constraint violation (MySQL 1062).
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}
