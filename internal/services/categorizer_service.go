package services

import (
	"strings"
	"time"

	"gorm.io/gorm"

	"finbridge/internal/categorize"
	apperrors "finbridge/internal/errors"
	"finbridge/internal/models"
)

// categorizerService builds per-tenant snapshots and runs the categorization
// engine against them.
type categorizerService struct {
	db     *gorm.DB
	engine *categorize.Engine
}

// NewCategorizerService creates a new CategorizerServicer over the given
// taxonomy.
func NewCategorizerService(db *gorm.DB, taxonomy categorize.Taxonomy) CategorizerServicer {
	return &categorizerService{
		db:     db,
		engine: categorize.NewEngine(taxonomy),
	}
}

// categorizedRow is the projection the learner scans over.
type categorizedRow struct {
	Description  string
	Date         time.Time
	CategoryID   uint
	CategoryName string
}

// BuildPatterns derives the merchant pattern map from the user's categorized
// transaction history. Merchants seen fewer than twice are excluded; when a
// merchant has been filed under several categories, the most frequent one
// wins, with ties broken by most recent use. Rows still sitting in the
// default Uncategorized bucket are not treated as signal.
func (s *categorizerService) BuildPatterns(userID uint) (map[string]categorize.MerchantPattern, error) {
	var rows []categorizedRow
	err := s.db.Model(&models.Transaction{}).
		Select("transactions.description, transactions.date, transactions.category_id, categories.name AS category_name").
		Joins("JOIN categories ON categories.id = transactions.category_id").
		Where("transactions.user_id = ? AND transactions.category_id IS NOT NULL", userID).
		Where("categories.name <> ?", models.UncategorizedName).
		Scan(&rows).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	type categoryTally struct {
		name     string
		count    int
		lastSeen time.Time
	}
	grouped := make(map[string]map[uint]*categoryTally)
	totals := make(map[string]int)

	for _, row := range rows {
		key := categorize.NormalizeMerchant(row.Description)
		if key == "" {
			continue
		}
		totals[key]++

		byCategory, ok := grouped[key]
		if !ok {
			byCategory = make(map[uint]*categoryTally)
			grouped[key] = byCategory
		}
		tally, ok := byCategory[row.CategoryID]
		if !ok {
			tally = &categoryTally{name: row.CategoryName}
			byCategory[row.CategoryID] = tally
		}
		tally.count++
		if row.Date.After(tally.lastSeen) {
			tally.lastSeen = row.Date
		}
	}

	patterns := make(map[string]categorize.MerchantPattern, len(grouped))
	for key, byCategory := range grouped {
		if totals[key] < 2 {
			continue
		}

		var winnerID uint
		var winner *categoryTally
		for id, tally := range byCategory {
			if winner == nil ||
				tally.count > winner.count ||
				(tally.count == winner.count && tally.lastSeen.After(winner.lastSeen)) {
				winnerID = id
				winner = tally
			}
		}

		patterns[key] = categorize.MerchantPattern{
			CategoryID:   winnerID,
			CategoryName: winner.name,
			Frequency:    winner.count,
			LastSeen:     winner.lastSeen,
		}
	}
	return patterns, nil
}

// Snapshot builds the engine input for one categorization batch: the learned
// merchant patterns plus the user's categories keyed by lowercased name.
func (s *categorizerService) Snapshot(userID uint) (categorize.Snapshot, error) {
	patterns, err := s.BuildPatterns(userID)
	if err != nil {
		return categorize.Snapshot{}, err
	}

	var categories []models.Category
	if err := s.db.Where("user_id = ?", userID).Find(&categories).Error; err != nil {
		return categorize.Snapshot{}, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	refs := make(map[string]categorize.CategoryRef, len(categories))
	for _, c := range categories {
		refs[strings.ToLower(c.Name)] = categorize.CategoryRef{ID: c.ID, Name: c.Name}
	}

	return categorize.Snapshot{Patterns: patterns, Categories: refs}, nil
}

// Categorize runs the engine for a single description.
func (s *categorizerService) Categorize(userID uint, description string) (categorize.Result, error) {
	snap, err := s.Snapshot(userID)
	if err != nil {
		return categorize.Result{}, err
	}
	return s.engine.Categorize(description, snap), nil
}

// CategorizeBatch runs the engine for every description against one shared
// snapshot, so merchant patterns are computed once per batch.
func (s *categorizerService) CategorizeBatch(userID uint, descriptions []string) ([]categorize.Result, error) {
	snap, err := s.Snapshot(userID)
	if err != nil {
		return nil, err
	}
	return s.engine.CategorizeBatch(descriptions, snap), nil
}
