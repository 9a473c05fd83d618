package repository

import (
	"context"
	"errors"

	"github.com/smallbiznis/clinicbilling/internal/blockingrules/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Find(ctx context.Context, db *gorm.DB) (*domain.BlockingRules, error) {
	var rules domain.BlockingRules
	err := db.WithContext(ctx).Where("id = ?", domain.GlobalRulesID).First(&rules).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rules, nil
}

func (r *repo) Save(ctx context.Context, db *gorm.DB, rules *domain.BlockingRules) error {
	rules.ID = domain.GlobalRulesID
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(rules).Error
}
