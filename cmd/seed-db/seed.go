package main

import (
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/wassimD28/store-go/internal/domain/product"
	"github.com/wassimD28/store-go/internal/domain/promotion"
)

type seedFile struct {
	Stores []storeJSON `json:"stores"`
}

type storeJSON struct {
	ID         string          `json:"id"`
	Categories []categoryJSON  `json:"categories"`
	Products   []productJSON   `json:"products"`
	Promotions []promotionJSON `json:"promotions"`
}

type categoryJSON struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type productJSON struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	CategoryID string          `json:"categoryId"`
	ImageURL   string          `json:"imageUrl"`
}

type promotionJSON struct {
	ID                    string          `json:"id"`
	Name                  string          `json:"name"`
	Description           string          `json:"description"`
	DiscountType          string          `json:"discountType"`
	DiscountValue         decimal.Decimal `json:"discountValue"`
	MinimumPurchase       decimal.Decimal `json:"minimumPurchase"`
	CouponCode            string          `json:"couponCode"`
	ApplicableProducts    []string        `json:"applicableProducts"`
	ApplicableCategories  []string        `json:"applicableCategories"`
	BuyQuantity           int             `json:"buyQuantity"`
	GetQuantity           int             `json:"getQuantity"`
	YApplicableProducts   []string        `json:"yApplicableProducts"`
	YApplicableCategories []string        `json:"yApplicableCategories"`
	SameProductOnly       bool            `json:"sameProductOnly"`
	StartDate             *time.Time      `json:"startDate"`
	EndDate               *time.Time      `json:"endDate"`
	IsActive              bool            `json:"isActive"`
	MaxUses               int             `json:"maxUses"`
}

type store struct {
	ID         string
	Categories []categoryJSON
	Products   []product.Product
	Promotions []promotion.Promotion
}

// parseSeed decodes and validates the seed file. Any invalid promotion fails
// the whole seed so that nothing is half-loaded.
func parseSeed(data []byte) ([]store, error) {
	var f seedFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "decode")
	}

	stores := make([]store, 0, len(f.Stores))
	for _, sj := range f.Stores {
		if sj.ID == "" {
			return nil, errors.New("store without id")
		}
		s := store{ID: sj.ID, Categories: sj.Categories}
		for _, pj := range sj.Products {
			s.Products = append(s.Products, product.Product{
				ID:         pj.ID,
				StoreID:    sj.ID,
				Name:       pj.Name,
				Price:      pj.Price,
				CategoryID: pj.CategoryID,
				ImageURL:   pj.ImageURL,
			})
		}
		for _, pj := range sj.Promotions {
			p, err := pj.promotion(sj.ID)
			if err != nil {
				return nil, errors.Wrapf(err, "store %q promotion %q", sj.ID, pj.ID)
			}
			s.Promotions = append(s.Promotions, p)
		}
		stores = append(stores, s)
	}
	return stores, nil
}

func (pj promotionJSON) promotion(storeID string) (promotion.Promotion, error) {
	discount, err := promotion.DiscountFields{
		Type:            promotion.DiscountType(pj.DiscountType),
		Value:           pj.DiscountValue,
		BuyQuantity:     pj.BuyQuantity,
		GetQuantity:     pj.GetQuantity,
		YProducts:       pj.YApplicableProducts,
		YCategories:     pj.YApplicableCategories,
		SameProductOnly: pj.SameProductOnly,
	}.Decode()
	if err != nil {
		return promotion.Promotion{}, err
	}

	p := promotion.Promotion{
		ID:                   pj.ID,
		StoreID:              storeID,
		Name:                 pj.Name,
		Description:          pj.Description,
		Discount:             discount,
		MinimumPurchase:      pj.MinimumPurchase,
		CouponCode:           pj.CouponCode,
		ApplicableProducts:   pj.ApplicableProducts,
		ApplicableCategories: pj.ApplicableCategories,
		IsActive:             pj.IsActive,
		MaxUses:              pj.MaxUses,
	}
	if pj.StartDate != nil {
		p.StartDate = *pj.StartDate
	}
	if pj.EndDate != nil {
		p.EndDate = *pj.EndDate
	}
	if err := p.Validate(); err != nil {
		return promotion.Promotion{}, err
	}
	return p, nil
}
