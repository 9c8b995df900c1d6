package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"

	"food_ordering/models"
)

// CatalogCache is implemented by cache.CatalogCache.
type CatalogCache interface {
	Get(ctx context.Context, name string, dest any) (bool, error)
	Set(ctx context.Context, name string, value any) error
	Invalidate(ctx context.Context) error
}

type CatalogService struct {
	db    *gorm.DB
	cache CatalogCache
	log   *slog.Logger
}

// NewCatalogService builds the service. cache may be nil.
func NewCatalogService(db *gorm.DB, cache CatalogCache, log *slog.Logger) *CatalogService {
	return &CatalogService{db: db, cache: cache, log: log}
}

type GroupWithOptions struct {
	models.ConfigurationGroup
	Options []OptionView `json:"options"`
}

type OptionView struct {
	models.ConfigurationOption
	Name string `json:"name"`
}

type ProductConfiguration struct {
	Product models.Product     `json:"product"`
	Groups  []GroupWithOptions `json:"groups"`
}

func validateCategory(c *models.Category) ValidationErrors {
	var errs ValidationErrors
	if strings.TrimSpace(c.Name) == "" {
		errs.Add("name", "is required")
	}
	return errs
}

func validateProduct(p *models.Product) ValidationErrors {
	var errs ValidationErrors
	if strings.TrimSpace(p.Name) == "" {
		errs.Add("name", "is required")
	}
	if p.CategoryID <= 0 {
		errs.Add("category_id", "is required")
	}
	if p.Price.IsNegative() {
		errs.Add("price", "must not be negative")
	}
	return errs
}

func validateGroup(g *models.ConfigurationGroup) ValidationErrors {
	var errs ValidationErrors
	if strings.TrimSpace(g.Name) == "" {
		errs.Add("name", "is required")
	}
	if g.MinSelect < 0 {
		errs.Add("min_select", "must not be negative")
	}
	if g.MaxSelect < 1 {
		errs.Add("max_select", "must be at least 1")
	}
	if g.MaxSelect < g.MinSelect {
		errs.Add("max_select", "must not be lower than min_select")
	}
	return errs
}

func slugify(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), "-")
}

func (s *CatalogService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.log.Warn("catalog cache invalidation failed", "err", err)
	}
}

// cached serves name from the cache, falling back to load.
func (s *CatalogService) cached(ctx context.Context, name string, dest any, load func() error) error {
	if s.cache != nil {
		found, err := s.cache.Get(ctx, name, dest)
		if err != nil {
			s.log.Warn("catalog cache read failed", "key", name, "err", err)
		} else if found {
			return nil
		}
	}
	if err := retryRead(ctx, load); err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, name, dest); err != nil {
			s.log.Warn("catalog cache write failed", "key", name, "err", err)
		}
	}
	return nil
}

func (s *CatalogService) CreateCategory(ctx context.Context, category *models.Category) error {
	if err := validateCategory(category).Err(); err != nil {
		return err
	}
	if category.Slug == "" {
		category.Slug = slugify(category.Name)
	}
	if err := s.db.WithContext(ctx).Create(category).Error; err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *CatalogService) UpdateCategory(ctx context.Context, id int64, category *models.Category) (*models.Category, error) {
	if err := validateCategory(category).Err(); err != nil {
		return nil, err
	}
	existing := &models.Category{}
	if err := s.db.WithContext(ctx).First(existing, id).Error; err != nil {
		return nil, notFound("category", err)
	}
	existing.Name = category.Name
	existing.IsActive = category.IsActive
	if category.Slug != "" {
		existing.Slug = category.Slug
	}
	if err := s.db.WithContext(ctx).Save(existing).Error; err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return existing, nil
}

func (s *CatalogService) ListCategories(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	err := s.cached(ctx, "categories", &categories, func() error {
		return s.db.WithContext(ctx).Where("is_active = ?", true).Order("name").Find(&categories).Error
	})
	return categories, err
}

func (s *CatalogService) CreateProduct(ctx context.Context, product *models.Product) error {
	if err := validateProduct(product).Err(); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).First(&models.Category{}, product.CategoryID).Error; err != nil {
		return notFound("category", err)
	}
	if err := s.db.WithContext(ctx).Create(product).Error; err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *CatalogService) UpdateProduct(ctx context.Context, id int64, product *models.Product) (*models.Product, error) {
	if err := validateProduct(product).Err(); err != nil {
		return nil, err
	}
	existing := &models.Product{}
	if err := s.db.WithContext(ctx).First(existing, id).Error; err != nil {
		return nil, notFound("product", err)
	}
	existing.CategoryID = product.CategoryID
	existing.Name = product.Name
	existing.Description = product.Description
	existing.Price = product.Price
	existing.IsConfigurable = product.IsConfigurable
	existing.IsActive = product.IsActive
	existing.UpdatedAt = time.Now()
	if err := s.db.WithContext(ctx).Save(existing).Error; err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return existing, nil
}

// DeleteProduct hides the product from the catalog. Past orders keep their
// own snapshot of it.
func (s *CatalogService) DeleteProduct(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Model(&models.Product{}).Where("id = ?", id).Update("is_active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("product: %w", ErrNotFound)
	}
	s.invalidate(ctx)
	return nil
}

func (s *CatalogService) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	product := &models.Product{}
	err := retryRead(ctx, func() error {
		return s.db.WithContext(ctx).First(product, id).Error
	})
	if err != nil {
		return nil, notFound("product", err)
	}
	return product, nil
}

// ListProducts returns active products, optionally limited to one category.
func (s *CatalogService) ListProducts(ctx context.Context, categoryID int64) ([]models.Product, error) {
	var products []models.Product
	key := fmt.Sprintf("products:%d", categoryID)
	err := s.cached(ctx, key, &products, func() error {
		q := s.db.WithContext(ctx).Where("is_active = ?", true)
		if categoryID > 0 {
			q = q.Where("category_id = ?", categoryID)
		}
		return q.Order("id").Find(&products).Error
	})
	return products, err
}

func (s *CatalogService) CreateVariant(ctx context.Context, variant *models.ProductVariant) error {
	var errs ValidationErrors
	if strings.TrimSpace(variant.Name) == "" {
		errs.Add("name", "is required")
	}
	if variant.Price.IsNegative() {
		errs.Add("price", "must not be negative")
	}
	if err := errs.Err(); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).First(&models.Product{}, variant.ProductID).Error; err != nil {
		return notFound("product", err)
	}
	if err := s.db.WithContext(ctx).Create(variant).Error; err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *CatalogService) ListVariants(ctx context.Context, productID int64) ([]models.ProductVariant, error) {
	var variants []models.ProductVariant
	err := retryRead(ctx, func() error {
		return s.db.WithContext(ctx).Where("product_id = ? AND is_active = ?", productID, true).Order("id").Find(&variants).Error
	})
	return variants, err
}

func (s *CatalogService) CreateGroup(ctx context.Context, group *models.ConfigurationGroup) error {
	if err := validateGroup(group).Err(); err != nil {
		return err
	}
	product := &models.Product{}
	if err := s.db.WithContext(ctx).First(product, group.ProductID).Error; err != nil {
		return notFound("product", err)
	}
	if !product.IsConfigurable {
		return ValidationErrors{{Field: "product_id", Message: "product is not configurable"}}
	}
	if err := s.db.WithContext(ctx).Create(group).Error; err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// DeleteGroup removes a group and its options.
func (s *CatalogService) DeleteGroup(ctx context.Context, id int64) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("group_id = ?", id).Delete(&models.ConfigurationOption{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.ConfigurationGroup{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("configuration group: %w", ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *CatalogService) CreateOption(ctx context.Context, option *models.ConfigurationOption) error {
	db := s.db.WithContext(ctx)
	if err := db.First(&models.ConfigurationGroup{}, option.GroupID).Error; err != nil {
		return notFound("configuration group", err)
	}
	if err := db.First(&models.Product{}, option.OptionProductID).Error; err != nil {
		return notFound("option product", err)
	}
	if option.OptionVariantID != nil {
		variant := &models.ProductVariant{}
		if err := db.First(variant, *option.OptionVariantID).Error; err != nil {
			return notFound("option variant", err)
		}
		if variant.ProductID != option.OptionProductID {
			return ValidationErrors{{Field: "option_variant_id", Message: "variant does not belong to the option product"}}
		}
	}
	if err := db.Create(option).Error; err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *CatalogService) DeleteOption(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Delete(&models.ConfigurationOption{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("configuration option: %w", ErrNotFound)
	}
	s.invalidate(ctx)
	return nil
}

// GetProductConfiguration returns the product with its groups and options
// in display order.
func (s *CatalogService) GetProductConfiguration(ctx context.Context, productID int64) (*ProductConfiguration, error) {
	conf := &ProductConfiguration{}
	err := s.cached(ctx, fmt.Sprintf("configuration:%d", productID), conf, func() error {
		loaded, err := loadConfiguration(s.db.WithContext(ctx), productID)
		if err != nil {
			return err
		}
		*conf = *loaded
		return nil
	})
	if err != nil {
		return nil, notFound("product", err)
	}
	return conf, nil
}

func loadConfiguration(db *gorm.DB, productID int64) (*ProductConfiguration, error) {
	conf := &ProductConfiguration{}
	if err := db.First(&conf.Product, productID).Error; err != nil {
		return nil, err
	}

	var groups []models.ConfigurationGroup
	if err := db.Where("product_id = ?", productID).Order("sort_order, id").Find(&groups).Error; err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		conf.Groups = []GroupWithOptions{}
		return conf, nil
	}

	groupIDs := make([]int64, 0, len(groups))
	for _, g := range groups {
		groupIDs = append(groupIDs, g.ID)
	}
	var options []models.ConfigurationOption
	if err := db.Where("group_id IN ?", groupIDs).Order("sort_order, id").Find(&options).Error; err != nil {
		return nil, err
	}

	names, err := optionNames(db, options)
	if err != nil {
		return nil, err
	}

	byGroup := make(map[int64][]OptionView, len(groups))
	for _, o := range options {
		byGroup[o.GroupID] = append(byGroup[o.GroupID], OptionView{ConfigurationOption: o, Name: names[o.ID]})
	}
	for _, g := range groups {
		opts := byGroup[g.ID]
		if opts == nil {
			opts = []OptionView{}
		}
		conf.Groups = append(conf.Groups, GroupWithOptions{ConfigurationGroup: g, Options: opts})
	}
	return conf, nil
}

// optionNames resolves display names ("Product" or "Product - Variant")
// keyed by option id.
func optionNames(db *gorm.DB, options []models.ConfigurationOption) (map[int64]string, error) {
	productIDs := make([]int64, 0, len(options))
	variantIDs := make([]int64, 0)
	for _, o := range options {
		productIDs = append(productIDs, o.OptionProductID)
		if o.OptionVariantID != nil {
			variantIDs = append(variantIDs, *o.OptionVariantID)
		}
	}

	products := map[int64]string{}
	if len(productIDs) > 0 {
		var rows []models.Product
		if err := db.Where("id IN ?", productIDs).Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, p := range rows {
			products[p.ID] = p.Name
		}
	}
	variants := map[int64]string{}
	if len(variantIDs) > 0 {
		var rows []models.ProductVariant
		if err := db.Where("id IN ?", variantIDs).Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, v := range rows {
			variants[v.ID] = v.Name
		}
	}

	names := make(map[int64]string, len(options))
	for _, o := range options {
		name := products[o.OptionProductID]
		if o.OptionVariantID != nil {
			name += " - " + variants[*o.OptionVariantID]
		}
		names[o.ID] = name
	}
	return names, nil
}
