package vehicle

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) withCtx(ctx context.Context) *gorm.DB {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.WithContext(ctx)
}

func (r *Repo) UpsertModel(ctx context.Context, m *VehicleModel) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Save(m).Error
}

func (r *Repo) Upsert(ctx context.Context, v *Vehicle) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Omit("Spec").Save(v).Error
}

func (r *Repo) FindByID(ctx context.Context, id string) (*Vehicle, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var v Vehicle
	if err := db.Preload("Spec").Where("id = ?", id).First(&v).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

// List 支持按取车点 / 状态过滤 + 分页，车型一并预加载。
func (r *Repo) List(ctx context.Context, hub string, state State, offset, limit int) ([]Vehicle, int64, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, 0, fmt.Errorf("repo db is nil")
	}
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	q := db.Model(&Vehicle{})
	if hub != "" {
		q = q.Where("hub_location = ?", hub)
	}
	if state != "" {
		q = q.Where("state = ?", state)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var vehicles []Vehicle
	if err := q.Preload("Spec").Order("created_at DESC").Offset(offset).Limit(limit).Find(&vehicles).Error; err != nil {
		return nil, 0, err
	}
	return vehicles, total, nil
}

// ListFleet 返回整个车队（可用性查询的候选集），车型一并预加载。
func (r *Repo) ListFleet(ctx context.Context) ([]Vehicle, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var vehicles []Vehicle
	if err := db.Preload("Spec").Order("display_id").Find(&vehicles).Error; err != nil {
		return nil, err
	}
	return vehicles, nil
}

// UpdateLocked 在一个事务里对车辆行加锁后执行 mutate 并保存。
// 生命周期流转 / 保养标记重置都走这里，保证并发事件串行化。
func (r *Repo) UpdateLocked(ctx context.Context, id string, mutate func(v *Vehicle) error) (*Vehicle, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}

	var out *Vehicle
	err := db.Transaction(func(tx *gorm.DB) error {
		var v Vehicle
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&v).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if err := mutate(&v); err != nil {
			return err
		}
		if err := tx.Omit("Spec").Save(&v).Error; err != nil {
			return err
		}
		out = &v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
