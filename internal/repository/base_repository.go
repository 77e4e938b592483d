package repository

import "volunteer_hub/internal/storage"

// baseRepository 提供各 gorm repository 共用的基本操作
type baseRepository struct {
	db *storage.PostgresDB
}

func (r *baseRepository) create(model interface{}) error {
	return r.db.Create(model).Error
}

func (r *baseRepository) findByID(id uint, model interface{}) error {
	return r.db.First(model, id).Error
}

func (r *baseRepository) update(model interface{}) error {
	return r.db.Save(model).Error
}
