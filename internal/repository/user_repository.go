package repository

import (
	"volunteer_hub/internal/models"
	"volunteer_hub/internal/storage"
)

type UserRepository interface {
	Create(user *models.User) error
	FindByID(id uint) (*models.User, error)
	FindByUsername(username string) (*models.User, error)
}

type userRepository struct {
	baseRepository
}

func NewUserRepository(db *storage.PostgresDB) UserRepository {
	return &userRepository{baseRepository{db: db}}
}

func (r *userRepository) Create(user *models.User) error {
	return r.create(user)
}

func (r *userRepository) FindByID(id uint) (*models.User, error) {
	var user models.User
	if err := r.findByID(id, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) FindByUsername(username string) (*models.User, error) {
	var user models.User
	err := r.db.Where("username = ?", username).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}
