package repo

import (
	"errors"

	"github.com/HavvokLab/solax-cloud/model"
	"gorm.io/gorm"
)

var ErrCredentialNotFound = errors.New("credential not found")

type SolaxCredentialRepo interface {
	FindAll() ([]model.SolaxCredential, error)
	FindByID(id string) (*model.SolaxCredential, error)
	FindByUniqueID(uniqueID string) (*model.SolaxCredential, error)
	Create(credential *model.SolaxCredential) error
	Delete(id string) error
}

type solaxCredentialRepo struct {
	db *gorm.DB
}

func NewSolaxCredentialRepo(db *gorm.DB) SolaxCredentialRepo {
	return &solaxCredentialRepo{db: db}
}

func (r *solaxCredentialRepo) FindAll() ([]model.SolaxCredential, error) {
	var credentials []model.SolaxCredential
	tx := r.db.Session(&gorm.Session{})
	if err := tx.Order("created_at").Find(&credentials).Error; err != nil {
		return nil, err
	}

	return credentials, nil
}

func (r *solaxCredentialRepo) FindByID(id string) (*model.SolaxCredential, error) {
	return r.findOne("id = ?", id)
}

func (r *solaxCredentialRepo) FindByUniqueID(uniqueID string) (*model.SolaxCredential, error) {
	return r.findOne("unique_id = ?", uniqueID)
}

func (r *solaxCredentialRepo) findOne(query string, arg string) (*model.SolaxCredential, error) {
	var credential model.SolaxCredential
	tx := r.db.Session(&gorm.Session{})
	if err := tx.Where(query, arg).First(&credential).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCredentialNotFound
		}
		return nil, err
	}

	return &credential, nil
}

func (r *solaxCredentialRepo) Create(credential *model.SolaxCredential) error {
	tx := r.db.Session(&gorm.Session{})
	if err := tx.Create(credential).Error; err != nil {
		return err
	}

	return nil
}

func (r *solaxCredentialRepo) Delete(id string) error {
	tx := r.db.Session(&gorm.Session{})
	result := tx.Where("id = ?", id).Delete(&model.SolaxCredential{})
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrCredentialNotFound
	}

	return nil
}
